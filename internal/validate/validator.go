// Package validate screens user queries before they reach any provider.
//
// Validation is a hard gate: length limits, a deny-list of SQL-mutation
// patterns, and a character allow-list. A fuzzy pass additionally flags
// obfuscated variants of dangerous statements (homoglyph or typo evasion)
// at warning level without rejecting, since near-misses are not provably
// hostile.
package validate

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/unicode/norm"

	"tabletalk/internal/domain"
)

// Deny-list of SQL-mutation and command patterns. Matching is
// case-insensitive and substring-based, word-boundary anchored for
// keywords.
var dangerousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bdrop\s+table\b`),
	regexp.MustCompile(`(?i)\bdelete\s+from\b`),
	regexp.MustCompile(`(?i)\btruncate\s+table\b`),
	regexp.MustCompile(`(?i)\balter\s+table\b`),
	regexp.MustCompile(`(?i)\bcreate\s+table\b`),
	regexp.MustCompile(`(?i)\binsert\s+into\b`),
	regexp.MustCompile(`(?i)\bupdate\s+.*\bset\b`),
	regexp.MustCompile(`--`),
	regexp.MustCompile(`(?s)/\*.*\*/`),
	regexp.MustCompile(`(?i)\bexec\b`),
	regexp.MustCompile(`(?i)\bexecute\b`),
	regexp.MustCompile(`(?i)\bsp_\w+`),
	regexp.MustCompile(`(?i)\bxp_\w+`),
}

// Statement phrases used by the fuzzy obfuscation pass.
var dangerousPhrases = []string{
	"drop table",
	"delete from",
	"truncate table",
	"alter table",
	"create table",
	"insert into",
}

// Punctuation allowed in addition to Unicode letters, digits and whitespace.
const allowedPunct = `?.,!;-()[]"'_`

var collapseWhitespace = regexp.MustCompile(`\s+`)

// Validator validates user queries for safety and format.
type Validator struct {
	minLength      int
	maxLength      int
	fuzzyThreshold float64
}

// New creates a Validator with the given length limits. Non-positive
// limits fall back to the defaults (3 and 1000).
func New(minLength, maxLength int) *Validator {
	if minLength <= 0 {
		minLength = 3
	}
	if maxLength <= 0 {
		maxLength = 1000
	}
	return &Validator{
		minLength:      minLength,
		maxLength:      maxLength,
		fuzzyThreshold: 0.85,
	}
}

// Validate checks a query comprehensively and returns the outcome.
// It never returns an error; rejection is an expected result, not a fault.
func (v *Validator) Validate(query string) domain.ValidationResult {
	trimmed := strings.TrimSpace(query)

	if trimmed == "" {
		return invalid(domain.ReasonEmpty, "query cannot be empty")
	}

	if len([]rune(trimmed)) < v.minLength {
		return invalid(domain.ReasonTooShort,
			fmt.Sprintf("query too short (minimum %d characters)", v.minLength))
	}

	if len([]rune(trimmed)) > v.maxLength {
		return invalid(domain.ReasonTooLong,
			fmt.Sprintf("query too long (maximum %d characters)", v.maxLength))
	}

	if res := v.checkInjection(trimmed); !res.Valid {
		return res
	}

	if !validCharacters(trimmed) {
		return invalid(domain.ReasonInvalidChars, "query contains invalid characters")
	}

	return domain.ValidationResult{Valid: true}
}

// checkInjection scans for deny-listed SQL patterns. The query is NFKC
// normalized first so fullwidth and compatibility characters cannot slip
// a keyword past the matcher.
func (v *Validator) checkInjection(query string) domain.ValidationResult {
	normalized := strings.ToLower(norm.NFKC.String(query))

	for _, pattern := range dangerousPatterns {
		if pattern.MatchString(normalized) {
			slog.Warn("Potential SQL injection blocked", "query", truncate(query, 50))
			return invalid(domain.ReasonUnsafePattern,
				"query contains potentially dangerous SQL patterns")
		}
	}

	if phrase, score, ok := v.fuzzyScan(normalized); ok {
		// Near-miss of a dangerous statement. Not rejected: a typo'd
		// harmless query must still validate, but it is worth a trace.
		slog.Warn("Query resembles a dangerous SQL statement",
			"phrase", phrase,
			"similarity", score,
			"query", truncate(query, 50),
		)
	}

	return domain.ValidationResult{Valid: true}
}

// fuzzyScan slides a two-word window over the query and measures
// Levenshtein similarity against each dangerous statement phrase.
func (v *Validator) fuzzyScan(normalized string) (string, float64, bool) {
	words := strings.Fields(normalized)
	for i := 0; i+1 < len(words); i++ {
		window := words[i] + " " + words[i+1]
		for _, phrase := range dangerousPhrases {
			score := similarity(window, phrase)
			if score >= v.fuzzyThreshold && score < 1.0 {
				return phrase, score, true
			}
		}
	}
	return "", 0, false
}

// similarity converts Levenshtein distance to a 0..1 ratio.
func similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	longest := max(len([]rune(a)), len([]rune(b)))
	if longest == 0 {
		return 1.0
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1.0 - float64(dist)/float64(longest)
}

// validCharacters reports whether every rune is a Unicode letter, digit,
// whitespace, or allowed punctuation.
func validCharacters(query string) bool {
	for _, r := range query {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			continue
		}
		if strings.ContainsRune(allowedPunct, r) {
			continue
		}
		return false
	}
	return true
}

// Sanitize collapses whitespace runs and strips angle and curly brackets.
// Advisory cleanup only; callers choose whether to apply it before or
// after Validate.
func (v *Validator) Sanitize(query string) string {
	query = collapseWhitespace.ReplaceAllString(strings.TrimSpace(query), " ")
	return strings.Map(func(r rune) rune {
		switch r {
		case '<', '>', '{', '}':
			return -1
		}
		return r
	}, query)
}

func invalid(reason domain.Reason, msg string) domain.ValidationResult {
	return domain.ValidationResult{Valid: false, Reason: reason, Message: msg}
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
