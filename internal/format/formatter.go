// Package format prepares answer text for delivery: markdown cleanup,
// chunked splitting for transports with message-length limits, and
// tabular rendering of sample rows.
package format

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var (
	excessNewlines = regexp.MustCompile(`\n{3,}`)
	excessSpaces   = regexp.MustCompile(` {2,}`)
)

// Formatter cleans and splits response text.
type Formatter struct {
	maxChunk int
}

// New creates a formatter for the given message-length limit. A buffer
// of 100 characters is reserved for decoration added downstream.
func New(maxMessageLength int) *Formatter {
	if maxMessageLength <= 100 {
		maxMessageLength = 4096
	}
	return &Formatter{maxChunk: maxMessageLength - 100}
}

// Clean normalizes response text: collapses excessive whitespace and
// repairs markdown that commonly arrives broken from models (unmatched
// emphasis markers, stray link brackets).
func (f *Formatter) Clean(text string) string {
	if strings.TrimSpace(text) == "" {
		return "No response available."
	}

	text = excessNewlines.ReplaceAllString(text, "\n\n")
	text = excessSpaces.ReplaceAllString(text, " ")

	if strings.Count(text, "*")%2 != 0 {
		text += "*"
	}
	if strings.Count(text, "_")%2 != 0 {
		text += "_"
	}
	text = strings.ReplaceAll(text, "[", `\[`)
	text = strings.ReplaceAll(text, "]", `\]`)

	return strings.TrimSpace(text)
}

// Split breaks long text into chunks no larger than the configured
// limit, preferring paragraph boundaries and falling back to sentence
// boundaries for oversized paragraphs.
func (f *Formatter) Split(text string) []string {
	if len(text) <= f.maxChunk {
		return []string{text}
	}

	var chunks []string
	var current strings.Builder

	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			chunks = append(chunks, s)
		}
		current.Reset()
	}

	for _, paragraph := range strings.Split(text, "\n\n") {
		if current.Len()+len(paragraph)+2 > f.maxChunk {
			flush()
			if len(paragraph) > f.maxChunk {
				for _, sentence := range strings.SplitAfter(paragraph, ". ") {
					// A single sentence over the limit gets hard-split
					// on rune boundaries.
					for len(sentence) > f.maxChunk {
						flush()
						var head string
						head, sentence = cutRunes(sentence, f.maxChunk)
						chunks = append(chunks, strings.TrimSpace(head))
					}
					if current.Len()+len(sentence) > f.maxChunk {
						flush()
					}
					current.WriteString(sentence)
				}
				continue
			}
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(paragraph)
	}
	flush()

	if len(chunks) == 0 {
		head, _ := cutRunes(text, f.maxChunk)
		chunks = []string{head}
	}
	return chunks
}

// cutRunes splits s at the largest rune boundary not exceeding limit
// bytes, so multi-byte characters are never cut in half.
func cutRunes(s string, limit int) (head, tail string) {
	if len(s) <= limit {
		return s, ""
	}
	end := 0
	for i := range s {
		if i > limit {
			break
		}
		end = i
	}
	return s[:end], s[end:]
}

// Table renders rows as a markdown table, capped at maxRows with a
// truncation note. Column order is alphabetical so output is stable
// across map iterations.
func (f *Formatter) Table(rows []map[string]any, maxRows int) string {
	if len(rows) == 0 {
		return "No data available."
	}
	if maxRows <= 0 {
		maxRows = 10
	}

	truncated := len(rows) > maxRows
	if truncated {
		rows = rows[:maxRows]
	}

	columns := make([]string, 0, len(rows[0]))
	for col := range rows[0] {
		columns = append(columns, col)
	}
	sort.Strings(columns)

	var sb strings.Builder
	sb.WriteString("| " + strings.Join(columns, " | ") + " |\n")
	sb.WriteString("|" + strings.Repeat(" --- |", len(columns)) + "\n")
	for _, row := range rows {
		cells := make([]string, len(columns))
		for i, col := range columns {
			cells[i] = fmt.Sprint(row[col])
		}
		sb.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}

	table := strings.TrimRight(sb.String(), "\n")
	if truncated {
		table += fmt.Sprintf("\n\n*Showing first %d rows*", maxRows)
	}
	return table
}
