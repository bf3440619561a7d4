package validate

import (
	"strings"
	"testing"

	"tabletalk/internal/domain"
)

func TestValidate(t *testing.T) {
	v := New(3, 1000)

	t.Run("accepts normal questions", func(t *testing.T) {
		queries := []string{
			"How many rows are in the dataset?",
			"What is the average age by department?",
			"Show the gender distribution, please!",
			"Wie viele Zeilen enthält der Datensatz?",
			"データセットには何行ありますか",
		}
		for _, q := range queries {
			res := v.Validate(q)
			if !res.Valid {
				t.Errorf("Validate(%q) rejected: %s", q, res.Message)
			}
			if res.Message != "" {
				t.Errorf("Validate(%q) valid but has message %q", q, res.Message)
			}
		}
	})

	t.Run("rejects empty and whitespace", func(t *testing.T) {
		for _, q := range []string{"", "   ", "\t\n"} {
			res := v.Validate(q)
			if res.Valid {
				t.Errorf("Validate(%q) accepted empty query", q)
			}
			if res.Reason != domain.ReasonEmpty {
				t.Errorf("Validate(%q) reason = %s, want %s", q, res.Reason, domain.ReasonEmpty)
			}
		}
	})

	t.Run("rejects too short", func(t *testing.T) {
		res := v.Validate("ab")
		if res.Valid || res.Reason != domain.ReasonTooShort {
			t.Errorf("Validate(\"ab\") = %+v, want too_short rejection", res)
		}
	})

	t.Run("rejects too long", func(t *testing.T) {
		res := v.Validate(strings.Repeat("a", 1001))
		if res.Valid || res.Reason != domain.ReasonTooLong {
			t.Errorf("1001-char query = %+v, want too_long rejection", res)
		}
	})

	t.Run("length limits are inclusive", func(t *testing.T) {
		if res := v.Validate("abc"); !res.Valid {
			t.Errorf("3-char query rejected: %s", res.Message)
		}
		if res := v.Validate(strings.Repeat("a", 1000)); !res.Valid {
			t.Errorf("1000-char query rejected: %s", res.Message)
		}
	})

	t.Run("rejects SQL mutation patterns", func(t *testing.T) {
		queries := []string{
			"DROP TABLE dftotal",
			"drop   table users",
			"please DELETE FROM dftotal where 1=1",
			"TRUNCATE TABLE x",
			"alter table dftotal add col",
			"CREATE TABLE evil (id int)",
			"insert into dftotal values (1)",
			"update dftotal set name = 'x'",
			"how many rows -- comment",
			"what /* hidden */ is this",
			"exec master",
			"EXECUTE something",
			"run sp_helptext now",
			"call xp_cmdshell now",
		}
		for _, q := range queries {
			res := v.Validate(q)
			if res.Valid {
				t.Errorf("Validate(%q) accepted dangerous query", q)
				continue
			}
			if res.Reason != domain.ReasonUnsafePattern {
				t.Errorf("Validate(%q) reason = %s, want %s", q, res.Reason, domain.ReasonUnsafePattern)
			}
		}
	})

	t.Run("normalizes unicode before pattern matching", func(t *testing.T) {
		// Fullwidth characters NFKC-fold to ASCII.
		res := v.Validate("ＤＲＯＰ ＴＡＢＬＥ dftotal")
		if res.Valid {
			t.Error("fullwidth DROP TABLE accepted")
		}
	})

	t.Run("rejects invalid characters", func(t *testing.T) {
		for _, q := range []string{"how many rows $$$", "select * from x#", "rows @ table"} {
			res := v.Validate(q)
			if res.Valid {
				t.Errorf("Validate(%q) accepted invalid characters", q)
				continue
			}
			if res.Reason != domain.ReasonInvalidChars {
				t.Errorf("Validate(%q) reason = %s, want %s", q, res.Reason, domain.ReasonInvalidChars)
			}
		}
	})

	t.Run("allows listed punctuation", func(t *testing.T) {
		res := v.Validate(`Count rows (by "department"); list [top 5], please - ok?`)
		if !res.Valid {
			t.Errorf("punctuation query rejected: %s", res.Message)
		}
	})
}

func TestSanitize(t *testing.T) {
	v := New(3, 1000)

	cases := []struct {
		in, want string
	}{
		{"  how   many\t rows  ", "how many rows"},
		{"show <b>all</b> rows", "show ball/b rows"},
		{"braces {and} angles <here>", "braces and angles here"},
		{"already clean", "already clean"},
	}
	for _, c := range cases {
		if got := v.Sanitize(c.in); got != c.want {
			t.Errorf("Sanitize(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestFuzzyScanDoesNotReject(t *testing.T) {
	v := New(3, 1000)

	// A near-miss of a dangerous phrase is logged but must still validate.
	res := v.Validate("drp table stats please")
	if !res.Valid {
		t.Errorf("near-miss query rejected: %s", res.Message)
	}
}

func TestSimilarity(t *testing.T) {
	if s := similarity("drop table", "drop table"); s != 1.0 {
		t.Errorf("identical similarity = %f, want 1.0", s)
	}
	if s := similarity("drp table", "drop table"); s < 0.85 {
		t.Errorf("one-edit similarity = %f, want >= 0.85", s)
	}
	if s := similarity("hello world", "drop table"); s > 0.5 {
		t.Errorf("unrelated similarity = %f, want <= 0.5", s)
	}
}
