package format

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestClean(t *testing.T) {
	f := New(4096)

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty falls back", "", "No response available."},
		{"whitespace only falls back", "   \n\t ", "No response available."},
		{"collapses newlines", "a\n\n\n\nb", "a\n\nb"},
		{"collapses spaces", "a    b", "a b"},
		{"repairs unmatched asterisk", "this is *bold", "this is *bold*"},
		{"repairs unmatched underscore", "some _emphasis", "some _emphasis_"},
		{"matched markers untouched", "*bold* and _italic_", "*bold* and _italic_"},
		{"escapes brackets", "see [link] here", `see \[link\] here`},
		{"trims edges", "  answer  ", "answer"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.Clean(tt.input); got != tt.want {
				t.Errorf("Clean(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSplit(t *testing.T) {
	f := New(200) // maxChunk 100

	t.Run("short text single chunk", func(t *testing.T) {
		chunks := f.Split("short answer")
		if len(chunks) != 1 || chunks[0] != "short answer" {
			t.Errorf("chunks = %q", chunks)
		}
	})

	t.Run("splits on paragraphs", func(t *testing.T) {
		p := strings.Repeat("x", 60)
		text := p + "\n\n" + p + "\n\n" + p
		chunks := f.Split(text)
		if len(chunks) < 2 {
			t.Fatalf("got %d chunks, want >= 2", len(chunks))
		}
		for i, c := range chunks {
			if len(c) > 100 {
				t.Errorf("chunk %d length %d exceeds limit", i, len(c))
			}
		}
	})

	t.Run("oversized paragraph splits on sentences", func(t *testing.T) {
		sentence := strings.Repeat("w", 40) + ". "
		text := strings.Repeat(sentence, 6)
		chunks := f.Split(text)
		if len(chunks) < 2 {
			t.Fatalf("got %d chunks, want >= 2", len(chunks))
		}
		for i, c := range chunks {
			if len(c) > 100 {
				t.Errorf("chunk %d length %d exceeds limit", i, len(c))
			}
		}
	})

	t.Run("unbroken sentence hard-split", func(t *testing.T) {
		text := strings.Repeat("z", 250) // no paragraph or sentence breaks
		chunks := f.Split(text)
		if len(chunks) < 3 {
			t.Fatalf("got %d chunks, want >= 3", len(chunks))
		}
		var total int
		for i, c := range chunks {
			if len(c) > 100 {
				t.Errorf("chunk %d length %d exceeds limit", i, len(c))
			}
			total += len(c)
		}
		if total != 250 {
			t.Errorf("content lost: %d bytes, want 250", total)
		}
	})

	t.Run("multi-byte runes never cut", func(t *testing.T) {
		text := strings.Repeat("ä", 150) // 300 bytes, 2 per rune
		for i, c := range f.Split(text) {
			if !utf8.ValidString(c) {
				t.Errorf("chunk %d is not valid UTF-8", i)
			}
			if len(c) > 100 {
				t.Errorf("chunk %d length %d exceeds limit", i, len(c))
			}
		}
	})

	t.Run("nothing lost", func(t *testing.T) {
		p := strings.Repeat("y", 70)
		text := p + "\n\n" + p
		joined := strings.Join(f.Split(text), "")
		if strings.Count(joined, "y") != 140 {
			t.Errorf("content lost: %d y's, want 140", strings.Count(joined, "y"))
		}
	})
}

func TestTable(t *testing.T) {
	f := New(4096)

	t.Run("empty rows", func(t *testing.T) {
		if got := f.Table(nil, 10); got != "No data available." {
			t.Errorf("Table(nil) = %q", got)
		}
	})

	t.Run("renders header and rows", func(t *testing.T) {
		rows := []map[string]any{
			{"city": "Berlin", "pop": 3664088},
			{"city": "Vienna", "pop": 1920949},
		}
		got := f.Table(rows, 10)
		if !strings.HasPrefix(got, "| city | pop |") {
			t.Errorf("header wrong: %q", got)
		}
		if !strings.Contains(got, "| Berlin | 3664088 |") {
			t.Errorf("missing row: %q", got)
		}
		if strings.Contains(got, "Showing first") {
			t.Errorf("unexpected truncation note: %q", got)
		}
	})

	t.Run("truncates with note", func(t *testing.T) {
		rows := make([]map[string]any, 5)
		for i := range rows {
			rows[i] = map[string]any{"n": i}
		}
		got := f.Table(rows, 3)
		if !strings.Contains(got, "*Showing first 3 rows*") {
			t.Errorf("missing truncation note: %q", got)
		}
		if strings.Contains(got, "| 4 |") {
			t.Errorf("truncated row rendered: %q", got)
		}
	})
}
