package normalize

import (
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWordCount(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"Hello, world! 123", 3},
		{"", 0},
		{"one-two three", 3},
		{"...!!! ---", 0},
		{"snake_case counts once", 3},
		{"  leading and trailing  ", 3},
		{"naïve café über", 3},
		{"日本語 テキスト", 2},
		{"line\nbreaks\tand\r\ntabs", 4},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, WordCount(tt.text), "WordCount(%q)", tt.text)
	}
}

func TestWordCountDeterministic(t *testing.T) {
	text := strings.Repeat("The quick brown fox, jumps! ", 50)
	first := WordCount(text)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, WordCount(text))
	}
	assert.Equal(t, 250, first)
}

func TestBlobName(t *testing.T) {
	now := time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)

	name := BlobName("My Report (Final).pdf", now)
	assert.Equal(t, "20240309_140507_My_Report_Final.md", name)
	assert.Regexp(t, regexp.MustCompile(`^\d{8}_\d{6}_My_Report_Final\.md$`), name)
	assert.NotContains(t, name, "(")
	assert.NotContains(t, name, " ")
	assert.NotContains(t, name, "/")
}

func TestSanitizeStem(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"notes.txt", "notes"},
		{"a - b.docx", "a_b"},
		{"../../etc/passwd", "passwd"},
		{`C:\Users\me\scan 01.png`, "scan_01"},
		{"archive.tar.gz", "archivetar"},
		{"multi   space--dash.md", "multi_space_dash"},
		{"(((.pdf", "document"},
		{"", "document"},
		{"résumé 2024.pdf", "résumé_2024"},
		{"__init__.py", "__init__"},
		{"-draft-.pdf", "_draft_"},
		{" lead and trail .txt", "_lead_and_trail_"},
		{"a -(- b.md", "a_b"},
		{"My Report (Final).pdf", "My_Report_Final"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeStem(tt.in), "SanitizeStem(%q)", tt.in)
	}
}

func TestSanitizeStemBounded(t *testing.T) {
	long := strings.Repeat("a", 500) + ".pdf"
	stem := SanitizeStem(long)
	assert.Len(t, stem, maxStemRunes)
}

func TestBlobNameSameSecondCollides(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, BlobName("x.pdf", now), BlobName("x.docx", now.Add(500*time.Millisecond)))
}
