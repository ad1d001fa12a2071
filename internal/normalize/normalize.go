// Package normalize derives the values the archive computes from a document's
// normalized text: its word count and the file name of its blob.
package normalize

import (
	"strings"
	"time"
	"unicode"
)

const (
	// BlobExt is the extension of every blob written by the archive.
	BlobExt = ".md"

	timestampLayout = "20060102_150405"
	fallbackStem    = "document"
	maxStemRunes    = 80
)

// isWordChar reports whether r belongs to a word: a letter, a number, a
// combining mark or an underscore.
func isWordChar(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.IsMark(r)
}

// WordCount counts the maximal runs of word characters in text.
// Punctuation and whitespace only separate words, so "one-two three" is 3.
func WordCount(text string) int {
	count := 0
	inWord := false
	for _, r := range text {
		if isWordChar(r) {
			if !inWord {
				count++
				inWord = true
			}
			continue
		}
		inWord = false
	}
	return count
}

// BlobName returns "{YYYYMMDD_HHMMSS}_{stem}.md" for the given upload name.
//
// The stem is the base name without its extension, stripped of everything
// that is not a word character, whitespace or hyphen, with runs of
// whitespace and hyphens collapsed to a single underscore. Two calls within
// the same second for the same stem return the same name; the blob store
// resolves that collision.
func BlobName(originalFilename string, now time.Time) string {
	return now.Format(timestampLayout) + "_" + SanitizeStem(originalFilename) + BlobExt
}

// SanitizeStem returns the filesystem-safe stem used by BlobName. Leading
// and trailing separator runs become underscores like inner ones. The stem
// is cut at 80 runes to stay under filesystem name limits.
func SanitizeStem(originalFilename string) string {
	base := originalFilename
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		base = base[i+1:]
	}
	if i := strings.LastIndexByte(base, '.'); i > 0 {
		base = base[:i]
	}

	var sb strings.Builder
	inSep := false
	runes := 0
	for _, r := range base {
		if runes >= maxStemRunes {
			break
		}
		switch {
		case isWordChar(r):
			inSep = false
			sb.WriteRune(r)
			runes++
		case r == '-' || unicode.IsSpace(r):
			if !inSep {
				sb.WriteByte('_')
				runes++
			}
			inSep = true
		}
	}

	if sb.Len() == 0 {
		return fallbackStem
	}
	return sb.String()
}
