package extract

import (
	"errors"
	"strings"
	"unicode/utf8"
)

var errInvalidUTF8 = errors.New("content is not valid UTF-8")

// extractText normalizes line endings of markdown and plain text and trims
// trailing whitespace. The content is otherwise kept as written.
func extractText(data []byte, format Format) (*Result, error) {
	data = trimBOM(data)
	if !utf8.Valid(data) {
		return nil, errInvalidUTF8
	}

	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	text = strings.TrimSpace(strings.Join(lines, "\n"))

	title := ""
	if format == FormatMD {
		title = markdownTitle(text)
	}
	if title == "" {
		title = firstLine(text)
	}

	return &Result{
		Text:  text,
		Title: title,
		Metadata: map[string]any{
			"line_count": strings.Count(text, "\n") + 1,
		},
	}, nil
}

func trimBOM(data []byte) []byte {
	if len(data) >= 3 && data[0] == 0xEF && data[1] == 0xBB && data[2] == 0xBF {
		return data[3:]
	}
	return data
}

// markdownTitle returns the text of the first ATX heading.
func markdownTitle(text string) string {
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "#") {
			continue
		}
		heading := strings.TrimSpace(strings.Trim(trimmed, "#"))
		if heading != "" {
			return heading
		}
	}
	return ""
}

func firstLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if r := []rune(line); len(r) > 200 {
			line = string(r[:200])
		}
		return line
	}
	return ""
}
