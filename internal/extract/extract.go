// Package extract converts uploaded documents into normalized markdown or
// plain text, ready to be archived.
package extract

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Format identifies a document type. The value doubles as the catalog's
// original_type.
type Format string

const (
	FormatPDF   Format = "pdf"
	FormatDOCX  Format = "docx"
	FormatHTML  Format = "html"
	FormatMD    Format = "md"
	FormatText  Format = "text"
	FormatImage Format = "image" // recognized only through OCR
	FormatOCR   Format = "ocr"
)

var extensions = map[string]Format{
	".pdf":      FormatPDF,
	".docx":     FormatDOCX,
	".html":     FormatHTML,
	".htm":      FormatHTML,
	".md":       FormatMD,
	".markdown": FormatMD,
	".txt":      FormatText,
	".png":      FormatImage,
	".jpg":      FormatImage,
	".jpeg":     FormatImage,
	".webp":     FormatImage,
	".tif":      FormatImage,
	".tiff":     FormatImage,
}

var (
	// ErrUnsupportedFormat is returned for file extensions with no extractor.
	ErrUnsupportedFormat = errors.New("unsupported format")
	// ErrExtraction matches every *Error.
	ErrExtraction = errors.New("extraction failed")
	// ErrNoText means the document parsed but carried no text, as with
	// scanned PDFs and images. Callers fall back to OCR.
	ErrNoText = errors.New("no text content found")
	// ErrTooLarge is returned when the input exceeds the configured limit.
	ErrTooLarge = errors.New("file too large")
)

// Error is a parser failure for one document.
type Error struct {
	Format   Format
	Filename string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("extract %s %q: %v", e.Format, e.Filename, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == ErrExtraction }

// Result is the normalized text of a document plus format-specific metadata.
type Result struct {
	Format   Format         `json:"format"`
	Text     string         `json:"text"`
	Title    string         `json:"title,omitempty"`
	Metadata map[string]any `json:"metadata"`
}

// Detect maps a filename's extension to a Format.
func Detect(filename string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if f, ok := extensions[ext]; ok {
		return f, nil
	}
	if ext == "" {
		ext = "(none)"
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
}

// Supported lists the accepted extensions.
func Supported() []string {
	out := make([]string, 0, len(extensions))
	for ext := range extensions {
		out = append(out, ext)
	}
	return out
}

// Extractor dispatches documents to the parser for their format.
type Extractor struct {
	maxBytes int64
	html     *htmlConverter
}

// New returns an Extractor rejecting inputs over maxBytes. Zero means no limit.
func New(maxBytes int64) *Extractor {
	return &Extractor{maxBytes: maxBytes, html: newHTMLConverter()}
}

// Extract converts data, named filename, into normalized text.
func (e *Extractor) Extract(ctx context.Context, data []byte, filename string) (*Result, error) {
	format, err := Detect(filename)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e.maxBytes > 0 && int64(len(data)) > e.maxBytes {
		return nil, &Error{Format: format, Filename: filename, Err: ErrTooLarge}
	}

	var res *Result
	switch format {
	case FormatPDF:
		res, err = extractPDF(data)
	case FormatDOCX:
		res, err = extractDOCX(data)
	case FormatHTML:
		res, err = e.html.extract(data)
	case FormatMD, FormatText:
		res, err = extractText(data, format)
	case FormatImage:
		err = ErrNoText
	}
	if err != nil {
		return nil, &Error{Format: format, Filename: filename, Err: err}
	}
	if strings.TrimSpace(res.Text) == "" {
		return nil, &Error{Format: format, Filename: filename, Err: ErrNoText}
	}

	res.Format = format
	if res.Metadata == nil {
		res.Metadata = map[string]any{}
	}
	return res, nil
}
