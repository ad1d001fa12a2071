package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/renderinc/doc-archive/internal/extract"
	"github.com/renderinc/doc-archive/internal/ocr"
)

// Recognizer is the OCR backend. *ocr.Client implements it.
type Recognizer interface {
	Recognize(ctx context.Context, data []byte, filename string) (*ocr.Result, error)
}

// Converter turns raw uploads into normalized text, falling back to OCR for
// scans and images the extractor finds no text in.
type Converter struct {
	extractor *extract.Extractor
	ocr       Recognizer
}

// NewConverter returns a Converter. With a nil rec, files that need OCR
// fail with ocr.ErrNoAPIKey.
func NewConverter(extractor *extract.Extractor, rec Recognizer) *Converter {
	return &Converter{extractor: extractor, ocr: rec}
}

// Convert extracts text from data. Documents without a text layer are sent
// to OCR; the result then has FormatOCR and records the source format in
// its metadata.
func (c *Converter) Convert(ctx context.Context, data []byte, filename string) (*extract.Result, error) {
	res, err := c.extractor.Extract(ctx, data, filename)
	if err == nil || !errors.Is(err, extract.ErrNoText) {
		return res, err
	}
	if !ocr.Supports(filename) {
		return nil, err
	}
	if c.ocr == nil {
		return nil, fmt.Errorf("ocr %q: %w", filename, ocr.ErrNoAPIKey)
	}

	source, _ := extract.Detect(filename)
	rec, ocrErr := c.ocr.Recognize(ctx, data, filename)
	if ocrErr != nil {
		return nil, ocrErr
	}
	if rec.Text == "" {
		return nil, &extract.Error{Format: extract.FormatOCR, Filename: filename, Err: extract.ErrNoText}
	}

	return &extract.Result{
		Format: extract.FormatOCR,
		Text:   rec.Text,
		Metadata: map[string]any{
			"page_count":    rec.PageCount,
			"source_format": string(source),
		},
	}, nil
}
