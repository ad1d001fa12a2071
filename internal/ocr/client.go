// Package ocr is a client for a remote OCR HTTP API that turns scanned
// PDFs and images into markdown.
package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"
)

var (
	// ErrOCR matches every failure of this package.
	ErrOCR = errors.New("ocr failed")
	// ErrNoAPIKey is returned by Recognize when no key is configured.
	ErrNoAPIKey = fmt.Errorf("%w: no API key configured", ErrOCR)
)

// Error is a failed OCR call. StatusCode is 0 for network failures.
type Error struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("ocr: status %d: %s", e.StatusCode, e.Message)
	}
	return "ocr: " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == ErrOCR }

var mimeTypes = map[string]string{
	".pdf":  "application/pdf",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".webp": "image/webp",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
}

// Client is an OCR API client
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the timeout of the default HTTP client
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// NewClient creates a new OCR API client
func NewClient(baseURL, apiKey, model string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		httpClient: &http.Client{
			Timeout: 2 * time.Minute,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Configured reports whether the client has an API key.
func (c *Client) Configured() bool {
	return c != nil && c.apiKey != ""
}

// Supports reports whether filename has a type the API accepts.
func Supports(filename string) bool {
	_, ok := mimeTypes[strings.ToLower(filepath.Ext(filename))]
	return ok
}

// Recognize sends a PDF or image to the OCR API and returns the markdown of
// all pages, separated by blank lines.
func (c *Client) Recognize(ctx context.Context, data []byte, filename string) (*Result, error) {
	if !c.Configured() {
		return nil, ErrNoAPIKey
	}
	ext := strings.ToLower(filepath.Ext(filename))
	mime, ok := mimeTypes[ext]
	if !ok {
		return nil, &Error{Message: fmt.Sprintf("unsupported file type %q", ext)}
	}

	dataURL := "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
	doc := documentRef{Type: "document_url", DocumentURL: dataURL}
	if strings.HasPrefix(mime, "image/") {
		doc = documentRef{Type: "image_url", ImageURL: dataURL}
	}

	body, err := json.Marshal(ocrRequest{Model: c.model, Document: doc})
	if err != nil {
		return nil, &Error{Message: "marshal request", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/v1/ocr", bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Message: "create request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &Error{Message: fmt.Sprintf("do request: %v", err), Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, &Error{StatusCode: resp.StatusCode, Message: "read response", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &Error{StatusCode: resp.StatusCode, Message: errorMessage(resp.StatusCode, respBody)}
	}

	var ocrResp ocrResponse
	if err := json.Unmarshal(respBody, &ocrResp); err != nil {
		return nil, &Error{StatusCode: resp.StatusCode, Message: "unmarshal response", Err: err}
	}

	parts := make([]string, 0, len(ocrResp.Pages))
	for _, p := range ocrResp.Pages {
		if text := strings.TrimSpace(p.Markdown); text != "" {
			parts = append(parts, text)
		}
	}

	return &Result{
		Text:      strings.Join(parts, "\n\n"),
		PageCount: len(ocrResp.Pages),
	}, nil
}

func errorMessage(status int, body []byte) string {
	var prefix string
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		prefix = "authentication failed"
	case http.StatusTooManyRequests:
		prefix = "rate limit or quota exceeded"
	default:
		prefix = http.StatusText(status)
	}

	var er errorResponse
	if err := json.Unmarshal(body, &er); err == nil {
		for _, v := range []any{er.Message, er.Detail, er.Error} {
			if s := detailString(v); s != "" {
				return prefix + ": " + s
			}
		}
	}
	if s := strings.TrimSpace(string(body)); s != "" {
		if len(s) > 200 {
			s = s[:200]
		}
		return prefix + ": " + s
	}
	return prefix
}

func detailString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
