package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/renderinc/doc-archive/internal/archive"
	"github.com/renderinc/doc-archive/internal/extract"
	"github.com/renderinc/doc-archive/internal/ocr"
)

// Error kinds reported in JSON error bodies.
const (
	KindUnsupportedFormat = "unsupported_format"
	KindExtraction        = "extraction"
	KindOCR               = "ocr"
	KindIO                = "io"
	KindQuerySyntax       = "query_syntax"
	KindNotFound          = "not_found"
	KindInvalid           = "invalid"
	KindInternal          = "internal"
)

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// ErrorKind classifies err into one of the Kind constants.
func ErrorKind(err error) string {
	kind, _ := classify(err)
	return kind
}

func classify(err error) (string, int) {
	var maxErr *http.MaxBytesError
	switch {
	case errors.Is(err, extract.ErrUnsupportedFormat):
		return KindUnsupportedFormat, http.StatusBadRequest
	case errors.Is(err, ocr.ErrOCR):
		return KindOCR, http.StatusBadGateway
	case errors.As(err, &maxErr), errors.Is(err, extract.ErrTooLarge):
		return KindInvalid, http.StatusRequestEntityTooLarge
	case errors.Is(err, extract.ErrExtraction):
		return KindExtraction, http.StatusUnprocessableEntity
	case errors.Is(err, archive.ErrIO):
		return KindIO, http.StatusInternalServerError
	case errors.Is(err, archive.ErrQuerySyntax):
		return KindQuerySyntax, http.StatusBadRequest
	case errors.Is(err, archive.ErrNotFound):
		return KindNotFound, http.StatusNotFound
	case errors.Is(err, archive.ErrInvalid), errors.Is(err, archive.ErrMirrorDisabled):
		return KindInvalid, http.StatusBadRequest
	default:
		return KindInternal, http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind, status := classify(err)
	ev := s.log.Warn()
	if status >= 500 {
		ev = s.log.Error()
	}
	ev.Err(err).Str("kind", kind).Str("path", r.URL.Path).Msg("request failed")
	writeJSON(w, status, errorResponse{Error: err.Error(), Kind: kind})
}

func writeErrorKind(w http.ResponseWriter, status int, kind, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Kind: kind})
}
