// Package web serves the archive over HTTP as a JSON API.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/renderinc/doc-archive/internal/archive"
	"github.com/renderinc/doc-archive/internal/ingest"
	"github.com/renderinc/doc-archive/internal/search"
	"github.com/renderinc/doc-archive/internal/storage"
)

const (
	defaultMaxUpload = 50 << 20
	manualEntryName  = "manual_entry"
)

type Server struct {
	archive   *archive.Archive
	converter *ingest.Converter
	log       zerolog.Logger
	maxUpload int64
}

// UploadResponse is the converted text of an upload, not yet archived.
type UploadResponse struct {
	Filename string         `json:"filename"`
	FileType string         `json:"file_type"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
}

// SaveRequest is the body of POST /api/documents.
type SaveRequest struct {
	Filename     string  `json:"filename"`
	OriginalType string  `json:"original_type"`
	Content      string  `json:"content"`
	FileSize     *int64  `json:"file_size,omitempty"`
	CreatedDate  *string `json:"created_date,omitempty"`
	Notes        *string `json:"notes,omitempty"`
}

type SearchResponse struct {
	Query   string `json:"query"`
	Mode    string `json:"mode"`
	Count   int    `json:"count"`
	Results any    `json:"results"`
}

// NewServer returns a Server. maxUpload bounds request bodies in bytes.
func NewServer(a *archive.Archive, converter *ingest.Converter, log zerolog.Logger, maxUpload int64) *Server {
	if maxUpload <= 0 {
		maxUpload = defaultMaxUpload
	}
	return &Server{
		archive:   a,
		converter: converter,
		log:       log.With().Str("component", "web").Logger(),
		maxUpload: maxUpload,
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(metricsMiddleware)
	r.Use(middleware.Recoverer)

	r.Post("/upload", s.handleUpload)
	r.Post("/save-text", s.handleSaveText)

	r.Route("/api", func(r chi.Router) {
		r.Post("/documents", s.handleSave)
		r.Get("/documents", s.handleList)
		r.Get("/documents/{id}", s.handleGetDoc)
		r.Get("/documents/{id}/content", s.handleContent)
		r.Delete("/documents/{id}", s.handleDelete)
		r.Get("/search", s.handleSearch)
	})

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// Run serves on addr until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("http server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.log.Info().Msg("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.log.Info().Msg("http server stopped")
	return nil
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.writeError(w, r, err)
			return
		}
		writeErrorKind(w, http.StatusBadRequest, KindInvalid, fmt.Sprintf("parse form: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeErrorKind(w, http.StatusBadRequest, KindInvalid, "missing file field")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.converter.Convert(r.Context(), data, header.Filename)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	meta := res.Metadata
	meta["file_size"] = len(data)
	if res.Title != "" {
		meta["title"] = res.Title
	}

	writeJSON(w, http.StatusOK, UploadResponse{
		Filename: header.Filename,
		FileType: string(res.Format),
		Content:  res.Text,
		Metadata: meta,
	})
}

func (s *Server) handleSaveText(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	content := r.FormValue("content")
	if content == "" {
		writeErrorKind(w, http.StatusBadRequest, KindInvalid, "content is required")
		return
	}

	writeJSON(w, http.StatusOK, UploadResponse{
		Filename: manualEntryName,
		FileType: "text",
		Content:  content,
		Metadata: map[string]any{},
	})
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)

	var req SaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.writeError(w, r, err)
			return
		}
		writeErrorKind(w, http.StatusBadRequest, KindInvalid, fmt.Sprintf("decode request: %v", err))
		return
	}

	id, err := s.archive.Save(r.Context(), archive.SaveRequest{
		Filename:     req.Filename,
		OriginalType: req.OriginalType,
		Content:      req.Content,
		FileSize:     req.FileSize,
		CreatedDate:  req.CreatedDate,
		Notes:        req.Notes,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	docs, err := s.archive.List(r.Context(), limit, offset)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if docs == nil {
		docs = []*storage.Document{}
	}
	writeJSON(w, http.StatusOK, docs)
}

func (s *Server) handleGetDoc(w http.ResponseWriter, r *http.Request) {
	id, ok := documentID(w, r)
	if !ok {
		return
	}

	doc, err := s.archive.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if doc == nil {
		writeErrorKind(w, http.StatusNotFound, KindNotFound, fmt.Sprintf("document %d not found", id))
		return
	}

	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleContent(w http.ResponseWriter, r *http.Request) {
	id, ok := documentID(w, r)
	if !ok {
		return
	}

	content, err := s.archive.Content(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Write([]byte(content))
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := documentID(w, r)
	if !ok {
		return
	}

	deleted, err := s.archive.Delete(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !deleted {
		writeErrorKind(w, http.StatusNotFound, KindNotFound, fmt.Sprintf("document %d not found", id))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	mode := r.URL.Query().Get("mode")
	if mode == "" {
		mode = "keyword"
	}

	limit := queryInt(r, "limit", storage.DefaultSearchLimit)
	if limit > storage.MaxSearchLimit {
		limit = storage.MaxSearchLimit
	}

	var (
		results any
		count   int
		err     error
	)
	switch mode {
	case "keyword":
		var hits []*storage.SearchHit
		hits, err = s.archive.Search(r.Context(), query, limit)
		results, count = hits, len(hits)
	case "fuzzy":
		var hits []*search.Result
		hits, err = s.archive.FuzzySearch(r.Context(), query, limit)
		results, count = hits, len(hits)
	default:
		writeErrorKind(w, http.StatusBadRequest, KindInvalid, fmt.Sprintf("unknown search mode %q", mode))
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, SearchResponse{
		Query:   query,
		Mode:    mode,
		Count:   count,
		Results: results,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st, err := s.archive.Stats(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	status := "ok"
	if st.Documents != st.SearchEntries {
		status = "degraded"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":         status,
		"documents":      st.Documents,
		"search_entries": st.SearchEntries,
		"mirror_enabled": st.MirrorEnabled,
		"mirror_entries": st.MirrorEntries,
	})
}

func documentID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeErrorKind(w, http.StatusBadRequest, KindInvalid, "invalid document id")
		return 0, false
	}
	return id, true
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
