// Package archive is the composition root of the document archive. It turns
// normalized text into a blob, a catalog record and a search entry, and
// serves lookups and searches over them.
package archive

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/renderinc/doc-archive/internal/blobstore"
	"github.com/renderinc/doc-archive/internal/normalize"
	"github.com/renderinc/doc-archive/internal/search"
	"github.com/renderinc/doc-archive/internal/storage"
)

var (
	// ErrIO wraps blob store failures. Save returns it before touching the
	// catalog.
	ErrIO = errors.New("archive i/o error")
	// ErrInvalid is returned for save requests missing required fields.
	ErrInvalid = errors.New("invalid document")
	// ErrNotFound is returned by Content for an unknown identity.
	ErrNotFound = errors.New("document not found")
	// ErrQuerySyntax is returned by Search and FuzzySearch for malformed queries.
	ErrQuerySyntax = storage.ErrQuerySyntax
	// ErrMirrorDisabled is returned by mirror operations when the archive
	// was opened without one.
	ErrMirrorDisabled = errors.New("search mirror disabled")
)

// blobStore is the subset of *blobstore.Store the archive uses.
type blobStore interface {
	Write(name, content string) (string, error)
	Read(path string) (string, error)
	Remove(path string) error
}

// Config locates the archive on disk.
type Config struct {
	Dir           string // holds archive.db, documents/ and bleve/
	BusyTimeoutMS int    // 0 uses the storage default
	Mirror        bool   // open the Bleve mirror
}

// Option customises New.
type Option func(*Archive)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(a *Archive) { a.log = l.With().Str("component", "archive").Logger() }
}

// WithMirror overrides Config.Mirror.
func WithMirror(on bool) Option {
	return func(a *Archive) { a.mirrorOn = on }
}

// WithClock replaces time.Now for blob names and added dates.
func WithClock(now func() time.Time) Option {
	return func(a *Archive) { a.now = now }
}

// Archive owns the catalog, the blob store and the optional mirror.
type Archive struct {
	db     *storage.DB
	blobs  blobStore
	mirror *search.Index
	log    zerolog.Logger
	now    func() time.Time

	mirrorOn bool
}

// SaveRequest is the input of Save. Content is the normalized text.
type SaveRequest struct {
	Filename     string
	OriginalType string
	Content      string
	FileSize     *int64
	CreatedDate  *string
	Notes        *string
}

// Stats summarises the archive.
type Stats struct {
	Documents     int    `json:"documents"`
	SearchEntries int    `json:"search_entries"`
	MirrorEnabled bool   `json:"mirror_enabled"`
	MirrorEntries uint64 `json:"mirror_entries"`
}

// New opens the archive rooted at cfg.Dir, creating its layout and schema
// if needed.
func New(cfg Config, opts ...Option) (*Archive, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("archive dir is required")
	}

	a := &Archive{log: zerolog.Nop(), now: time.Now, mirrorOn: cfg.Mirror}
	for _, o := range opts {
		o(a)
	}

	blobs, err := blobstore.New(filepath.Join(cfg.Dir, "documents"))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}
	a.blobs = blobs

	dbOpts := []storage.Option{storage.WithClock(a.now)}
	if cfg.BusyTimeoutMS > 0 {
		dbOpts = append(dbOpts, storage.WithBusyTimeout(cfg.BusyTimeoutMS))
	}
	db, err := storage.Open(filepath.Join(cfg.Dir, "archive.db"), dbOpts...)
	if err != nil {
		return nil, err
	}
	a.db = db

	if a.mirrorOn {
		mirror, err := search.Open(filepath.Join(cfg.Dir, "bleve"))
		if err != nil {
			db.Close()
			return nil, err
		}
		a.mirror = mirror
	}

	a.log.Debug().Str("dir", cfg.Dir).Bool("mirror", a.mirrorOn).Msg("archive opened")
	return a, nil
}

// Close closes the mirror and the catalog.
func (a *Archive) Close() error {
	var errs []error
	if a.mirror != nil {
		errs = append(errs, a.mirror.Close())
	}
	errs = append(errs, a.db.Close())
	return errors.Join(errs...)
}

// Save archives one document and returns its identity.
//
// The blob is written first. If that fails nothing else happens. The
// catalog record and its search entry are then committed together; if the
// commit fails the blob is removed again. A crash between the two steps
// leaves at most an orphaned blob, never a record without content.
func (a *Archive) Save(ctx context.Context, req SaveRequest) (int64, error) {
	start := time.Now()

	if strings.TrimSpace(req.Filename) == "" {
		savesTotal.WithLabelValues("invalid").Inc()
		return 0, fmt.Errorf("%w: filename is required", ErrInvalid)
	}
	if strings.TrimSpace(req.OriginalType) == "" {
		savesTotal.WithLabelValues("invalid").Inc()
		return 0, fmt.Errorf("%w: original type is required", ErrInvalid)
	}
	if req.FileSize != nil && *req.FileSize < 0 {
		savesTotal.WithLabelValues("invalid").Inc()
		return 0, fmt.Errorf("%w: file size must be >= 0", ErrInvalid)
	}

	words := normalize.WordCount(req.Content)
	name := normalize.BlobName(req.Filename, a.now())

	path, err := a.blobs.Write(name, req.Content)
	if err != nil {
		savesTotal.WithLabelValues("io_error").Inc()
		a.log.Error().Err(err).Str("filename", req.Filename).Msg("blob write failed")
		return 0, fmt.Errorf("%w: %w", ErrIO, err)
	}

	doc := &storage.Document{
		Filename:     req.Filename,
		OriginalType: req.OriginalType,
		FileSize:     req.FileSize,
		WordCount:    words,
		CreatedDate:  req.CreatedDate,
		MDPath:       path,
		Notes:        req.Notes,
	}

	id, err := a.db.Insert(ctx, doc, req.Content)
	if err != nil {
		savesTotal.WithLabelValues("catalog_error").Inc()
		if rmErr := a.blobs.Remove(path); rmErr != nil {
			a.log.Warn().Err(rmErr).Str("path", path).Msg("orphaned blob left behind")
		}
		return 0, err
	}

	if a.mirror != nil {
		if err := a.mirror.IndexDocument(doc, req.Content); err != nil {
			a.log.Warn().Err(err).Int64("id", id).Msg("mirror index failed, run reindex")
		}
	}

	savesTotal.WithLabelValues("ok").Inc()
	saveDuration.Observe(time.Since(start).Seconds())
	wordsTotal.Add(float64(words))

	a.log.Info().
		Int64("id", id).
		Str("filename", req.Filename).
		Str("type", req.OriginalType).
		Int("words", words).
		Str("path", path).
		Msg("document saved")

	return id, nil
}

// Get returns the record with the given identity, or nil, nil.
func (a *Archive) Get(ctx context.Context, id int64) (*storage.Document, error) {
	return a.db.Get(ctx, id)
}

// List returns records newest first.
func (a *Archive) List(ctx context.Context, limit, offset int) ([]*storage.Document, error) {
	return a.db.List(ctx, limit, offset)
}

// Content reads back the normalized text of a document.
func (a *Archive) Content(ctx context.Context, id int64) (string, error) {
	doc, err := a.db.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if doc == nil {
		return "", fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	content, err := a.blobs.Read(doc.MDPath)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrIO, err)
	}
	return content, nil
}

// Search ranks documents against an FTS5 query, best first.
func (a *Archive) Search(ctx context.Context, query string, limit int) ([]*storage.SearchHit, error) {
	hits, err := a.db.Search(ctx, query, limit)
	searchesTotal.WithLabelValues("keyword", searchResult(err)).Inc()
	if err != nil {
		a.log.Debug().Err(err).Str("query", query).Msg("search failed")
	}
	return hits, err
}

// FuzzySearch queries the Bleve mirror, which tolerates typos (term~) and
// returns highlighted fragments.
func (a *Archive) FuzzySearch(ctx context.Context, query string, limit int) ([]*search.Result, error) {
	if a.mirror == nil {
		return nil, ErrMirrorDisabled
	}
	results, err := a.mirror.Search(query, limit)
	if errors.Is(err, search.ErrQuerySyntax) {
		err = fmt.Errorf("%w: %w", ErrQuerySyntax, err)
	}
	searchesTotal.WithLabelValues("fuzzy", searchResult(err)).Inc()
	return results, err
}

// Delete removes a document's record and search entry together, then its
// blob and mirror entry. It reports whether the document existed.
func (a *Archive) Delete(ctx context.Context, id int64) (bool, error) {
	doc, err := a.db.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	if doc == nil {
		return false, nil
	}

	if err := a.blobs.Remove(doc.MDPath); err != nil {
		a.log.Warn().Err(err).Int64("id", id).Msg("blob removal failed")
	}
	if a.mirror != nil {
		if err := a.mirror.Delete(id); err != nil {
			a.log.Warn().Err(err).Int64("id", id).Msg("mirror delete failed, run reindex")
		}
	}

	deletesTotal.Inc()
	a.log.Info().Int64("id", id).Str("filename", doc.Filename).Msg("document deleted")
	return true, nil
}

// Stats counts catalog records, search entries and mirror entries.
func (a *Archive) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	var err error
	if st.Documents, err = a.db.Count(ctx); err != nil {
		return st, fmt.Errorf("count documents: %w", err)
	}
	if st.SearchEntries, err = a.db.CountSearchEntries(ctx); err != nil {
		return st, fmt.Errorf("count search entries: %w", err)
	}
	if a.mirror != nil {
		st.MirrorEnabled = true
		if st.MirrorEntries, err = a.mirror.Count(); err != nil {
			return st, fmt.Errorf("count mirror entries: %w", err)
		}
	}
	return st, nil
}

// Reindex rebuilds the mirror from the catalog and the blobs.
func (a *Archive) Reindex(ctx context.Context, progress func(current, total int)) error {
	if a.mirror == nil {
		return ErrMirrorDisabled
	}
	docs, err := a.db.List(ctx, 0, 0)
	if err != nil {
		return err
	}
	load := func(doc *storage.Document) (string, error) {
		return a.blobs.Read(doc.MDPath)
	}
	if err := a.mirror.Rebuild(ctx, docs, load, progress); err != nil {
		return fmt.Errorf("rebuild mirror: %w", err)
	}
	a.log.Info().Int("documents", len(docs)).Msg("mirror rebuilt")
	return nil
}

func isQuerySyntax(err error) bool {
	return errors.Is(err, ErrQuerySyntax) || errors.Is(err, search.ErrQuerySyntax)
}
