// Package search keeps a Bleve mirror of the archive for fuzzy matching and
// highlighted fragments. The mirror is derived data: the SQLite search index
// in package storage is authoritative, and the mirror can be rebuilt from the
// catalog at any time.
package search

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/renderinc/doc-archive/internal/storage"
)

var (
	// ErrQuerySyntax is returned when a query string cannot be parsed.
	ErrQuerySyntax = errors.New("query syntax error")
	// ErrUnavailable is returned after a failed Rebuild left no open index.
	// A later successful Rebuild clears it.
	ErrUnavailable = errors.New("search index unavailable")
)

// Index wraps a Bleve search index
type Index struct {
	mu    sync.RWMutex
	path  string
	index bleve.Index
}

// IndexedDocument represents a document in the search index
type IndexedDocument struct {
	ID           string
	Filename     string
	OriginalType string
	Content      string
	Notes        string
	AddedDate    time.Time
}

// Result represents a search result
type Result struct {
	ID           int64               `json:"id"`
	Filename     string              `json:"filename"`
	OriginalType string              `json:"original_type"`
	Score        float64             `json:"score"`
	Fragments    map[string][]string `json:"fragments,omitempty"` // Highlighted snippets
}

// ContentLoader returns the normalized text of a catalog record.
type ContentLoader func(doc *storage.Document) (string, error)

// Open opens or creates a Bleve index
func Open(path string) (*Index, error) {
	idx, err := bleve.Open(path)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		idx, err = bleve.New(path, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("create index: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}

	return &Index{path: path, index: idx}, nil
}

// buildIndexMapping creates the index mapping. Text fields and unscoped
// queries share the standard analyzer so fuzzy terms compare against the
// words as written; the type is matched exactly.
func buildIndexMapping() mapping.IndexMapping {
	contentFieldMapping := bleve.NewTextFieldMapping()
	contentFieldMapping.Analyzer = standard.Name

	typeFieldMapping := bleve.NewKeywordFieldMapping()

	dateFieldMapping := bleve.NewDateTimeFieldMapping()

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("ID", bleve.NewKeywordFieldMapping())
	docMapping.AddFieldMappingsAt("Filename", bleve.NewTextFieldMapping())
	docMapping.AddFieldMappingsAt("OriginalType", typeFieldMapping)
	docMapping.AddFieldMappingsAt("Content", contentFieldMapping)
	docMapping.AddFieldMappingsAt("Notes", contentFieldMapping)
	docMapping.AddFieldMappingsAt("AddedDate", dateFieldMapping)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultAnalyzer = standard.Name
	indexMapping.AddDocumentMapping("_default", docMapping)

	return indexMapping
}

// Close closes the index
func (i *Index) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.index == nil {
		return nil
	}
	return i.index.Close()
}

// IndexDocument adds or replaces the mirror entry for doc
func (i *Index) IndexDocument(doc *storage.Document, content string) error {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.index == nil {
		return ErrUnavailable
	}
	entry := newIndexedDocument(doc, content)
	return i.index.Index(entry.ID, entry)
}

// Delete removes a document from the index
func (i *Index) Delete(id int64) error {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.index == nil {
		return ErrUnavailable
	}
	return i.index.Delete(strconv.FormatInt(id, 10))
}

// Search performs a query-string search. The syntax supports quotes,
// +required/-excluded terms, field scoping and fuzzy~ matching.
func (i *Index) Search(queryStr string, limit int) ([]*Result, error) {
	results := []*Result{}
	if strings.TrimSpace(queryStr) == "" {
		return results, nil
	}
	if limit <= 0 {
		limit = storage.DefaultSearchLimit
	}

	query := bleve.NewQueryStringQuery(queryStr)
	if _, err := query.Parse(); err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrQuerySyntax, queryStr, err)
	}

	req := bleve.NewSearchRequestOptions(query, limit, 0, false)
	req.Highlight = bleve.NewHighlightWithStyle("html")
	req.Highlight.AddField("Content")
	req.Fields = []string{"Filename", "OriginalType"}

	i.mu.RLock()
	if i.index == nil {
		i.mu.RUnlock()
		return nil, ErrUnavailable
	}
	res, err := i.index.Search(req)
	i.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	for _, hit := range res.Hits {
		id, err := strconv.ParseInt(hit.ID, 10, 64)
		if err != nil {
			continue
		}
		result := &Result{
			ID:        id,
			Score:     hit.Score,
			Fragments: hit.Fragments,
		}
		if name, ok := hit.Fields["Filename"].(string); ok {
			result.Filename = name
		}
		if typ, ok := hit.Fields["OriginalType"].(string); ok {
			result.OriginalType = typ
		}
		results = append(results, result)
	}

	return results, nil
}

// Rebuild drops the index and re-creates it from docs. progress, if not
// nil, is called after each indexed document.
func (i *Index) Rebuild(ctx context.Context, docs []*storage.Document, load ContentLoader, progress func(current, total int)) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.index != nil {
		if err := i.index.Close(); err != nil {
			return fmt.Errorf("close index: %w", err)
		}
		i.index = nil
	}
	if err := os.RemoveAll(i.path); err != nil {
		i.index = nil
		return fmt.Errorf("remove index: %w", err)
	}
	idx, err := bleve.New(i.path, buildIndexMapping())
	if err != nil {
		i.index = nil
		return fmt.Errorf("create index: %w", err)
	}
	i.index = idx

	const batchSize = 100
	batch := i.index.NewBatch()
	for n, doc := range docs {
		if err := ctx.Err(); err != nil {
			return err
		}
		content, err := load(doc)
		if err != nil {
			return fmt.Errorf("load document %d: %w", doc.ID, err)
		}
		entry := newIndexedDocument(doc, content)
		if err := batch.Index(entry.ID, entry); err != nil {
			return fmt.Errorf("batch index %s: %w", entry.ID, err)
		}
		if batch.Size() >= batchSize {
			if err := i.index.Batch(batch); err != nil {
				return fmt.Errorf("commit batch: %w", err)
			}
			batch.Reset()
		}
		if progress != nil {
			progress(n+1, len(docs))
		}
	}

	if batch.Size() > 0 {
		if err := i.index.Batch(batch); err != nil {
			return fmt.Errorf("commit batch: %w", err)
		}
	}

	return nil
}

// Count returns the number of documents in the index
func (i *Index) Count() (uint64, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.index == nil {
		return 0, ErrUnavailable
	}
	return i.index.DocCount()
}

func newIndexedDocument(doc *storage.Document, content string) *IndexedDocument {
	entry := &IndexedDocument{
		ID:           strconv.FormatInt(doc.ID, 10),
		Filename:     doc.Filename,
		OriginalType: doc.OriginalType,
		Content:      content,
		AddedDate:    doc.AddedDate,
	}
	if doc.Notes != nil {
		entry.Notes = *doc.Notes
	}
	return entry
}
