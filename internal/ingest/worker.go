// Package ingest imports files from disk into the archive, through
// extraction and OCR.
package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/renderinc/doc-archive/internal/archive"
	"github.com/renderinc/doc-archive/internal/extract"
)

// Saver stores converted documents. *archive.Archive implements it.
type Saver interface {
	Save(ctx context.Context, req archive.SaveRequest) (int64, error)
}

// Worker ingests files with a bounded pool of goroutines
type Worker struct {
	saver       Saver
	converter   *Converter
	concurrency int
	log         zerolog.Logger
}

// NewWorker creates a new ingest worker
func NewWorker(saver Saver, converter *Converter, concurrency int, log zerolog.Logger) *Worker {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Worker{
		saver:       saver,
		converter:   converter,
		concurrency: concurrency,
		log:         log.With().Str("component", "ingest").Logger(),
	}
}

// Stats holds ingest statistics
type Stats struct {
	Total    int
	Saved    int
	Skipped  int
	Errors   int
	Duration time.Duration
}

// IngestFile converts and saves one file, returning the new identity.
func (w *Worker) IngestFile(ctx context.Context, path string, notes *string) (int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", path, err)
	}

	filename := filepath.Base(path)
	res, err := w.converter.Convert(ctx, data, filename)
	if err != nil {
		return 0, err
	}

	size := int64(len(data))
	req := archive.SaveRequest{
		Filename:     filename,
		OriginalType: string(res.Format),
		Content:      res.Text,
		FileSize:     &size,
		Notes:        notes,
	}
	if created, ok := res.Metadata["created"].(string); ok && created != "" {
		req.CreatedDate = &created
	}

	return w.saver.Save(ctx, req)
}

// IngestDir walks dir and ingests every supported regular file. Files
// with unsupported extensions are counted as skipped. Per-file failures are
// logged and counted, they do not stop the run.
func (w *Worker) IngestDir(ctx context.Context, dir string) (*Stats, error) {
	startTime := time.Now()
	stats := &Stats{}

	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		stats.Total++
		if _, err := extract.Detect(d.Name()); err != nil {
			stats.Skipped++
			w.log.Debug().Str("path", path).Msg("skipping unsupported file")
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}

	w.log.Info().Str("dir", dir).Int("files", len(paths)).Int("skipped", stats.Skipped).Msg("ingesting")

	pathChan := make(chan string, len(paths))
	for _, p := range paths {
		pathChan <- p
	}
	close(pathChan)

	var wg sync.WaitGroup
	var mu sync.Mutex

	for range w.concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range pathChan {
				if ctx.Err() != nil {
					mu.Lock()
					stats.Errors++
					mu.Unlock()
					continue
				}
				id, err := w.IngestFile(ctx, path, nil)
				mu.Lock()
				if err != nil {
					stats.Errors++
				} else {
					stats.Saved++
				}
				mu.Unlock()

				if err != nil {
					w.log.Warn().Err(err).Str("path", path).Msg("ingest failed")
					continue
				}
				w.log.Info().Int64("id", id).Str("path", path).Msg("ingested")
			}
		}()
	}

	wg.Wait()

	stats.Duration = time.Since(startTime)
	w.log.Info().
		Int("saved", stats.Saved).
		Int("skipped", stats.Skipped).
		Int("errors", stats.Errors).
		Dur("duration", stats.Duration).
		Msg("ingest complete")

	if err := ctx.Err(); err != nil {
		return stats, err
	}
	return stats, nil
}
