package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renderinc/doc-archive/internal/archive"
	"github.com/renderinc/doc-archive/internal/extract"
	"github.com/renderinc/doc-archive/internal/ocr"
)

type recordingSaver struct {
	mu   sync.Mutex
	reqs []archive.SaveRequest
	fail map[string]bool
}

func (s *recordingSaver) Save(_ context.Context, req archive.SaveRequest) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail[req.Filename] {
		return 0, errors.New("catalog unavailable")
	}
	s.reqs = append(s.reqs, req)
	return int64(len(s.reqs)), nil
}

type fakeOCR struct {
	text  string
	err   error
	calls int
}

func (f *fakeOCR) Recognize(_ context.Context, _ []byte, _ string) (*ocr.Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &ocr.Result{Text: f.text, PageCount: 2}, nil
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestIngestFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "notes.txt", "The quick brown fox")

	saver := &recordingSaver{}
	w := NewWorker(saver, NewConverter(extract.New(0), nil), 2, zerolog.Nop())

	notes := "from disk"
	id, err := w.IngestFile(context.Background(), path, &notes)
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	require.Len(t, saver.reqs, 1)
	req := saver.reqs[0]
	assert.Equal(t, "notes.txt", req.Filename)
	assert.Equal(t, "text", req.OriginalType)
	assert.Equal(t, "The quick brown fox", req.Content)
	require.NotNil(t, req.FileSize)
	assert.Equal(t, int64(19), *req.FileSize)
	assert.Equal(t, "from disk", *req.Notes)
	assert.Nil(t, req.CreatedDate)
}

func TestIngestFileMissing(t *testing.T) {
	w := NewWorker(&recordingSaver{}, NewConverter(extract.New(0), nil), 1, zerolog.Nop())
	_, err := w.IngestFile(context.Background(), filepath.Join(t.TempDir(), "nope.txt"), nil)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestConvertFallsBackToOCR(t *testing.T) {
	rec := &fakeOCR{text: "scanned words"}
	c := NewConverter(extract.New(0), rec)

	res, err := c.Convert(context.Background(), []byte{0x89, 'P', 'N', 'G'}, "scan.png")
	require.NoError(t, err)
	assert.Equal(t, extract.FormatOCR, res.Format)
	assert.Equal(t, "scanned words", res.Text)
	assert.Equal(t, 2, res.Metadata["page_count"])
	assert.Equal(t, "image", res.Metadata["source_format"])
	assert.Equal(t, 1, rec.calls)

	// Text documents never reach OCR.
	res, err = c.Convert(context.Background(), []byte("plain"), "a.txt")
	require.NoError(t, err)
	assert.Equal(t, extract.FormatText, res.Format)
	assert.Equal(t, 1, rec.calls)
}

func TestConvertOCRErrors(t *testing.T) {
	_, err := NewConverter(extract.New(0), nil).Convert(context.Background(), []byte{1}, "scan.png")
	assert.ErrorIs(t, err, ocr.ErrNoAPIKey)
	assert.NotErrorIs(t, err, extract.ErrExtraction)

	_, err = NewConverter(extract.New(0), ocr.NewClient("", "", "")).Convert(context.Background(), []byte{1}, "scan.png")
	assert.ErrorIs(t, err, ocr.ErrNoAPIKey)

	_, err = NewConverter(extract.New(0), &fakeOCR{err: &ocr.Error{StatusCode: 401, Message: "authentication failed"}}).
		Convert(context.Background(), []byte{1}, "scan.png")
	assert.ErrorIs(t, err, ocr.ErrOCR)

	_, err = NewConverter(extract.New(0), &fakeOCR{}).Convert(context.Background(), []byte{1}, "scan.png")
	assert.ErrorIs(t, err, extract.ErrNoText)

	// Empty text files are not OCR candidates.
	rec := &fakeOCR{text: "never"}
	_, err = NewConverter(extract.New(0), rec).Convert(context.Background(), []byte(" "), "blank.txt")
	assert.ErrorIs(t, err, extract.ErrNoText)
	assert.Zero(t, rec.calls)
}

func TestIngestDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "alpha")
	writeFile(t, dir, "b.md", "# Beta\n\nbody")
	writeFile(t, dir, "sub/c.html", "<p>gamma</p>")
	writeFile(t, dir, "sub/d.xlsx", "binary")
	writeFile(t, dir, "empty.txt", "   ")
	writeFile(t, dir, "broken.txt", "delta")
	writeFile(t, dir, ".hidden/e.txt", "hidden")
	writeFile(t, dir, ".dotfile.txt", "hidden")

	saver := &recordingSaver{fail: map[string]bool{"broken.txt": true}}
	w := NewWorker(saver, NewConverter(extract.New(0), nil), 3, zerolog.Nop())

	stats, err := w.IngestDir(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 6, stats.Total)
	assert.Equal(t, 3, stats.Saved)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 2, stats.Errors)

	var names []string
	for _, r := range saver.reqs {
		names = append(names, r.Filename)
	}
	sort.Strings(names)
	assert.Equal(t, []string{"a.txt", "b.md", "c.html"}, names)
}

func TestIngestDirMissing(t *testing.T) {
	w := NewWorker(&recordingSaver{}, NewConverter(extract.New(0), nil), 1, zerolog.Nop())
	_, err := w.IngestDir(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestIngestDirIntoArchive(t *testing.T) {
	src := t.TempDir()
	for _, name := range []string{"one.txt", "two.txt", "three.txt", "four.txt"} {
		writeFile(t, src, name, "shared corpus "+name)
	}

	a, err := archive.New(archive.Config{Dir: t.TempDir()})
	require.NoError(t, err)
	defer a.Close()

	w := NewWorker(a, NewConverter(extract.New(0), nil), 4, zerolog.Nop())
	stats, err := w.IngestDir(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Saved)

	hits, err := a.Search(context.Background(), "corpus", 10)
	require.NoError(t, err)
	assert.Len(t, hits, 4)
}
