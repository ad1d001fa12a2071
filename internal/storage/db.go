package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// AddedDateLayout is the fixed-width UTC layout of added_date. Fixed width
// keeps lexical and chronological order identical.
const AddedDateLayout = "2006-01-02T15:04:05.000000Z"

// documentColumns is the select list scanned by scanDocument.
const documentColumns = `d.id, d.filename, d.original_type, d.file_size, d.word_count,
	d.created_date, d.added_date, d.md_path, d.notes`

// DB is the document catalog and its full-text search index, both held in
// one SQLite database so they share transactions.
type DB struct {
	db  *sql.DB
	now func() time.Time
}

type config struct {
	busyTimeout int
	now         func() time.Time
}

// Option customises Open.
type Option func(*config)

// WithBusyTimeout sets how long a writer waits for the database lock, in
// milliseconds, before failing. Default: 10000.
func WithBusyTimeout(ms int) Option { return func(c *config) { c.busyTimeout = ms } }

// WithClock replaces time.Now for added_date assignment.
func WithClock(now func() time.Time) Option { return func(c *config) { c.now = now } }

// Open opens or creates the archive database at path and initializes its
// schema. Calling it on an existing database is safe.
func Open(path string, opts ...Option) (*DB, error) {
	cfg := config{busyTimeout: 10_000, now: time.Now}
	for _, o := range opts {
		o(&cfg)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database dir: %w", err)
	}

	// Pragmas go in the DSN so every pooled connection gets them.
	// Immediate transactions take the write lock up front, so concurrent
	// writers queue on busy_timeout instead of failing on lock upgrade.
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(%d)&_txlock=immediate",
		path, cfg.busyTimeout)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	storage := &DB{db: db, now: cfg.now}

	if err := storage.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return storage, nil
}

// Close closes the database
func (d *DB) Close() error {
	return d.db.Close()
}

// initSchema creates the catalog, its indexes, the search index and the
// delete trigger if they don't exist
func (d *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		filename TEXT NOT NULL,
		original_type TEXT NOT NULL,
		file_size INTEGER,
		word_count INTEGER NOT NULL CHECK (word_count >= 0),
		created_date TEXT,
		added_date TEXT NOT NULL,
		md_path TEXT NOT NULL UNIQUE,
		notes TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_documents_added ON documents(added_date);
	CREATE INDEX IF NOT EXISTS idx_documents_type ON documents(original_type);

	CREATE VIRTUAL TABLE IF NOT EXISTS documents_fts USING fts5(
		content,
		tokenize = 'unicode61 remove_diacritics 2'
	);

	CREATE TRIGGER IF NOT EXISTS documents_ad
	AFTER DELETE ON documents BEGIN
		DELETE FROM documents_fts WHERE rowid = old.id;
	END;
	`

	_, err := d.db.Exec(schema)
	return err
}

// Insert stores doc and indexes content for it in one transaction, and
// returns the assigned identity. added_date is set here and never moves
// backwards, even if the wall clock does. doc.ID and doc.AddedDate are
// updated on success.
func (d *DB) Insert(ctx context.Context, doc *Document, content string) (int64, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin insert: %w", err)
	}
	defer tx.Rollback()

	now := d.now().UTC().Format(AddedDateLayout)

	var id int64
	var added string
	err = tx.QueryRowContext(ctx, `
	INSERT INTO documents
		(filename, original_type, file_size, word_count, created_date, added_date, md_path, notes)
	VALUES (?, ?, ?, ?, ?, MAX(?, COALESCE((SELECT MAX(added_date) FROM documents), '')), ?, ?)
	RETURNING id, added_date
	`,
		doc.Filename, doc.OriginalType, doc.FileSize, doc.WordCount,
		doc.CreatedDate, now, doc.MDPath, doc.Notes,
	).Scan(&id, &added)
	if err != nil {
		return 0, fmt.Errorf("insert document: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO documents_fts(rowid, content) VALUES (?, ?)`, id, content); err != nil {
		return 0, fmt.Errorf("index document %d: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit document %d: %w", id, err)
	}

	addedAt, err := parseAddedDate(added)
	if err != nil {
		return 0, err
	}
	doc.ID = id
	doc.AddedDate = addedAt
	return id, nil
}

// Get retrieves a document by ID. It returns nil, nil when no such
// document exists.
func (d *DB) Get(ctx context.Context, id int64) (*Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents d WHERE d.id = ?`

	doc, err := scanDocument(d.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get document %d: %w", id, err)
	}
	return doc, nil
}

// List returns documents newest first. A limit <= 0 returns all of them.
func (d *DB) List(ctx context.Context, limit, offset int) ([]*Document, error) {
	if limit <= 0 {
		limit = -1
	}
	query := `SELECT ` + documentColumns + ` FROM documents d ORDER BY d.id DESC LIMIT ? OFFSET ?`

	rows, err := d.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, doc)
	}

	return docs, rows.Err()
}

// Count returns the number of catalog records
func (d *DB) Count(ctx context.Context) (int, error) {
	var count int
	err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents").Scan(&count)
	return count, err
}

// CountSearchEntries returns the number of rows in the search index. It
// equals Count unless the database was modified outside this package.
func (d *DB) CountSearchEntries(ctx context.Context) (int, error) {
	var count int
	err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents_fts").Scan(&count)
	return count, err
}

// Delete removes a document and its search entry in one transaction and
// returns the removed record, or nil, nil if there was none.
func (d *DB) Delete(ctx context.Context, id int64) (*Document, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback()

	query := `SELECT ` + documentColumns + ` FROM documents d WHERE d.id = ?`
	doc, err := scanDocument(tx.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get document %d: %w", id, err)
	}

	// documents_ad removes the search entry.
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("delete document %d: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit delete %d: %w", id, err)
	}
	return doc, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner, extra ...any) (*Document, error) {
	doc := &Document{}
	var added string
	dest := append([]any{
		&doc.ID, &doc.Filename, &doc.OriginalType, &doc.FileSize, &doc.WordCount,
		&doc.CreatedDate, &added, &doc.MDPath, &doc.Notes,
	}, extra...)

	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	addedAt, err := parseAddedDate(added)
	if err != nil {
		return nil, err
	}
	doc.AddedDate = addedAt
	return doc, nil
}

func parseAddedDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(AddedDateLayout, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse added_date %q: %w", s, err)
	}
	return t, nil
}
