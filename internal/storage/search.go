package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const (
	// DefaultSearchLimit is used when Search is called with limit <= 0.
	DefaultSearchLimit = 10
	// MaxSearchLimit caps a single Search call.
	MaxSearchLimit = 100
)

// ErrQuerySyntax is returned by Search when the query is not valid FTS5
// query syntax.
var ErrQuerySyntax = errors.New("query syntax error")

// Search runs an FTS5 MATCH query and returns matching documents ranked by
// bm25, best first. A blank query returns no hits and no error.
//
// Query syntax is FTS5's: bare terms are ANDed, "double quotes" match a
// phrase, OR/NOT combine, prefix* matches prefixes.
func (d *DB) Search(ctx context.Context, query string, limit int) ([]*SearchHit, error) {
	hits := []*SearchHit{}
	if strings.TrimSpace(query) == "" {
		return hits, nil
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	if limit > MaxSearchLimit {
		limit = MaxSearchLimit
	}

	sqlQuery := `
	SELECT ` + documentColumns + `,
		bm25(documents_fts) AS score,
		snippet(documents_fts, 0, '[', ']', '…', 16)
	FROM documents_fts
	JOIN documents d ON d.id = documents_fts.rowid
	WHERE documents_fts MATCH ?
	ORDER BY score, d.id
	LIMIT ?
	`

	rows, err := d.db.QueryContext(ctx, sqlQuery, query, limit)
	if err != nil {
		return nil, classifySearchError(query, err)
	}
	defer rows.Close()

	for rows.Next() {
		var score float64
		var snippet string
		doc, err := scanDocument(rows, &score, &snippet)
		if err != nil {
			return nil, fmt.Errorf("scan search hit: %w", err)
		}
		// bm25 is negative, more negative is a better match.
		hits = append(hits, &SearchHit{Document: doc, Score: -score, Snippet: snippet})
	}
	if err := rows.Err(); err != nil {
		return nil, classifySearchError(query, err)
	}

	return hits, nil
}

// queryErrorMarkers are fragments of SQLite error messages caused by the
// user's MATCH expression rather than by the database.
var queryErrorMarkers = []string{
	"fts5:",
	"syntax error",
	"unterminated string",
	"no such column",
	"unknown special query",
}

func classifySearchError(query string, err error) error {
	msg := err.Error()
	for _, marker := range queryErrorMarkers {
		if strings.Contains(msg, marker) {
			return fmt.Errorf("%w: %q: %v", ErrQuerySyntax, query, err)
		}
	}
	return fmt.Errorf("search: %w", err)
}
