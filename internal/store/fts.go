package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
)

// SQLiteFTSIndex implements FTSIndex using SQLite's FTS5 extension,
// sharing the same *sql.DB handle (and therefore the same memory.db
// file) as the metadata store. It is best-effort per spec §4.2:
// construction failures leave it permanently Disabled rather than
// propagating an error the caller cannot recover from.
type SQLiteFTSIndex struct {
	mu      sync.RWMutex
	db      *sql.DB
	enabled bool
	closed  bool
}

var _ FTSIndex = (*SQLiteFTSIndex)(nil)

// NewSQLiteFTSIndex creates the fts_content virtual table on db if it
// does not already exist. On failure it returns a permanently-disabled
// index rather than an error, so callers degrade instead of failing to
// start.
func NewSQLiteFTSIndex(db *sql.DB) *SQLiteFTSIndex {
	idx := &SQLiteFTSIndex{db: db}

	schema := `
	CREATE VIRTUAL TABLE IF NOT EXISTS fts_content USING fts5(
		doc_id UNINDEXED,
		content,
		tokenize='unicode61'
	);
	`
	if _, err := db.Exec(schema); err != nil {
		idx.enabled = false
		return idx
	}

	idx.enabled = true
	return idx
}

// Enabled reports whether the FTS index is serving queries.
func (s *SQLiteFTSIndex) Enabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enabled && !s.closed
}

// Index inserts or replaces the FTS entry for id. FTS5 virtual tables
// don't support REPLACE, so an existing entry is deleted first.
func (s *SQLiteFTSIndex) Index(ctx context.Context, id, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.enabled || s.closed {
		return nil
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM fts_content WHERE doc_id = ?`, id); err != nil {
		return fmt.Errorf("delete existing fts entry: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO fts_content(doc_id, content) VALUES (?, ?)`, id, content); err != nil {
		return fmt.Errorf("insert fts entry: %w", err)
	}
	return nil
}

// Delete removes FTS entries for the given ids.
func (s *SQLiteFTSIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.enabled || s.closed {
		return nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	query := fmt.Sprintf(`DELETE FROM fts_content WHERE doc_id IN (%s)`, strings.Join(placeholders, ","))
	_, err := s.db.ExecContext(ctx, query, args...)
	return err
}

// Search returns up to limit matches for query, scored by FTS5's bm25().
// An empty or unparsable query yields an empty result, not an error.
func (s *SQLiteFTSIndex) Search(ctx context.Context, query string, limit int) ([]*FTSResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.enabled || s.closed {
		return []*FTSResult{}, nil
	}
	if strings.TrimSpace(query) == "" {
		return []*FTSResult{}, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT doc_id, bm25(fts_content) AS score FROM fts_content WHERE content MATCH ? ORDER BY score LIMIT ?`,
		query, limit)
	if err != nil {
		if strings.Contains(err.Error(), "fts5") || strings.Contains(err.Error(), "syntax error") {
			return []*FTSResult{}, nil
		}
		return nil, fmt.Errorf("fts search: %w", err)
	}
	defer rows.Close()

	var results []*FTSResult
	for rows.Next() {
		var id string
		var score float64
		if err := rows.Scan(&id, &score); err != nil {
			return nil, fmt.Errorf("scan fts result: %w", err)
		}
		// FTS5 bm25() returns negative values; higher positive = better match.
		results = append(results, &FTSResult{ID: id, Score: -score})
	}
	return results, rows.Err()
}

// Close marks the index unusable. The underlying *sql.DB is owned by
// Storage and closed there.
func (s *SQLiteFTSIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
