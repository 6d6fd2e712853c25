package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"strings"
)

// querier is satisfied by both *sql.DB and *sql.Tx, letting the same
// metadata methods run inside or outside a caller-managed transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteMetadataStore persists MemoryRecord rows in the shared memory.db
// SQLite file, with secondary indexes per spec §4.2.
type SQLiteMetadataStore struct {
	db *sql.DB
}

// NewSQLiteMetadataStore creates the record table and its indexes on db
// if they do not already exist, then forward-migrates legacy schemas
// additively (spec: "no destructive migration").
func NewSQLiteMetadataStore(db *sql.DB) (*SQLiteMetadataStore, error) {
	s := &SQLiteMetadataStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("init metadata schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteMetadataStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_meta (
		version INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS memories (
		id TEXT PRIMARY KEY,
		parent_id TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		content TEXT NOT NULL,
		kind TEXT NOT NULL,
		scope TEXT NOT NULL,
		importance REAL NOT NULL,
		token_count INTEGER NOT NULL,
		recall_count INTEGER NOT NULL DEFAULT 0,
		last_recalled_at INTEGER,
		validity_score REAL NOT NULL DEFAULT 1.0,
		is_negative INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		embedding BLOB,
		content_hash TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_memories_scope_updated ON memories(scope, updated_at DESC);
	CREATE INDEX IF NOT EXISTS idx_memories_parent_chunk ON memories(parent_id, chunk_index ASC);
	CREATE INDEX IF NOT EXISTS idx_memories_validity ON memories(validity_score DESC);
	CREATE INDEX IF NOT EXISTS idx_memories_scope_hash ON memories(scope, content_hash);

	INSERT OR IGNORE INTO schema_meta(version) VALUES (%d);
	`
	if _, err := s.db.Exec(fmt.Sprintf(schema, CurrentSchemaVersion)); err != nil {
		return err
	}
	return s.migrateAdditive()
}

// migrateAdditive forward-migrates a pre-existing memories table created
// before content_hash existed. Additive only: never drops or rewrites data.
func (s *SQLiteMetadataStore) migrateAdditive() error {
	rows, err := s.db.Query(`PRAGMA table_info(memories)`)
	if err != nil {
		return fmt.Errorf("inspect memories schema: %w", err)
	}
	defer rows.Close()

	hasContentHash := false
	for rows.Next() {
		var cid int
		var name, colType string
		var notNull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); err != nil {
			return fmt.Errorf("scan table_info: %w", err)
		}
		if name == "content_hash" {
			hasContentHash = true
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	if !hasContentHash {
		if _, err := s.db.Exec(`ALTER TABLE memories ADD COLUMN content_hash TEXT NOT NULL DEFAULT ''`); err != nil {
			return fmt.Errorf("add content_hash column: %w", err)
		}
	}
	return nil
}

// contentHash returns the hex-encoded SHA-256 digest of content, used to
// short-circuit re-embedding identical content on merge (never part of
// the public MemoryRecord model).
func contentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// encodeEmbedding packs a float32 vector into a little-endian byte blob.
func encodeEmbedding(v []float32) []byte {
	if v == nil {
		return nil
	}
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeEmbedding unpacks a little-endian byte blob into a float32 vector.
func decodeEmbedding(buf []byte) []float32 {
	if len(buf) == 0 {
		return nil
	}
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v
}

// BeginTx starts a transaction on the shared database handle.
func (s *SQLiteMetadataStore) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, nil)
}

// InsertRecords inserts one or more new rows within q (either the shared
// *sql.DB or a caller-managed *sql.Tx).
func (s *SQLiteMetadataStore) InsertRecords(ctx context.Context, q querier, records []*MemoryRecord) error {
	if len(records) == 0 {
		return nil
	}

	const stmt = `INSERT INTO memories
		(id, parent_id, chunk_index, content, kind, scope, importance, token_count,
		 recall_count, last_recalled_at, validity_score, is_negative, created_at, updated_at, embedding, content_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	for _, r := range records {
		if _, err := q.ExecContext(ctx, stmt,
			r.ID, r.ParentID, r.ChunkIndex, r.Content, string(r.Kind), string(r.Scope),
			r.Importance, r.TokenCount, r.RecallCount, r.LastRecalledAt, r.ValidityScore,
			boolToInt(r.IsNegative), r.CreatedAt, r.UpdatedAt, encodeEmbedding(r.Embedding),
			contentHash(r.Content)); err != nil {
			return fmt.Errorf("insert record %s: %w", r.ID, err)
		}
	}
	return nil
}

// UpdateMerge overwrites the mergeable fields of an existing row in
// place (spec's mergeIntoExistingMemory never creates a new row).
func (s *SQLiteMetadataStore) UpdateMerge(ctx context.Context, q querier, id string, content string, kind Kind, embedding []float32, tokenCount int, importance, validityScore float64, updatedAt int64) error {
	const stmt = `UPDATE memories SET content=?, kind=?, embedding=?, token_count=?,
		importance=?, validity_score=?, updated_at=?, content_hash=? WHERE id=?`
	_, err := q.ExecContext(ctx, stmt, content, string(kind), encodeEmbedding(embedding),
		tokenCount, importance, validityScore, updatedAt, contentHash(content), id)
	return err
}

// FindByContentHash looks up a same-scope row whose content hash exactly
// matches content, or nil if none exists. Used to short-circuit
// re-embedding identical content before the dedup/merge path runs.
func (s *SQLiteMetadataStore) FindByContentHash(ctx context.Context, scope Scope, content string) (*MemoryRecord, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE scope = ? AND content_hash = ? LIMIT 1`,
		string(scope), contentHash(content))
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return rec, err
}

// GetByID loads a single record, or nil if not found.
func (s *SQLiteMetadataStore) GetByID(ctx context.Context, id string) (*MemoryRecord, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return rec, err
}

// GetByIDs loads multiple records by id in one query.
func (s *SQLiteMetadataStore) GetByIDs(ctx context.Context, ids []string) ([]*MemoryRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	query := selectColumns + fmt.Sprintf(` WHERE id IN (%s)`, strings.Join(placeholders, ","))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// GetSiblings loads chunks of parentID with chunkIndex in [minIdx, maxIdx].
func (s *SQLiteMetadataStore) GetSiblings(ctx context.Context, parentID string, minIdx, maxIdx int) ([]*MemoryRecord, error) {
	query := selectColumns + ` WHERE parent_id = ? AND chunk_index BETWEEN ? AND ? ORDER BY chunk_index ASC`
	rows, err := s.db.QueryContext(ctx, query, parentID, minIdx, maxIdx)
	if err != nil {
		return nil, fmt.Errorf("query siblings: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// KindsByIDs returns the stored Kind for each existing id, used by the
// classifier's density signal to group ANN neighbors by kind.
func (s *SQLiteMetadataStore) KindsByIDs(ctx context.Context, ids []string) (map[string]Kind, error) {
	result := make(map[string]Kind, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	query := fmt.Sprintf(`SELECT id, kind FROM memories WHERE id IN (%s)`, strings.Join(placeholders, ","))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query kinds: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, kind string
		if err := rows.Scan(&id, &kind); err != nil {
			return nil, fmt.Errorf("scan kind: %w", err)
		}
		result[id] = Kind(kind)
	}
	return result, rows.Err()
}

// Delete removes a single row. Idempotent.
func (s *SQLiteMetadataStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id)
	return err
}

// BumpRecallMetrics increments recallCount and importance for each id in
// a single transaction (spec's bumpRecallMetrics).
func (s *SQLiteMetadataStore) BumpRecallMetrics(ctx context.Context, ids []string, boost float64, now int64) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin recall-metric tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const stmt = `UPDATE memories SET
		recall_count = recall_count + 1,
		last_recalled_at = ?,
		updated_at = ?,
		importance = MIN(1.0, 0.98 * importance + ?)
		WHERE id = ?`

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, stmt, now, now, boost, id); err != nil {
			return fmt.Errorf("bump recall metrics for %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// MarkInvalid sets validityScore and isNegative on a single row.
func (s *SQLiteMetadataStore) MarkInvalid(ctx context.Context, id string, score float64, now int64) error {
	if score < 0 {
		score = 0
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE memories SET validity_score = ?, is_negative = 1, updated_at = ? WHERE id = ?`,
		score, now, id)
	return err
}

// List returns paginated summaries ordered by updatedAt desc.
func (s *SQLiteMetadataStore) List(ctx context.Context, opts ListOptions) ([]*RecordSummary, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 30
	}
	if limit > 200 {
		limit = 200
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	var where []string
	var args []any
	if opts.Scope != nil {
		where = append(where, "scope = ?")
		args = append(args, string(*opts.Scope))
	}
	if opts.Kind != nil {
		where = append(where, "kind = ?")
		args = append(args, string(*opts.Kind))
	}
	if strings.TrimSpace(opts.Query) != "" {
		where = append(where, "LOWER(content) LIKE ?")
		args = append(args, "%"+strings.ToLower(opts.Query)+"%")
	}

	query := `SELECT id, parent_id, chunk_index, content, kind, scope, importance, created_at, updated_at
		FROM memories`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY updated_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var summaries []*RecordSummary
	for rows.Next() {
		var sum RecordSummary
		var kind, scope string
		if err := rows.Scan(&sum.ID, &sum.ParentID, &sum.ChunkIndex, &sum.Content, &kind, &scope,
			&sum.Importance, &sum.CreatedAt, &sum.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		sum.Kind = Kind(kind)
		sum.Scope = Scope(scope)
		summaries = append(summaries, &sum)
	}
	return summaries, rows.Err()
}

// CountByKind returns a zero-filled map over every enum kind value.
func (s *SQLiteMetadataStore) CountByKind(ctx context.Context, opts CountByKindOptions) (map[Kind]int, error) {
	counts := make(map[Kind]int, len(AllKinds))
	for _, k := range AllKinds {
		counts[k] = 0
	}

	var where []string
	var args []any
	if opts.Scope != nil {
		where = append(where, "scope = ?")
		args = append(args, string(*opts.Scope))
	}
	if strings.TrimSpace(opts.Query) != "" {
		where = append(where, "LOWER(content) LIKE ?")
		args = append(args, "%"+strings.ToLower(opts.Query)+"%")
	}

	query := `SELECT kind, COUNT(*) FROM memories`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " GROUP BY kind"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("count by kind: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var kind string
		var count int
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[Kind(kind)] = count
	}
	return counts, rows.Err()
}

// Count returns the total number of rows (used for Status().corpusSize
// and for recall's dynamic-width sizing).
func (s *SQLiteMetadataStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories`).Scan(&n)
	return n, err
}

// AllEmbeddings loads every (id, embedding, scope) triple with a
// non-null embedding, used to rebuild the ANN index on startup.
func (s *SQLiteMetadataStore) AllEmbeddings(ctx context.Context) ([]string, [][]float32, []Scope, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, embedding, scope FROM memories WHERE embedding IS NOT NULL`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("query embeddings: %w", err)
	}
	defer rows.Close()

	var ids []string
	var vecs [][]float32
	var scopes []Scope
	for rows.Next() {
		var id, scope string
		var blob []byte
		if err := rows.Scan(&id, &blob, &scope); err != nil {
			return nil, nil, nil, fmt.Errorf("scan embedding: %w", err)
		}
		ids = append(ids, id)
		vecs = append(vecs, decodeEmbedding(blob))
		scopes = append(scopes, Scope(scope))
	}
	return ids, vecs, scopes, rows.Err()
}

// Close is a no-op: the *sql.DB is owned and closed by Storage.
func (s *SQLiteMetadataStore) Close() error { return nil }

const selectColumns = `SELECT id, parent_id, chunk_index, content, kind, scope, importance,
	token_count, recall_count, last_recalled_at, validity_score, is_negative,
	created_at, updated_at, embedding FROM memories`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*MemoryRecord, error) {
	var r MemoryRecord
	var kind, scope string
	var isNegative int
	var embedding []byte
	var lastRecalledAt sql.NullInt64

	if err := row.Scan(&r.ID, &r.ParentID, &r.ChunkIndex, &r.Content, &kind, &scope,
		&r.Importance, &r.TokenCount, &r.RecallCount, &lastRecalledAt, &r.ValidityScore,
		&isNegative, &r.CreatedAt, &r.UpdatedAt, &embedding); err != nil {
		return nil, err
	}

	r.Kind = Kind(kind)
	r.Scope = Scope(scope)
	r.IsNegative = isNegative != 0
	r.Embedding = decodeEmbedding(embedding)
	if lastRecalledAt.Valid {
		v := lastRecalledAt.Int64
		r.LastRecalledAt = &v
	}
	return &r, nil
}

func scanRecords(rows *sql.Rows) ([]*MemoryRecord, error) {
	var records []*MemoryRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
