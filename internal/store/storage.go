package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // pure-Go SQLite driver, no CGO
)

// DedupSimilarityThreshold is the cosine-similarity cutoff at or above which an
// incoming chunk is merged into an existing memory instead of inserted as
// a new row (spec §4.2).
const DedupSimilarityThreshold = 0.95

// DedupCandidateLimit bounds how many same-scope ANN neighbors are probed
// for an exact duplicate.
const DedupCandidateLimit = 12

// RecallBoost is the importance increment applied on every recall (spec's
// bumpRecallMetrics).
const RecallBoost = 0.04

// Storage is the facade wiring the metadata store, the ANN vector index,
// and the FTS lexical index behind the single memory.db file. It owns the
// shared *sql.DB handle and the single-writer discipline SQLite requires.
type Storage struct {
	mu       sync.Mutex
	db       *sql.DB
	meta     *SQLiteMetadataStore
	vectors  VectorStore
	fts      FTSIndex
	annState AnnStatus
}

// Open creates or opens the memory.db SQLite file at path (":memory:" for
// an ephemeral store), configures WAL + single-writer pragmas, initializes
// the metadata schema and FTS virtual table, and rebuilds the in-process
// ANN graph from persisted embeddings. ANN construction failures degrade
// to a permanently-Disabled VectorStore rather than aborting startup.
func Open(ctx context.Context, path string) (*Storage, error) {
	dsn := path
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage directory %s: %w", dir, err)
		}
		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	// Single-writer discipline: SQLite serializes writers regardless, but
	// capping the pool at one connection avoids SQLITE_BUSY races between
	// goroutines sharing this handle.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma %q: %w", p, err)
		}
	}

	meta, err := NewSQLiteMetadataStore(db)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init metadata store: %w", err)
	}

	fts := NewSQLiteFTSIndex(db)
	annState := AnnStatus{Enabled: true}
	if !fts.Enabled() {
		slog.Warn("fts_index_disabled", slog.String("path", path))
	}

	vectors, err := rebuildVectorStore(ctx, meta)
	if err != nil {
		slog.Warn("ann_index_disabled", slog.String("reason", err.Error()))
		vectors = NewDisabledHNSWStore(err.Error())
		annState = AnnStatus{Enabled: false, Message: err.Error()}
	}

	return &Storage{
		db:       db,
		meta:     meta,
		vectors:  vectors,
		fts:      fts,
		annState: annState,
	}, nil
}

// rebuildVectorStore constructs a fresh HNSW graph and replays every
// persisted embedding into it. The ANN index is never itself persisted to
// disk: embeddings live in the record table, and the graph is a derived,
// cheaply-rebuildable runtime index over them.
func rebuildVectorStore(ctx context.Context, meta *SQLiteMetadataStore) (VectorStore, error) {
	store := NewHNSWStore()

	ids, vecs, scopes, err := meta.AllEmbeddings(ctx)
	if err != nil {
		return nil, fmt.Errorf("load embeddings for ann rebuild: %w", err)
	}
	if len(ids) == 0 {
		return store, nil
	}
	if err := store.Add(ctx, ids, vecs, scopes); err != nil {
		return nil, fmt.Errorf("replay embeddings into ann graph: %w", err)
	}
	return store, nil
}

// AnnStatus reports the ANN index's current runtime availability.
func (s *Storage) AnnStatus() AnnStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.annState
}

// Meta exposes the metadata store for read-only query paths (list, count,
// get, sibling expansion) that don't need dedup/merge semantics.
func (s *Storage) Meta() *SQLiteMetadataStore { return s.meta }

// Vectors exposes the ANN store for scoring/search paths outside the
// write transaction.
func (s *Storage) Vectors() VectorStore { return s.vectors }

// FTS exposes the lexical index for search paths outside the write
// transaction.
func (s *Storage) FTS() FTSIndex { return s.fts }

// DisableVectors forces the ANN index into the same permanently-Disabled
// state rebuildVectorStore falls back to on a startup failure. Existing
// embeddings and the FTS index are untouched: reads and writes keep
// working through the lexical path alone, per the ANN-degraded contract.
func (s *Storage) DisableVectors(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vectors = NewDisabledHNSWStore(reason)
	s.annState = AnnStatus{Enabled: false, Message: reason}
}

// InsertResult reports what InsertChunks did with a single incoming chunk.
type InsertResult struct {
	Record *MemoryRecord
	Merged bool
}

// InsertChunks writes one or more freshly-chunked+embedded records. For
// each candidate it probes for a near-duplicate in the same scope; a
// duplicate is merged into the existing row (mergeIntoExistingMemory),
// otherwise the candidate is inserted as a new row. All row writes for the
// whole batch happen inside a single transaction. The ANN and FTS entries
// are written after that transaction commits and are not part of it; their
// failures are logged and skipped rather than aborting the write.
func (s *Storage) InsertChunks(ctx context.Context, candidates []*MemoryRecord) ([]*InsertResult, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.meta.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin insert tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	results := make([]*InsertResult, 0, len(candidates))
	var toInsert []*MemoryRecord
	var toIndexMerged []*MemoryRecord

	for _, candidate := range candidates {
		// A batch can itself contain duplicate/near-duplicate chunks (the
		// same paragraph repeated within one remember() call); those rows
		// aren't visible to findSemanticDuplicateLocked's metadata/ANN
		// probes until this transaction commits, so check the staged batch
		// first.
		if staged := findDuplicateInBatch(toInsert, candidate); staged != nil {
			mergeCandidateIntoStagedRecord(staged, candidate)
			results = append(results, &InsertResult{Record: staged, Merged: true})
			continue
		}

		dupID, err := s.findSemanticDuplicateLocked(ctx, candidate)
		if err != nil {
			return nil, fmt.Errorf("duplicate probe: %w", err)
		}

		if dupID == "" {
			toInsert = append(toInsert, candidate)
			results = append(results, &InsertResult{Record: candidate})
			continue
		}

		merged, err := s.mergeIntoExistingMemoryLocked(ctx, tx, dupID, candidate)
		if err != nil {
			return nil, fmt.Errorf("merge into %s: %w", dupID, err)
		}
		toIndexMerged = append(toIndexMerged, merged)
		results = append(results, &InsertResult{Record: merged, Merged: true})
	}

	if len(toInsert) > 0 {
		if err := s.meta.InsertRecords(ctx, tx, toInsert); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit insert tx: %w", err)
	}

	// Index and vector writes happen best-effort after the row commit:
	// a degraded ANN/FTS index must never roll back an otherwise-valid write,
	// and a later error in the same batch must never leave a derived index
	// reflecting content the transaction went on to roll back.
	for _, rec := range toInsert {
		s.indexBestEffort(ctx, rec)
	}
	for _, rec := range toIndexMerged {
		s.indexBestEffort(ctx, rec)
	}

	return results, nil
}

// findDuplicateInBatch checks candidate against records already staged
// for insertion earlier in the same InsertChunks call, since those rows
// have no id in the database yet for findSemanticDuplicateLocked to find.
// Matches on exact same-scope content equality or cosine similarity at or
// above DedupSimilarityThreshold, mirroring the committed-row probe.
func findDuplicateInBatch(staged []*MemoryRecord, candidate *MemoryRecord) *MemoryRecord {
	for _, s := range staged {
		if s.Scope != candidate.Scope {
			continue
		}
		if s.Content == candidate.Content {
			return s
		}
		if len(s.Embedding) > 0 && len(s.Embedding) == len(candidate.Embedding) &&
			cosineSimilarity(s.Embedding, candidate.Embedding) >= DedupSimilarityThreshold {
			return s
		}
	}
	return nil
}

// mergeCandidateIntoStagedRecord applies the same merge formula as
// mergeIntoExistingMemoryLocked to a record still staged for insertion
// (not yet committed), so duplicate chunks produced by one remember()
// call collapse into a single row instead of two.
func mergeCandidateIntoStagedRecord(existing, incoming *MemoryRecord) {
	existing.Importance = math.Min(1.0, 0.9*existing.Importance+0.1*incoming.Importance)
	existing.ValidityScore = math.Min(1.0, existing.ValidityScore+0.01)
	existing.Content = incoming.Content
	existing.Kind = incoming.Kind
	existing.Embedding = incoming.Embedding
	existing.TokenCount = incoming.TokenCount
	existing.UpdatedAt = incoming.UpdatedAt
}

// findSemanticDuplicateLocked first checks for an exact same-scope
// content-hash match (a fast path independent of ANN availability, so
// identical-content dedup still works with the ANN index disabled), then
// falls back to searching the ANN neighborhood of candidate's embedding
// for a record whose cosine similarity reaches DedupSimilarityThreshold.
// Returns "" if neither finds a match, or if the candidate has no
// embedding, or the ANN index is disabled.
func (s *Storage) findSemanticDuplicateLocked(ctx context.Context, candidate *MemoryRecord) (string, error) {
	exact, err := s.meta.FindByContentHash(ctx, candidate.Scope, candidate.Content)
	if err != nil {
		return "", err
	}
	if exact != nil {
		return exact.ID, nil
	}

	if len(candidate.Embedding) == 0 || !s.vectors.Enabled() {
		return "", nil
	}

	scope := candidate.Scope
	neighbors, err := s.vectors.Search(ctx, candidate.Embedding, DedupCandidateLimit, &scope)
	if err != nil {
		return "", err
	}
	if len(neighbors) == 0 {
		return "", nil
	}

	ids := make([]string, len(neighbors))
	for i, n := range neighbors {
		ids[i] = n.ID
	}
	existing, err := s.meta.GetByIDs(ctx, ids)
	if err != nil {
		return "", err
	}

	for _, rec := range existing {
		if len(rec.Embedding) != len(candidate.Embedding) {
			continue
		}
		if cosineSimilarity(rec.Embedding, candidate.Embedding) >= DedupSimilarityThreshold {
			return rec.ID, nil
		}
	}
	return "", nil
}

// mergeIntoExistingMemoryLocked applies the merge formula in place and
// never creates a new row: content/kind/embedding/tokenCount are
// overwritten, importance and validityScore move toward the incoming
// observation and certainty respectively.
func (s *Storage) mergeIntoExistingMemoryLocked(ctx context.Context, tx *sql.Tx, existingID string, incoming *MemoryRecord) (*MemoryRecord, error) {
	existing, err := s.meta.GetByID(ctx, existingID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("duplicate target %s vanished mid-merge", existingID)
	}

	importance := math.Min(1.0, 0.9*existing.Importance+0.1*incoming.Importance)
	validity := math.Min(1.0, existing.ValidityScore+0.01)
	now := incoming.UpdatedAt

	if err := s.meta.UpdateMerge(ctx, tx, existingID, incoming.Content, incoming.Kind,
		incoming.Embedding, incoming.TokenCount, importance, validity, now); err != nil {
		return nil, err
	}

	merged := existing.Clone()
	merged.Content = incoming.Content
	merged.Kind = incoming.Kind
	merged.Embedding = incoming.Embedding
	merged.TokenCount = incoming.TokenCount
	merged.Importance = importance
	merged.ValidityScore = validity
	merged.UpdatedAt = now

	return merged, nil
}

// indexBestEffort replaces a record's ANN vector and FTS entry. Failures
// are logged, not returned: a degraded index must not undo a committed
// row write.
func (s *Storage) indexBestEffort(ctx context.Context, rec *MemoryRecord) {
	if len(rec.Embedding) > 0 && s.vectors.Enabled() {
		if err := s.vectors.Add(ctx, []string{rec.ID}, [][]float32{rec.Embedding}, []Scope{rec.Scope}); err != nil {
			slog.Warn("ann_index_write_failed", slog.String("id", rec.ID), slog.String("error", err.Error()))
		}
	}
	if s.fts.Enabled() {
		if err := s.fts.Index(ctx, rec.ID, rec.Content); err != nil {
			slog.Warn("fts_index_write_failed", slog.String("id", rec.ID), slog.String("error", err.Error()))
		}
	}
}

// BumpRecallMetrics applies the recall-count/importance update to every
// id in a single pass and keeps the ANN/FTS indexes untouched (recall
// never changes content or embedding).
func (s *Storage) BumpRecallMetrics(ctx context.Context, ids []string, now int64) error {
	if len(ids) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meta.BumpRecallMetrics(ctx, ids, RecallBoost, now)
}

// Forget deletes a record and its derived index entries.
func (s *Storage) Forget(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.meta.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete record %s: %w", id, err)
	}
	if err := s.vectors.Delete(ctx, []string{id}); err != nil {
		slog.Warn("ann_delete_failed", slog.String("id", id), slog.String("error", err.Error()))
	}
	if err := s.fts.Delete(ctx, []string{id}); err != nil {
		slog.Warn("fts_delete_failed", slog.String("id", id), slog.String("error", err.Error()))
	}
	return nil
}

// MarkInvalid zeros (or lowers) a record's validity score and flags it
// negative, without removing it from the corpus.
func (s *Storage) MarkInvalid(ctx context.Context, id string, score float64, now int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meta.MarkInvalid(ctx, id, score, now)
}

// Close closes every owned resource. Idempotent per component.
func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	if err := s.vectors.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := s.fts.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := s.db.Close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("close storage: %v", errs)
	}
	return nil
}

// cosineSimilarity assumes both vectors are already unit-normalized, as
// the Embedder contract provides, and returns their raw dot product; this
// package does not normalize embeddings itself.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}
