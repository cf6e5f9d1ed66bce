package history

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/clausecheck/clausecheck/internal/models"
)

// DefaultCapacity bounds the history list; insertion past it evicts the
// oldest entry.
const DefaultCapacity = 25

// Store keeps at most one HistoryEntry per document key in a bounded
// most-recent-first list. The replace-then-shift-then-truncate sequence
// in Record spans several statements, so writers are serialized with a
// mutex on top of the transaction.
type Store struct {
	db       *DB
	capacity int
	mu       sync.Mutex
}

// NewStore creates a store over db with the given capacity (<=0 uses
// DefaultCapacity).
func NewStore(db *DB, capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{db: db, capacity: capacity}
}

// HashContent returns the SHA-256 hex digest of the analyzed text.
func HashContent(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Record persists the analysis of documentKey, replacing any prior
// entry for the key and moving it to the front. The returned entry's
// Changed flag is true when a prior entry existed with a different
// content hash.
func (s *Store) Record(ctx context.Context, documentKey, site string, score models.Score, counts models.Counts, contentText string) (*models.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	newHash := HashContent(contentText)

	tx, err := s.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin record: %w", err)
	}
	defer tx.Rollback()

	var priorHash string
	var priorPos int
	exists := true
	err = tx.QueryRowContext(ctx,
		"SELECT content_hash, position FROM history WHERE document_key = ?", documentKey,
	).Scan(&priorHash, &priorPos)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		exists = false
	case err != nil:
		return nil, fmt.Errorf("look up prior entry: %w", err)
	}

	changed := exists && priorHash != "" && priorHash != newHash

	if exists {
		if _, err := tx.ExecContext(ctx, "DELETE FROM history WHERE document_key = ?", documentKey); err != nil {
			return nil, fmt.Errorf("remove prior entry: %w", err)
		}
		// Close the position gap the removal left.
		if _, err := tx.ExecContext(ctx, "UPDATE history SET position = position - 1 WHERE position > ?", priorPos); err != nil {
			return nil, fmt.Errorf("compact positions: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, "UPDATE history SET position = position + 1"); err != nil {
		return nil, fmt.Errorf("shift positions: %w", err)
	}

	entry := &models.HistoryEntry{
		DocumentKey: documentKey,
		Site:        site,
		Score:       score,
		Counts:      counts,
		ContentHash: newHash,
		Timestamp:   time.Now().UTC(),
		Changed:     changed,
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO history (document_key, site, score, rating, critical, concern, safe, content_hash, analyzed_at, changed, position)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`,
		entry.DocumentKey, entry.Site, entry.Score.Value, string(entry.Score.Rating),
		entry.Counts.Critical, entry.Counts.Concern, entry.Counts.Safe,
		entry.ContentHash, entry.Timestamp, boolToInt(entry.Changed),
	); err != nil {
		return nil, fmt.Errorf("insert entry: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM history WHERE position >= ?", s.capacity); err != nil {
		return nil, fmt.Errorf("truncate history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit record: %w", err)
	}
	return entry, nil
}

// List returns all entries most-recent-first. It never mutates state.
func (s *Store) List(ctx context.Context) ([]models.HistoryEntry, error) {
	rows, err := s.db.conn.QueryContext(ctx, `
		SELECT document_key, site, score, rating, critical, concern, safe, content_hash, analyzed_at, changed
		FROM history ORDER BY position ASC`)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	entries := []models.HistoryEntry{}
	for rows.Next() {
		var e models.HistoryEntry
		var rating string
		var changed int
		if err := rows.Scan(&e.DocumentKey, &e.Site, &e.Score.Value, &rating,
			&e.Counts.Critical, &e.Counts.Concern, &e.Counts.Safe,
			&e.ContentHash, &e.Timestamp, &changed); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		e.Score.Rating = models.Rating(rating)
		e.Changed = changed != 0
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Get returns the entry for a document key, or nil when absent.
func (s *Store) Get(ctx context.Context, documentKey string) (*models.HistoryEntry, error) {
	var e models.HistoryEntry
	var rating string
	var changed int
	err := s.db.conn.QueryRowContext(ctx, `
		SELECT document_key, site, score, rating, critical, concern, safe, content_hash, analyzed_at, changed
		FROM history WHERE document_key = ?`, documentKey,
	).Scan(&e.DocumentKey, &e.Site, &e.Score.Value, &rating,
		&e.Counts.Critical, &e.Counts.Concern, &e.Counts.Safe,
		&e.ContentHash, &e.Timestamp, &changed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get history entry: %w", err)
	}
	e.Score.Rating = models.Rating(rating)
	e.Changed = changed != 0
	return &e, nil
}

// Clear removes all entries.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.conn.ExecContext(ctx, "DELETE FROM history"); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}

// Stats computes the aggregate view over the current list. It is
// derived on every call, never stored.
func (s *Store) Stats(ctx context.Context) (models.HistoryStats, error) {
	var stats models.HistoryStats
	var avg sql.NullFloat64
	err := s.db.conn.QueryRowContext(ctx, `
		SELECT COUNT(*), AVG(score), COALESCE(SUM(changed), 0) FROM history`,
	).Scan(&stats.Entries, &avg, &stats.ChangedCount)
	if err != nil {
		return stats, fmt.Errorf("history stats: %w", err)
	}
	if avg.Valid {
		stats.AverageScore = int(avg.Float64 + 0.5)
	}
	return stats, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
