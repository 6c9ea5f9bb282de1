// Package positionstore implements the PositionStore abstraction called
// for in spec §9: "Replace ad-hoc text position files with an explicit
// PositionStore abstraction (get/set per (tool, source_id))". Backed by
// the Store's `collector_positions` table rather than side files. Set
// runs as its own statement after the insert transaction commits, so a
// crash between the two replays the last chunk instead of losing it.
package positionstore

import (
	"context"
	"database/sql"
	"fmt"
)

// Store tracks, per (tool, source), the byte offset a log-tailing
// collector has consumed up to.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Get returns the last committed position for (tool, sourceID), or
// (0, false) if none has ever been recorded, so a caller starts from
// the beginning of the source rather than erroring.
func (s *Store) Get(ctx context.Context, tool, sourceID string) (int64, bool, error) {
	var pos int64
	err := s.db.QueryRowContext(ctx,
		`SELECT position FROM collector_positions WHERE tool = ? AND source_id = ?`,
		tool, sourceID,
	).Scan(&pos)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get position %s/%s: %w", tool, sourceID, err)
	}
	return pos, true, nil
}

// Set persists the new position. Callers (collector loops) must only
// call this after the corresponding insert transaction has committed —
// the at-least-once guarantee in §4.3 depends on that ordering.
func (s *Store) Set(ctx context.Context, tool, sourceID string, position int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO collector_positions (tool, source_id, position, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(tool, source_id) DO UPDATE SET position = excluded.position, updated_at = excluded.updated_at`,
		tool, sourceID, position,
	)
	if err != nil {
		return fmt.Errorf("set position %s/%s: %w", tool, sourceID, err)
	}
	return nil
}

// IsFileProcessed reports whether fileName has already been consumed by
// a PCAP-consuming collector for tool.
func (s *Store) IsFileProcessed(ctx context.Context, tool, fileName string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM processed_files WHERE tool = ? AND file_name = ?`, tool, fileName,
	).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check processed file: %w", err)
	}
	return true, nil
}

// MarkFileProcessed records fileName as consumed for tool.
func (s *Store) MarkFileProcessed(ctx context.Context, tool, fileName string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO processed_files (tool, file_name) VALUES (?, ?)`,
		tool, fileName,
	)
	if err != nil {
		return fmt.Errorf("mark processed file: %w", err)
	}
	return nil
}
