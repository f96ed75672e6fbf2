package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Recreation log statuses.
const (
	RecreationCompleted = "completed"
	RecreationFailed    = "failed"
)

// RecreationLogEntry records one recreation attempt. Rows are
// append-only: written once by the recreation engine and never mutated.
type RecreationLogEntry struct {
	ID        int64
	SourceID  string
	NewID     string // empty on failure
	Status    string
	Detail    string
	CreatedAt int64
}

// AppendRecreationLog writes one audit entry.
func (s *Store) AppendRecreationLog(ctx context.Context, entry RecreationLogEntry) error {
	newID := sql.NullString{String: entry.NewID, Valid: entry.NewID != ""}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO recreation_log (source_id, new_id, status, detail, created_at)
		VALUES (?, ?, ?, ?, ?)
	`,
		entry.SourceID,
		newID,
		entry.Status,
		entry.Detail,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append recreation log: %w", err)
	}
	return nil
}

// ListRecreationLog returns all entries for a source engagement in
// write order. Returns an empty slice (not nil) when none exist.
func (s *Store) ListRecreationLog(ctx context.Context, sourceID string) ([]RecreationLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_id, new_id, status, detail, created_at
		FROM recreation_log
		WHERE source_id = ?
		ORDER BY id ASC
	`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("query recreation log: %w", err)
	}
	defer rows.Close()

	entries := []RecreationLogEntry{}
	for rows.Next() {
		var entry RecreationLogEntry
		var newID sql.NullString
		if err := rows.Scan(&entry.ID, &entry.SourceID, &newID, &entry.Status, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan recreation log: %w", err)
		}
		entry.NewID = newID.String
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recreation log: %w", err)
	}

	return entries, nil
}
