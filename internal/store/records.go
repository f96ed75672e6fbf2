package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/quarrylane/praxis/internal/record"
)

// InsertRecord inserts a record row.
// Uses ON CONFLICT(entity, id) DO NOTHING so a duplicate insert is
// detectable without racing a prior existence check. Returns whether a
// new row was written.
func (s *Store) InsertRecord(ctx context.Context, rec record.Record) (bool, error) {
	fieldsJSON, err := record.MarshalFields(rec.Fields)
	if err != nil {
		return false, fmt.Errorf("insert record: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO records
		(entity, id, seq, created_at, created_by, updated_at, updated_by, fields)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(entity, id) DO NOTHING
	`,
		rec.Entity,
		rec.ID,
		rec.Seq,
		rec.CreatedAt,
		rec.CreatedBy,
		rec.UpdatedAt,
		rec.UpdatedBy,
		fieldsJSON,
	)
	if err != nil {
		return false, fmt.Errorf("insert record: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert record: rows affected: %w", err)
	}
	return rows > 0, nil
}

// GetRecord retrieves a single record by entity and id.
// Returns sql.ErrNoRows if not found.
func (s *Store) GetRecord(ctx context.Context, entity, id string) (record.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT entity, id, seq, created_at, created_by, updated_at, updated_by, fields
		FROM records
		WHERE entity = ? AND id = ?
	`, entity, id)

	return scanRecord(row)
}

// ListRecords returns all records of an entity type ordered by
// insertion sequence. Returns an empty slice (not nil) when none exist.
func (s *Store) ListRecords(ctx context.Context, entity string) ([]record.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT entity, id, seq, created_at, created_by, updated_at, updated_by, fields
		FROM records
		WHERE entity = ?
		ORDER BY seq ASC
	`, entity)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	records := []record.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}

	return records, nil
}

// UpdateRecord rewrites a record's fields and update-audit columns.
// The created_* columns and seq are never touched by updates.
// Returns sql.ErrNoRows if the record does not exist.
func (s *Store) UpdateRecord(ctx context.Context, rec record.Record) error {
	fieldsJSON, err := record.MarshalFields(rec.Fields)
	if err != nil {
		return fmt.Errorf("update record: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE records
		SET updated_at = ?, updated_by = ?, fields = ?
		WHERE entity = ? AND id = ?
	`,
		rec.UpdatedAt,
		rec.UpdatedBy,
		fieldsJSON,
		rec.Entity,
		rec.ID,
	)
	if err != nil {
		return fmt.Errorf("update record: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update record: rows affected: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteRecord removes a record row.
// Returns sql.ErrNoRows if the record does not exist.
func (s *Store) DeleteRecord(ctx context.Context, entity, id string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM records WHERE entity = ? AND id = ?
	`, entity, id)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete record: rows affected: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (record.Record, error) {
	var rec record.Record
	var fieldsJSON string

	err := row.Scan(
		&rec.Entity,
		&rec.ID,
		&rec.Seq,
		&rec.CreatedAt,
		&rec.CreatedBy,
		&rec.UpdatedAt,
		&rec.UpdatedBy,
		&fieldsJSON,
	)
	if err != nil {
		return record.Record{}, err
	}

	rec.Fields, err = record.UnmarshalFields(fieldsJSON)
	if err != nil {
		return record.Record{}, fmt.Errorf("scan record %s/%s: %w", rec.Entity, rec.ID, err)
	}
	return rec, nil
}
