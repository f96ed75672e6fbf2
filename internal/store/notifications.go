package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Notification statuses.
const (
	NotificationPending = "pending"
	NotificationSent    = "sent"
	NotificationFailed  = "failed"
)

// Notification is one outbox row. Delivery, retry, and batching belong
// to the external collaborator; this core only queues and marks rows.
type Notification struct {
	ID        int64
	Recipient string
	Subject   string
	Body      string
	Entity    string
	EntityID  string
	Status    string
	CreatedAt int64
	UpdatedAt int64
}

// InsertNotification writes a new outbox row and returns its id.
func (s *Store) InsertNotification(ctx context.Context, n Notification) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications
		(recipient, subject, body, entity, entity_id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		n.Recipient,
		n.Subject,
		n.Body,
		n.Entity,
		n.EntityID,
		n.Status,
		n.CreatedAt,
		n.UpdatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert notification: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert notification: last insert id: %w", err)
	}
	return id, nil
}

// ListNotificationsByStatus returns outbox rows in write order.
// Returns an empty slice (not nil) when none exist.
func (s *Store) ListNotificationsByStatus(ctx context.Context, status string) ([]Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, recipient, subject, body, entity, entity_id, status, created_at, updated_at
		FROM notifications
		WHERE status = ?
		ORDER BY id ASC
	`, status)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	notifications := []Notification{}
	for rows.Next() {
		var n Notification
		err := rows.Scan(&n.ID, &n.Recipient, &n.Subject, &n.Body, &n.Entity, &n.EntityID, &n.Status, &n.CreatedAt, &n.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}

	return notifications, nil
}

// MarkNotification transitions an outbox row to sent or failed.
// Returns sql.ErrNoRows if the row does not exist.
func (s *Store) MarkNotification(ctx context.Context, id int64, status string, now int64) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET status = ?, updated_at = ? WHERE id = ?
	`, status, now, id)
	if err != nil {
		return fmt.Errorf("mark notification: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark notification: rows affected: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
