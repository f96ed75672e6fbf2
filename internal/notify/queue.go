// Package notify implements the notification dispatch boundary.
//
// Trigger rules queue notifications fire-and-forget; delivery, retry,
// and batching belong to the external collaborator behind the Sender
// interface. The core only writes outbox rows and marks them
// sent/failed on flush.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/quarrylane/praxis/internal/metrics"
	"github.com/quarrylane/praxis/internal/store"
)

// Notification is the queueing request from a trigger rule.
type Notification struct {
	Recipient string
	Subject   string
	Body      string
	Entity    string
	EntityID  string
}

// Queue writes and drains the notification outbox.
type Queue struct {
	db      *store.Store
	now     func() time.Time
	logger  *slog.Logger
	metrics *metrics.Collector
}

// Option configures a Queue.
type Option func(*Queue)

// WithNow overrides the wall clock (tests).
func WithNow(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// WithMetrics attaches a metrics collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(q *Queue) { q.metrics = c }
}

// WithLogger overrides the default slog logger.
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) { q.logger = l }
}

// NewQueue creates a queue over the given store.
func NewQueue(db *store.Store, opts ...Option) *Queue {
	q := &Queue{
		db:     db,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue writes one pending outbox row.
func (q *Queue) Enqueue(ctx context.Context, n Notification) error {
	now := q.now().Unix()
	id, err := q.db.InsertNotification(ctx, store.Notification{
		Recipient: n.Recipient,
		Subject:   n.Subject,
		Body:      n.Body,
		Entity:    n.Entity,
		EntityID:  n.EntityID,
		Status:    store.NotificationPending,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}

	q.metrics.RecordNotificationQueued()
	q.logger.Debug("notification queued",
		"id", id,
		"recipient", n.Recipient,
		"subject", n.Subject,
	)
	return nil
}

// FlushStats summarizes one flush pass.
type FlushStats struct {
	Sent   int
	Failed int
}

// Flush delivers all pending rows through sender, best-effort.
// A failing send marks the row failed and continues; the core never
// retries (retry policy belongs to the collaborator or operator).
func (q *Queue) Flush(ctx context.Context, sender Sender) (FlushStats, error) {
	pending, err := q.db.ListNotificationsByStatus(ctx, store.NotificationPending)
	if err != nil {
		return FlushStats{}, fmt.Errorf("flush notifications: %w", err)
	}

	var stats FlushStats
	for _, n := range pending {
		msg := Message{To: n.Recipient, Subject: n.Subject, Body: n.Body}
		status := store.NotificationSent
		if err := sender.Send(ctx, msg); err != nil {
			status = store.NotificationFailed
			stats.Failed++
			q.logger.Error("notification delivery failed",
				"id", n.ID,
				"recipient", n.Recipient,
				"error", err,
			)
		} else {
			stats.Sent++
		}

		if err := q.db.MarkNotification(ctx, n.ID, status, q.now().Unix()); err != nil {
			q.logger.Error("mark notification failed",
				"id", n.ID,
				"status", status,
				"error", err,
			)
		}
	}

	if stats.Sent > 0 || stats.Failed > 0 {
		q.logger.Info("notification flush complete",
			"sent", stats.Sent,
			"failed", stats.Failed,
		)
	}
	return stats, nil
}
