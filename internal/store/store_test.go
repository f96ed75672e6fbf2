package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarrylane/praxis/internal/record"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testRecord(id string, seq int64) record.Record {
	return record.Record{
		Entity:    "engagement",
		ID:        id,
		Seq:       seq,
		CreatedAt: 1700000000,
		CreatedBy: "u1",
		UpdatedAt: 1700000000,
		UpdatedBy: "u1",
		Fields: record.Fields{
			"title": record.String("Audit 2025"),
			"fee":   record.Decimal("1250.00"),
			"users": record.StringList("u1", "u2"),
		},
	}
}

func TestInsertRecord_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	inserted, err := s.InsertRecord(ctx, testRecord("e1", 1))
	require.NoError(t, err)
	assert.True(t, inserted)

	got, err := s.GetRecord(ctx, "engagement", "e1")
	require.NoError(t, err)
	assert.Equal(t, "e1", got.ID)
	assert.Equal(t, int64(1), got.Seq)
	assert.Equal(t, record.Decimal("1250.00"), got.Fields["fee"])
	assert.Equal(t, []string{"u1", "u2"}, got.Fields.StringsAt("users"))
}

func TestInsertRecord_DuplicateIDIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	inserted, err := s.InsertRecord(ctx, testRecord("e1", 1))
	require.NoError(t, err)
	require.True(t, inserted)

	again := testRecord("e1", 2)
	again.Fields["title"] = record.String("Something else")
	inserted, err = s.InsertRecord(ctx, again)
	require.NoError(t, err)
	assert.False(t, inserted, "conflicting insert must be a no-op")

	got, err := s.GetRecord(ctx, "engagement", "e1")
	require.NoError(t, err)
	assert.Equal(t, record.String("Audit 2025"), got.Fields["title"])
}

func TestGetRecord_Missing(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetRecord(context.Background(), "engagement", "ghost")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestListRecords_InsertionOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i, id := range []string{"c", "a", "b"} {
		_, err := s.InsertRecord(ctx, testRecord(id, int64(i+1)))
		require.NoError(t, err)
	}

	records, err := s.ListRecords(ctx, "engagement")
	require.NoError(t, err)
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	assert.Equal(t, []string{"c", "a", "b"}, ids, "list follows seq, not id")

	empty, err := s.ListRecords(ctx, "review")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestUpdateRecord(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rec := testRecord("e1", 1)
	_, err := s.InsertRecord(ctx, rec)
	require.NoError(t, err)

	rec.Fields["title"] = record.String("Audit 2026")
	rec.UpdatedAt = 1700000100
	rec.UpdatedBy = "u2"
	require.NoError(t, s.UpdateRecord(ctx, rec))

	got, err := s.GetRecord(ctx, "engagement", "e1")
	require.NoError(t, err)
	assert.Equal(t, record.String("Audit 2026"), got.Fields["title"])
	assert.Equal(t, "u2", got.UpdatedBy)
	assert.Equal(t, "u1", got.CreatedBy)

	missing := testRecord("ghost", 9)
	assert.ErrorIs(t, s.UpdateRecord(ctx, missing), sql.ErrNoRows)
}

func TestDeleteRecord(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.InsertRecord(ctx, testRecord("e1", 1))
	require.NoError(t, err)
	require.NoError(t, s.DeleteRecord(ctx, "engagement", "e1"))

	_, err = s.GetRecord(ctx, "engagement", "e1")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestMaxRecordSeq(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	maxSeq, err := s.MaxRecordSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), maxSeq)

	_, err = s.InsertRecord(ctx, testRecord("e1", 7))
	require.NoError(t, err)

	maxSeq, err = s.MaxRecordSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(7), maxSeq)
}

func TestRecreationLog_AppendAndList(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendRecreationLog(ctx, RecreationLogEntry{
		SourceID:  "e1",
		NewID:     "e2",
		Status:    RecreationCompleted,
		CreatedAt: 1700000000,
	}))
	require.NoError(t, s.AppendRecreationLog(ctx, RecreationLogEntry{
		SourceID:  "e1",
		Status:    RecreationFailed,
		Detail:    "duplicate active engagement",
		CreatedAt: 1700000100,
	}))

	entries, err := s.ListRecreationLog(ctx, "e1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, RecreationCompleted, entries[0].Status)
	assert.Equal(t, "e2", entries[0].NewID)
	assert.Equal(t, RecreationFailed, entries[1].Status)
	assert.Empty(t, entries[1].NewID)
	assert.Equal(t, "duplicate active engagement", entries[1].Detail)
}

func TestNotifications_Lifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.InsertNotification(ctx, Notification{
		Recipient: "u1",
		Subject:   "New Review",
		Body:      "A review was created",
		Entity:    "review",
		EntityID:  "r1",
		Status:    NotificationPending,
		CreatedAt: 1700000000,
		UpdatedAt: 1700000000,
	})
	require.NoError(t, err)
	require.NotZero(t, id)

	pending, err := s.ListNotificationsByStatus(ctx, NotificationPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "u1", pending[0].Recipient)

	require.NoError(t, s.MarkNotification(ctx, id, NotificationSent, 1700000100))

	pending, err = s.ListNotificationsByStatus(ctx, NotificationPending)
	require.NoError(t, err)
	assert.Empty(t, pending)

	sent, err := s.ListNotificationsByStatus(ctx, NotificationSent)
	require.NoError(t, err)
	require.Len(t, sent, 1)
	assert.Equal(t, int64(1700000100), sent[0].UpdatedAt)
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.InsertRecord(context.Background(), testRecord("e1", 1))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	got, err := s2.GetRecord(context.Background(), "engagement", "e1")
	require.NoError(t, err)
	assert.Equal(t, "e1", got.ID)
}
