package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quarrylane/praxis/internal/entity"
	"github.com/quarrylane/praxis/internal/hooks"
	"github.com/quarrylane/praxis/internal/notify"
	"github.com/quarrylane/praxis/internal/record"
	"github.com/quarrylane/praxis/internal/schema"
	"github.com/quarrylane/praxis/internal/store"
)

// Fixture wires a deterministic entity store over a throwaway SQLite
// database and the engagement schema. IDs are sequential ("rec-1",
// "rec-2", ...) and time is frozen at Start unless advanced.
type Fixture struct {
	DB         *store.Store
	Schemas    *schema.Registry
	Dispatcher *hooks.Dispatcher
	Entities   *entity.Store
	Queue      *notify.Queue
	Clock      *WallClock
}

// Start is the frozen fixture start time: 2025-06-15 08:00 UTC.
var Start = time.Date(2025, 6, 15, 8, 0, 0, 0, time.UTC)

// NewFixture builds a fixture. Hooks registered on the dispatcher
// before the first mutation take effect normally.
func NewFixture(t *testing.T, opts ...hooks.Option) *Fixture {
	t.Helper()

	db, err := store.Open(filepath.Join(t.TempDir(), "praxis-test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	registry := EngagementSchema(t)
	clock := NewWallClock(Start)
	dispatcher := hooks.NewDispatcher(opts...)

	entities, err := entity.New(context.Background(), registry, db, dispatcher,
		entity.WithIDGenerator(&entity.FixedGenerator{Prefix: "rec"}),
		entity.WithNow(clock.Now),
	)
	require.NoError(t, err)

	return &Fixture{
		DB:         db,
		Schemas:    registry,
		Dispatcher: dispatcher,
		Entities:   entities,
		Queue:      notify.NewQueue(db, notify.WithNow(clock.Now)),
		Clock:      clock,
	}
}

// MustCreate creates a record or fails the test.
func (f *Fixture) MustCreate(t *testing.T, entityName string, fields record.Fields, actor record.Actor) record.Record {
	t.Helper()
	rec, err := f.Entities.Create(context.Background(), entityName, fields, actor)
	require.NoError(t, err)
	return rec
}

// MustUpdate updates a record or fails the test.
func (f *Fixture) MustUpdate(t *testing.T, entityName, id string, patch record.Fields, actor record.Actor) record.Record {
	t.Helper()
	rec, err := f.Entities.Update(context.Background(), entityName, id, patch, actor)
	require.NoError(t, err)
	return rec
}

// EngagementSchema builds the production entity registry
// programmatically, mirroring config/entities.cue. Tests use this to
// avoid a CUE compile per test.
func EngagementSchema(t *testing.T) *schema.Registry {
	t.Helper()

	specs := []*schema.EntitySpec{
		{
			Name: "client",
			Fields: []schema.Field{
				{Key: "name", Type: schema.TypeString, Required: true},
				{Key: "status", Type: schema.TypeEnum, Values: []string{"active", "inactive"},
					Default: record.String("active")},
			},
		},
		{
			Name: "user",
			Fields: []schema.Field{
				{Key: "name", Type: schema.TypeString, Required: true},
				{Key: "email", Type: schema.TypeString},
				{Key: "role", Type: schema.TypeEnum, Values: []string{"clerk", "manager", "partner"},
					Default: record.String("clerk")},
			},
		},
		{
			Name: "team",
			Fields: []schema.Field{
				{Key: "name", Type: schema.TypeString, Required: true},
				{Key: "members", Type: schema.TypeList},
				{Key: "partners", Type: schema.TypeList},
			},
		},
		{
			Name: "engagement",
			Fields: []schema.Field{
				{Key: "client_id", Type: schema.TypeReference, Target: "client", Required: true},
				{Key: "team_id", Type: schema.TypeReference, Target: "team"},
				{Key: "partner_id", Type: schema.TypeReference, Target: "user"},
				{Key: "title", Type: schema.TypeString, Required: true},
				{Key: "fee", Type: schema.TypeDecimal, Default: record.Decimal("0.00")},
				{Key: "users", Type: schema.TypeList},
				{Key: "recurrence", Type: schema.TypeEnum, Values: []string{"once", "monthly", "yearly"},
					Default: record.String("once")},
				{Key: "year", Type: schema.TypeInt, Required: true},
				{Key: "month", Type: schema.TypeInt},
				{Key: "progress", Type: schema.TypeInt, Default: record.Int(0)},
				{Key: "status", Type: schema.TypeEnum, Values: []string{"active", "archived"},
					Default: record.String("active")},
				{Key: "stage", Type: schema.TypeEnum,
					Values: []string{"planning", "fieldwork", "review", "complete"}},
				{Key: "review_link", Type: schema.TypeString},
				{Key: "review_id", Type: schema.TypeString},
				{Key: "previous_year_review_link", Type: schema.TypeString},
				{Key: "previous_year_review_id", Type: schema.TypeString},
				{Key: "recreate_with_attachments", Type: schema.TypeBool, Default: record.Bool(false)},
			},
			Children:   []string{"section", "rfi", "checklist", "attachment"},
			StageField: "stage",
			Stages:     []string{"planning", "fieldwork", "review", "complete"},
			Recreation: &schema.RecreationPolicy{
				Enabled:          true,
				Intervals:        []schema.Interval{schema.IntervalMonthly, schema.IntervalYearly},
				AttachmentsField: "recreate_with_attachments",
			},
		},
		{
			Name: "section",
			Fields: []schema.Field{
				{Key: "engagement_id", Type: schema.TypeReference, Target: "engagement", Required: true},
				{Key: "title", Type: schema.TypeString, Required: true},
				{Key: "ordering", Type: schema.TypeInt, Default: record.Int(0)},
			},
			Parent: &schema.Parent{Entity: "engagement", Field: "engagement_id"},
		},
		{
			Name: "rfi",
			Fields: []schema.Field{
				{Key: "engagement_id", Type: schema.TypeReference, Target: "engagement", Required: true},
				{Key: "title", Type: schema.TypeString, Required: true},
				{Key: "section", Type: schema.TypeString},
				{Key: "status", Type: schema.TypeEnum,
					Values:  []string{"requested", "responded", "completed"},
					Default: record.String("requested"), ResetOnRecreate: true},
				{Key: "file_count", Type: schema.TypeInt, Default: record.Int(0), ResetOnRecreate: true},
				{Key: "response_count", Type: schema.TypeInt, Default: record.Int(0), ResetOnRecreate: true},
				{Key: "date_requested", Type: schema.TypeTimestamp, ResetOnRecreate: true},
				{Key: "date_resolved", Type: schema.TypeTimestamp, ResetOnRecreate: true},
				{Key: "deadline", Type: schema.TypeTimestamp, ResetOnRecreate: true},
			},
			Parent:     &schema.Parent{Entity: "engagement", Field: "engagement_id"},
			StageField: "status",
			Stages:     []string{"requested", "responded", "completed"},
		},
		{
			Name: "checklist",
			Fields: []schema.Field{
				{Key: "engagement_id", Type: schema.TypeReference, Target: "engagement", Required: true},
				{Key: "title", Type: schema.TypeString, Required: true},
				{Key: "done", Type: schema.TypeBool, Default: record.Bool(false), ResetOnRecreate: true},
			},
			Parent: &schema.Parent{Entity: "engagement", Field: "engagement_id"},
		},
		{
			Name: "attachment",
			Fields: []schema.Field{
				{Key: "engagement_id", Type: schema.TypeReference, Target: "engagement", Required: true},
				{Key: "name", Type: schema.TypeString, Required: true},
				{Key: "url", Type: schema.TypeString},
			},
			Parent: &schema.Parent{Entity: "engagement", Field: "engagement_id"},
		},
		{
			Name: "review",
			Fields: []schema.Field{
				{Key: "team_id", Type: schema.TypeReference, Target: "team", Required: true},
				{Key: "engagement_id", Type: schema.TypeReference, Target: "engagement"},
				{Key: "link", Type: schema.TypeString},
				{Key: "collaborators", Type: schema.TypeList},
			},
		},
	}

	registry, err := schema.NewRegistry(specs)
	require.NoError(t, err)
	return registry
}
