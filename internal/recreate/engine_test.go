package recreate_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarrylane/praxis/internal/hooks"
	"github.com/quarrylane/praxis/internal/record"
	"github.com/quarrylane/praxis/internal/recreate"
	"github.com/quarrylane/praxis/internal/schema"
	"github.com/quarrylane/praxis/internal/store"
	"github.com/quarrylane/praxis/internal/testutil"
)

var partner = record.Actor{ID: "p1", Role: record.RolePartner}

type world struct {
	f      *testutil.Fixture
	engine *recreate.Engine
	client record.Record
}

func newWorld(t *testing.T) *world {
	t.Helper()
	f := testutil.NewFixture(t)
	return &world{
		f:      f,
		engine: recreate.NewEngine(f.Entities),
		client: f.MustCreate(t, "client", record.Fields{"name": record.String("Acme")}, partner),
	}
}

func (w *world) engagement(t *testing.T, extra record.Fields) record.Record {
	t.Helper()
	fields := record.Fields{
		"client_id":  record.String(w.client.ID),
		"title":      record.String("Audit"),
		"year":       record.Int(2024),
		"recurrence": record.String("yearly"),
	}
	for k, v := range extra {
		fields[k] = v
	}
	return w.f.MustCreate(t, "engagement", fields, partner)
}

func TestRecreate_YearlyCloneWithChildren(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	source := w.engagement(t, record.Fields{
		"fee":         record.Decimal("1250.00"),
		"users":       record.StringList("u1", "u2"),
		"stage":       record.String("complete"),
		"progress":    record.Int(100),
		"review_link": record.String("R24"),
		"review_id":   record.String("RID24"),
	})
	section := w.f.MustCreate(t, "section", record.Fields{
		"engagement_id": record.String(source.ID),
		"title":         record.String("Revenue"),
		"ordering":      record.Int(3),
	}, partner)
	w.f.MustCreate(t, "rfi", record.Fields{
		"engagement_id":  record.String(source.ID),
		"title":          record.String("Bank statements"),
		"status":         record.String("responded"),
		"response_count": record.Int(2),
		"deadline":       record.Int(1735689600),
	}, partner)

	newRec, err := w.engine.Recreate(ctx, source.ID, schema.IntervalYearly, partner)
	require.NoError(t, err)

	// Period advanced, workflow restarted, review mapped to previous year.
	assert.Equal(t, int64(2025), newRec.Fields.IntAt("year"))
	assert.Equal(t, "planning", newRec.Fields.StringAt("stage"))
	assert.Equal(t, "active", newRec.Fields.StringAt("status"))
	assert.Equal(t, int64(0), newRec.Fields.IntAt("progress"))
	assert.Equal(t, "yearly", newRec.Fields.StringAt("recurrence"))
	assert.Equal(t, record.Decimal("1250.00"), newRec.Fields["fee"])
	assert.Equal(t, []string{"u1", "u2"}, newRec.Fields.StringsAt("users"))
	assert.Equal(t, "R24", newRec.Fields.StringAt("previous_year_review_link"))
	assert.Equal(t, "RID24", newRec.Fields.StringAt("previous_year_review_id"))
	assert.True(t, newRec.Fields.IsNull("review_link"))
	assert.True(t, newRec.Fields.IsNull("review_id"))

	// Source neutralized.
	got, err := w.f.Entities.Get(ctx, "engagement", source.ID)
	require.NoError(t, err)
	assert.Equal(t, "once", got.Fields.StringAt("recurrence"))

	// Children cloned: descriptive fields preserved, transients reset.
	sections, err := w.f.Entities.List(ctx, "section", record.Fields{
		"engagement_id": record.String(newRec.ID),
	})
	require.NoError(t, err)
	require.Len(t, sections, 1)
	assert.Equal(t, "Revenue", sections[0].Fields.StringAt("title"))
	assert.Equal(t, int64(3), sections[0].Fields.IntAt("ordering"))
	assert.NotEqual(t, section.ID, sections[0].ID)

	rfis, err := w.f.Entities.List(ctx, "rfi", record.Fields{
		"engagement_id": record.String(newRec.ID),
	})
	require.NoError(t, err)
	require.Len(t, rfis, 1)
	assert.Equal(t, "Bank statements", rfis[0].Fields.StringAt("title"))
	assert.Equal(t, "requested", rfis[0].Fields.StringAt("status"))
	assert.Equal(t, int64(0), rfis[0].Fields.IntAt("response_count"))
	assert.True(t, rfis[0].Fields.IsNull("deadline"))

	// Audit trail.
	entries, err := w.f.DB.ListRecreationLog(ctx, source.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, store.RecreationCompleted, entries[0].Status)
	assert.Equal(t, newRec.ID, entries[0].NewID)
}

func TestRecreate_SourceNoLongerEligibleAfterRun(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	source := w.engagement(t, nil)

	_, err := w.engine.Recreate(ctx, source.ID, schema.IntervalYearly, partner)
	require.NoError(t, err)

	// The guard write makes a repeat of the same source a no-op error.
	_, err = w.engine.Recreate(ctx, source.ID, schema.IntervalYearly, partner)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not eligible")
}

func TestRecreateDue_ScansOnlyMatchingRecurrence(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	w.engagement(t, record.Fields{"title": record.String("Yearly")})
	w.engagement(t, record.Fields{
		"title":      record.String("Monthly"),
		"recurrence": record.String("monthly"),
		"month":      record.Int(3),
	})
	w.engagement(t, record.Fields{
		"title":      record.String("OneOff"),
		"recurrence": record.String("once"),
	})
	w.engagement(t, record.Fields{
		"title":  record.String("Archived"),
		"status": record.String("archived"),
	})

	stats, err := w.engine.RecreateDue(ctx, schema.IntervalYearly, partner)
	require.NoError(t, err)
	assert.Equal(t, recreate.RunStats{Scanned: 1, Created: 1}, stats)

	all, err := w.f.Entities.List(ctx, "engagement", nil)
	require.NoError(t, err)
	assert.Len(t, all, 5, "exactly one clone was created")
}

func TestRecreate_MonthlyDecemberWrapsToJanuary(t *testing.T) {
	w := newWorld(t)

	source := w.engagement(t, record.Fields{
		"recurrence": record.String("monthly"),
		"year":       record.Int(2025),
		"month":      record.Int(12),
	})

	newRec, err := w.engine.Recreate(context.Background(), source.ID, schema.IntervalMonthly, partner)
	require.NoError(t, err)
	assert.Equal(t, int64(2026), newRec.Fields.IntAt("year"))
	assert.Equal(t, int64(1), newRec.Fields.IntAt("month"))
}

func TestRecreate_DuplicateActiveFailsClosed(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	source := w.engagement(t, nil) // yearly, 2024
	w.engagement(t, record.Fields{
		"title": record.String("Already there"),
		"year":  record.Int(2025),
	})

	_, err := w.engine.Recreate(ctx, source.ID, schema.IntervalYearly, partner)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	// The check runs before the guard write, so the source is untouched.
	got, err := w.f.Entities.Get(ctx, "engagement", source.ID)
	require.NoError(t, err)
	assert.Equal(t, "yearly", got.Fields.StringAt("recurrence"))

	entries, err := w.f.DB.ListRecreationLog(ctx, source.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, store.RecreationFailed, entries[0].Status)
	assert.Empty(t, entries[0].NewID)
}

func TestRecreate_AttachmentsOnlyWhenOptedIn(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	run := func(t *testing.T, withAttachments bool) int {
		source := w.engagement(t, record.Fields{
			"title":                     record.String("Audit"),
			"recreate_with_attachments": record.Bool(withAttachments),
		})
		w.f.MustCreate(t, "attachment", record.Fields{
			"engagement_id": record.String(source.ID),
			"name":          record.String("engagement-letter.pdf"),
		}, partner)

		newRec, err := w.engine.Recreate(ctx, source.ID, schema.IntervalYearly, partner)
		require.NoError(t, err)

		cloned, err := w.f.Entities.List(ctx, "attachment", record.Fields{
			"engagement_id": record.String(newRec.ID),
		})
		require.NoError(t, err)

		// Archive both so the next subtest's duplicate check stays clean.
		for _, id := range []string{source.ID, newRec.ID} {
			w.f.MustUpdate(t, "engagement", id, record.Fields{"status": record.String("archived")}, partner)
		}
		return len(cloned)
	}

	assert.Equal(t, 0, run(t, false), "attachments are skipped by default")
	assert.Equal(t, 1, run(t, true), "the opt-in flag clones attachments")
}

func TestRecreate_RollbackOnChildCloneFailure(t *testing.T) {
	f := testutil.NewFixture(t)
	client := f.MustCreate(t, "client", record.Fields{"name": record.String("Acme")}, partner)
	engine := recreate.NewEngine(f.Entities)
	ctx := context.Background()

	source := f.MustCreate(t, "engagement", record.Fields{
		"client_id":  record.String(client.ID),
		"title":      record.String("Audit"),
		"year":       record.Int(2024),
		"recurrence": record.String("yearly"),
	}, partner)
	f.MustCreate(t, "section", record.Fields{
		"engagement_id": record.String(source.ID),
		"title":         record.String("Revenue"),
	}, partner)

	// Veto any section create that does not target the original
	// engagement, so the clone's child creation fails mid-flight.
	f.Dispatcher.MustRegister(hooks.Hook{
		Name: "poison", Entity: "section", Phase: hooks.PhaseBefore, Action: hooks.ActionCreate,
		Before: func(_ context.Context, m *hooks.Mutation) hooks.Result {
			if m.Proposed.Fields.StringAt("engagement_id") != source.ID {
				return hooks.Reject("poisoned")
			}
			return hooks.Continue()
		},
	})

	_, err := engine.Recreate(ctx, source.ID, schema.IntervalYearly, partner)
	require.Error(t, err)

	// Compensating rollback: no partial clone survives and the source
	// recurrence is restored.
	all, err := f.Entities.List(ctx, "engagement", nil)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, source.ID, all[0].ID)
	assert.Equal(t, "yearly", all[0].Fields.StringAt("recurrence"))

	sections, err := f.Entities.List(ctx, "section", nil)
	require.NoError(t, err)
	assert.Len(t, sections, 1)

	entries, err := f.DB.ListRecreationLog(ctx, source.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, store.RecreationFailed, entries[0].Status)
}
