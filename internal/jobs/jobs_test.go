package jobs_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarrylane/praxis/internal/jobs"
	"github.com/quarrylane/praxis/internal/notify"
	"github.com/quarrylane/praxis/internal/record"
	"github.com/quarrylane/praxis/internal/recreate"
	"github.com/quarrylane/praxis/internal/sched"
	"github.com/quarrylane/praxis/internal/store"
	"github.com/quarrylane/praxis/internal/testutil"
)

var partner = record.Actor{ID: "p1", Role: record.RolePartner}

type harness struct {
	f         *testutil.Fixture
	scheduler *sched.Scheduler
	sender    *captureSender
}

type captureSender struct {
	sent []notify.Message
}

func (s *captureSender) Send(_ context.Context, msg notify.Message) error {
	s.sent = append(s.sent, msg)
	return nil
}

func newHarness(t *testing.T, file sched.JobsFile) *harness {
	t.Helper()
	f := testutil.NewFixture(t)
	h := &harness{
		f:         f,
		scheduler: sched.NewScheduler(sched.WithNow(f.Clock.Now)),
		sender:    &captureSender{},
	}
	require.NoError(t, jobs.RegisterAll(h.scheduler, jobs.Deps{
		Entities: f.Entities,
		Engine:   recreate.NewEngine(f.Entities),
		Queue:    f.Queue,
		Sender:   h.sender,
	}, file))
	return h
}

func TestRegisterAll_DefaultsAndOverrides(t *testing.T) {
	h := newHarness(t, sched.JobsFile{
		Jobs: map[string]sched.JobConfig{
			jobs.JobRFIReminders: {
				Schedule: "30 7 * * *",
				Config:   map[string]any{"days_before_expiry": 3},
			},
		},
	})

	byName := map[string]sched.JobDefinition{}
	for _, def := range h.scheduler.Jobs() {
		byName[def.Name] = def
	}
	require.Len(t, byName, 4)

	assert.Equal(t, "0 2 1 * *", byName[jobs.JobRecreateMonthly].Schedule)
	assert.Equal(t, "0 3 1 1 *", byName[jobs.JobRecreateYearly].Schedule)
	assert.Equal(t, "*/5 * * * *", byName[jobs.JobNotificationFlush].Schedule)

	overridden := byName[jobs.JobRFIReminders]
	assert.Equal(t, "30 7 * * *", overridden.Schedule)
	assert.Equal(t, map[string]any{"days_before_expiry": 3}, overridden.Config)
	assert.NotEmpty(t, overridden.Description, "default description survives a config-only override")
}

func TestRecreateYearlyJob(t *testing.T) {
	h := newHarness(t, sched.JobsFile{})
	ctx := context.Background()

	client := h.f.MustCreate(t, "client", record.Fields{"name": record.String("Acme")}, partner)
	h.f.MustCreate(t, "engagement", record.Fields{
		"client_id":  record.String(client.ID),
		"title":      record.String("Audit"),
		"year":       record.Int(2024),
		"recurrence": record.String("yearly"),
	}, partner)

	result, err := h.scheduler.RunJobByName(ctx, jobs.JobRecreateYearly)
	require.NoError(t, err)
	require.NoError(t, result.Err)

	all, err := h.f.Entities.List(ctx, "engagement", nil)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, int64(2025), all[1].Fields.IntAt("year"))
}

func TestRFIRemindersJob(t *testing.T) {
	h := newHarness(t, sched.JobsFile{})
	ctx := context.Background()

	client := h.f.MustCreate(t, "client", record.Fields{"name": record.String("Acme")}, partner)
	lead := h.f.MustCreate(t, "user", record.Fields{
		"name": record.String("Pat"), "email": record.String("pat@firm.test"), "role": record.String("partner"),
	}, partner)
	eng := h.f.MustCreate(t, "engagement", record.Fields{
		"client_id":  record.String(client.ID),
		"partner_id": record.String(lead.ID),
		"title":      record.String("Audit"),
		"year":       record.Int(2025),
	}, partner)

	now := h.f.Clock.Now()
	mkRFI := func(title string, extra record.Fields) {
		fields := record.Fields{
			"engagement_id": record.String(eng.ID),
			"title":         record.String(title),
		}
		for k, v := range extra {
			fields[k] = v
		}
		h.f.MustCreate(t, "rfi", fields, partner)
	}

	mkRFI("due soon", record.Fields{
		"deadline": record.Int(now.Add(3 * 24 * time.Hour).Unix()),
	})
	mkRFI("due far out", record.Fields{
		"deadline": record.Int(now.Add(30 * 24 * time.Hour).Unix()),
	})
	mkRFI("already overdue", record.Fields{
		"deadline": record.Int(now.Add(-24 * time.Hour).Unix()),
	})
	mkRFI("already completed", record.Fields{
		"deadline": record.Int(now.Add(2 * 24 * time.Hour).Unix()),
		"status":   record.String("completed"),
	})
	mkRFI("no deadline", nil)

	result, err := h.scheduler.RunJobByName(ctx, jobs.JobRFIReminders)
	require.NoError(t, err)
	require.NoError(t, result.Err)

	pending, err := h.f.DB.ListNotificationsByStatus(ctx, store.NotificationPending)
	require.NoError(t, err)
	require.Len(t, pending, 1, "only the RFI inside the window gets a reminder")
	assert.Equal(t, lead.ID, pending[0].Recipient)
	assert.Contains(t, pending[0].Subject, "due soon")
	assert.Contains(t, pending[0].Body, "Audit")
}

func TestNotificationFlushJob(t *testing.T) {
	h := newHarness(t, sched.JobsFile{})
	ctx := context.Background()

	require.NoError(t, h.f.Queue.Enqueue(ctx, notify.Notification{
		Recipient: "p1", Subject: "hello", Body: "body",
	}))

	result, err := h.scheduler.RunJobByName(ctx, jobs.JobNotificationFlush)
	require.NoError(t, err)
	require.NoError(t, result.Err)
	require.Len(t, h.sender.sent, 1)
	assert.Equal(t, "p1", h.sender.sent[0].To)

	sent, err := h.f.DB.ListNotificationsByStatus(ctx, store.NotificationSent)
	require.NoError(t, err)
	assert.Len(t, sent, 1)
}
