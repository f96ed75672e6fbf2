package rules_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarrylane/praxis/internal/hooks"
	"github.com/quarrylane/praxis/internal/record"
	"github.com/quarrylane/praxis/internal/rules"
	"github.com/quarrylane/praxis/internal/store"
	"github.com/quarrylane/praxis/internal/testutil"
)

var (
	partner = record.Actor{ID: "p1", Role: record.RolePartner}
	clerk   = record.Actor{ID: "c1", Role: record.RoleClerk}
)

func newRulesFixture(t *testing.T) *testutil.Fixture {
	t.Helper()
	f := testutil.NewFixture(t)
	rules.RegisterAll(f.Dispatcher, rules.Deps{Entities: f.Entities, Queue: f.Queue})
	return f
}

func pendingNotifications(t *testing.T, f *testutil.Fixture) []store.Notification {
	t.Helper()
	pending, err := f.DB.ListNotificationsByStatus(context.Background(), store.NotificationPending)
	require.NoError(t, err)
	return pending
}

func TestClientDeactivationCascade(t *testing.T) {
	f := newRulesFixture(t)
	ctx := context.Background()

	client := f.MustCreate(t, "client", record.Fields{"name": record.String("Acme")}, partner)

	// E1: earliest stage, zero progress. E2: underway, yearly recurrence.
	e1 := f.MustCreate(t, "engagement", record.Fields{
		"client_id": record.String(client.ID),
		"title":     record.String("E1"),
		"year":      record.Int(2025),
	}, partner)
	e2 := f.MustCreate(t, "engagement", record.Fields{
		"client_id":  record.String(client.ID),
		"title":      record.String("E2"),
		"year":       record.Int(2025),
		"stage":      record.String("fieldwork"),
		"progress":   record.Int(50),
		"recurrence": record.String("yearly"),
	}, partner)

	f.MustUpdate(t, "client", client.ID, record.Fields{"status": record.String("inactive")}, partner)

	gone, err := f.Entities.Get(ctx, "engagement", e1.ID)
	require.NoError(t, err)
	assert.Nil(t, gone, "untouched engagement is deleted")

	survivor, err := f.Entities.Get(ctx, "engagement", e2.ID)
	require.NoError(t, err)
	require.NotNil(t, survivor)
	assert.Equal(t, "once", survivor.Fields.StringAt("recurrence"), "surviving engagement stops recurring")
	assert.Equal(t, int64(50), survivor.Fields.IntAt("progress"))
}

func TestClientDeactivationCascade_OnlyOnTransitionToInactive(t *testing.T) {
	f := newRulesFixture(t)

	client := f.MustCreate(t, "client", record.Fields{
		"name":   record.String("Acme"),
		"status": record.String("inactive"),
	}, partner)
	eng := f.MustCreate(t, "engagement", record.Fields{
		"client_id":  record.String(client.ID),
		"title":      record.String("E"),
		"year":       record.Int(2025),
		"recurrence": record.String("yearly"),
	}, partner)

	// Already inactive: a rename must not re-run the cascade.
	f.MustUpdate(t, "client", client.ID, record.Fields{"name": record.String("Acme Ltd")}, partner)

	still, err := f.Entities.Get(context.Background(), "engagement", eng.ID)
	require.NoError(t, err)
	require.NotNil(t, still)
	assert.Equal(t, "yearly", still.Fields.StringAt("recurrence"))
}

func TestClientDeleteGuard(t *testing.T) {
	f := newRulesFixture(t)
	ctx := context.Background()

	client := f.MustCreate(t, "client", record.Fields{"name": record.String("Acme")}, partner)
	eng := f.MustCreate(t, "engagement", record.Fields{
		"client_id": record.String(client.ID),
		"title":     record.String("E"),
		"year":      record.Int(2025),
	}, partner)

	err := f.Entities.Remove(ctx, "client", client.ID, partner)
	var rejection *hooks.Rejection
	require.ErrorAs(t, err, &rejection)
	assert.Equal(t, "client-delete-guard", rejection.Hook)

	require.NoError(t, f.Entities.Remove(ctx, "engagement", eng.ID, partner))
	require.NoError(t, f.Entities.Remove(ctx, "client", client.ID, partner))
}

func TestTeamMembershipPropagation(t *testing.T) {
	f := newRulesFixture(t)
	ctx := context.Background()

	client := f.MustCreate(t, "client", record.Fields{"name": record.String("Acme")}, partner)
	team := f.MustCreate(t, "team", record.Fields{
		"name":     record.String("Audit North"),
		"members":  record.StringList("u1", "u2", "u3"),
		"partners": record.StringList("u3"),
	}, partner)

	active := f.MustCreate(t, "engagement", record.Fields{
		"client_id": record.String(client.ID),
		"team_id":   record.String(team.ID),
		"title":     record.String("Active"),
		"year":      record.Int(2025),
		"users":     record.StringList("u1", "u2", "u3"),
	}, partner)
	archived := f.MustCreate(t, "engagement", record.Fields{
		"client_id": record.String(client.ID),
		"team_id":   record.String(team.ID),
		"title":     record.String("Archived"),
		"year":      record.Int(2024),
		"status":    record.String("archived"),
		"users":     record.StringList("u1"),
	}, partner)

	// u1 and u3 leave; u3 is a partner and must stay on engagements.
	f.MustUpdate(t, "team", team.ID, record.Fields{
		"members": record.StringList("u2"),
	}, partner)

	got, err := f.Entities.Get(ctx, "engagement", active.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"u2", "u3"}, got.Fields.StringsAt("users"))

	untouched, err := f.Entities.Get(ctx, "engagement", archived.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, untouched.Fields.StringsAt("users"), "archived engagements are left alone")
}

func TestReviewCreatedNotifiesEveryPartner(t *testing.T) {
	f := newRulesFixture(t)

	team := f.MustCreate(t, "team", record.Fields{
		"name":     record.String("Audit North"),
		"members":  record.StringList("u1", "p1", "p2"),
		"partners": record.StringList("p1", "p2"),
	}, partner)

	review := f.MustCreate(t, "review", record.Fields{
		"team_id": record.String(team.ID),
		"link":    record.String("https://reviews/r1"),
	}, partner)

	pending := pendingNotifications(t, f)
	require.Len(t, pending, 2, "one notification per partner, nobody else")
	assert.Equal(t, "p1", pending[0].Recipient)
	assert.Equal(t, "p2", pending[1].Recipient)
	assert.Equal(t, "review", pending[0].Entity)
	assert.Equal(t, review.ID, pending[0].EntityID)
	assert.Contains(t, pending[0].Subject, "Review")
}

func TestCollaboratorDiffNotifications(t *testing.T) {
	f := newRulesFixture(t)

	team := f.MustCreate(t, "team", record.Fields{
		"name": record.String("Audit North"),
	}, partner)
	review := f.MustCreate(t, "review", record.Fields{
		"team_id":       record.String(team.ID),
		"link":          record.String("https://reviews/r1"),
		"collaborators": record.StringList("u1", "u2"),
	}, partner)

	before := len(pendingNotifications(t, f))

	f.MustUpdate(t, "review", review.ID, record.Fields{
		"collaborators": record.StringList("u2", "u3"),
	}, partner)

	pending := pendingNotifications(t, f)[before:]
	require.Len(t, pending, 2)
	assert.Equal(t, "u3", pending[0].Recipient)
	assert.Contains(t, pending[0].Subject, "Added")
	assert.Equal(t, "u1", pending[1].Recipient)
	assert.Contains(t, pending[1].Subject, "Removed")
}

func TestRFICompletionGuard(t *testing.T) {
	f := newRulesFixture(t)
	ctx := context.Background()

	client := f.MustCreate(t, "client", record.Fields{"name": record.String("Acme")}, partner)
	eng := f.MustCreate(t, "engagement", record.Fields{
		"client_id": record.String(client.ID),
		"title":     record.String("Audit"),
		"year":      record.Int(2025),
	}, partner)
	rfi := f.MustCreate(t, "rfi", record.Fields{
		"engagement_id": record.String(eng.ID),
		"title":         record.String("Bank statements"),
	}, partner)

	// Clerk, no files, no responses: rejected.
	_, err := f.Entities.Update(ctx, "rfi", rfi.ID, record.Fields{
		"status": record.String("completed"),
	}, clerk)
	var rejection *hooks.Rejection
	require.ErrorAs(t, err, &rejection)
	assert.Equal(t, "rfi-completion-guard", rejection.Hook)

	// Clerk with a recorded response: allowed.
	f.MustUpdate(t, "rfi", rfi.ID, record.Fields{"response_count": record.Int(1)}, clerk)
	updated := f.MustUpdate(t, "rfi", rfi.ID, record.Fields{"status": record.String("completed")}, clerk)
	assert.Equal(t, "completed", updated.Fields.StringAt("status"))
}

func TestRFICompletionGuard_ManagerMayForce(t *testing.T) {
	f := newRulesFixture(t)

	client := f.MustCreate(t, "client", record.Fields{"name": record.String("Acme")}, partner)
	eng := f.MustCreate(t, "engagement", record.Fields{
		"client_id": record.String(client.ID),
		"title":     record.String("Audit"),
		"year":      record.Int(2025),
	}, partner)
	rfi := f.MustCreate(t, "rfi", record.Fields{
		"engagement_id": record.String(eng.ID),
		"title":         record.String("Bank statements"),
	}, partner)

	manager := record.Actor{ID: "m1", Role: record.RoleManager}
	updated := f.MustUpdate(t, "rfi", rfi.ID, record.Fields{
		"status": record.String("completed"),
	}, manager)
	assert.Equal(t, "completed", updated.Fields.StringAt("status"))
}
