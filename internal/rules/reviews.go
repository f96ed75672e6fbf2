package rules

import (
	"context"
	"errors"
	"fmt"

	"github.com/quarrylane/praxis/internal/hooks"
	"github.com/quarrylane/praxis/internal/notify"
)

// reviewCreatedNotification runs after a review is created and queues
// one notification per partner of the owning team. The broadcast is
// intentional: every partner of the team hears about a new review, not
// just the creator or an assignee.
func reviewCreatedNotification(deps Deps) hooks.Hook {
	return hooks.Hook{
		Name:   "review-created-notification",
		Entity: EntityReview,
		Phase:  hooks.PhaseAfter,
		Action: hooks.ActionCreate,
		After: func(ctx context.Context, m *hooks.Mutation) error {
			teamID := m.Committed.Fields.StringAt("team_id")
			team, err := deps.Entities.Get(ctx, EntityTeam, teamID)
			if err != nil {
				return fmt.Errorf("resolve team %s: %w", teamID, err)
			}
			if team == nil {
				return fmt.Errorf("review %s: team %s not found", m.Committed.ID, teamID)
			}

			subject := fmt.Sprintf("New %s for team %s",
				notify.DisplayName(EntityReview), team.Fields.StringAt("name"))
			body := fmt.Sprintf("A review was created for team %s: %s",
				team.Fields.StringAt("name"), m.Committed.Fields.StringAt("link"))

			var errs []error
			for _, partnerID := range team.Fields.StringsAt("partners") {
				err := deps.Queue.Enqueue(ctx, notify.Notification{
					Recipient: partnerID,
					Subject:   subject,
					Body:      body,
					Entity:    EntityReview,
					EntityID:  m.Committed.ID,
				})
				if err != nil {
					errs = append(errs, err)
				}
			}
			return errors.Join(errs...)
		},
	}
}

// collaboratorDiffNotification runs after a review update and notifies
// every user newly added to or newly absent from the collaborator list.
func collaboratorDiffNotification(deps Deps) hooks.Hook {
	return hooks.Hook{
		Name:   "collaborator-diff-notification",
		Entity: EntityReview,
		Phase:  hooks.PhaseAfter,
		Action: hooks.ActionUpdate,
		After: func(ctx context.Context, m *hooks.Mutation) error {
			prev := m.Existing.Fields.StringsAt("collaborators")
			next := m.Committed.Fields.StringsAt("collaborators")
			added, removed := diffStrings(prev, next)
			if len(added) == 0 && len(removed) == 0 {
				return nil
			}

			display := notify.DisplayName(EntityReview)
			link := m.Committed.Fields.StringAt("link")

			var errs []error
			enqueue := func(userID, subject, body string) {
				err := deps.Queue.Enqueue(ctx, notify.Notification{
					Recipient: userID,
					Subject:   subject,
					Body:      body,
					Entity:    EntityReview,
					EntityID:  m.Committed.ID,
				})
				if err != nil {
					errs = append(errs, err)
				}
			}

			for _, userID := range added {
				enqueue(userID,
					fmt.Sprintf("Added as collaborator on %s", display),
					fmt.Sprintf("You were added as a collaborator: %s", link))
			}
			for _, userID := range removed {
				enqueue(userID,
					fmt.Sprintf("Removed as collaborator on %s", display),
					fmt.Sprintf("You were removed as a collaborator: %s", link))
			}
			return errors.Join(errs...)
		},
	}
}
