package rules

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/quarrylane/praxis/internal/hooks"
	"github.com/quarrylane/praxis/internal/record"
)

// teamMembershipPropagation runs after a team update. Every user
// removed from the team's member list is stripped from the users list
// of that team's active engagements. Users still on the team's partner
// list are exempt: partner assignment is team-level and authoritative,
// this rule never second-guesses it.
func teamMembershipPropagation(deps Deps) hooks.Hook {
	return hooks.Hook{
		Name:   "team-membership-propagation",
		Entity: EntityTeam,
		Phase:  hooks.PhaseAfter,
		Action: hooks.ActionUpdate,
		After: func(ctx context.Context, m *hooks.Mutation) error {
			prev := m.Existing.Fields.StringsAt("members")
			next := m.Committed.Fields.StringsAt("members")
			_, removed := diffStrings(prev, next)
			if len(removed) == 0 {
				return nil
			}

			partners := m.Committed.Fields.StringsAt("partners")
			strip := make(map[string]bool, len(removed))
			for _, userID := range removed {
				if !slices.Contains(partners, userID) {
					strip[userID] = true
				}
			}
			if len(strip) == 0 {
				return nil
			}

			es := deps.Entities
			engagements, err := es.List(ctx, EntityEngagement, record.Fields{
				"team_id":   record.String(m.Committed.ID),
				fieldStatus: record.String(statusActive),
			})
			if err != nil {
				return fmt.Errorf("list active engagements of team %s: %w", m.Committed.ID, err)
			}

			var errs []error
			for _, e := range engagements {
				users := e.Fields.StringsAt("users")
				kept := make([]string, 0, len(users))
				for _, userID := range users {
					if !strip[userID] {
						kept = append(kept, userID)
					}
				}
				if len(kept) == len(users) {
					continue
				}

				_, err := es.Update(ctx, EntityEngagement, e.ID, record.Fields{
					"users": record.StringList(kept...),
				}, m.Actor)
				if err != nil {
					errs = append(errs, fmt.Errorf("strip users from engagement %s: %w", e.ID, err))
					continue
				}
				deps.logger().Info("removed team members stripped from engagement",
					"team", m.Committed.ID,
					"engagement", e.ID,
					"stripped", len(users)-len(kept),
				)
			}
			return errors.Join(errs...)
		},
	}
}
