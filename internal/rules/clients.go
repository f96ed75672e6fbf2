package rules

import (
	"context"
	"errors"
	"fmt"

	"github.com/quarrylane/praxis/internal/hooks"
	"github.com/quarrylane/praxis/internal/record"
)

// clientDeactivationCascade runs after a client update that transitions
// status to inactive. For every engagement of that client it first sets
// recurrence to once (so the recreation engine never clones it again),
// and only then deletes engagements still in their earliest workflow
// stage with zero progress. The recurrence write must come first:
// deletion is irreversible, recurrence is not.
func clientDeactivationCascade(deps Deps) hooks.Hook {
	return hooks.Hook{
		Name:   "client-deactivation-cascade",
		Entity: EntityClient,
		Phase:  hooks.PhaseAfter,
		Action: hooks.ActionUpdate,
		After: func(ctx context.Context, m *hooks.Mutation) error {
			wasInactive := m.Existing.Fields.StringAt(fieldStatus) == statusInactive
			nowInactive := m.Committed.Fields.StringAt(fieldStatus) == statusInactive
			if wasInactive || !nowInactive {
				return nil
			}

			es := deps.Entities
			spec, err := es.Schemas().Get(EntityEngagement)
			if err != nil {
				return err
			}
			initialStage := spec.InitialStage()

			engagements, err := es.List(ctx, EntityEngagement, record.Fields{
				"client_id": record.String(m.Committed.ID),
			})
			if err != nil {
				return fmt.Errorf("list engagements of client %s: %w", m.Committed.ID, err)
			}

			var errs []error
			for _, e := range engagements {
				if e.Fields.StringAt(fieldRecurrence) != recurrenceOnce {
					_, err := es.Update(ctx, EntityEngagement, e.ID, record.Fields{
						fieldRecurrence: record.String(recurrenceOnce),
					}, m.Actor)
					if err != nil {
						// A failed recurrence write makes deletion unsafe
						// for this engagement. Skip it, keep cascading.
						errs = append(errs, fmt.Errorf("neutralize recurrence of %s: %w", e.ID, err))
						continue
					}
				}

				untouched := e.Fields.StringAt(spec.StageField) == initialStage &&
					e.Fields.IntAt("progress") == 0
				if !untouched {
					continue
				}
				if err := es.Remove(ctx, EntityEngagement, e.ID, m.Actor); err != nil {
					errs = append(errs, fmt.Errorf("remove untouched engagement %s: %w", e.ID, err))
					continue
				}
				deps.logger().Info("untouched engagement removed with deactivated client",
					"client", m.Committed.ID,
					"engagement", e.ID,
				)
			}
			return errors.Join(errs...)
		},
	}
}

// clientDeleteGuard vetoes deleting a client that still has
// engagements. Engagements reference their client rather than nesting
// under it, so the entity store's subtree delete does not cover them.
func clientDeleteGuard(deps Deps) hooks.Hook {
	return hooks.Hook{
		Name:   "client-delete-guard",
		Entity: EntityClient,
		Phase:  hooks.PhaseBefore,
		Action: hooks.ActionDelete,
		Before: func(ctx context.Context, m *hooks.Mutation) hooks.Result {
			engagements, err := deps.Entities.List(ctx, EntityEngagement, record.Fields{
				"client_id": record.String(m.Existing.ID),
			})
			if err != nil {
				// Fail closed: an unverifiable delete is a refused delete.
				return hooks.Reject(fmt.Sprintf("cannot verify engagements: %v", err))
			}
			if len(engagements) > 0 {
				return hooks.Reject(fmt.Sprintf("client has %d engagements", len(engagements)))
			}
			return hooks.Continue()
		},
	}
}
