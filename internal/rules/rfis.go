package rules

import (
	"context"

	"github.com/quarrylane/praxis/internal/hooks"
	"github.com/quarrylane/praxis/internal/record"
)

// rfiCompletionGuard is a policy gate on RFI updates: a clerk may only
// mark an RFI completed if it has at least one attached file or one
// recorded response. Managers and partners may force completion.
//
// The counters are read from the persisted record, not the patch, and
// are a snapshot valid only within this synchronous call.
func rfiCompletionGuard(deps Deps) hooks.Hook {
	return hooks.Hook{
		Name:   "rfi-completion-guard",
		Entity: EntityRFI,
		Phase:  hooks.PhaseBefore,
		Action: hooks.ActionUpdate,
		Before: func(_ context.Context, m *hooks.Mutation) hooks.Result {
			requested, present := m.Patch[fieldStatus]
			if !present || !record.Equal(requested, record.String(statusCompleted)) {
				return hooks.Continue()
			}
			if m.Actor.Role.AtLeast(record.RoleManager) {
				return hooks.Continue()
			}

			files := m.Existing.Fields.IntAt("file_count")
			responses := m.Existing.Fields.IntAt("response_count")
			if files > 0 || responses > 0 {
				return hooks.Continue()
			}
			return hooks.Reject("an RFI needs at least one file or response before completion")
		},
	}
}
