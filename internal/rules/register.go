// Package rules holds the concrete business trigger rules registered
// into the hook dispatcher: cascading client deactivation, team
// membership propagation, review notifications, and the RFI completion
// policy gate.
//
// Rules close over their dependencies; there is no global registry.
package rules

import (
	"log/slog"

	"github.com/quarrylane/praxis/internal/entity"
	"github.com/quarrylane/praxis/internal/hooks"
	"github.com/quarrylane/praxis/internal/notify"
)

// Entity names the rules are written against. The schema document must
// declare these; startup validation in cli wiring checks they exist.
const (
	EntityClient     = "client"
	EntityTeam       = "team"
	EntityUser       = "user"
	EntityEngagement = "engagement"
	EntityReview     = "review"
	EntityRFI        = "rfi"
)

const (
	fieldStatus     = "status"
	fieldRecurrence = "recurrence"

	statusActive    = "active"
	statusInactive  = "inactive"
	statusCompleted = "completed"

	recurrenceOnce = "once"
)

// Deps are the collaborators every rule may need.
type Deps struct {
	Entities *entity.Store
	Queue    *notify.Queue
	Logger   *slog.Logger
}

func (d Deps) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// RegisterAll wires every trigger rule into the dispatcher. Panics on
// registration errors; a malformed rule set is a programmer error
// caught at startup.
func RegisterAll(dispatcher *hooks.Dispatcher, deps Deps) {
	dispatcher.MustRegister(
		clientDeactivationCascade(deps),
		clientDeleteGuard(deps),
		teamMembershipPropagation(deps),
		reviewCreatedNotification(deps),
		collaboratorDiffNotification(deps),
		rfiCompletionGuard(deps),
	)
}

// diffStrings splits next against prev into newly present and newly
// absent elements, preserving order of appearance.
func diffStrings(prev, next []string) (added, removed []string) {
	prevSet := make(map[string]bool, len(prev))
	for _, s := range prev {
		prevSet[s] = true
	}
	nextSet := make(map[string]bool, len(next))
	for _, s := range next {
		nextSet[s] = true
	}

	for _, s := range next {
		if !prevSet[s] {
			added = append(added, s)
		}
	}
	for _, s := range prev {
		if !nextSet[s] {
			removed = append(removed, s)
		}
	}
	return added, removed
}
