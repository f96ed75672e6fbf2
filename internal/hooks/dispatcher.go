// Package hooks implements the ordered callback registry invoked
// around every entity store mutation.
//
// The phase asymmetry is the central design contract:
//   - before hooks run synchronously with the candidate state and may
//     abort or rewrite the mutation; they are atomic with the write.
//   - after hooks observe the committed record; their failures are
//     logged and counted but never roll back the primary mutation.
//
// Side effects that must be atomic with the write belong in before;
// everything else (notifications, cascades onto other entities)
// belongs in after.
package hooks

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/quarrylane/praxis/internal/metrics"
	"github.com/quarrylane/praxis/internal/record"
)

// Phase selects which side of the mutation a hook observes.
type Phase int

const (
	PhaseBefore Phase = iota + 1
	PhaseAfter
)

func (p Phase) String() string {
	switch p {
	case PhaseBefore:
		return "before"
	case PhaseAfter:
		return "after"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Action is the mutation kind a hook is registered for.
type Action int

const (
	ActionCreate Action = iota + 1
	ActionUpdate
	ActionDelete
)

func (a Action) String() string {
	switch a {
	case ActionCreate:
		return "create"
	case ActionUpdate:
		return "update"
	case ActionDelete:
		return "delete"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Mutation carries the state visible to hooks for one entity store
// mutation. Which pointers are set depends on phase and action:
//
//	before create: Proposed
//	before update: Existing, Proposed, Patch
//	before delete: Existing
//	after  any:    Existing (updates/deletes), Committed (creates/updates)
type Mutation struct {
	Entity string
	Action Action
	Actor  record.Actor

	// Existing is the record as currently persisted. Nil on create.
	Existing *record.Record

	// Proposed is the candidate state (patch already merged on update).
	// Before hooks may inspect it; rewrites are applied through Result,
	// never by mutating Proposed directly. Nil on delete.
	Proposed *record.Record

	// Patch is the raw update patch as submitted by the caller.
	// Nil except on update.
	Patch record.Fields

	// Committed is the persisted result, set only for after hooks.
	// Nil on delete.
	Committed *record.Record
}

type resultKind int

const (
	resultContinue resultKind = iota
	resultReject
	resultRewrite
)

// Result is the structured outcome of a before hook. Aborts and
// rewrites are distinguishable from normal completion by construction,
// not by convention.
type Result struct {
	kind   resultKind
	reason string
	patch  record.Fields
}

// Continue lets the mutation proceed unchanged.
func Continue() Result {
	return Result{kind: resultContinue}
}

// Reject aborts the mutation with a human-readable reason.
// Remaining before hooks do not run.
func Reject(reason string) Result {
	return Result{kind: resultReject, reason: reason}
}

// Rewrite applies patch on top of the proposed fields and continues
// with the remaining before hooks.
func Rewrite(patch record.Fields) Result {
	return Result{kind: resultRewrite, patch: patch}
}

// BeforeFunc is a before-phase handler.
type BeforeFunc func(ctx context.Context, m *Mutation) Result

// AfterFunc is an after-phase handler. Errors are logged and counted;
// they never propagate to the mutating caller.
type AfterFunc func(ctx context.Context, m *Mutation) error

// Hook is one registration. Exactly one of Before/After must be set,
// matching Phase.
type Hook struct {
	Name     string
	Entity   string
	Phase    Phase
	Action   Action
	Priority int

	Before BeforeFunc
	After  AfterFunc
}

// Rejection is the error returned when a before hook vetoes a
// mutation. It is a policy outcome, not a malfunction: the record was
// well-formed but the mutation is not allowed.
type Rejection struct {
	Hook   string
	Entity string
	Reason string
}

func (e *Rejection) Error() string {
	return fmt.Sprintf("%s mutation rejected by %s: %s", e.Entity, e.Hook, e.Reason)
}

// DefaultMaxCascadeDepth bounds after-hook recursion. After hooks may
// perform further entity store mutations, which fire more after hooks;
// a cycle between rules would otherwise recurse forever.
const DefaultMaxCascadeDepth = 8

// Dispatcher is the explicit hook registry, constructed at startup and
// handed to the entity store. There is no module-level registry: tests
// build isolated dispatchers.
//
// Not safe for concurrent registration; registration happens once at
// startup, dispatch happens on the single writer.
type Dispatcher struct {
	hooks   []registered
	nextSeq int

	depth    int
	maxDepth int

	logger  *slog.Logger
	metrics *metrics.Collector
}

type registered struct {
	Hook
	seq int // registration order, tiebreaker for equal priority
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithMaxCascadeDepth overrides the after-hook recursion bound.
func WithMaxCascadeDepth(depth int) Option {
	return func(d *Dispatcher) { d.maxDepth = depth }
}

// WithMetrics attaches a metrics collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(d *Dispatcher) { d.metrics = c }
}

// WithLogger overrides the default slog logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		maxDepth: DefaultMaxCascadeDepth,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Register adds a hook. Hooks for the same (entity, phase, action) run
// in priority order (ascending); equal priorities preserve registration
// order.
func (d *Dispatcher) Register(h Hook) error {
	if h.Name == "" {
		return fmt.Errorf("hook name is required")
	}
	if h.Entity == "" {
		return fmt.Errorf("hook %s: entity is required", h.Name)
	}
	switch h.Phase {
	case PhaseBefore:
		if h.Before == nil || h.After != nil {
			return fmt.Errorf("hook %s: before-phase hook must set Before only", h.Name)
		}
	case PhaseAfter:
		if h.After == nil || h.Before != nil {
			return fmt.Errorf("hook %s: after-phase hook must set After only", h.Name)
		}
	default:
		return fmt.Errorf("hook %s: invalid phase", h.Name)
	}
	switch h.Action {
	case ActionCreate, ActionUpdate, ActionDelete:
	default:
		return fmt.Errorf("hook %s: invalid action", h.Name)
	}

	d.hooks = append(d.hooks, registered{Hook: h, seq: d.nextSeq})
	d.nextSeq++
	return nil
}

// MustRegister registers hooks and panics on registration errors.
// Registration errors are programmer errors caught at startup.
func (d *Dispatcher) MustRegister(hs ...Hook) {
	for _, h := range hs {
		if err := d.Register(h); err != nil {
			panic(err)
		}
	}
}

// hooksFor returns matching hooks sorted by (priority, registration).
func (d *Dispatcher) hooksFor(entity string, phase Phase, action Action) []registered {
	var matched []registered
	for _, h := range d.hooks {
		if h.Entity == entity && h.Phase == phase && h.Action == action {
			matched = append(matched, h)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].Priority != matched[j].Priority {
			return matched[i].Priority < matched[j].Priority
		}
		return matched[i].seq < matched[j].seq
	})
	return matched
}

// RunBefore invokes the matching before hooks in order.
//
// A Reject result short-circuits the remaining hooks and returns a
// *Rejection; the caller must abort the mutation. Rewrite results are
// folded into m.Proposed.Fields before the next hook runs, so later
// hooks see earlier rewrites.
func (d *Dispatcher) RunBefore(ctx context.Context, m *Mutation) error {
	for _, h := range d.hooksFor(m.Entity, PhaseBefore, m.Action) {
		result := h.Before(ctx, m)
		switch result.kind {
		case resultContinue:

		case resultReject:
			d.logger.Info("mutation rejected by hook",
				"hook", h.Name,
				"entity", m.Entity,
				"action", m.Action.String(),
				"actor", m.Actor.ID,
				"reason", result.reason,
			)
			d.metrics.RecordHookRejection(m.Entity, h.Name)
			return &Rejection{Hook: h.Name, Entity: m.Entity, Reason: result.reason}

		case resultRewrite:
			if m.Proposed == nil {
				return fmt.Errorf("hook %s: rewrite on %s mutation without proposed state", h.Name, m.Action)
			}
			m.Proposed.Fields = m.Proposed.Fields.Merge(result.patch)
			d.logger.Debug("mutation rewritten by hook",
				"hook", h.Name,
				"entity", m.Entity,
				"action", m.Action.String(),
				"keys", len(result.patch),
			)
		}
	}
	return nil
}

// RunAfter invokes the matching after hooks in order, once the
// mutation is committed.
//
// ERROR HANDLING: a failing or panicking after hook is logged with
// full mutation context and does NOT undo the committed mutation or
// stop later hooks. After-effects are best-effort.
//
// Cascade depth is bounded: after hooks that mutate other entities
// re-enter this method, and past maxDepth the nested hooks are skipped
// and counted as a cascade failure.
func (d *Dispatcher) RunAfter(ctx context.Context, m *Mutation) {
	if d.depth >= d.maxDepth {
		d.logger.Error("cascade depth exceeded, skipping after hooks",
			"entity", m.Entity,
			"action", m.Action.String(),
			"depth", d.depth,
			"limit", d.maxDepth,
		)
		d.metrics.RecordCascadeFailure(m.Entity, "cascade-depth")
		return
	}
	d.depth++
	defer func() { d.depth-- }()

	for _, h := range d.hooksFor(m.Entity, PhaseAfter, m.Action) {
		if err := d.runAfterHook(ctx, h, m); err != nil {
			d.logger.Error("after hook failed",
				"hook", h.Name,
				"entity", m.Entity,
				"action", m.Action.String(),
				"actor", m.Actor.ID,
				"error", err,
			)
			d.metrics.RecordCascadeFailure(m.Entity, h.Name)
		}
	}
}

func (d *Dispatcher) runAfterHook(ctx context.Context, h registered, m *Mutation) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h.After(ctx, m)
}

// Hooks returns the number of registered hooks. Used for diagnostics.
func (d *Dispatcher) Hooks() int {
	return len(d.hooks)
}
