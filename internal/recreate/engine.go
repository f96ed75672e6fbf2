// Package recreate implements periodic recreation of recurring
// engagements: cloning an engagement (and its child tree) into the
// next period while neutralizing the source's recurrence.
//
// Recreation is the one operation spanning many entity store calls
// that must behave transactionally. There is no multi-row transaction
// primitive underneath, so the engine implements compensating
// rollback: on any failure it deletes what it created and restores the
// source's recurrence, then records the failed attempt in the
// append-only recreation log.
package recreate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/quarrylane/praxis/internal/entity"
	"github.com/quarrylane/praxis/internal/metrics"
	"github.com/quarrylane/praxis/internal/record"
	"github.com/quarrylane/praxis/internal/schema"
	"github.com/quarrylane/praxis/internal/store"
)

// Engagement field keys the engine reads and rewrites. The schema
// document must declare them on the engagement entity; wiring
// validates that at startup.
const (
	entityEngagement = "engagement"
	entityAttachment = "attachment"

	fieldStatus     = "status"
	fieldRecurrence = "recurrence"
	fieldYear       = "year"
	fieldMonth      = "month"
	fieldProgress   = "progress"

	fieldReviewLink     = "review_link"
	fieldReviewID       = "review_id"
	fieldPrevReviewLink = "previous_year_review_link"
	fieldPrevReviewID   = "previous_year_review_id"

	statusActive   = "active"
	statusArchived = "archived"
)

// Engine drives engagement recreation over the entity store.
type Engine struct {
	entities *entity.Store
	guard    *LineageGuard
	logger   *slog.Logger
	metrics  *metrics.Collector
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger overrides the default slog logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics attaches a metrics collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(e *Engine) { e.metrics = c }
}

// NewEngine creates an engine over the given entity store.
func NewEngine(entities *entity.Store, opts ...Option) *Engine {
	e := &Engine{
		entities: entities,
		guard:    NewLineageGuard(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RunStats summarizes one RecreateDue pass.
type RunStats struct {
	Scanned int
	Created int
	Failed  int
}

// RecreateDue scans all engagements and recreates those eligible for
// the given interval. One engagement's failure is logged and does not
// abort the run; the stats carry the aggregate outcome.
func (e *Engine) RecreateDue(ctx context.Context, interval schema.Interval, actor record.Actor) (RunStats, error) {
	e.guard.Reset()

	engagements, err := e.entities.List(ctx, entityEngagement, nil)
	if err != nil {
		return RunStats{}, fmt.Errorf("scan engagements: %w", err)
	}

	var stats RunStats
	for _, source := range engagements {
		if !eligible(source, interval) {
			continue
		}
		stats.Scanned++

		newRec, err := e.Recreate(ctx, source.ID, interval, actor)
		if err != nil {
			stats.Failed++
			e.logger.Error("recreation failed",
				"source", source.ID,
				"interval", string(interval),
				"error", err,
			)
			continue
		}
		stats.Created++
		e.logger.Info("engagement recreated",
			"source", source.ID,
			"new", newRec.ID,
			"interval", string(interval),
		)
	}
	return stats, nil
}

// eligible reports whether an engagement should be recreated for the
// interval: it must be active and its recurrence must match. A source
// whose recurrence was already neutralized to once never matches, which
// is what makes a crashed or duplicated run idempotent.
func eligible(source record.Record, interval schema.Interval) bool {
	return source.Fields.StringAt(fieldStatus) == statusActive &&
		source.Fields.StringAt(fieldRecurrence) == string(interval)
}

// Recreate clones one engagement into the next period.
//
// Step order is the correctness core:
//  1. eligibility re-check against the persisted record,
//  2. duplicate-active check for the target period (fail closed),
//  3. guard write: source recurrence set to once BEFORE cloning,
//  4. clone the engagement, then its child tree,
//  5. on failure, compensating rollback + failed log entry;
//     on success, completed log entry.
func (e *Engine) Recreate(ctx context.Context, sourceID string, interval schema.Interval, actor record.Actor) (record.Record, error) {
	if e.guard.Seen(sourceID) {
		return record.Record{}, fmt.Errorf("engagement %s already processed in this run", sourceID)
	}
	e.guard.Mark(sourceID)

	es := e.entities
	spec, err := es.Schemas().Get(entityEngagement)
	if err != nil {
		return record.Record{}, err
	}
	if !spec.AllowsInterval(interval) {
		return record.Record{}, fmt.Errorf("engagement schema does not allow %s recreation", interval)
	}

	sourcePtr, err := es.Get(ctx, entityEngagement, sourceID)
	if err != nil {
		return record.Record{}, err
	}
	if sourcePtr == nil {
		return record.Record{}, fmt.Errorf("engagement %s not found", sourceID)
	}
	source := *sourcePtr
	if !eligible(source, interval) {
		return record.Record{}, fmt.Errorf("engagement %s is not eligible for %s recreation", sourceID, interval)
	}

	nextYear, nextMonth := advancePeriod(
		source.Fields.IntAt(fieldYear),
		source.Fields.IntAt(fieldMonth),
		interval,
	)
	if err := e.checkDuplicateActive(ctx, source, interval, nextYear, nextMonth); err != nil {
		return record.Record{}, e.fail(ctx, sourceID, "", err)
	}

	// Guard write. From here on a crash leaves the source at once,
	// which the next run's eligibility check excludes.
	originalRecurrence := source.Fields.StringAt(fieldRecurrence)
	if _, err := es.Update(ctx, entityEngagement, sourceID, record.Fields{
		fieldRecurrence: record.String(schema.IntervalOnce),
	}, actor); err != nil {
		return record.Record{}, fmt.Errorf("neutralize recurrence of %s: %w", sourceID, err)
	}

	newRec, created, err := e.clone(ctx, spec, source, originalRecurrence, nextYear, nextMonth, actor)
	if err != nil {
		e.rollback(ctx, sourceID, originalRecurrence, created)
		return record.Record{}, e.fail(ctx, sourceID, "", err)
	}

	entry := e.logEntry(sourceID, newRec.ID)
	entry.Status = store.RecreationCompleted
	if err := es.DB().AppendRecreationLog(ctx, entry); err != nil {
		e.logger.Error("recreation log write failed",
			"source", sourceID,
			"new", newRec.ID,
			"error", err,
		)
	}
	e.metrics.RecordRecreation(store.RecreationCompleted)
	return newRec, nil
}

func (e *Engine) logEntry(sourceID, newID string) store.RecreationLogEntry {
	return store.RecreationLogEntry{
		SourceID:  sourceID,
		NewID:     newID,
		CreatedAt: e.entities.Now().Unix(),
	}
}

// clone creates the new engagement and its child tree. It returns
// every record it created so the caller can roll them back on failure.
func (e *Engine) clone(ctx context.Context, spec *schema.EntitySpec, source record.Record, recurrence string, nextYear, nextMonth int64, actor record.Actor) (record.Record, []record.Record, error) {
	es := e.entities

	fields := source.Fields.Clone()
	fields[fieldYear] = record.Int(nextYear)
	if !source.Fields.IsNull(fieldMonth) {
		fields[fieldMonth] = record.Int(nextMonth)
	}
	fields[fieldRecurrence] = record.String(recurrence)
	fields[fieldStatus] = record.String(statusActive)
	fields[fieldProgress] = record.Int(0)
	if spec.StageField != "" {
		fields[spec.StageField] = record.String(spec.InitialStage())
	}

	// The new engagement has no review yet; the source's review becomes
	// the previous-period reference.
	fields[fieldPrevReviewLink] = fieldOrNull(source.Fields, fieldReviewLink)
	fields[fieldPrevReviewID] = fieldOrNull(source.Fields, fieldReviewID)
	fields[fieldReviewLink] = record.Null{}
	fields[fieldReviewID] = record.Null{}

	newRec, err := es.Create(ctx, entityEngagement, fields, actor)
	if err != nil {
		return record.Record{}, nil, fmt.Errorf("clone engagement %s: %w", source.ID, err)
	}
	created := []record.Record{newRec}

	withAttachments := false
	if spec.Recreation != nil && spec.Recreation.AttachmentsField != "" {
		withAttachments = source.Fields.BoolAt(spec.Recreation.AttachmentsField)
	}

	children, err := e.cloneChildren(ctx, spec, source.ID, newRec.ID, withAttachments, actor)
	created = append(created, children...)
	if err != nil {
		return record.Record{}, created, err
	}
	return newRec, created, nil
}

// cloneChildren copies the child tree of a record, depth-first,
// repointing each clone's parent field at the new parent. Descriptive
// fields carry over; fields flagged reset-on-recreate restore their
// declared default (or null), and staged children restart at their
// initial stage.
func (e *Engine) cloneChildren(ctx context.Context, spec *schema.EntitySpec, sourceParentID, newParentID string, withAttachments bool, actor record.Actor) ([]record.Record, error) {
	es := e.entities
	var created []record.Record

	for _, childName := range spec.Children {
		if childName == entityAttachment && !withAttachments {
			continue
		}
		childSpec, err := es.Schemas().Get(childName)
		if err != nil {
			return created, err
		}

		children, err := es.List(ctx, childName, record.Fields{
			childSpec.Parent.Field: record.String(sourceParentID),
		})
		if err != nil {
			return created, fmt.Errorf("list %s children of %s: %w", childName, sourceParentID, err)
		}

		for _, child := range children {
			fields := child.Fields.Clone()
			fields[childSpec.Parent.Field] = record.String(newParentID)
			for _, f := range childSpec.Fields {
				if !f.ResetOnRecreate {
					continue
				}
				if f.Default != nil {
					fields[f.Key] = f.Default
				} else {
					fields[f.Key] = record.Null{}
				}
			}
			if childSpec.StageField != "" {
				fields[childSpec.StageField] = record.String(childSpec.InitialStage())
			}

			newChild, err := es.Create(ctx, childName, fields, actor)
			if err != nil {
				return created, fmt.Errorf("clone %s %s: %w", childName, child.ID, err)
			}
			created = append(created, newChild)

			grandchildren, err := e.cloneChildren(ctx, childSpec, child.ID, newChild.ID, withAttachments, actor)
			created = append(created, grandchildren...)
			if err != nil {
				return created, err
			}
		}
	}
	return created, nil
}

// checkDuplicateActive refuses to create a second live engagement for
// the same client and target period. Recreation fails closed rather
// than silently duplicating.
func (e *Engine) checkDuplicateActive(ctx context.Context, source record.Record, interval schema.Interval, nextYear, nextMonth int64) error {
	existing, err := e.entities.List(ctx, entityEngagement, record.Fields{
		"client_id": source.Fields["client_id"],
		fieldYear:   record.Int(nextYear),
	})
	if err != nil {
		return fmt.Errorf("check target period: %w", err)
	}

	for _, other := range existing {
		if other.Fields.StringAt(fieldStatus) == statusArchived {
			continue
		}
		if other.Fields.StringAt(fieldRecurrence) == string(schema.IntervalOnce) {
			continue
		}
		if interval == schema.IntervalMonthly && other.Fields.IntAt(fieldMonth) != nextMonth {
			continue
		}
		return fmt.Errorf("active engagement %s already exists for client %s in target period",
			other.ID, source.Fields.StringAt("client_id"))
	}
	return nil
}

// rollback deletes partially created clones (children first) through
// the raw store, bypassing hooks, then restores the source recurrence.
func (e *Engine) rollback(ctx context.Context, sourceID, originalRecurrence string, created []record.Record) {
	db := e.entities.DB()

	for i := len(created) - 1; i >= 0; i-- {
		rec := created[i]
		if err := db.DeleteRecord(ctx, rec.Entity, rec.ID); err != nil {
			e.logger.Error("rollback delete failed",
				"entity", rec.Entity,
				"id", rec.ID,
				"error", err,
			)
		}
	}

	source, err := db.GetRecord(ctx, entityEngagement, sourceID)
	if err != nil {
		e.logger.Error("rollback recurrence restore failed",
			"source", sourceID,
			"error", err,
		)
		return
	}
	source.Fields[fieldRecurrence] = record.String(originalRecurrence)
	source.UpdatedAt = e.entities.Now().Unix()
	if err := db.UpdateRecord(ctx, source); err != nil {
		e.logger.Error("rollback recurrence restore failed",
			"source", sourceID,
			"error", err,
		)
	}
}

// fail writes the failed audit entry and returns err for the caller.
func (e *Engine) fail(ctx context.Context, sourceID, newID string, err error) error {
	entry := e.logEntry(sourceID, newID)
	entry.Status = store.RecreationFailed
	entry.Detail = err.Error()
	if logErr := e.entities.DB().AppendRecreationLog(ctx, entry); logErr != nil {
		e.logger.Error("recreation log write failed",
			"source", sourceID,
			"error", logErr,
		)
	}
	e.metrics.RecordRecreation(store.RecreationFailed)
	return err
}

func fieldOrNull(f record.Fields, key string) record.Value {
	if v, ok := f[key]; ok {
		return v
	}
	return record.Null{}
}

// advancePeriod moves (year, month) forward by one interval. December
// wraps into January of the next year.
func advancePeriod(year, month int64, interval schema.Interval) (int64, int64) {
	if interval == schema.IntervalMonthly {
		if month >= 12 {
			return year + 1, 1
		}
		return year, month + 1
	}
	return year + 1, month
}
