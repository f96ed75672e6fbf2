// Package entity implements the generic query engine: schema-validated
// create/get/list/update/remove over any registered entity type, with
// before/after hooks fired around every mutation.
package entity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/quarrylane/praxis/internal/hooks"
	"github.com/quarrylane/praxis/internal/record"
	"github.com/quarrylane/praxis/internal/schema"
	"github.com/quarrylane/praxis/internal/store"
)

// Store is the entity store. All dependencies are injected at
// construction; there is no global state.
//
// Thread-safety model: mutations assume the single-writer store
// contract. Before hooks that read-then-decide see a snapshot valid
// only within that synchronous call.
type Store struct {
	schemas *schema.Registry
	db      *store.Store
	hooks   *hooks.Dispatcher
	ids     IDGenerator
	clock   *Clock
	now     func() time.Time
	logger  *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithIDGenerator overrides the default UUIDv7 generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(s *Store) { s.ids = g }
}

// WithNow overrides the wall clock (tests).
func WithNow(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger overrides the default slog logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New creates an entity store. The insertion-sequence clock is seeded
// from the store's current max seq.
func New(ctx context.Context, schemas *schema.Registry, db *store.Store, dispatcher *hooks.Dispatcher, opts ...Option) (*Store, error) {
	maxSeq, err := db.MaxRecordSeq(ctx)
	if err != nil {
		return nil, fmt.Errorf("seed seq clock: %w", err)
	}

	s := &Store{
		schemas: schemas,
		db:      db,
		hooks:   dispatcher,
		ids:     UUIDv7Generator{},
		clock:   NewClockAt(maxSeq),
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Create validates fields against the entity spec, assigns id and
// audit columns, fires before.create hooks (which may reject or
// rewrite), persists, then fires after.create hooks.
func (s *Store) Create(ctx context.Context, entityName string, fields record.Fields, actor record.Actor) (record.Record, error) {
	spec, err := s.schemas.Get(entityName)
	if err != nil {
		return record.Record{}, err
	}

	now := s.now().Unix()
	rec := record.Record{
		Entity:    entityName,
		ID:        s.ids.NewID(),
		Seq:       s.clock.Next(),
		CreatedAt: now,
		CreatedBy: actor.ID,
		UpdatedAt: now,
		UpdatedBy: actor.ID,
		Fields:    applyDefaults(spec, fields),
	}

	mutation := &hooks.Mutation{
		Entity:   entityName,
		Action:   hooks.ActionCreate,
		Actor:    actor,
		Proposed: &rec,
	}
	if err := s.hooks.RunBefore(ctx, mutation); err != nil {
		return record.Record{}, err
	}

	// Validate after rewrites so a hook cannot smuggle in a bad shape.
	if err := s.validate(ctx, spec, rec.Fields); err != nil {
		return record.Record{}, err
	}

	inserted, err := s.db.InsertRecord(ctx, rec)
	if err != nil {
		return record.Record{}, fmt.Errorf("create %s: %w", entityName, err)
	}
	if !inserted {
		return record.Record{}, fmt.Errorf("create %s: duplicate id %s", entityName, rec.ID)
	}

	s.logger.Debug("record created",
		"entity", entityName,
		"id", rec.ID,
		"actor", actor.ID,
	)

	committed := rec.Clone()
	s.hooks.RunAfter(ctx, &hooks.Mutation{
		Entity:    entityName,
		Action:    hooks.ActionCreate,
		Actor:     actor,
		Committed: &committed,
	})

	return rec, nil
}

// Get retrieves a record, or nil when it does not exist.
func (s *Store) Get(ctx context.Context, entityName, id string) (*record.Record, error) {
	if _, err := s.schemas.Get(entityName); err != nil {
		return nil, err
	}

	rec, err := s.db.GetRecord(ctx, entityName, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s %s: %w", entityName, id, err)
	}
	return &rec, nil
}

// List returns records of an entity type matching an equality filter,
// in insertion order. A nil or empty filter matches everything.
func (s *Store) List(ctx context.Context, entityName string, filter record.Fields) ([]record.Record, error) {
	spec, err := s.schemas.Get(entityName)
	if err != nil {
		return nil, err
	}
	for key := range filter {
		if spec.Field(key) == nil {
			return nil, &ValidationError{Entity: entityName, Field: key, Reason: "unknown filter field"}
		}
	}

	all, err := s.db.ListRecords(ctx, entityName)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", entityName, err)
	}
	if len(filter) == 0 {
		return all, nil
	}

	matched := []record.Record{}
	for _, rec := range all {
		if matchesFilter(rec.Fields, filter) {
			matched = append(matched, rec)
		}
	}
	return matched, nil
}

// Update merges patch onto the existing record, fires before.update
// hooks (which see both the existing and proposed-merged record and
// may reject or rewrite), persists, then fires after.update hooks.
// created_at/created_by are preserved; updated_at/updated_by are
// bumped.
func (s *Store) Update(ctx context.Context, entityName, id string, patch record.Fields, actor record.Actor) (record.Record, error) {
	spec, err := s.schemas.Get(entityName)
	if err != nil {
		return record.Record{}, err
	}

	existing, err := s.db.GetRecord(ctx, entityName, id)
	if errors.Is(err, sql.ErrNoRows) {
		return record.Record{}, &NotFoundError{Entity: entityName, ID: id}
	}
	if err != nil {
		return record.Record{}, fmt.Errorf("update %s %s: %w", entityName, id, err)
	}

	proposed := existing.Clone()
	proposed.Fields = existing.Fields.Merge(patch)
	proposed.UpdatedAt = s.now().Unix()
	proposed.UpdatedBy = actor.ID

	mutation := &hooks.Mutation{
		Entity:   entityName,
		Action:   hooks.ActionUpdate,
		Actor:    actor,
		Existing: &existing,
		Proposed: &proposed,
		Patch:    patch.Clone(),
	}
	if err := s.hooks.RunBefore(ctx, mutation); err != nil {
		return record.Record{}, err
	}

	if err := s.validate(ctx, spec, proposed.Fields); err != nil {
		return record.Record{}, err
	}

	if err := s.db.UpdateRecord(ctx, proposed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return record.Record{}, &NotFoundError{Entity: entityName, ID: id}
		}
		return record.Record{}, fmt.Errorf("update %s %s: %w", entityName, id, err)
	}

	s.logger.Debug("record updated",
		"entity", entityName,
		"id", id,
		"actor", actor.ID,
		"patch_keys", len(patch),
	)

	committed := proposed.Clone()
	s.hooks.RunAfter(ctx, &hooks.Mutation{
		Entity:    entityName,
		Action:    hooks.ActionUpdate,
		Actor:     actor,
		Existing:  &existing,
		Committed: &committed,
		Patch:     patch.Clone(),
	})

	return proposed, nil
}

// Remove deletes a record and its child subtree. Before.delete hooks
// may veto; after.delete hooks observe the removed record.
//
// Child rows belong to exactly one parent, so they are deleted with it
// (depth-first). Child deletions do not fire per-child hooks - the
// subtree is treated as one logical unit of work.
func (s *Store) Remove(ctx context.Context, entityName, id string, actor record.Actor) error {
	spec, err := s.schemas.Get(entityName)
	if err != nil {
		return err
	}

	existing, err := s.db.GetRecord(ctx, entityName, id)
	if errors.Is(err, sql.ErrNoRows) {
		return &NotFoundError{Entity: entityName, ID: id}
	}
	if err != nil {
		return fmt.Errorf("remove %s %s: %w", entityName, id, err)
	}

	mutation := &hooks.Mutation{
		Entity:   entityName,
		Action:   hooks.ActionDelete,
		Actor:    actor,
		Existing: &existing,
	}
	if err := s.hooks.RunBefore(ctx, mutation); err != nil {
		return err
	}

	if err := s.removeChildren(ctx, spec, id); err != nil {
		return err
	}

	if err := s.db.DeleteRecord(ctx, entityName, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &NotFoundError{Entity: entityName, ID: id}
		}
		return fmt.Errorf("remove %s %s: %w", entityName, id, err)
	}

	s.logger.Debug("record removed",
		"entity", entityName,
		"id", id,
		"actor", actor.ID,
	)

	s.hooks.RunAfter(ctx, &hooks.Mutation{
		Entity:   entityName,
		Action:   hooks.ActionDelete,
		Actor:    actor,
		Existing: &existing,
	})

	return nil
}

// removeChildren deletes the child subtree of a record, depth-first.
func (s *Store) removeChildren(ctx context.Context, spec *schema.EntitySpec, parentID string) error {
	for _, childName := range spec.Children {
		childSpec, err := s.schemas.Get(childName)
		if err != nil {
			return err
		}

		children, err := s.db.ListRecords(ctx, childName)
		if err != nil {
			return fmt.Errorf("list %s children: %w", childName, err)
		}
		for _, child := range children {
			if child.Fields.StringAt(childSpec.Parent.Field) != parentID {
				continue
			}
			if err := s.removeChildren(ctx, childSpec, child.ID); err != nil {
				return err
			}
			if err := s.db.DeleteRecord(ctx, childName, child.ID); err != nil && !errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("remove child %s %s: %w", childName, child.ID, err)
			}
		}
	}
	return nil
}

// Schemas returns the schema registry the store validates against.
func (s *Store) Schemas() *schema.Registry {
	return s.schemas
}

// DB exposes the underlying row store. The recreation engine uses it
// for compensating deletes that must bypass hooks.
func (s *Store) DB() *store.Store {
	return s.db
}

// Now returns the store's wall-clock reading (injected in tests).
func (s *Store) Now() time.Time {
	return s.now()
}

func matchesFilter(fields record.Fields, filter record.Fields) bool {
	for key, want := range filter {
		got, ok := fields[key]
		if !ok {
			got = record.Null{}
		}
		if !record.Equal(got, want) {
			return false
		}
	}
	return true
}

// applyDefaults fills declared defaults for fields absent from the
// caller's map. Explicit nulls are kept as nulls.
func applyDefaults(spec *schema.EntitySpec, fields record.Fields) record.Fields {
	out := fields.Clone()
	for _, f := range spec.Fields {
		if _, present := out[f.Key]; present {
			continue
		}
		if f.Default != nil {
			out[f.Key] = f.Default
		}
	}
	// Staged entities start in their initial stage unless the caller
	// set one explicitly.
	if spec.StageField != "" {
		if _, present := out[spec.StageField]; !present {
			out[spec.StageField] = record.String(spec.InitialStage())
		}
	}
	return out
}
