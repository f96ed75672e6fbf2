package entity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/quarrylane/praxis/internal/record"
	"github.com/quarrylane/praxis/internal/schema"
)

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// validate checks a full candidate field map against the entity spec.
// Runs after before-hooks so rewrites are validated too.
func (s *Store) validate(ctx context.Context, spec *schema.EntitySpec, fields record.Fields) error {
	for key := range fields {
		if spec.Field(key) == nil {
			return &ValidationError{Entity: spec.Name, Field: key, Reason: "unknown field"}
		}
	}

	for i := range spec.Fields {
		f := &spec.Fields[i]
		v, present := fields[f.Key]
		if !present {
			v = record.Null{}
		}
		if _, isNull := v.(record.Null); isNull || !present {
			if f.Required {
				return &ValidationError{Entity: spec.Name, Field: f.Key, Reason: "required field is missing"}
			}
			continue
		}

		if err := checkType(spec.Name, f, v); err != nil {
			return err
		}

		if f.Type == schema.TypeReference {
			id := string(v.(record.String))
			if err := s.checkReference(ctx, spec.Name, f, id); err != nil {
				return err
			}
		}
	}

	return nil
}

// checkType verifies a non-null value against its declared field type.
func checkType(entity string, f *schema.Field, v record.Value) error {
	mismatch := func(want string) error {
		return &ValidationError{
			Entity: entity,
			Field:  f.Key,
			Reason: fmt.Sprintf("expected %s, got %T", want, v),
		}
	}

	switch f.Type {
	case schema.TypeString:
		if _, ok := v.(record.String); !ok {
			return mismatch("string")
		}
	case schema.TypeInt, schema.TypeTimestamp:
		if _, ok := v.(record.Int); !ok {
			return mismatch("int")
		}
	case schema.TypeDecimal:
		d, ok := v.(record.Decimal)
		if !ok {
			return mismatch("decimal")
		}
		if _, err := record.NewDecimal(string(d)); err != nil {
			return &ValidationError{Entity: entity, Field: f.Key, Reason: err.Error()}
		}
	case schema.TypeBool:
		if _, ok := v.(record.Bool); !ok {
			return mismatch("bool")
		}
	case schema.TypeEnum:
		s, ok := v.(record.String)
		if !ok {
			return mismatch("enum string")
		}
		for _, member := range f.Values {
			if string(s) == member {
				return nil
			}
		}
		return &ValidationError{
			Entity: entity,
			Field:  f.Key,
			Reason: fmt.Sprintf("%q is not a member of %v", string(s), f.Values),
		}
	case schema.TypeReference:
		if _, ok := v.(record.String); !ok {
			return mismatch("reference id string")
		}
	case schema.TypeList:
		if _, ok := v.(record.List); !ok {
			return mismatch("list")
		}
	}
	return nil
}

// checkReference verifies the referenced record exists right now.
// Policy: enforced at create/update time, never retroactively.
func (s *Store) checkReference(ctx context.Context, entity string, f *schema.Field, id string) error {
	_, err := s.db.GetRecord(ctx, f.Target, id)
	if err == nil {
		return nil
	}
	if isNoRows(err) {
		return &ReferenceError{Entity: entity, Field: f.Key, Target: f.Target, TargetID: id}
	}
	return fmt.Errorf("check reference %s.%s: %w", entity, f.Key, err)
}
