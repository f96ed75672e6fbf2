// Package schema loads entity definitions from CUE configuration into
// strongly typed per-entity descriptors.
//
// The registry is built once at process start and never mutated. All
// shape errors (unknown field type, dangling reference target) are
// load-fatal: the process refuses to start with a malformed schema
// rather than failing at use time.
package schema

import (
	"fmt"

	"github.com/quarrylane/praxis/internal/record"
)

// FieldType is the closed set of field type tags.
type FieldType string

const (
	TypeString    FieldType = "string"
	TypeInt       FieldType = "int"
	TypeDecimal   FieldType = "decimal"
	TypeBool      FieldType = "bool"
	TypeTimestamp FieldType = "timestamp"
	TypeEnum      FieldType = "enum"
	TypeReference FieldType = "reference"
	TypeList      FieldType = "list"
)

var knownTypes = map[FieldType]bool{
	TypeString: true, TypeInt: true, TypeDecimal: true, TypeBool: true,
	TypeTimestamp: true, TypeEnum: true, TypeReference: true, TypeList: true,
}

// Interval is a recurrence interval for engagement recreation.
type Interval string

const (
	IntervalOnce    Interval = "once"
	IntervalMonthly Interval = "monthly"
	IntervalYearly  Interval = "yearly"
)

// Field describes one declared field of an entity.
type Field struct {
	Key      string
	Type     FieldType
	Required bool

	// Default is the CUE-declared default literal, already parsed into
	// the field's value type. Nil when no default is declared.
	Default record.Value

	// Values lists the members of an enum field.
	Values []string

	// Target names the entity a reference field points at.
	Target string

	// ResetOnRecreate marks transient fields that the recreation
	// engine resets on cloned children (dates, counters, lifecycle
	// stage). Reset restores Default, or null when no default exists.
	ResetOnRecreate bool
}

// Parent links a child entity to its owning entity via a declared
// reference field.
type Parent struct {
	Entity string
	Field  string
}

// RecreationPolicy declares whether and how an entity participates in
// periodic recreation.
type RecreationPolicy struct {
	Enabled   bool
	Intervals []Interval

	// AttachmentsField names the bool field that opts a record into
	// cloning its attachment children. Empty disables the opt-in.
	AttachmentsField string
}

// EntitySpec is the compiled descriptor for one entity type.
// Fields preserves declaration order from the CUE source.
type EntitySpec struct {
	Name     string
	Fields   []Field
	Parent   *Parent
	Children []string

	// StageField names the field carrying the workflow stage; Stages
	// lists the stages in order, first = initial. Both empty for
	// entities without a workflow.
	StageField string
	Stages     []string

	Recreation *RecreationPolicy

	fieldIndex map[string]int
}

// Field returns the declared field for key, or nil.
func (s *EntitySpec) Field(key string) *Field {
	i, ok := s.fieldIndex[key]
	if !ok {
		return nil
	}
	return &s.Fields[i]
}

// InitialStage returns the first workflow stage, or "".
func (s *EntitySpec) InitialStage() string {
	if len(s.Stages) == 0 {
		return ""
	}
	return s.Stages[0]
}

// AllowsInterval reports whether the recreation policy permits the
// given interval.
func (s *EntitySpec) AllowsInterval(iv Interval) bool {
	if s.Recreation == nil || !s.Recreation.Enabled {
		return false
	}
	for _, allowed := range s.Recreation.Intervals {
		if allowed == iv {
			return true
		}
	}
	return false
}

// Registry holds all compiled entity specs, keyed by name.
// Immutable after construction.
type Registry struct {
	specs map[string]*EntitySpec
	order []string
}

// NotFoundError reports a lookup of an unregistered entity.
type NotFoundError struct {
	Entity string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("entity %q is not registered", e.Entity)
}

// NewRegistry builds a registry from compiled specs and runs
// cross-entity validation. The specs slice order is preserved as the
// registry's canonical order.
func NewRegistry(specs []*EntitySpec) (*Registry, error) {
	r := &Registry{specs: make(map[string]*EntitySpec, len(specs))}
	for _, s := range specs {
		if _, dup := r.specs[s.Name]; dup {
			return nil, fmt.Errorf("duplicate entity %q", s.Name)
		}
		if s.fieldIndex == nil {
			s.fieldIndex = make(map[string]int, len(s.Fields))
			for i, f := range s.Fields {
				s.fieldIndex[f.Key] = i
			}
		}
		r.specs[s.Name] = s
		r.order = append(r.order, s.Name)
	}
	if err := validateRegistry(r); err != nil {
		return nil, err
	}
	return r, nil
}

// Get returns the spec for name or a NotFoundError.
func (r *Registry) Get(name string) (*EntitySpec, error) {
	s, ok := r.specs[name]
	if !ok {
		return nil, &NotFoundError{Entity: name}
	}
	return s, nil
}

// Names returns entity names in declaration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
