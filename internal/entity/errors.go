package entity

import "fmt"

// ValidationError reports malformed, missing, or mistyped field data.
// It always blocks the mutation before persistence.
type ValidationError struct {
	Entity string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Entity, e.Reason)
	}
	return fmt.Sprintf("%s.%s: %s", e.Entity, e.Field, e.Reason)
}

// NotFoundError reports an update/remove against a missing record.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// ReferenceError reports a reference field pointing at a nonexistent
// record. References are enforced at create/update time only, never
// retroactively.
type ReferenceError struct {
	Entity   string
	Field    string
	Target   string
	TargetID string
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("%s.%s: referenced %s %s does not exist", e.Entity, e.Field, e.Target, e.TargetID)
}
