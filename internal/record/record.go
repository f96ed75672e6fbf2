// Package record defines the typed value model shared by the schema
// registry, entity store, and trigger rules.
//
// A Record is one row of a configured entity type. Its dynamic fields
// are a Fields map of sealed Value variants; the envelope (id, seq,
// audit columns) is fixed for every entity type.
package record

// Record is an instance of a configured entity type.
//
// Ownership: records are owned by the entity store. Child records
// belong to exactly one parent via a reference field but are
// independent rows.
type Record struct {
	Entity string
	ID     string

	// Seq is the store-assigned insertion sequence. List results are
	// ordered by Seq; no other ordering is guaranteed.
	Seq int64

	CreatedAt int64 // seconds since epoch
	CreatedBy string
	UpdatedAt int64
	UpdatedBy string

	Fields Fields
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	out := r
	out.Fields = r.Fields.Clone()
	return out
}

// Role is an actor's privilege level. The ordering matters: policy
// gates compare roles, e.g. the RFI completion guard applies only to
// the lowest-privilege role.
type Role string

const (
	RoleClerk   Role = "clerk"
	RoleManager Role = "manager"
	RolePartner Role = "partner"
)

var roleRank = map[Role]int{
	RoleClerk:   0,
	RoleManager: 1,
	RolePartner: 2,
}

// AtLeast reports whether r carries privilege >= other.
// Unknown roles rank below clerk.
func (r Role) AtLeast(other Role) bool {
	return roleRank[r] >= roleRank[other]
}

// Actor identifies who performs a mutation. Every mutating entity
// store call requires one; authentication happens upstream.
type Actor struct {
	ID   string
	Role Role
}

// SystemActor is the actor attributed to scheduler-driven mutations.
// It carries partner privilege so policy gates never block jobs.
var SystemActor = Actor{ID: "system", Role: RolePartner}
