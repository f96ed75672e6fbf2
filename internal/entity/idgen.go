package entity

import (
	"fmt"

	"github.com/google/uuid"
)

// IDGenerator produces record IDs.
// Implemented by UUIDv7Generator (production) and FixedGenerator (tests).
type IDGenerator interface {
	NewID() string
}

// UUIDv7Generator generates time-ordered UUIDs.
// UUIDv7 embeds a millisecond timestamp, so IDs sort roughly by
// creation time - convenient for operators reading raw rows.
type UUIDv7Generator struct{}

// NewID returns a new UUIDv7 string.
func (UUIDv7Generator) NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator produces predictable sequential IDs for tests.
// Not safe for concurrent use; tests run on the single writer.
type FixedGenerator struct {
	Prefix string
	n      int
}

// NewID returns "<prefix>-1", "<prefix>-2", ...
func (g *FixedGenerator) NewID() string {
	g.n++
	return fmt.Sprintf("%s-%d", g.Prefix, g.n)
}
