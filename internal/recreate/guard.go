package recreate

// LineageGuard refuses to process the same source engagement twice
// within one run. The persistent idempotency guard is the recurrence
// field itself; this in-memory guard catches the degenerate case of a
// source appearing twice in the same scan (a clone created mid-run
// that also matches the interval).
type LineageGuard struct {
	seen map[string]bool
}

// NewLineageGuard creates an empty guard.
func NewLineageGuard() *LineageGuard {
	return &LineageGuard{seen: make(map[string]bool)}
}

// Seen reports whether the source id was already processed this run.
func (g *LineageGuard) Seen(id string) bool {
	return g.seen[id]
}

// Mark records a processed source id.
func (g *LineageGuard) Mark(id string) {
	g.seen[id] = true
}

// Reset clears the guard for a new run.
func (g *LineageGuard) Reset() {
	g.seen = make(map[string]bool)
}
