package vango

// Listener is anything that can be notified when a dependency changes.
// Component instances implement it; tests use lightweight fakes.
type Listener interface {
	// MarkDirty notifies the listener that one of its dependencies changed.
	// For components, this schedules a re-render.
	MarkDirty()

	// ID returns a unique identifier used for deduplication.
	ID() uint64
}

// Cleanup is a function registered to run when an Owner is disposed.
type Cleanup func()
