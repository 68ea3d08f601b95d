package vango

import "log/slog"

// DebugMode enables hook-order validation and transaction logging.
// Set it at startup; it is not synchronized.
var DebugMode bool

// Batch groups signal updates into a single notification phase. Listeners
// affected by any update inside fn are deduplicated and notified once when the
// outermost batch returns.
//
//	Batch(func() {
//	    firstName.Set("John")
//	    lastName.Set("Doe")
//	})
func Batch(fn func()) {
	incrementBatchDepth()

	defer func() {
		if decrementBatchDepth() {
			processPendingUpdates()
		}
	}()

	fn()
}

// processPendingUpdates deduplicates and notifies all pending listeners.
func processPendingUpdates() {
	updates := drainPendingUpdates()
	if len(updates) == 0 {
		return
	}

	seen := make(map[uint64]bool, len(updates))
	for _, listener := range updates {
		id := listener.ID()
		if seen[id] {
			continue
		}
		seen[id] = true
		listener.MarkDirty()
	}
}

// Untracked runs fn without subscribing the current listener to signal reads.
func Untracked(fn func()) {
	old := setCurrentListener(nil)
	defer setCurrentListener(old)
	fn()
}

// Tx is an alias for Batch.
func Tx(fn func()) {
	Batch(fn)
}

// TxNamed runs fn as a batch and logs its boundaries in debug mode.
func TxNamed(name string, fn func()) {
	if DebugMode {
		slog.Debug("tx start", "name", name)
		defer slog.Debug("tx end", "name", name)
	}
	Batch(fn)
}
