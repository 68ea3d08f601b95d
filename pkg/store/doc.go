// Package store provides keyed slices of global state for vango components.
//
// A slice is registered lazily, the first time a component asks for its key
// with an initial value. Registration is first-writer-wins: later calls with
// the same key reuse the existing slice and ignore their initial value.
//
// Usage:
//
//	reg := store.NewRegistry(store.WithLogger(logger))
//
//	app := store.Provider(reg, Counter)
//
//	func Counter() {
//	    count, actions := store.Use("counter", 0)
//	    onClick(func() { actions.Set(count + 1) })
//	}
//
// Accessors:
//
//   - Use: read-write, creates the slice with an initial value
//   - UseExisting: read-write, the slice must already exist
//   - UseSelector: projection of an existing slice
//   - UseValue, UseValues: raw reads that never fail
//   - UseSetter, UseReset: write-only handles
//
// Every mutation is an Action dispatched through the Store's middleware
// chain. The default chain runs SerializableCheck, which skips
// persistence-restore actions.
//
// Registry.Clear drops every slice and tears the Store down. It exists for
// test isolation and must not be called while components are mounted;
// tests should prefer a fresh Registry per case.
package store
