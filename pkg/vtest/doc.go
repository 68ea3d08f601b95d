// Package vtest provides testing helpers for components that use store
// hooks.
//
// The vtest package mounts a component under a store Provider, drives render
// passes and asserts on slice values, with a fresh registry per test.
//
// # Quick Start
//
//	func TestCounter(t *testing.T) {
//	    h := vtest.New().Mount(t, Counter)
//	    h.ExpectValue("count", 0)
//
//	    h.Set("count", 5)
//	    h.ExpectValue("count", 5)
//	}
//
// # Fluent Builder
//
// The builder seeds slices and options before mounting:
//
//	b := vtest.New().WithContext(ctx)
//	vtest.Seed(b, "todos", []Todo{{Title: "first"}})
//	h := b.Mount(t, TodoList)
//
// # Render Errors
//
// Hooks that fail (a missing key, a type mismatch) surface as render errors:
//
//	h := vtest.New().Mount(t, NeedsSettings)
//	h.ExpectErrorIs(store.ErrUnregisteredKey)
//
// # Restarts
//
// Restart snapshots the store, builds a new registry, rehydrates it and
// mounts the component again, the way a process restart with persistence
// would:
//
//	h2 := h.Restart()
//	h2.ExpectValue("count", 5)
package vtest
