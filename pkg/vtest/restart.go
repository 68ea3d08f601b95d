package vtest

import (
	"context"
	"errors"

	"github.com/vango-dev/slicestore/pkg/persist"
	"github.com/vango-dev/slicestore/pkg/store"
)

// ErrSnapshotFailed is reported when Restart cannot save or restore state.
var ErrSnapshotFailed = errors.New("vtest: snapshot failed")

// Restart simulates a process restart with persistence: the current store is
// written to an in-memory storage, the tree is unmounted, and the same
// component is mounted on a new registry rehydrated from that snapshot.
// Seeds are not applied again; slices register as the component renders.
func (h *Harness) Restart(opts ...persist.Option) *Harness {
	h.t.Helper()
	ctx := context.Background()
	storage := persist.NewMemoryStorage()

	if err := persist.New(h.Registry, storage, opts...).Flush(ctx); err != nil {
		h.t.Fatalf("%v: save: %v", ErrSnapshotFailed, err)
	}
	h.Scheduler.Unmount()

	r := store.NewRegistry(h.builder.opts...)
	if err := persist.New(r, storage, opts...).Rehydrate(ctx); err != nil {
		h.t.Fatalf("%v: rehydrate: %v", ErrSnapshotFailed, err)
	}
	return mount(h.t, h.builder, r, h.component)
}
