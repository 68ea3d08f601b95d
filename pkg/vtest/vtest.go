package vtest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"testing"

	"github.com/vango-dev/slicestore/pkg/store"
	"github.com/vango-dev/slicestore/pkg/vango"
)

// Builder configures a test harness.
type Builder struct {
	opts  []store.Option
	seeds []func(*store.Registry) error
	ctx   context.Context
}

// New creates a harness builder. The registry logs nowhere unless
// WithOptions supplies a logger.
func New() *Builder {
	return &Builder{
		opts: []store.Option{store.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))},
		ctx:  context.Background(),
	}
}

// WithOptions adds registry options.
//
// Example:
//
//	vtest.New().WithOptions(store.WithMiddleware(mw))
func (b *Builder) WithOptions(opts ...store.Option) *Builder {
	b.opts = append(b.opts, opts...)
	return b
}

// WithContext sets the context components see through vango.UseCtx.
func (b *Builder) WithContext(ctx context.Context) *Builder {
	b.ctx = ctx
	return b
}

// Seed registers key with initial before the component mounts.
//
// Example:
//
//	vtest.Seed(b, "user", User{Name: "ada"})
func Seed[T any](b *Builder, key string, initial T) *Builder {
	b.seeds = append(b.seeds, func(r *store.Registry) error {
		_, err := store.CreateSlice(r, key, initial)
		return err
	})
	return b
}

// Mount builds a fresh registry, mounts c under a Provider and runs the
// first render passes. Render errors are kept for Err and ExpectErrorIs
// rather than failing the test. The tree is unmounted on cleanup.
func (b *Builder) Mount(t testing.TB, c vango.Component) *Harness {
	t.Helper()
	r := store.NewRegistry(b.opts...)
	for _, seed := range b.seeds {
		if err := seed(r); err != nil {
			t.Fatalf("vtest: seed: %v", err)
		}
	}
	return mount(t, b, r, c)
}

func mount(t testing.TB, b *Builder, r *store.Registry, c vango.Component) *Harness {
	h := &Harness{
		t:         t,
		builder:   b,
		component: c,
		Registry:  r,
		Scheduler: vango.NewScheduler(vango.WithContext(b.ctx)),
	}
	t.Cleanup(h.Scheduler.Unmount)

	h.Root, h.err = h.Scheduler.Mount(store.Provider(r, c))
	return h
}

// Harness is a mounted component tree with its own registry.
type Harness struct {
	t         testing.TB
	builder   *Builder
	component vango.Component

	Registry  *store.Registry
	Scheduler *vango.Scheduler
	Root      *vango.Instance

	err error
}

// Store returns the registry's store.
func (h *Harness) Store() *store.Store {
	return h.Registry.Store()
}

// Flush runs pending render passes and records their errors.
func (h *Harness) Flush() error {
	h.err = h.Scheduler.Flush()
	return h.err
}

// Err returns the errors from the most recent mount or flush.
func (h *Harness) Err() error {
	return h.err
}

// Set dispatches a set action for key and flushes. It fails the test if the
// dispatch fails.
func (h *Harness) Set(key string, value any) {
	h.t.Helper()
	if err := h.Store().Set(context.Background(), key, value); err != nil {
		h.t.Fatalf("vtest: set %q: %v", key, err)
	}
	_ = h.Flush()
}

// Merge dispatches a merge action for key and flushes.
func (h *Harness) Merge(key string, patch store.Patch) {
	h.t.Helper()
	if err := h.Store().Merge(context.Background(), key, patch); err != nil {
		h.t.Fatalf("vtest: merge %q: %v", key, err)
	}
	_ = h.Flush()
}

// Value returns key's current value, or nil if absent.
func (h *Harness) Value(key string) any {
	v, _ := h.Store().Value(key)
	return v
}

// ExpectValue asserts that key holds want.
func (h *Harness) ExpectValue(key string, want any) {
	h.t.Helper()
	got, ok := h.Store().Value(key)
	if !ok {
		h.t.Errorf("expected key %q to be registered, have %v", key, h.Registry.Keys())
		return
	}
	if !reflect.DeepEqual(got, want) {
		h.t.Errorf("expected %q = %#v, got %#v", key, want, got)
	}
}

// ExpectKeys asserts the registered keys, in sorted order.
func (h *Harness) ExpectKeys(want ...string) {
	h.t.Helper()
	got := h.Registry.Keys()
	if len(want) == 0 && len(got) == 0 {
		return
	}
	if !reflect.DeepEqual(got, want) {
		h.t.Errorf("expected keys %v, got %v", want, got)
	}
}

// ExpectNoError asserts that the last mount or flush succeeded.
func (h *Harness) ExpectNoError() {
	h.t.Helper()
	if h.err != nil {
		h.t.Errorf("expected no render error, got %v", h.err)
	}
}

// ExpectErrorIs asserts that the last mount or flush failed with target.
func (h *Harness) ExpectErrorIs(target error) {
	h.t.Helper()
	if !errors.Is(h.err, target) {
		h.t.Errorf("expected render error matching %v, got %v", target, h.err)
	}
}
