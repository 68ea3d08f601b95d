package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/vango-dev/slicestore/pkg/vango"
)

// Store holds the current value of every registered slice, one reactive cell
// per key, and applies dispatched actions to them in order.
type Store struct {
	id        string
	createdAt time.Time
	registry  *Registry
	logger    *slog.Logger

	mu     sync.RWMutex
	slices map[string]*Slice
	cells  map[string]*vango.Signal[any]

	// pending holds rehydrated values for keys with no slice yet.
	pending map[string]json.RawMessage

	// shape changes whenever a slice is added, so readers of absent keys
	// re-render once the key appears.
	shape *vango.Signal[int]

	dispatchMu sync.Mutex
	dispatch   Next
	closed     atomic.Bool

	// checks validate a computed value before it is committed.
	checks []func(a Action, next any) error
}

func newStore(r *Registry, slices map[string]*Slice) *Store {
	s := &Store{
		id:        uuid.NewString(),
		createdAt: time.Now(),
		registry:  r,
		logger:    r.logger,
		slices:    make(map[string]*Slice, len(slices)),
		cells:     make(map[string]*vango.Signal[any], len(slices)),
		pending:   make(map[string]json.RawMessage),
		shape:     vango.NewSignal(0),
	}
	for key, sl := range slices {
		s.slices[key] = sl
		s.cells[key] = vango.NewSignal(sl.initial)
	}

	mws := []Middleware{SerializableCheck(r.config.SerializableCheck)}
	if r.config.Middleware != nil {
		mws = r.config.Middleware(mws)
	}
	next := s.apply
	for i := len(mws) - 1; i >= 0; i-- {
		next = mws[i](s, next)
	}
	s.dispatch = next
	return s
}

// ID returns a unique identifier for this store instance.
func (s *Store) ID() string {
	return s.id
}

// CreatedAt returns when the store was built.
func (s *Store) CreatedAt() time.Time {
	return s.createdAt
}

// Logger returns the store's logger.
func (s *Store) Logger() *slog.Logger {
	return s.logger
}

// Registry returns the registry that owns this store.
func (s *Store) Registry() *Registry {
	return s.registry
}

// compose adds a cell for sl unless the key already has one. A rehydrated
// value waiting for the key takes precedence over the initial value.
func (s *Store) compose(sl *Slice) bool {
	s.mu.Lock()
	if _, ok := s.slices[sl.key]; ok {
		s.mu.Unlock()
		return false
	}

	value := sl.initial
	if raw, ok := s.pending[sl.key]; ok {
		delete(s.pending, sl.key)
		if v, err := sl.Decode(raw); err != nil {
			s.logger.Warn("discarding rehydrated value", "key", sl.key, "error", err)
		} else {
			value = v
		}
	}
	s.slices[sl.key] = sl
	s.cells[sl.key] = vango.NewSignal(value)
	s.mu.Unlock()

	s.shape.Update(func(n int) int { return n + 1 })
	return true
}

// Dispatch sends a through the middleware chain and applies it.
func (s *Store) Dispatch(ctx context.Context, a Action) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return s.dispatch(ctx, a)
}

// Set dispatches SetAction(key, value).
func (s *Store) Set(ctx context.Context, key string, value any) error {
	return s.Dispatch(ctx, SetAction(key, value))
}

// Merge dispatches MergeAction(key, patch).
func (s *Store) Merge(ctx context.Context, key string, patch Patch) error {
	return s.Dispatch(ctx, MergeAction(key, patch))
}

// Reset dispatches ResetAction(key).
func (s *Store) Reset(ctx context.Context, key string) error {
	return s.Dispatch(ctx, ResetAction(key))
}

// Update dispatches UpdateAction(key, fn). fn runs while the dispatch lock
// is held and must not dispatch.
func (s *Store) Update(ctx context.Context, key string, fn UpdateFunc) error {
	return s.Dispatch(ctx, UpdateAction(key, fn))
}

// apply is the innermost dispatch step. Reductions are serialized so actions
// apply in the order they reach it.
func (s *Store) apply(_ context.Context, a Action) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}

	s.dispatchMu.Lock()
	err := s.reduce(a)
	s.dispatchMu.Unlock()
	if err != nil {
		return err
	}

	s.registry.publish(s, a)
	return nil
}

func (s *Store) reduce(a Action) error {
	if a.Kind == KindRestore {
		return s.restore(a)
	}

	s.mu.RLock()
	sl, ok := s.slices[a.Key]
	cell := s.cells[a.Key]
	s.mu.RUnlock()
	if !ok {
		return s.registry.missing(a.Key)
	}

	next, err := sl.reduce(cell.Peek(), a)
	if err != nil {
		return fmt.Errorf("store: %s: %w", a.Type, err)
	}
	for _, check := range s.checks {
		if err := check(a, next); err != nil {
			return err
		}
	}
	cell.Set(next)
	return nil
}

func (s *Store) restore(a Action) error {
	state, ok := a.Payload.(map[string]json.RawMessage)
	if !ok {
		return fmt.Errorf("store: %s: payload is %T", a.Type, a.Payload)
	}

	var errs []error
	vango.Batch(func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		for key, raw := range state {
			sl, ok := s.slices[key]
			if !ok {
				s.pending[key] = raw
				continue
			}
			v, err := sl.Decode(raw)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			s.cells[key].Set(v)
		}
	})
	return errors.Join(errs...)
}

// Value returns key's current value without subscribing.
func (s *Store) Value(key string) (any, bool) {
	s.mu.RLock()
	cell, ok := s.cells[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return cell.Peek(), true
}

// read returns key's value and subscribes the rendering component. For an
// absent key the component subscribes to the store's shape instead.
func (s *Store) read(key string) (any, bool) {
	s.mu.RLock()
	cell, ok := s.cells[key]
	s.mu.RUnlock()
	if !ok {
		s.shape.Get()
		return nil, false
	}
	return cell.Get(), true
}

// Keys returns the keys the store has cells for, sorted.
func (s *Store) Keys() []string {
	s.mu.RLock()
	keys := make([]string, 0, len(s.cells))
	for k := range s.cells {
		keys = append(keys, k)
	}
	s.mu.RUnlock()

	sort.Strings(keys)
	return keys
}

// PendingKeys returns rehydrated keys still waiting for a slice, sorted.
func (s *Store) PendingKeys() []string {
	s.mu.RLock()
	keys := make([]string, 0, len(s.pending))
	for k := range s.pending {
		keys = append(keys, k)
	}
	s.mu.RUnlock()

	sort.Strings(keys)
	return keys
}

// Pending returns the rehydrated JSON waiting for key's slice.
func (s *Store) Pending(key string) (json.RawMessage, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	raw, ok := s.pending[key]
	return raw, ok
}

// Snapshot returns a copy of the key to value mapping.
func (s *Store) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]any, len(s.cells))
	for k, cell := range s.cells {
		out[k] = cell.Peek()
	}
	return out
}

// Slice returns the slice the store composed for key.
func (s *Store) Slice(key string) (*Slice, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sl, ok := s.slices[key]
	return sl, ok
}

func (s *Store) close() {
	s.closed.Store(true)
}

// Lookup returns key's value, or a *MissingKeyError when the store has no
// cell for key.
func (s *Store) Lookup(key string) (any, error) {
	v, ok := s.Value(key)
	if !ok {
		return nil, s.registry.missing(key)
	}
	return v, nil
}

// Get returns key's value as T.
func Get[T any](s *Store, key string) (T, error) {
	raw, err := s.Lookup(key)
	if err != nil {
		var zero T
		return zero, err
	}
	return convert[T](key, raw)
}

func convert[T any](key string, raw any) (T, error) {
	var zero T
	if raw == nil {
		return zero, nil
	}
	v, ok := raw.(T)
	if !ok {
		return zero, &TypeMismatchError{Key: key, Registered: reflect.TypeOf(raw), Requested: typeOf[T]()}
	}
	return v, nil
}
