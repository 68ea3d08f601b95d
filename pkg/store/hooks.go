package store

import "github.com/vango-dev/slicestore/pkg/vango"

// Writer writes one slice. It is the handle UseSetter returns.
type Writer[T any] interface {
	Set(value T) error
	Merge(patch Patch) error
	Update(fn func(T) T) error
}

// Actions is the mutator handle for one key. A component gets the same
// handle on every render for the same key.
type Actions[T any] struct {
	registry *Registry
	key      string
}

var _ Writer[int] = (*Actions[int])(nil)

// Key returns the key the handle writes to.
func (a *Actions[T]) Key() string {
	return a.key
}

// Set replaces the value.
func (a *Actions[T]) Set(value T) error {
	return a.dispatch(SetAction(a.key, value))
}

// Merge shallow-merges patch into a record value. Scalars and lists are not
// mergeable; use Set for those.
func (a *Actions[T]) Merge(patch Patch) error {
	return a.dispatch(MergeAction(a.key, patch))
}

// Update sets the value to fn applied to the current value. Concurrent
// updates apply one after another, each seeing the previous result. fn must
// not write to the store.
func (a *Actions[T]) Update(fn func(T) T) error {
	return a.dispatch(UpdateAction(a.key, func(current any) (any, error) {
		v, err := convert[T](a.key, current)
		if err != nil {
			return nil, err
		}
		return fn(v), nil
	}))
}

// Reset restores the value the slice was registered with.
func (a *Actions[T]) Reset() error {
	return a.dispatch(ResetAction(a.key))
}

func (a *Actions[T]) dispatch(act Action) error {
	return a.registry.Store().Dispatch(vango.StdContext(), act)
}

// useActions returns the handle stored in the component's next hook slot,
// replacing it when the key or registry changed.
func useActions[T any](r *Registry, key string) *Actions[T] {
	owner := vango.CurrentOwner()
	if owner == nil {
		return &Actions[T]{registry: r, key: key}
	}

	if a, ok := owner.UseHookSlot().(*Actions[T]); ok && a.key == key && a.registry == r {
		return a
	}
	a := &Actions[T]{registry: r, key: key}
	owner.SetHookSlot(a)
	return a
}

func mustConvert[T any](key string, raw any) T {
	v, err := convert[T](key, raw)
	if err != nil {
		panic(err)
	}
	return v
}

// Use returns key's value and its mutators, registering the slice with
// initial if the key is new. When the slice already exists initial is
// ignored.
//
//	todos, actions := store.Use("todos", []Todo{})
func Use[T any](key string, initial T) (T, *Actions[T]) {
	vango.TrackHook(vango.HookStore)
	r := useRegistry()
	actions := useActions[T](r, key)

	if _, err := CreateSlice(r, key, initial); err != nil {
		panic(err)
	}

	raw, ok := r.Store().read(key)
	if !ok {
		// The store was rebuilt between registration and read. Register
		// again once the render completes unless someone else did.
		vango.AfterRender(func() {
			if _, present := r.Store().Value(key); !present {
				_, _ = CreateSlice(r, key, initial)
			}
		})
		return initial, actions
	}
	return mustConvert[T](key, raw), actions
}

// UseExisting returns key's value and mutators. It panics with a
// *MissingKeyError if no slice is registered for key.
func UseExisting[T any](key string) (T, *Actions[T]) {
	vango.TrackHook(vango.HookStore)
	r := useRegistry()
	actions := useActions[T](r, key)

	raw, ok := r.Store().read(key)
	if !ok {
		panic(r.missing(key))
	}
	return mustConvert[T](key, raw), actions
}

// UseSelector returns sel applied to key's value. It panics with a
// *MissingKeyError if no slice is registered for key.
//
//	done := store.UseSelector("todos", func(ts []Todo) int { return countDone(ts) })
func UseSelector[T, R any](key string, sel func(T) R) R {
	vango.TrackHook(vango.HookStore)
	r := useRegistry()

	raw, ok := r.Store().read(key)
	if !ok {
		panic(r.missing(key))
	}
	return sel(mustConvert[T](key, raw))
}

// UseValue returns key's value and whether it is present as a T. It never
// panics on a missing key.
func UseValue[T any](key string) (T, bool) {
	vango.TrackHook(vango.HookStore)
	r := useRegistry()

	var zero T
	raw, ok := r.Store().read(key)
	if !ok {
		return zero, false
	}
	v, err := convert[T](key, raw)
	if err != nil {
		r.logger.Debug("slice value has a different type", "key", key, "error", err)
		return zero, false
	}
	return v, true
}

// UseValues returns the values of keys. Missing keys map to nil.
func UseValues(keys ...string) map[string]any {
	vango.TrackHook(vango.HookStore)
	r := useRegistry()
	st := r.Store()

	out := make(map[string]any, len(keys))
	for _, key := range keys {
		v, _ := st.read(key)
		out[key] = v
	}
	return out
}

// UseSetter returns a write-only handle for key without subscribing the
// component to the value. Use UseReset to restore the initial value. With an initial value the slice is registered like Use; without
// one the slice must exist, as with UseExisting.
func UseSetter[T any](key string, initial ...T) Writer[T] {
	vango.TrackHook(vango.HookStore)
	r := useRegistry()
	actions := useActions[T](r, key)

	if len(initial) > 0 {
		if _, err := CreateSlice(r, key, initial[0]); err != nil {
			panic(err)
		}
		return actions
	}
	if _, ok := r.Slice(key); !ok {
		panic(r.missing(key))
	}
	return actions
}

// UseReset returns a function that restores key's initial value. It panics
// with a *MissingKeyError if no slice is registered for key.
func UseReset(key string) func() error {
	vango.TrackHook(vango.HookStore)
	r := useRegistry()
	actions := useActions[any](r, key)

	if _, ok := r.Slice(key); !ok {
		panic(r.missing(key))
	}
	return actions.Reset
}
