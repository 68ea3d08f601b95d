package store

import (
	"context"
	"errors"
	"testing"

	"github.com/vango-dev/slicestore/pkg/vango"
)

func mount(t *testing.T, r *Registry, c vango.Component) (*vango.Scheduler, error) {
	t.Helper()
	sched := vango.NewScheduler()
	t.Cleanup(sched.Unmount)
	_, err := sched.Mount(Provider(r, c))
	return sched, err
}

func TestHooksRequireProvider(t *testing.T) {
	sched := vango.NewScheduler()
	_, err := sched.Mount(func() {
		Use("count", 0)
	})
	if !errors.Is(err, ErrNoProvider) {
		t.Fatalf("expected ErrNoProvider, got %v", err)
	}
}

func TestUseCreatesAndRerenders(t *testing.T) {
	r := newTestRegistry()
	var seen []int
	var actions *Actions[int]

	sched, err := mount(t, r, func() {
		var n int
		n, actions = Use("count", 1)
		seen = append(seen, n)
	})
	if err != nil {
		t.Fatalf("mount: %v", err)
	}

	if err := actions.Set(5); err != nil {
		t.Fatal(err)
	}
	// Observed on the next pass.
	if len(seen) != 1 {
		t.Fatalf("expected one render before Flush, got %v", seen)
	}
	if err := sched.Flush(); err != nil {
		t.Fatal(err)
	}
	if len(seen) != 2 || seen[0] != 1 || seen[1] != 5 {
		t.Fatalf("expected renders [1 5], got %v", seen)
	}
}

func TestUseFirstWriterWins(t *testing.T) {
	r := newTestRegistry()
	var resetA func() error
	var a, b int

	sched, err := mount(t, r, func() {
		var act *Actions[int]
		a, act = Use("shared", 1)
		b, _ = Use("shared", 2)
		resetA = act.Reset
	})
	if err != nil {
		t.Fatalf("mount: %v", err)
	}
	if a != 1 || b != 1 {
		t.Fatalf("expected both reads to see the first initial value, got %d and %d", a, b)
	}

	if err := r.Store().Set(context.Background(), "shared", 9); err != nil {
		t.Fatal(err)
	}
	if err := resetA(); err != nil {
		t.Fatal(err)
	}
	if err := sched.Flush(); err != nil {
		t.Fatal(err)
	}
	if a != 1 || b != 1 {
		t.Errorf("expected reset to the first initial value, got %d and %d", a, b)
	}
}

func TestUseActionsKeepIdentity(t *testing.T) {
	r := newTestRegistry()
	var handles []*Actions[string]

	sched, err := mount(t, r, func() {
		_, act := Use("name", "ada")
		handles = append(handles, act)
	})
	if err != nil {
		t.Fatal(err)
	}

	_ = handles[0].Set("grace")
	if err := sched.Flush(); err != nil {
		t.Fatal(err)
	}
	if len(handles) != 2 {
		t.Fatalf("expected 2 renders, got %d", len(handles))
	}
	if handles[0] != handles[1] {
		t.Error("expected the same mutator handle across renders")
	}
}

func TestUseExistingMissingKey(t *testing.T) {
	r := newTestRegistry()
	_, _ = CreateSlice(r, "counter", 0)

	_, err := mount(t, r, func() {
		UseExisting[int]("countr")
	})

	var mk *MissingKeyError
	if !errors.As(err, &mk) {
		t.Fatalf("expected *MissingKeyError, got %v", err)
	}
	if mk.Key != "countr" || mk.Suggestion != "counter" {
		t.Errorf("unexpected error %+v", mk)
	}
	var re *vango.RenderError
	if !errors.As(err, &re) {
		t.Error("expected the failure to surface as a render error")
	}
}

func TestUseExistingRecoversWhenKeyRegisters(t *testing.T) {
	r := newTestRegistry()
	var got int

	sched, err := mount(t, r, func() {
		got, _ = UseExisting[int]("late")
	})
	if !errors.Is(err, ErrUnregisteredKey) {
		t.Fatalf("expected missing key, got %v", err)
	}

	if _, err := CreateSlice(r, "late", 3); err != nil {
		t.Fatal(err)
	}
	if err := sched.Flush(); err != nil {
		t.Fatalf("expected the re-render to succeed, got %v", err)
	}
	if got != 3 {
		t.Errorf("expected 3, got %d", got)
	}
}

func TestUseResetMissingKey(t *testing.T) {
	r := newTestRegistry()
	_, err := mount(t, r, func() {
		UseReset("nope")
	})
	if !errors.Is(err, ErrUnregisteredKey) {
		t.Fatalf("expected ErrUnregisteredKey, got %v", err)
	}
}

func TestUseValueAndValuesAreSilent(t *testing.T) {
	r := newTestRegistry()
	_, _ = CreateSlice(r, "a", 1)

	var (
		missing   int
		missingOK bool
		present   int
		presentOK bool
		values    map[string]any
	)
	_, err := mount(t, r, func() {
		missing, missingOK = UseValue[int]("nope")
		present, presentOK = UseValue[int]("a")
		values = UseValues("a", "nope")
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if missingOK || missing != 0 {
		t.Errorf("expected zero, false for a missing key, got %d, %v", missing, missingOK)
	}
	if !presentOK || present != 1 {
		t.Errorf("expected 1, true, got %d, %v", present, presentOK)
	}
	if v, ok := values["nope"]; !ok || v != nil {
		t.Errorf("expected nope -> nil, got %v (ok=%v)", v, ok)
	}
	if values["a"] != 1 {
		t.Errorf("expected a -> 1, got %v", values["a"])
	}
}

func TestUseSelector(t *testing.T) {
	r := newTestRegistry()
	_, _ = CreateSlice(r, "user", profile{Name: "ada", Age: 36})

	var name string
	sched, err := mount(t, r, func() {
		name = UseSelector("user", func(p profile) string { return p.Name })
	})
	if err != nil {
		t.Fatal(err)
	}
	if name != "ada" {
		t.Fatalf("expected ada, got %q", name)
	}

	_ = r.Store().Merge(context.Background(), "user", Patch{"name": "grace"})
	if err := sched.Flush(); err != nil {
		t.Fatal(err)
	}
	if name != "grace" {
		t.Errorf("expected grace, got %q", name)
	}

	_, err = mount(t, r, func() {
		UseSelector("ghost", func(p profile) string { return p.Name })
	})
	if !errors.Is(err, ErrUnregisteredKey) {
		t.Errorf("expected ErrUnregisteredKey, got %v", err)
	}
}

func TestUseSetterDoesNotSubscribe(t *testing.T) {
	r := newTestRegistry()
	renders := 0
	var w Writer[[]string]

	sched, err := mount(t, r, func() {
		renders++
		w = UseSetter("todos", []string{})
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := w.Update(func(ts []string) []string { return append(ts, "write tests") }); err != nil {
		t.Fatal(err)
	}
	if err := sched.Flush(); err != nil {
		t.Fatal(err)
	}
	if renders != 1 {
		t.Errorf("expected a write-only component not to re-render, got %d renders", renders)
	}

	got, err := Get[[]string](r.Store(), "todos")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != "write tests" {
		t.Errorf("unexpected todos %v", got)
	}
}

func TestUseSetterWithoutInitialRequiresSlice(t *testing.T) {
	r := newTestRegistry()
	_, err := mount(t, r, func() {
		UseSetter[int]("nope")
	})
	if !errors.Is(err, ErrUnregisteredKey) {
		t.Fatalf("expected ErrUnregisteredKey, got %v", err)
	}
}

func TestUseTypeMismatchPanics(t *testing.T) {
	r := newTestRegistry()
	_, _ = CreateSlice(r, "n", 1)

	_, err := mount(t, r, func() {
		Use("n", "one")
	})
	var tm *TypeMismatchError
	if !errors.As(err, &tm) {
		t.Fatalf("expected *TypeMismatchError, got %v", err)
	}
}

func TestUseAfterClearAdoptsNewInitial(t *testing.T) {
	r := newTestRegistry()
	if _, err := mount(t, r, func() { Use("count", 1) }); err != nil {
		t.Fatal(err)
	}

	r.Clear()
	if keys := r.Keys(); len(keys) != 0 {
		t.Fatalf("expected no keys, got %v", keys)
	}

	var got int
	if _, err := mount(t, r, func() { got, _ = Use("count", 2) }); err != nil {
		t.Fatal(err)
	}
	if got != 2 {
		t.Errorf("expected the new initial value 2, got %d", got)
	}
}

func TestMutatorsUseRenderContext(t *testing.T) {
	type ctxKey struct{}
	r := newTestRegistry(WithMiddleware(func(_ *Store, next Next) Next {
		return func(ctx context.Context, a Action) error {
			if ctx.Value(ctxKey{}) == nil {
				return errors.New("missing render context")
			}
			return next(ctx, a)
		}
	}))

	sched := vango.NewScheduler(vango.WithContext(context.WithValue(context.Background(), ctxKey{}, true)))
	t.Cleanup(sched.Unmount)

	var setErr error
	_, err := sched.Mount(Provider(r, func() {
		n, act := Use("n", 0)
		if n == 0 {
			vango.AfterRender(func() { setErr = act.Set(1) })
		}
	}))
	if err != nil {
		t.Fatal(err)
	}
	if setErr != nil {
		t.Errorf("expected dispatch to see the scheduler context, got %v", setErr)
	}
}
