package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
)

func newTestRegistry(opts ...Option) *Registry {
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	return NewRegistry(opts...)
}

func TestCreateSliceFirstWriterWins(t *testing.T) {
	r := newTestRegistry()

	first, err := CreateSlice(r, "count", 1)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, err := CreateSlice(r, "count", 2)
	if err != nil {
		t.Fatalf("create again: %v", err)
	}

	if first != second {
		t.Fatal("expected the same slice for the same key")
	}
	if second.Initial() != 1 {
		t.Errorf("expected initial 1, got %v", second.Initial())
	}
}

func TestCreateSliceRejectsEmptyKey(t *testing.T) {
	r := newTestRegistry()
	if _, err := CreateSlice(r, "", 0); !errors.Is(err, ErrEmptyKey) {
		t.Fatalf("expected ErrEmptyKey, got %v", err)
	}
}

func TestRegistrySliceHasNoSideEffects(t *testing.T) {
	r := newTestRegistry()

	if _, ok := r.Slice("missing"); ok {
		t.Fatal("expected no slice")
	}
	if keys := r.Keys(); len(keys) != 0 {
		t.Errorf("lookup registered keys: %v", keys)
	}
}

func TestRegistryKeysSorted(t *testing.T) {
	r := newTestRegistry()
	for _, k := range []string{"b", "c", "a"} {
		if _, err := CreateSlice(r, k, 0); err != nil {
			t.Fatal(err)
		}
	}

	keys := r.Keys()
	want := []string{"a", "b", "c"}
	if len(keys) != len(want) {
		t.Fatalf("expected %v, got %v", want, keys)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, keys)
		}
	}
}

func TestRegistryStoreIsLazyAndShared(t *testing.T) {
	r := newTestRegistry()
	if _, err := CreateSlice(r, "name", "ada"); err != nil {
		t.Fatal(err)
	}

	s1 := r.Store()
	s2 := r.Store()
	if s1 != s2 {
		t.Fatal("expected one store per registry")
	}
	if v, ok := s1.Value("name"); !ok || v != "ada" {
		t.Errorf("expected ada, got %v (ok=%v)", v, ok)
	}
}

func TestRegistryClear(t *testing.T) {
	r := newTestRegistry()
	if _, err := CreateSlice(r, "count", 1); err != nil {
		t.Fatal(err)
	}
	old := r.Store()

	r.Clear()

	if keys := r.Keys(); len(keys) != 0 {
		t.Fatalf("expected no keys after Clear, got %v", keys)
	}
	if err := old.Set(context.Background(), "count", 5); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("expected ErrStoreClosed from old store, got %v", err)
	}

	// A previously used key adopts the new initial value.
	s, err := CreateSlice(r, "count", 10)
	if err != nil {
		t.Fatal(err)
	}
	if s.Initial() != 10 {
		t.Errorf("expected initial 10 after Clear, got %v", s.Initial())
	}
	st := r.Store()
	if st == old {
		t.Fatal("expected a new store after Clear")
	}
	if v, _ := st.Value("count"); v != 10 {
		t.Errorf("expected 10, got %v", v)
	}
}

func TestRegistryRecompositionPreservesValues(t *testing.T) {
	r := newTestRegistry()
	if _, err := CreateSlice(r, "a", 1); err != nil {
		t.Fatal(err)
	}
	st := r.Store()
	if err := st.Set(context.Background(), "a", 42); err != nil {
		t.Fatal(err)
	}

	var replaced []string
	cancel := r.Subscribe(func(_ *Store, a Action) {
		if a.Kind == KindReplace {
			replaced = append(replaced, a.Key)
		}
	})
	defer cancel()

	if _, err := CreateSlice(r, "b", "new"); err != nil {
		t.Fatal(err)
	}

	if v, _ := st.Value("a"); v != 42 {
		t.Errorf("expected a=42 after recomposition, got %v", v)
	}
	if v, ok := st.Value("b"); !ok || v != "new" {
		t.Errorf("expected b readable as its initial value, got %v (ok=%v)", v, ok)
	}
	if len(replaced) != 1 || replaced[0] != "b" {
		t.Errorf("expected one replace notification for b, got %v", replaced)
	}
}

func TestRegistrySubscribeCancel(t *testing.T) {
	r := newTestRegistry()
	if _, err := CreateSlice(r, "n", 0); err != nil {
		t.Fatal(err)
	}

	var seen []string
	cancel := r.Subscribe(func(_ *Store, a Action) {
		seen = append(seen, a.Type)
	})

	st := r.Store()
	_ = st.Set(context.Background(), "n", 1)
	cancel()
	_ = st.Set(context.Background(), "n", 2)

	if len(seen) != 1 || seen[0] != "n/set" {
		t.Errorf("expected [n/set], got %v", seen)
	}
}

func TestMissingKeySuggestion(t *testing.T) {
	r := newTestRegistry()
	if _, err := CreateSlice(r, "counter", 0); err != nil {
		t.Fatal(err)
	}

	err := r.missing("countr")
	var mk *MissingKeyError
	if !errors.As(err, &mk) {
		t.Fatalf("expected *MissingKeyError, got %T", err)
	}
	if mk.Suggestion != "counter" {
		t.Errorf("expected suggestion counter, got %q", mk.Suggestion)
	}
	if !errors.Is(err, ErrUnregisteredKey) {
		t.Error("expected errors.Is(err, ErrUnregisteredKey)")
	}

	if s := SuggestKey("zzzzzzzz", []string{"counter"}); s != "" {
		t.Errorf("expected no suggestion for a distant key, got %q", s)
	}
}
