package persist

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vango-dev/slicestore/pkg/store"
)

type settings struct {
	Theme string `json:"theme"`
	Size  int    `json:"size"`
}

func newRegistry() *store.Registry {
	return store.NewRegistry(store.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

func TestPersistorRoundTrip(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()

	src := newRegistry()
	_, err := store.CreateSlice(src, "count", 0)
	require.NoError(t, err)
	_, err = store.CreateSlice(src, "settings", settings{Theme: "light"})
	require.NoError(t, err)
	require.NoError(t, src.Store().Set(ctx, "count", 7))
	require.NoError(t, src.Store().Merge(ctx, "settings", store.Patch{"theme": "dark"}))

	require.NoError(t, New(src, storage).Flush(ctx))

	// A fresh process registers count up front and settings lazily.
	dst := newRegistry()
	_, err = store.CreateSlice(dst, "count", 0)
	require.NoError(t, err)

	require.NoError(t, New(dst, storage).Rehydrate(ctx))

	count, err := store.Get[int](dst.Store(), "count")
	require.NoError(t, err)
	assert.Equal(t, 7, count)
	assert.Equal(t, []string{"settings"}, dst.Store().PendingKeys())

	_, err = store.CreateSlice(dst, "settings", settings{Theme: "light", Size: 12})
	require.NoError(t, err)
	got, err := store.Get[settings](dst.Store(), "settings")
	require.NoError(t, err)
	assert.Equal(t, settings{Theme: "dark"}, got)
}

func TestPersistorKeepsPendingValues(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	require.NoError(t, storage.Save(ctx, DefaultName, []byte(`{"version":1,"state":{"later":"x"}}`)))

	r := newRegistry()
	p := New(r, storage)
	require.NoError(t, p.Rehydrate(ctx))
	require.NoError(t, p.Flush(ctx))

	env, err := p.Load(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `"x"`, string(env.State["later"]))
}

func TestPersistorFilters(t *testing.T) {
	r := newRegistry()
	for _, k := range []string{"a", "b", "secret"} {
		_, err := store.CreateSlice(r, k, k)
		require.NoError(t, err)
	}

	env, err := New(r, NewMemoryStorage(), WithExcludeKeys("secret")).Snapshot()
	require.NoError(t, err)
	assert.Len(t, env.State, 2)
	assert.NotContains(t, env.State, "secret")

	env, err = New(r, NewMemoryStorage(), WithKeys("a")).Snapshot()
	require.NoError(t, err)
	assert.Len(t, env.State, 1)
	assert.Contains(t, env.State, "a")
}

func TestPersistorVersionMismatch(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	require.NoError(t, storage.Save(ctx, DefaultName, []byte(`{"version":1,"state":{"n":1}}`)))

	r := newRegistry()
	_, err := store.CreateSlice(r, "n", 0)
	require.NoError(t, err)

	err = New(r, storage, WithVersion(2)).Rehydrate(ctx)
	assert.ErrorIs(t, err, ErrVersionMismatch)

	migrated := New(r, storage, WithVersion(2), WithMigrate(func(from int, state map[string]json.RawMessage) (map[string]json.RawMessage, error) {
		assert.Equal(t, 1, from)
		state["n"] = json.RawMessage(`10`)
		return state, nil
	}))
	require.NoError(t, migrated.Rehydrate(ctx))

	n, err := store.Get[int](r.Store(), "n")
	require.NoError(t, err)
	assert.Equal(t, 10, n)
}

func TestPersistorRehydrateWithoutSnapshot(t *testing.T) {
	r := newRegistry()
	assert.NoError(t, New(r, NewMemoryStorage()).Rehydrate(context.Background()))
}

func TestPersistorRestorePassesStrictCheck(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	require.NoError(t, storage.Save(ctx, DefaultName, []byte(`{"version":1,"state":{"n":3}}`)))

	cfg := store.DefaultSerializableCheckConfig()
	cfg.Strict = true
	r := store.NewRegistry(store.WithSerializableCheck(cfg))
	_, err := store.CreateSlice(r, "n", 0)
	require.NoError(t, err)

	require.NoError(t, New(r, storage).Rehydrate(ctx))
}

func TestPersistorDebouncedSave(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	r := newRegistry()
	_, err := store.CreateSlice(r, "n", 0)
	require.NoError(t, err)

	p := New(r, storage, WithDebounce(10*time.Millisecond))
	p.Start()
	defer p.Stop(ctx)

	for i := 1; i <= 5; i++ {
		require.NoError(t, r.Store().Set(ctx, "n", i))
	}

	require.Eventually(t, func() bool {
		env, err := p.Load(ctx)
		return err == nil && env != nil && string(env.State["n"]) == "5"
	}, time.Second, 5*time.Millisecond)
}

func TestPersistorStopFlushesPending(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	r := newRegistry()
	_, err := store.CreateSlice(r, "n", 0)
	require.NoError(t, err)

	p := New(r, storage, WithDebounce(time.Hour))
	p.Start()
	require.NoError(t, r.Store().Set(ctx, "n", 42))
	assert.True(t, p.Pending())

	require.NoError(t, p.Stop(ctx))
	assert.False(t, p.Pending())

	env, err := p.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, env)
	assert.Equal(t, "42", string(env.State["n"]))

	require.NoError(t, p.Purge(ctx))
	env, err = p.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, env)
}
