package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vango-dev/slicestore/internal/config"
	"github.com/vango-dev/slicestore/internal/errors"
	"github.com/vango-dev/slicestore/pkg/devtools"
	"github.com/vango-dev/slicestore/pkg/store"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func sqliteConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.New()
	cfg.Name = "test-app"
	cfg.Storage.Driver = config.DriverSQLite
	cfg.Storage.DSN = filepath.Join(t.TempDir(), "state.db")
	cfg.Persist.Debounce = config.Duration(time.Hour)
	cfg.Devtools.Metrics = true
	cfg.Slices = []config.SliceConfig{
		{Key: "filter", Initial: json.RawMessage(`"all"`)},
		{Key: "todos", Initial: json.RawMessage(`[]`)},
	}
	require.NoError(t, cfg.Validate())
	return cfg
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAppRegistersConfiguredSlices(t *testing.T) {
	ctx := context.Background()
	a, err := newApp(ctx, sqliteConfig(t), discard)
	require.NoError(t, err)
	defer a.Close(ctx)

	assert.Equal(t, []string{"filter", "todos"}, a.registry.Keys())

	rec := do(t, a.Handler(), http.MethodGet, "/slices/filter", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var info devtools.SliceInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, "all", info.Value)
}

func TestAppPersistsAcrossRestarts(t *testing.T) {
	ctx := context.Background()
	cfg := sqliteConfig(t)

	a, err := newApp(ctx, cfg, discard)
	require.NoError(t, err)

	rec := do(t, a.Handler(), http.MethodPut, "/slices/filter", `"done"`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = do(t, a.Handler(), http.MethodPost, "/slices", `{"key":"later","initial":1}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	require.NoError(t, a.Close(ctx))

	b, err := newApp(ctx, cfg, discard)
	require.NoError(t, err)
	defer b.Close(ctx)

	v, ok := b.registry.Store().Value("filter")
	require.True(t, ok)
	assert.Equal(t, "done", v)

	// "later" is not declared in the config, so it waits for registration.
	assert.Equal(t, []string{"later"}, b.registry.Store().PendingKeys())
	_, err = store.CreateSlice[any](b.registry, "later", 0)
	require.NoError(t, err)
	v, _ = b.registry.Store().Value("later")
	assert.Equal(t, float64(1), v)
}

func TestAppVersionMismatch(t *testing.T) {
	ctx := context.Background()
	cfg := sqliteConfig(t)

	a, err := newApp(ctx, cfg, discard)
	require.NoError(t, err)
	require.NoError(t, a.registry.Store().Set(ctx, "filter", "done"))
	require.NoError(t, a.Close(ctx))

	cfg.Persist.Version = 2
	_, err = newApp(ctx, cfg, discard)
	require.Error(t, err)
	assert.Equal(t, "E203", errors.Code(err))
}

func TestAppMetricsEndpoint(t *testing.T) {
	ctx := context.Background()
	a, err := newApp(ctx, sqliteConfig(t), discard)
	require.NoError(t, err)
	defer a.Close(ctx)

	require.NoError(t, a.registry.Store().Set(ctx, "filter", "open"))

	rec := do(t, a.Handler(), http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `slicestore_actions_total{key="filter",kind="set",status="success"} 1`)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestRegistryOptionsStrict(t *testing.T) {
	cfg := config.New()
	cfg.Middleware.Strict = true
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	r := store.NewRegistry(registryOptions(cfg, logger, nil)...)
	_, err := store.CreateSlice[any](r, "fn", nil)
	require.NoError(t, err)

	err = r.Store().Set(context.Background(), "fn", func() {})
	assert.ErrorIs(t, err, store.ErrNotSerializable)
}

func TestRegisterSlicesInvalidInitial(t *testing.T) {
	err := registerSlices(store.NewRegistry(store.WithLogger(discard)), []config.SliceConfig{
		{Key: "bad", Initial: json.RawMessage(`{`)},
	})
	require.Error(t, err)
	assert.Equal(t, "E108", errors.Code(err))
}

func TestOriginChecker(t *testing.T) {
	req := func(host, origin string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "http://"+host+"/actions", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}

	same := originChecker(nil)
	assert.True(t, same(req("localhost:4100", "")))
	assert.True(t, same(req("localhost:4100", "http://localhost:4100")))
	assert.False(t, same(req("localhost:4100", "http://evil.test")))

	listed := originChecker([]string{"http://app.test"})
	assert.True(t, listed(req("localhost:4100", "http://app.test")))
	assert.False(t, listed(req("localhost:4100", "http://localhost:4100")))
}

func TestRunInspect(t *testing.T) {
	ctx := context.Background()
	cfg := sqliteConfig(t)

	a, err := newApp(ctx, cfg, discard)
	require.NoError(t, err)
	require.NoError(t, a.registry.Store().Set(ctx, "todos", []any{"a", "b"}))
	require.NoError(t, a.Close(ctx))

	var out bytes.Buffer
	require.NoError(t, runInspect(ctx, &out, cfg, "", "", false))
	assert.Contains(t, out.String(), "todos")
	assert.Contains(t, out.String(), `["a","b"]`)

	out.Reset()
	require.NoError(t, runInspect(ctx, &out, cfg, "todos", "len(state)", false))
	assert.Equal(t, "2\n", out.String())

	err = runInspect(ctx, &out, cfg, "todo", "", false)
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrUnregisteredKey)
	assert.Contains(t, err.Error(), `did you mean "todos"`)
}

func TestRunInspectNoSnapshot(t *testing.T) {
	cfg := sqliteConfig(t)
	var out bytes.Buffer
	require.NoError(t, runInspect(context.Background(), &out, cfg, "", "", false))
	assert.Contains(t, out.String(), "No snapshot")
}

func TestPurgeCommand(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cfg := sqliteConfig(t)
	cfg.Storage.DSN = filepath.Join(dir, "state.db")
	path := filepath.Join(dir, config.ConfigFileName)
	require.NoError(t, cfg.SaveTo(path))

	a, err := newApp(ctx, cfg, discard)
	require.NoError(t, err)
	require.NoError(t, a.registry.Store().Set(ctx, "filter", "done"))
	require.NoError(t, a.Close(ctx))

	var before bytes.Buffer
	require.NoError(t, runInspect(ctx, &before, cfg, "", "", false))
	require.Contains(t, before.String(), "filter")

	run := func(args ...string) (string, error) {
		cmd := newRootCmd()
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetErr(&out)
		cmd.SetArgs(append(args, "--config", path, "--env-file", filepath.Join(dir, "missing.env")))
		err := cmd.ExecuteContext(ctx)
		return out.String(), err
	}

	_, err = run("purge")
	require.Error(t, err)
	assert.Equal(t, "E400", errors.Code(err))

	out, err := run("purge", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "Purged")

	var buf bytes.Buffer
	require.NoError(t, runInspect(ctx, &buf, cfg, "", "", false))
	assert.Contains(t, buf.String(), "No snapshot")
}

func TestLoadConfigReadsEnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("SLICESTORE_DEVTOOLS_PORT=4321\n"), 0644))
	path := filepath.Join(dir, config.ConfigFileName)
	require.NoError(t, config.New().SaveTo(path))
	t.Cleanup(func() { os.Unsetenv("SLICESTORE_DEVTOOLS_PORT") })

	cfg, err := loadConfig(&globalFlags{configPath: path, envFile: envFile})
	require.NoError(t, err)
	assert.Equal(t, 4321, cfg.Devtools.Port)
}

func TestNewLogger(t *testing.T) {
	cfg := config.New()
	cfg.Log.Format = "json"
	cfg.Log.Level = "warn"

	var buf bytes.Buffer
	logger := newLogger(cfg, &buf)
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	assert.NotContains(t, buf.String(), "hidden")
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "shown", entry["msg"])
}

func TestVersionCommand(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version", "--short"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, version+"\n", out.String())
}
