package main

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/vango-dev/slicestore/internal/config"
	"github.com/vango-dev/slicestore/internal/errors"
	"github.com/vango-dev/slicestore/pkg/devtools"
	"github.com/vango-dev/slicestore/pkg/middleware"
	"github.com/vango-dev/slicestore/pkg/persist"
	"github.com/vango-dev/slicestore/pkg/store"
)

// app is a running registry with its storage, persistor and devtools API.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	registry  *store.Registry
	metrics   *prometheus.Registry
	storage   persist.Storage
	persistor *persist.Persistor
	devtools  *devtools.Server
}

// newApp assembles the registry from cfg, registers the configured slices
// and rehydrates the last snapshot.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{
		cfg:     cfg,
		logger:  logger,
		metrics: prometheus.NewRegistry(),
	}
	a.metrics.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.registry = store.NewRegistry(registryOptions(cfg, logger, a.metrics)...)

	if err := registerSlices(a.registry, cfg.Slices); err != nil {
		return nil, err
	}

	storage, err := openStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.storage = storage

	if !cfg.Persist.Disabled {
		a.persistor = newPersistor(a.registry, storage, cfg, logger)
		if err := a.persistor.Rehydrate(ctx); err != nil {
			storage.Close()
			if stderrors.Is(err, persist.ErrVersionMismatch) {
				return nil, errors.New("E203").Wrap(err).
					WithSuggestion("Run 'slicestore purge' to discard the stored snapshot")
			}
			return nil, errors.New("E201").Wrap(err)
		}
		a.persistor.Start()
	}

	opts := []devtools.Option{
		devtools.WithLogger(logger),
		devtools.WithReadOnly(cfg.Devtools.ReadOnly),
		devtools.WithCheckOrigin(originChecker(cfg.Devtools.AllowedOrigins)),
	}
	if cfg.Devtools.Metrics {
		opts = append(opts, devtools.WithMetrics(a.metrics))
	}
	a.devtools = devtools.New(a.registry, opts...)
	return a, nil
}

// Handler returns the devtools HTTP handler.
func (a *app) Handler() http.Handler {
	return a.devtools
}

// Close stops the devtools stream, writes a final snapshot and closes the
// storage.
func (a *app) Close(ctx context.Context) error {
	a.devtools.Close()

	var errs []error
	if a.persistor != nil {
		if err := a.persistor.Stop(ctx); err != nil {
			errs = append(errs, errors.New("E202").Wrap(err))
		}
	}
	if err := a.storage.Close(); err != nil {
		errs = append(errs, err)
	}
	return stderrors.Join(errs...)
}

// registryOptions builds the middleware chain: panic recovery first, then
// the serializability check, then the optional observers.
func registryOptions(cfg *config.Config, logger *slog.Logger, reg prometheus.Registerer) []store.Option {
	check := store.DefaultSerializableCheckConfig()
	check.Strict = cfg.Middleware.Strict

	var observers []store.Middleware
	if cfg.Middleware.LogActions {
		observers = append(observers, middleware.Logger(logger, middleware.WithLogLevel(slog.LevelInfo)))
	}
	if cfg.Devtools.Metrics {
		observers = append(observers, middleware.Prometheus(middleware.WithRegistry(reg)))
	}
	if cfg.Middleware.Tracing {
		observers = append(observers, middleware.OpenTelemetry())
	}

	return []store.Option{
		store.WithLogger(logger),
		store.WithSerializableCheck(check),
		store.WithMiddlewareFunc(func(defaults []store.Middleware) []store.Middleware {
			chain := []store.Middleware{middleware.Recover(logger)}
			chain = append(chain, defaults...)
			return append(chain, observers...)
		}),
	}
}

// registerSlices registers untyped slices declared in the configuration.
func registerSlices(r *store.Registry, defs []config.SliceConfig) error {
	for _, def := range defs {
		var initial any
		if len(def.Initial) > 0 {
			if err := json.Unmarshal(def.Initial, &initial); err != nil {
				return errors.New("E108").WithDetail(fmt.Sprintf("slice %q: %v", def.Key, err))
			}
		}
		if _, err := store.CreateSlice(r, def.Key, initial); err != nil {
			return errors.New("E108").Wrap(err)
		}
	}
	return nil
}

func newPersistor(r *store.Registry, storage persist.Storage, cfg *config.Config, logger *slog.Logger) *persist.Persistor {
	opts := []persist.Option{
		persist.WithName(cfg.SnapshotName()),
		persist.WithVersion(cfg.Persist.Version),
		persist.WithDebounce(cfg.Persist.Debounce.Std()),
		persist.WithLogger(logger),
	}
	if len(cfg.Persist.Keys) > 0 {
		opts = append(opts, persist.WithKeys(cfg.Persist.Keys...))
	}
	if len(cfg.Persist.Exclude) > 0 {
		opts = append(opts, persist.WithExcludeKeys(cfg.Persist.Exclude...))
	}
	return persist.New(r, storage, opts...)
}

// originChecker allows the listed origins. With none listed, only requests
// without an Origin header or from the server's own host are accepted.
func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if len(allowed) > 0 {
			return slices.Contains(allowed, origin) || slices.Contains(allowed, "*")
		}
		u, err := url.Parse(origin)
		return err == nil && u.Host == r.Host
	}
}
