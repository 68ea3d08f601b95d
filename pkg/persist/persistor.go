package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vango-dev/slicestore/pkg/store"
)

// DefaultName is the snapshot name used when none is configured.
const DefaultName = "slicestore"

// ErrVersionMismatch is returned by Rehydrate when the stored snapshot has a
// different version and no migration is configured.
var ErrVersionMismatch = errors.New("persist: snapshot version mismatch")

// Envelope is the stored snapshot format.
type Envelope struct {
	Version int                        `json:"version"`
	SavedAt time.Time                  `json:"savedAt"`
	State   map[string]json.RawMessage `json:"state"`
}

// MigrateFunc upgrades state saved with version from to the current version.
type MigrateFunc func(from int, state map[string]json.RawMessage) (map[string]json.RawMessage, error)

// Option configures a Persistor.
type Option func(*Persistor)

// WithName sets the snapshot name. Default: DefaultName.
func WithName(name string) Option {
	return func(p *Persistor) {
		p.name = name
	}
}

// WithVersion sets the snapshot version written by Flush. Default: 1.
func WithVersion(v int) Option {
	return func(p *Persistor) {
		p.version = v
	}
}

// WithMigrate sets the function applied to snapshots with another version.
func WithMigrate(fn MigrateFunc) Option {
	return func(p *Persistor) {
		p.migrate = fn
	}
}

// WithDebounce sets how long Start waits after the last change before
// writing a snapshot. Default: 500ms.
func WithDebounce(d time.Duration) Option {
	return func(p *Persistor) {
		p.debounce = d
	}
}

// WithKeys persists only the given keys.
func WithKeys(keys ...string) Option {
	return func(p *Persistor) {
		p.include = toSet(keys)
	}
}

// WithExcludeKeys never persists the given keys.
func WithExcludeKeys(keys ...string) Option {
	return func(p *Persistor) {
		p.exclude = toSet(keys)
	}
}

// WithLogger sets the logger. Default: the registry logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Persistor) {
		p.logger = logger
	}
}

func toSet(keys []string) map[string]bool {
	set := make(map[string]bool, len(keys))
	for _, k := range keys {
		set[k] = true
	}
	return set
}

// Persistor writes the registry's store to a Storage and restores it.
type Persistor struct {
	registry *store.Registry
	storage  Storage
	logger   *slog.Logger

	name     string
	version  int
	migrate  MigrateFunc
	debounce time.Duration
	include  map[string]bool
	exclude  map[string]bool

	mu     sync.Mutex
	timer  *time.Timer
	cancel func()
	dirty  bool
}

// New creates a Persistor for r backed by storage.
func New(r *store.Registry, storage Storage, opts ...Option) *Persistor {
	p := &Persistor{
		registry: r,
		storage:  storage,
		logger:   r.Logger(),
		name:     DefaultName,
		version:  1,
		debounce: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the snapshot name.
func (p *Persistor) Name() string {
	return p.name
}

func (p *Persistor) persisted(key string) bool {
	if p.exclude[key] {
		return false
	}
	return p.include == nil || p.include[key]
}

// Load reads and decodes the stored snapshot without applying it.
// Returns (nil, nil) when nothing is stored.
func (p *Persistor) Load(ctx context.Context) (*Envelope, error) {
	data, err := p.storage.Load(ctx, p.name)
	if err != nil || data == nil {
		return nil, err
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("persist: decode snapshot %q: %w", p.name, err)
	}
	return &env, nil
}

// Rehydrate loads the stored snapshot and dispatches it to the store as a
// restore action. A missing snapshot is not an error.
func (p *Persistor) Rehydrate(ctx context.Context) error {
	env, err := p.Load(ctx)
	if err != nil {
		return err
	}
	if env == nil {
		p.logger.Debug("no snapshot to rehydrate", "name", p.name)
		return nil
	}

	state := env.State
	if env.Version != p.version {
		if p.migrate == nil {
			return fmt.Errorf("%w: stored %d, want %d", ErrVersionMismatch, env.Version, p.version)
		}
		if state, err = p.migrate(env.Version, state); err != nil {
			return fmt.Errorf("persist: migrate from version %d: %w", env.Version, err)
		}
	}

	filtered := make(map[string]json.RawMessage, len(state))
	for k, v := range state {
		if p.persisted(k) {
			filtered[k] = v
		}
	}

	if err := p.registry.Store().Dispatch(ctx, store.RestoreAction(filtered)); err != nil {
		return fmt.Errorf("persist: rehydrate: %w", err)
	}
	p.logger.Info("store rehydrated", "name", p.name, "keys", len(filtered), "savedAt", env.SavedAt)
	return nil
}

// Snapshot encodes the current store state. Rehydrated values still
// waiting for their slice are carried over unchanged.
func (p *Persistor) Snapshot() (*Envelope, error) {
	st := p.registry.Store()

	state := make(map[string]json.RawMessage)
	for _, key := range st.PendingKeys() {
		if raw, ok := st.Pending(key); ok && p.persisted(key) {
			state[key] = raw
		}
	}
	for key, v := range st.Snapshot() {
		if !p.persisted(key) {
			continue
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("persist: encode %q: %w", key, err)
		}
		state[key] = raw
	}

	return &Envelope{
		Version: p.version,
		SavedAt: time.Now().UTC(),
		State:   state,
	}, nil
}

// Flush writes a snapshot now.
func (p *Persistor) Flush(ctx context.Context) error {
	p.mu.Lock()
	p.dirty = false
	p.mu.Unlock()

	env, err := p.Snapshot()
	if err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("persist: encode snapshot: %w", err)
	}
	if err := p.storage.Save(ctx, p.name, data); err != nil {
		return err
	}
	p.logger.Debug("snapshot saved", "name", p.name, "keys", len(env.State), "bytes", len(data))
	return nil
}

// Purge deletes the stored snapshot.
func (p *Persistor) Purge(ctx context.Context) error {
	return p.storage.Delete(ctx, p.name)
}

// Start writes a snapshot after every burst of changes, once the debounce
// interval has passed without another change. Calling Start twice is a no-op.
func (p *Persistor) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		return
	}
	p.cancel = p.registry.Subscribe(func(_ *store.Store, a store.Action) {
		switch a.Kind {
		case store.KindSet, store.KindMerge, store.KindUpdate, store.KindReset:
			if p.persisted(a.Key) {
				p.schedule()
			}
		}
	})
}

func (p *Persistor) schedule() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.dirty = true
	if p.timer != nil {
		p.timer.Reset(p.debounce)
		return
	}
	p.timer = time.AfterFunc(p.debounce, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := p.Flush(ctx); err != nil {
			p.logger.Error("snapshot save failed", "name", p.name, "error", err)
		}
	})
}

// Pending reports whether changes are waiting to be written.
func (p *Persistor) Pending() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dirty
}

// Stop unsubscribes from the registry and writes any pending changes.
func (p *Persistor) Stop(ctx context.Context) error {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	dirty := p.dirty
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if dirty {
		return p.Flush(ctx)
	}
	return nil
}
