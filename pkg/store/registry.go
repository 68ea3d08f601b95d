package store

import (
	"log/slog"
	"sort"
	"sync"
)

// Subscriber is called after every action a Store applies and whenever a
// slice is added to an existing Store (a KindReplace action).
type Subscriber func(s *Store, a Action)

// Config configures a Registry.
type Config struct {
	// Logger receives registration and dispatch diagnostics.
	// If nil, slog.Default() is used.
	Logger *slog.Logger

	// SerializableCheck configures the default serializability middleware.
	SerializableCheck SerializableCheckConfig

	// Middleware builds the store's middleware chain from the defaults.
	// If nil, the defaults are used as-is.
	Middleware func(defaults []Middleware) []Middleware
}

// Option configures a Registry.
type Option func(*Config)

// WithLogger sets the registry logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithSerializableCheck replaces the serializability check configuration.
func WithSerializableCheck(cfg SerializableCheckConfig) Option {
	return func(c *Config) {
		c.SerializableCheck = cfg
	}
}

// WithMiddleware appends middleware after the defaults. The first middleware
// in the final chain sees an action first.
func WithMiddleware(mw ...Middleware) Option {
	return func(c *Config) {
		prev := c.Middleware
		c.Middleware = func(defaults []Middleware) []Middleware {
			if prev != nil {
				defaults = prev(defaults)
			}
			return append(defaults, mw...)
		}
	}
}

// WithMiddlewareFunc lets the caller rebuild the chain from the defaults,
// for example to drop or reorder them.
func WithMiddlewareFunc(fn func(defaults []Middleware) []Middleware) Option {
	return func(c *Config) {
		c.Middleware = fn
	}
}

// Registry maps keys to slices and owns the lazily created Store.
// Registries are independent: tests should create one per case.
type Registry struct {
	mu     sync.Mutex
	slices map[string]*Slice
	store  *Store

	config Config
	logger *slog.Logger

	subsMu  sync.RWMutex
	subs    map[uint64]Subscriber
	nextSub uint64
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	cfg := Config{
		SerializableCheck: DefaultSerializableCheckConfig(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Registry{
		slices: make(map[string]*Slice),
		config: cfg,
		logger: cfg.Logger,
		subs:   make(map[uint64]Subscriber),
	}
}

// Logger returns the registry logger.
func (r *Registry) Logger() *slog.Logger {
	return r.logger
}

// Slice returns the slice registered for key. It has no side effects.
func (r *Registry) Slice(key string) (*Slice, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slices[key]
	return s, ok
}

// CreateSlice returns the slice for key, registering it with initial when
// the key is new. An existing slice is returned unchanged and initial is
// ignored. When the store already exists, it gains a cell for the new key
// before CreateSlice returns.
func CreateSlice[T any](r *Registry, key string, initial T) (*Slice, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}

	r.mu.Lock()
	if s, ok := r.slices[key]; ok {
		r.mu.Unlock()
		return s, nil
	}

	s := newSlice(key, initial)
	r.slices[key] = s
	st := r.store
	added := st != nil && st.compose(s)
	r.mu.Unlock()

	r.logger.Debug("slice registered", "key", key, "type", s.typ.String(), "recomposed", added)
	if added {
		r.publish(st, replaceAction(key))
	}
	return s, nil
}

// Keys returns the registered keys in sorted order.
func (r *Registry) Keys() []string {
	r.mu.Lock()
	keys := make([]string, 0, len(r.slices))
	for k := range r.slices {
		keys = append(keys, k)
	}
	r.mu.Unlock()

	sort.Strings(keys)
	return keys
}

// Store returns the registry's store, creating it from the registered slices
// on first use.
func (r *Registry) Store() *Store {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.store == nil {
		r.store = newStore(r, r.slices)
		r.logger.Debug("store created", "store", r.store.ID(), "slices", len(r.slices))
	}
	return r.store
}

// Clear removes every slice and tears the store down; the next Store call
// builds an empty one. Not safe while components are mounted.
func (r *Registry) Clear() {
	r.mu.Lock()
	old := r.store
	r.slices = make(map[string]*Slice)
	r.store = nil
	r.mu.Unlock()

	if old != nil {
		old.close()
	}
	r.logger.Debug("registry cleared")
}

// Subscribe registers fn for applied actions on the current and any future
// store. The returned function cancels the subscription.
func (r *Registry) Subscribe(fn Subscriber) (cancel func()) {
	r.subsMu.Lock()
	r.nextSub++
	id := r.nextSub
	r.subs[id] = fn
	r.subsMu.Unlock()

	return func() {
		r.subsMu.Lock()
		delete(r.subs, id)
		r.subsMu.Unlock()
	}
}

func (r *Registry) publish(s *Store, a Action) {
	r.subsMu.RLock()
	ids := make([]uint64, 0, len(r.subs))
	for id := range r.subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	subs := make([]Subscriber, len(ids))
	for i, id := range ids {
		subs[i] = r.subs[id]
	}
	r.subsMu.RUnlock()

	for _, fn := range subs {
		fn(s, a)
	}
}

// missing builds a MissingKeyError with a suggestion from the current keys.
func (r *Registry) missing(key string) error {
	return &MissingKeyError{Key: key, Suggestion: SuggestKey(key, r.Keys())}
}
