// Package devtools serves an HTTP API for inspecting and mutating a
// registry's store, plus a live WebSocket stream of applied actions.
//
// Routes:
//
//	GET    /slices               registered and pending keys
//	POST   /slices               register an untyped slice {"key", "initial"}
//	GET    /slices/{key}         current value; ?select=<expr> projects it
//	PUT    /slices/{key}         set the value (body decoded as the slice type)
//	PATCH  /slices/{key}         merge a JSON object into a record value
//	POST   /slices/{key}/reset   restore the initial value
//	GET    /state                snapshot of every value
//	GET    /actions              WebSocket action stream
//	GET    /metrics              Prometheus metrics, when enabled
//
// Mount it under any prefix:
//
//	dt := devtools.New(reg, devtools.WithMetrics(prometheus.DefaultGatherer))
//	defer dt.Close()
//	r.Mount("/_slices", dt)
package devtools

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vango-dev/slicestore/pkg/selector"
	"github.com/vango-dev/slicestore/pkg/store"
)

const maxBodyBytes = 1 << 20

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger. Default: the registry logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithSelector sets the evaluator for ?select= queries.
func WithSelector(ev *selector.Evaluator) Option {
	return func(s *Server) {
		s.selector = ev
	}
}

// WithMetrics serves gatherer on /metrics.
func WithMetrics(gatherer prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metrics = promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
	}
}

// WithReadOnly rejects every mutating request with 403.
func WithReadOnly(readOnly bool) Option {
	return func(s *Server) {
		s.readOnly = readOnly
	}
}

// WithCheckOrigin sets the WebSocket origin check. Default: allow all.
func WithCheckOrigin(fn func(r *http.Request) bool) Option {
	return func(s *Server) {
		s.checkOrigin = fn
	}
}

// Server is the devtools HTTP handler.
type Server struct {
	registry    *store.Registry
	selector    *selector.Evaluator
	logger      *slog.Logger
	metrics     http.Handler
	readOnly    bool
	checkOrigin func(r *http.Request) bool

	hub         *Hub
	router      chi.Router
	unsubscribe func()
}

// New creates a devtools server for r and subscribes its action stream.
// Call Close to unsubscribe and disconnect stream clients.
func New(r *store.Registry, opts ...Option) *Server {
	s := &Server{
		registry: r,
		logger:   r.Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.selector == nil {
		s.selector = selector.New()
	}

	s.hub = NewHub(s.checkOrigin)
	s.unsubscribe = r.Subscribe(s.hub.Publish)
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(s.logRequests)

	r.Get("/slices", s.listSlices)
	r.Get("/slices/{key}", s.getSlice)
	r.Get("/state", s.getState)
	r.Get("/actions", s.hub.HandleWebSocket)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(s.requireWritable)
		r.Post("/slices", s.createSlice)
		r.Put("/slices/{key}", s.setSlice)
		r.Patch("/slices/{key}", s.mergeSlice)
		r.Post("/slices/{key}/reset", s.resetSlice)
	})
	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Hub returns the action stream hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Close unsubscribes from the registry and disconnects stream clients.
func (s *Server) Close() {
	s.unsubscribe()
	s.hub.Close()
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("devtools request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
		)
	})
}

func (s *Server) requireWritable(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.readOnly {
			writeError(w, http.StatusForbidden, errors.New("devtools: read-only"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// SliceInfo describes one slice in API responses.
type SliceInfo struct {
	Key   string `json:"key"`
	Type  string `json:"type,omitempty"`
	Value any    `json:"value"`
}

// KeysResponse is the body of GET /slices.
type KeysResponse struct {
	Keys    []string `json:"keys"`
	Pending []string `json:"pending"`
}

// StateResponse is the body of GET /state.
type StateResponse struct {
	StoreID string         `json:"storeId"`
	State   map[string]any `json:"state"`
}

// CreateRequest is the body of POST /slices.
type CreateRequest struct {
	Key     string          `json:"key"`
	Initial json.RawMessage `json:"initial"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error      string `json:"error"`
	Suggestion string `json:"suggestion,omitempty"`
}

func (s *Server) listSlices(w http.ResponseWriter, _ *http.Request) {
	st := s.registry.Store()
	writeJSON(w, http.StatusOK, KeysResponse{
		Keys:    s.registry.Keys(),
		Pending: st.PendingKeys(),
	})
}

func (s *Server) getSlice(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	st := s.registry.Store()

	if expr := r.URL.Query().Get("select"); expr != "" {
		out, err := s.selector.Select(st, key, expr)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, SliceInfo{Key: key, Value: out})
		return
	}

	s.writeSlice(w, http.StatusOK, st, key)
}

func (s *Server) writeSlice(w http.ResponseWriter, status int, st *store.Store, key string) {
	v, err := st.Lookup(key)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	info := SliceInfo{Key: key, Value: v}
	if sl, ok := st.Slice(key); ok {
		info.Type = sl.Type().String()
	}
	writeJSON(w, status, info)
}

func (s *Server) getState(w http.ResponseWriter, _ *http.Request) {
	st := s.registry.Store()
	writeJSON(w, http.StatusOK, StateResponse{StoreID: st.ID(), State: st.Snapshot()})
}

func (s *Server) createSlice(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var initial any
	if len(req.Initial) > 0 {
		if err := json.Unmarshal(req.Initial, &initial); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	status := http.StatusCreated
	if _, exists := s.registry.Slice(req.Key); exists {
		status = http.StatusOK
	}
	if _, err := store.CreateSlice(s.registry, req.Key, initial); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	s.writeSlice(w, status, s.registry.Store(), req.Key)
}

func (s *Server) setSlice(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	st := s.registry.Store()

	sl, ok := st.Slice(key)
	if !ok {
		_, err := st.Lookup(key)
		writeError(w, statusFor(err), err)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	value, err := sl.Decode(body)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}

	if err := st.Set(r.Context(), key, value); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	s.writeSlice(w, http.StatusOK, st, key)
}

func (s *Server) mergeSlice(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	st := s.registry.Store()

	var patch store.Patch
	if err := decodeBody(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := st.Merge(r.Context(), key, patch); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	s.writeSlice(w, http.StatusOK, st, key)
}

func (s *Server) resetSlice(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	st := s.registry.Store()

	if err := st.Reset(r.Context(), key); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	s.writeSlice(w, http.StatusOK, st, key)
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	return dec.Decode(v)
}

func statusFor(err error) int {
	var mismatch *store.TypeMismatchError
	var selErr *selector.Error
	switch {
	case errors.Is(err, store.ErrUnregisteredKey):
		return http.StatusNotFound
	case errors.Is(err, store.ErrEmptyKey):
		return http.StatusBadRequest
	case errors.As(err, &mismatch),
		errors.Is(err, store.ErrNotMergeable),
		errors.Is(err, store.ErrInvalidPatch),
		errors.Is(err, store.ErrNotSerializable),
		errors.As(err, &selErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, store.ErrStoreClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	resp := ErrorResponse{Error: err.Error()}
	var missing *store.MissingKeyError
	if errors.As(err, &missing) {
		resp.Suggestion = missing.Suggestion
	}
	writeJSON(w, status, resp)
}
