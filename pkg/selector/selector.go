// Package selector evaluates string selector expressions against slice
// values using github.com/expr-lang/expr.
//
// The slice value is bound to the variable state:
//
//	ev := selector.New()
//	n, err := ev.Select(reg.Store(), "todos", "len(filter(state, {.done}))")
//
// By default values are viewed through their JSON encoding, so struct fields
// are addressed by their json names, the same names the devtools API uses.
package selector

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	exprlang "github.com/expr-lang/expr"
	exprvm "github.com/expr-lang/expr/vm"

	"github.com/vango-dev/slicestore/pkg/store"
)

// DefaultCacheSize is the number of compiled programs kept by default.
const DefaultCacheSize = 256

// ErrEmptyExpression is returned for an empty selector.
var ErrEmptyExpression = errors.New("selector: expression must not be empty")

// Error wraps a compile or run failure with the expression.
type Error struct {
	Expression string
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("selector: %q: %v", e.Expression, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithCacheSize bounds the compiled program cache. When full, the cache is
// emptied before the next program is added.
func WithCacheSize(n int) Option {
	return func(e *Evaluator) {
		if n > 0 {
			e.cacheSize = n
		}
	}
}

// WithJSONView controls whether values are converted to their JSON shape
// before evaluation. Default: true.
func WithJSONView(enabled bool) Option {
	return func(e *Evaluator) {
		e.jsonView = enabled
	}
}

// Evaluator compiles selector expressions once and runs them many times.
// It is safe for concurrent use.
type Evaluator struct {
	mu        sync.RWMutex
	programs  map[string]*exprvm.Program
	cacheSize int
	jsonView  bool
}

// New creates an Evaluator.
func New(opts ...Option) *Evaluator {
	e := &Evaluator{
		programs:  make(map[string]*exprvm.Program),
		cacheSize: DefaultCacheSize,
		jsonView:  true,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Compile returns the program for expression, compiling it on first use.
func (e *Evaluator) Compile(expression string) (*exprvm.Program, error) {
	if expression == "" {
		return nil, ErrEmptyExpression
	}

	e.mu.RLock()
	program, ok := e.programs[expression]
	e.mu.RUnlock()
	if ok {
		return program, nil
	}

	program, err := exprlang.Compile(expression,
		exprlang.Env(map[string]any{"state": nil}),
		exprlang.AllowUndefinedVariables(),
	)
	if err != nil {
		return nil, &Error{Expression: expression, Err: err}
	}

	e.mu.Lock()
	if len(e.programs) >= e.cacheSize {
		e.programs = make(map[string]*exprvm.Program)
	}
	e.programs[expression] = program
	e.mu.Unlock()
	return program, nil
}

// Cached returns the number of compiled programs in the cache.
func (e *Evaluator) Cached() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.programs)
}

// Eval runs expression with state bound to value.
func (e *Evaluator) Eval(expression string, value any) (any, error) {
	program, err := e.Compile(expression)
	if err != nil {
		return nil, err
	}

	if e.jsonView {
		if value, err = jsonView(value); err != nil {
			return nil, &Error{Expression: expression, Err: err}
		}
	}

	out, err := exprlang.Run(program, map[string]any{"state": value})
	if err != nil {
		return nil, &Error{Expression: expression, Err: err}
	}
	return out, nil
}

// Select evaluates expression against key's current value in s.
func (e *Evaluator) Select(s *store.Store, key, expression string) (any, error) {
	value, err := s.Lookup(key)
	if err != nil {
		return nil, err
	}
	return e.Eval(expression, value)
}

// jsonView converts v to the generic form encoding/json decodes into.
func jsonView(v any) (any, error) {
	switch v.(type) {
	case nil, bool, string, float64:
		return v, nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
