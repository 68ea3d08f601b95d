package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/vango-dev/slicestore/pkg/store"
)

// ErrPanic is matched by errors returned when Recover catches a panic.
var ErrPanic = errors.New("middleware: panic during dispatch")

// PanicError carries the recovered value and stack.
type PanicError struct {
	Action string
	Value  any
	Stack  []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("middleware: panic dispatching %s: %v", e.Action, e.Value)
}

// Unwrap returns ErrPanic, and the recovered value when it is an error.
func (e *PanicError) Unwrap() []error {
	if err, ok := e.Value.(error); ok {
		return []error{ErrPanic, err}
	}
	return []error{ErrPanic}
}

// Recover creates middleware that turns panics further down the chain into
// a *PanicError. Install it first so it covers every other middleware.
// If logger is nil, the store's logger is used.
func Recover(logger *slog.Logger) store.Middleware {
	return func(s *store.Store, next store.Next) store.Next {
		log := logger
		if log == nil {
			log = s.Logger()
		}

		return func(ctx context.Context, a store.Action) (err error) {
			defer func() {
				if r := recover(); r != nil {
					pe := &PanicError{Action: a.Type, Value: r, Stack: debug.Stack()}
					log.Error("panic during dispatch",
						"action", a.Type,
						"panic", r,
						"stack", string(pe.Stack),
					)
					err = pe
				}
			}()
			return next(ctx, a)
		}
	}
}
