package middleware

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/vango-dev/slicestore/pkg/store"
)

var errBoom = errors.New("boom")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRegistry(mw ...store.Middleware) *store.Registry {
	return store.NewRegistry(store.WithLogger(discardLogger()), store.WithMiddleware(mw...))
}

func panicking(v any) store.Middleware {
	return func(_ *store.Store, next store.Next) store.Next {
		return func(ctx context.Context, a store.Action) error {
			if a.Key == "explode" {
				panic(v)
			}
			return next(ctx, a)
		}
	}
}

func TestRecoverTurnsPanicIntoError(t *testing.T) {
	r := newRegistry(Recover(nil), panicking(errBoom))
	_, _ = store.CreateSlice(r, "explode", 0)
	_, _ = store.CreateSlice(r, "fine", 0)

	err := r.Store().Set(context.Background(), "explode", 1)
	if !errors.Is(err, ErrPanic) {
		t.Fatalf("expected ErrPanic, got %v", err)
	}
	if !errors.Is(err, errBoom) {
		t.Errorf("expected the recovered error to be wrapped, got %v", err)
	}
	var pe *PanicError
	if !errors.As(err, &pe) || len(pe.Stack) == 0 {
		t.Errorf("expected *PanicError with a stack, got %#v", err)
	}

	if err := r.Store().Set(context.Background(), "fine", 1); err != nil {
		t.Errorf("store should keep working after a panic, got %v", err)
	}
}

func TestRecoverNonErrorValue(t *testing.T) {
	r := newRegistry(Recover(discardLogger()), panicking("bad"))
	_, _ = store.CreateSlice(r, "explode", 0)

	err := r.Store().Set(context.Background(), "explode", 1)
	if !errors.Is(err, ErrPanic) {
		t.Fatalf("expected ErrPanic, got %v", err)
	}
	if !strings.Contains(err.Error(), "bad") {
		t.Errorf("expected panic value in message, got %q", err.Error())
	}
}

func TestLoggerLogsActions(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	r := newRegistry(Logger(logger, WithPayload(true)))
	_, _ = store.CreateSlice(r, "count", 0)

	if err := r.Store().Set(context.Background(), "count", 3); err != nil {
		t.Fatal(err)
	}
	_ = r.Store().Set(context.Background(), "count", "three")

	out := buf.String()
	if !strings.Contains(out, "msg=action") || !strings.Contains(out, "type=count/set") || !strings.Contains(out, "payload=3") {
		t.Errorf("expected a success line with payload, got %q", out)
	}
	if !strings.Contains(out, "level=WARN") || !strings.Contains(out, `msg="action failed"`) {
		t.Errorf("expected a warning for the failed action, got %q", out)
	}
}

func TestLoggerSkip(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	r := newRegistry(Logger(logger, WithSkip(func(a store.Action) bool { return a.Key == "noisy" })))
	_, _ = store.CreateSlice(r, "noisy", 0)

	if err := r.Store().Set(context.Background(), "noisy", 1); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(buf.String(), "noisy") {
		t.Errorf("expected skipped action not to be logged, got %q", buf.String())
	}
}

func TestCategorizeError(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&store.MissingKeyError{Key: "x"}, "missing_key"},
		{&store.TypeMismatchError{Key: "x"}, "type_mismatch"},
		{store.ErrNotMergeable, "invalid_merge"},
		{store.ErrNotSerializable, "not_serializable"},
		{store.ErrStoreClosed, "closed"},
		{&PanicError{Value: "x"}, "panic"},
		{context.DeadlineExceeded, "timeout"},
		{errBoom, "internal"},
	}
	for _, tt := range tests {
		if got := categorizeError(tt.err); got != tt.want {
			t.Errorf("categorizeError(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
