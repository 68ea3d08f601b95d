package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/vango-dev/slicestore/pkg/store"
)

// LoggerConfig configures the action logger.
type LoggerConfig struct {
	// Level is the level for successful actions (default: slog.LevelDebug).
	// Failures are always logged at slog.LevelWarn.
	Level slog.Level

	// IncludePayload logs the action payload. Payloads may hold user data.
	IncludePayload bool

	// Skip returns true for actions that should not be logged.
	Skip func(a store.Action) bool
}

// LoggerOption configures the action logger.
type LoggerOption func(*LoggerConfig)

// WithLogLevel sets the level for successful actions.
func WithLogLevel(level slog.Level) LoggerOption {
	return func(c *LoggerConfig) {
		c.Level = level
	}
}

// WithPayload enables payload logging.
func WithPayload(include bool) LoggerOption {
	return func(c *LoggerConfig) {
		c.IncludePayload = include
	}
}

// WithSkip sets a function that suppresses logging for matching actions.
func WithSkip(skip func(a store.Action) bool) LoggerOption {
	return func(c *LoggerConfig) {
		c.Skip = skip
	}
}

// Logger creates middleware that logs every dispatched action.
// If logger is nil, the store's logger is used.
func Logger(logger *slog.Logger, opts ...LoggerOption) store.Middleware {
	config := LoggerConfig{Level: slog.LevelDebug}
	for _, opt := range opts {
		opt(&config)
	}

	return func(s *store.Store, next store.Next) store.Next {
		log := logger
		if log == nil {
			log = s.Logger()
		}
		log = log.With("store", s.ID())

		return func(ctx context.Context, a store.Action) error {
			if config.Skip != nil && config.Skip(a) {
				return next(ctx, a)
			}

			start := time.Now()
			err := next(ctx, a)

			attrs := []slog.Attr{
				slog.String("type", a.Type),
				slog.String("kind", a.Kind.String()),
				slog.Duration("duration", time.Since(start)),
			}
			if a.Key != "" {
				attrs = append(attrs, slog.String("key", a.Key))
			}
			if config.IncludePayload && a.Payload != nil && a.Kind != store.KindUpdate {
				attrs = append(attrs, slog.Any("payload", a.Payload))
			}

			if err != nil {
				attrs = append(attrs, slog.String("error", err.Error()))
				log.LogAttrs(ctx, slog.LevelWarn, "action failed", attrs...)
				return err
			}
			log.LogAttrs(ctx, config.Level, "action", attrs...)
			return nil
		}
	}
}
