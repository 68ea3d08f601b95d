package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/vango-dev/slicestore/internal/config"
	"github.com/vango-dev/slicestore/internal/errors"
)

// loadConfig loads the environment file, if present, then the validated
// configuration. Variables already set in the process win over the file.
func loadConfig(flags *globalFlags) (*config.Config, error) {
	if flags.envFile != "" {
		if err := godotenv.Load(flags.envFile); err != nil && !os.IsNotExist(err) {
			return nil, errors.New("E102").
				WithDetail("Failed to read " + flags.envFile).
				Wrap(err)
		}
	}

	cfg, err := config.LoadOrDefault(flags.configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the process logger from the log settings.
func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel()}
	if cfg.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
