package main

import (
	"context"
	stderrors "errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vango-dev/slicestore/internal/errors"
	"github.com/vango-dev/slicestore/internal/telemetry"
)

const shutdownTimeout = 10 * time.Second

func serveCmd(flags *globalFlags) *cobra.Command {
	var (
		port     int
		host     string
		readOnly bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the devtools server",
		Long: `Start a slice registry with persistence and the devtools API.

The server registers the slices declared in slicestore.json,
rehydrates the last snapshot and saves changes after the
configured debounce. On shutdown a final snapshot is written.

Routes:
  GET    /slices              list keys
  POST   /slices              register a slice
  GET    /slices/{key}        read a slice (?select=expr)
  PUT    /slices/{key}        replace a value
  PATCH  /slices/{key}        merge fields into a record
  POST   /slices/{key}/reset  restore the initial value
  GET    /state               full snapshot
  GET    /actions             WebSocket action stream
  GET    /metrics             Prometheus metrics (devtools.metrics)

Examples:
  slicestore serve
  slicestore serve --port=4200
  slicestore serve --read-only`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if port > 0 {
				cfg.Devtools.Port = port
			}
			if host != "" {
				cfg.Devtools.Host = host
			}
			if readOnly {
				cfg.Devtools.ReadOnly = true
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger := newLogger(cfg, cmd.ErrOrStderr())

			shutdownTracing, err := telemetry.Setup(ctx, cfg.SnapshotName(), cfg.Middleware.TracingEndpoint)
			if err != nil {
				warn(cmd, "tracing disabled: %v", err)
			}
			defer shutdownTracing(context.Background())

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}

			ln, err := net.Listen("tcp", cfg.DevtoolsAddress())
			if err != nil {
				a.Close(context.Background())
				return errors.New("E400").WithDetail("Cannot listen on " + cfg.DevtoolsAddress()).Wrap(err)
			}

			printBanner(cmd)
			success(cmd, "Devtools listening on %s", cfg.DevtoolsURL())
			info(cmd, "slices: %v", a.registry.Keys())
			info(cmd, "storage: %s", cfg.Storage.Driver)
			if cfg.Persist.Disabled {
				warn(cmd, "persistence disabled")
			}

			return serve(ctx, a, ln)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "Port to run on (default from slicestore.json)")
	cmd.Flags().StringVarP(&host, "host", "H", "", "Host to bind to (default from slicestore.json)")
	cmd.Flags().BoolVar(&readOnly, "read-only", false, "Reject mutating requests")

	return cmd
}

// serve runs the HTTP server on ln until ctx is done, then shuts down the
// server and the app.
func serve(ctx context.Context, a *app, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
		if stderrors.Is(serveErr, http.ErrServerClosed) {
			serveErr = nil
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	a.logger.Info("shutting down")
	// Shutdown does not close hijacked stream connections.
	closeErr := a.Close(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil && serveErr == nil {
		serveErr = err
	}
	return stderrors.Join(serveErr, closeErr)
}
