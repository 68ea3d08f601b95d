package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/vango-dev/slicestore/internal/config"
	"github.com/vango-dev/slicestore/internal/errors"
	"github.com/vango-dev/slicestore/pkg/persist"
	"github.com/vango-dev/slicestore/pkg/selector"
	"github.com/vango-dev/slicestore/pkg/store"
)

var keyStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))

func inspectCmd(flags *globalFlags) *cobra.Command {
	var (
		expression string
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "inspect [key]",
		Short: "Print the stored snapshot",
		Long: `Print the snapshot kept in the configured storage.

Without a key, every stored key is listed with its value.
With a key, only that value is printed, optionally projected
through a selector expression evaluated against "state".

Examples:
  slicestore inspect
  slicestore inspect todos
  slicestore inspect todos --select 'len(state)'
  slicestore inspect --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			var key string
			if len(args) == 1 {
				key = args[0]
			}
			if expression != "" && key == "" {
				return errors.New("E400").WithDetail("--select needs a key")
			}
			return runInspect(cmd.Context(), cmd.OutOrStdout(), cfg, key, expression, asJSON)
		},
	}

	cmd.Flags().StringVar(&expression, "select", "", "Selector expression applied to the value")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw snapshot envelope")

	return cmd
}

func runInspect(ctx context.Context, w io.Writer, cfg *config.Config, key, expression string, asJSON bool) error {
	storage, err := openStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer storage.Close()

	env, err := loadSnapshot(ctx, cfg, storage)
	if err != nil {
		return err
	}
	if env == nil {
		fmt.Fprintf(w, "No snapshot named %q in %s storage\n", cfg.SnapshotName(), cfg.Storage.Driver)
		return nil
	}

	if key == "" {
		if asJSON {
			return writeJSON(w, env)
		}
		fmt.Fprintf(w, "%s  version %d  saved %s\n\n",
			keyStyle.Render(cfg.SnapshotName()), env.Version, env.SavedAt.Format(time.RFC3339))
		keys := make([]string, 0, len(env.State))
		for k := range env.State {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "%s  %s\n", keyStyle.Render(k), compact(env.State[k]))
		}
		return nil
	}

	raw, ok := env.State[key]
	if !ok {
		known := make([]string, 0, len(env.State))
		for k := range env.State {
			known = append(known, k)
		}
		missing := &store.MissingKeyError{Key: key, Suggestion: store.SuggestKey(key, known)}
		return errors.New("E400").WithDetail("The snapshot has no value for " + key).Wrap(missing)
	}

	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return errors.New("E201").Wrap(err)
	}
	if expression != "" {
		value, err = selector.New().Eval(expression, value)
		if err != nil {
			return errors.New("E400").Wrap(err)
		}
	}
	return writeJSON(w, value)
}

func loadSnapshot(ctx context.Context, cfg *config.Config, storage persist.Storage) (*persist.Envelope, error) {
	p := persist.New(store.NewRegistry(), storage, persist.WithName(cfg.SnapshotName()))
	env, err := p.Load(ctx)
	if err != nil {
		return nil, errors.New("E201").Wrap(err)
	}
	return env, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func compact(raw json.RawMessage) string {
	const limit = 72
	s := string(raw)
	if len(s) > limit {
		return s[:limit-3] + "..."
	}
	return s
}
