package main

import (
	"github.com/spf13/cobra"

	"github.com/vango-dev/slicestore/internal/errors"
	"github.com/vango-dev/slicestore/pkg/persist"
	"github.com/vango-dev/slicestore/pkg/store"
)

func purgeCmd(flags *globalFlags) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete the stored snapshot",
		Long: `Delete the snapshot kept in the configured storage.

The next 'slicestore serve' starts from the initial values.

Examples:
  slicestore purge --yes`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if !yes {
				return errors.New("E400").
					WithDetail("purge deletes snapshot " + cfg.SnapshotName()).
					WithSuggestion("Pass --yes to confirm")
			}

			ctx := cmd.Context()
			storage, err := openStorage(ctx, cfg)
			if err != nil {
				return err
			}
			defer storage.Close()

			p := persist.New(store.NewRegistry(), storage, persist.WithName(cfg.SnapshotName()))
			if err := p.Purge(ctx); err != nil {
				return errors.New("E202").Wrap(err)
			}
			success(cmd, "Purged snapshot %q from %s storage", cfg.SnapshotName(), cfg.Storage.Driver)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm deletion")

	return cmd
}
