package main

import (
	"storegate/internal/config"
	"storegate/internal/infra/db"

	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromEnv()
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx := cmd.Context()
			store, err := db.NewStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			return store.Migrate(ctx)
		},
	}
}
