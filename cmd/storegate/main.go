// storegate serves the unified key-value and object store over HTTP and
// WebSocket, backed by PostgreSQL.
package main

import (
	"storegate/internal/log"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "storegate",
		Short: "Tenant-scoped key-value and object store backed by PostgreSQL",
	}
	root.AddCommand(newServeCmd())
	root.AddCommand(newMigrateCmd())

	if err := root.Execute(); err != nil {
		log.Fatal().Err(err).Msg("storegate exited")
	}
}
