package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/EmbraceSQL/embracesql/internal/bootstrap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply migration scripts",
	Long: `Apply <root>/migrations/<database>/*.sql to each configured database,
in file name order. Scripts are tracked by content hash so applying twice is
harmless.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		manager, err := startEngine(ctx, nil)
		if err != nil {
			return err
		}
		defer manager.Close()

		applied, err := bootstrap.MigrateAll(ctx, manager, cfg.EmbraceSQLRoot, logger)
		fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", applied)
		return err
	},
}
