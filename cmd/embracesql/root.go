package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/EmbraceSQL/embracesql/internal/application/services"
	"github.com/EmbraceSQL/embracesql/internal/config"
	"github.com/EmbraceSQL/embracesql/pkg/logging"
)

var (
	// Global state set during PersistentPreRunE
	cfg    *config.Configuration
	logger *zap.SugaredLogger

	// Persistent flags
	rootDir string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "embracesql",
	Short: "Schema driven CRUD over SQL databases",
	Long: `embracesql - schema driven CRUD over SQL databases

EmbraceSQL introspects the configured databases and serves create, read,
update, delete and nested read operations for every table, each one running
in its own transaction behind handlers and authorization rules.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "version" {
			return nil
		}

		var err error
		cfg, err = config.Load(rootDir)
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}
		logger, err = logging.New(debug || cfg.Log.Debug)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootDir, "root", ".", "EmbraceSQL root directory")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "development logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(describeCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// startEngine opens every configured database and builds the modules.
// Callers close the manager.
func startEngine(ctx context.Context, handlers *services.HandlerRegistry) (*services.EngineManager, error) {
	if handlers == nil {
		handlers = services.NewHandlerRegistry()
	}
	manager := services.NewEngineManager(cfg, handlers, logger)
	if err := manager.Start(ctx); err != nil {
		return nil, err
	}
	return manager, nil
}
