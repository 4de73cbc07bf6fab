package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"

	"github.com/EmbraceSQL/embracesql/internal/config"
	"github.com/EmbraceSQL/embracesql/internal/domain/models"
	"github.com/EmbraceSQL/embracesql/pkg/errors"
)

var analyzeDatabase string

type analysis struct {
	SQL             string          `json:"sql"`
	NamedParameters []string        `json:"namedParameters"`
	ReturnsRows     bool            `json:"returnsRows"`
	Columns         []models.Column `json:"columns,omitempty"`
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze [sql]",
	Short: "Report the parameters and result columns of a query",
	Example: `  embracesql analyze "SELECT id, name FROM things WHERE id = :id"`,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		manager, err := startEngine(ctx, nil)
		if err != nil {
			return err
		}
		defer manager.Close()

		db, ok := manager.Database(analyzeDatabase)
		if !ok {
			return errors.NewNotFoundError("database", analyzeDatabase)
		}
		parsed, err := db.Parse(strings.Join(args, " "))
		if err != nil {
			return err
		}
		columns, err := db.Analyze(ctx, parsed)
		if err != nil {
			return err
		}

		out, err := yaml.Marshal(analysis{
			SQL:             parsed.SQL,
			NamedParameters: parsed.NamedParameters,
			ReturnsRows:     parsed.ReturnsRows(),
			Columns:         columns,
		})
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), string(out))
		return err
	},
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeDatabase, "database", config.DefaultDatabase, "database to analyze against")
}
