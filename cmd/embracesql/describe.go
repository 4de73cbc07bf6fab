package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"

	"github.com/EmbraceSQL/embracesql/internal/application/services"
	"github.com/EmbraceSQL/embracesql/internal/domain/models"
)

type description struct {
	Databases map[string][]*models.Table `json:"databases"`
	Modules   []*models.AutocrudModule   `json:"modules"`
}

var describeCmd = &cobra.Command{
	Use:   "describe",
	Short: "Print the catalog and generated modules as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		manager, err := startEngine(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer manager.Close()

		out, err := yaml.Marshal(describe(manager))
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), string(out))
		return err
	},
}

func describe(manager *services.EngineManager) description {
	d := description{Databases: map[string][]*models.Table{}}
	for _, name := range manager.Databases() {
		if db, ok := manager.Database(name); ok {
			d.Databases[name] = db.Catalog().Tables()
		}
	}
	d.Modules = manager.Engine().Modules()
	return d
}
