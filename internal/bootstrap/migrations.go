// Package bootstrap holds the startup steps run before a root is served:
// loading migration scripts and checking the introspected catalogs.
package bootstrap

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/EmbraceSQL/embracesql/internal/application/services"
	"github.com/EmbraceSQL/embracesql/internal/infrastructure/database"
)

// MigrationsDir is where a root keeps its scripts, one directory per database.
const MigrationsDir = "migrations"

// LoadMigrations reads <root>/migrations/<database>/*.sql for each database,
// ordered by file name. A database without a directory has no migrations.
func LoadMigrations(root string, databases []string) (map[string][]database.MigrationFile, error) {
	files := make(map[string][]database.MigrationFile, len(databases))
	for _, name := range databases {
		dir := filepath.Join(root, MigrationsDir, name)
		entries, err := os.ReadDir(dir)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading migrations for %s: %w", name, err)
		}

		var names []string
		for _, entry := range entries {
			if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".sql") {
				continue
			}
			names = append(names, entry.Name())
		}
		sort.Strings(names)

		for _, fileName := range names {
			content, err := os.ReadFile(filepath.Join(dir, fileName))
			if err != nil {
				return nil, fmt.Errorf("reading migration %s/%s: %w", name, fileName, err)
			}
			files[name] = append(files[name], database.MigrationFile{Name: fileName, Content: string(content)})
		}
	}
	return files, nil
}

// MigrateAll loads the root's migrations for every open database and
// applies them, reporting how many scripts ran.
func MigrateAll(ctx context.Context, manager *services.EngineManager, root string, logger *zap.SugaredLogger) (int, error) {
	files, err := LoadMigrations(root, manager.Databases())
	if err != nil {
		return 0, err
	}

	total := 0
	for _, list := range files {
		total += len(list)
	}
	if total == 0 {
		logger.Infow("no migrations found", "dir", filepath.Join(root, MigrationsDir))
		return 0, nil
	}

	applied, err := manager.Migrate(ctx, files)
	logger.Infow("migrations finished", "found", total, "applied", applied)
	return applied, err
}
