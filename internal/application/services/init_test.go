package services_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/EmbraceSQL/embracesql/internal/application/services"
	"github.com/EmbraceSQL/embracesql/internal/config"
	"github.com/EmbraceSQL/embracesql/internal/infrastructure/database"
)

const thingsSchema = `CREATE TABLE things (id INTEGER PRIMARY KEY, name TEXT);`

const ordersSchema = `
CREATE TABLE orders (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	customer TEXT NOT NULL
);
CREATE TABLE items (
	id INTEGER PRIMARY KEY,
	"item name" TEXT
);
CREATE TABLE order_items (
	order_id INTEGER NOT NULL REFERENCES orders ON DELETE CASCADE,
	item_id INTEGER NOT NULL REFERENCES items(id),
	quantity REAL,
	PRIMARY KEY (order_id, item_id)
);
`

// startManager runs an engine over a private in-memory database with schema
// migrated in. Handlers registered on the returned registry take effect on
// the next Reload.
func startManager(t *testing.T, schema string, rules ...config.AuthorizationRule) (*services.EngineManager, *services.HandlerRegistry) {
	t.Helper()
	return startConfigured(t, schema, &config.Configuration{
		Authorization: config.AuthorizationConfig{Rules: rules},
	})
}

// startConfigured is startManager with more of the configuration filled in.
func startConfigured(t *testing.T, schema string, cfg *config.Configuration) (*services.EngineManager, *services.HandlerRegistry) {
	t.Helper()
	ctx := context.Background()

	cfg.EmbraceSQLRoot = t.TempDir()
	cfg.Databases = map[string]string{"default": "sqlite::memory:"}
	handlers := services.NewHandlerRegistry()
	m := services.NewEngineManager(cfg, handlers, zaptest.NewLogger(t).Sugar())
	require.NoError(t, m.Start(ctx))
	t.Cleanup(func() { _ = m.Close() })

	_, err := m.Migrate(ctx, map[string][]database.MigrationFile{
		"default": {{Name: "001_schema.sql", Content: schema}},
	})
	require.NoError(t, err)
	return m, handlers
}

func defaultDB(t *testing.T, m *services.EngineManager) *database.Database {
	t.Helper()
	db, ok := m.Database("default")
	require.True(t, ok)
	return db
}
