package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

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

// openMemory opens a private in-memory SQLite database.
func openMemory(t *testing.T) *Database {
	t.Helper()
	d, err := Open(context.Background(), t.TempDir(), "test", "sqlite::memory:", zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

// migrated opens an in-memory database with a schema applied.
func migrated(t *testing.T, content string) *Database {
	t.Helper()
	ctx := context.Background()
	d := openMemory(t)
	_, err := d.Migrate(ctx, MigrationFile{Name: "001_schema.sql", Content: content})
	require.NoError(t, err)
	require.NoError(t, d.Refresh(ctx))
	return d
}
