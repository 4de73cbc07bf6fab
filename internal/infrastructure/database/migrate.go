package database

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/crypto/blake2b"

	"github.com/EmbraceSQL/embracesql/pkg/query"
)

// MigrationsTable records every migration already applied, by content.
const MigrationsTable = "__embracesql_migrations__"

const migrationsTableSQL = `CREATE TABLE IF NOT EXISTS ` + MigrationsTable + ` (
	content_hash VARCHAR(64) NOT NULL PRIMARY KEY,
	name VARCHAR(1024) NOT NULL,
	content TEXT NOT NULL,
	run_at VARCHAR(64) NOT NULL
)`

// MigrationFile is one migration script. Content is the literal SQL.
type MigrationFile struct {
	Name    string
	Content string
}

// ContentHash identifies a migration by what it does, not what it is called.
func ContentHash(content string) string {
	sum := blake2b.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Migrate runs a migration unless identical content already ran. The
// statements and the tracking row commit together. It reports whether the
// migration ran. The catalog is not refreshed, call Refresh after a batch.
func (d *Database) Migrate(ctx context.Context, file MigrationFile) (bool, error) {
	applied := false
	err := d.Atomic(ctx, func(ctx context.Context) error {
		// DDL commits implicitly on some engines, keep it outside the transaction
		if err := d.exec(ctx, d.dialect.MigrationsTableSQL()); err != nil {
			return fmt.Errorf("creating migrations table: %w", err)
		}

		hash := ContentHash(file.Content)
		s := d.Statements()
		seen, err := d.Execute(ctx,
			s.From(s.Table("", MigrationsTable)).Select("content_hash").
				WhereKeys(query.F("content_hash", "content_hash")).Build(),
			map[string]any{"content_hash": hash})
		if err != nil {
			return err
		}
		if len(seen) > 0 {
			d.logger.Debugw("migration already applied", "name", file.Name)
			return nil
		}

		d.logger.Infow("migrating", "name", file.Name, "hash", hash)
		if err := d.txs.Begin(ctx); err != nil {
			return err
		}
		if err := d.runMigration(ctx, file, hash); err != nil {
			return multierr.Append(fmt.Errorf("migration %s: %w", file.Name, err), d.txs.Rollback(ctx))
		}
		if err := d.txs.Commit(ctx); err != nil {
			return multierr.Append(err, d.txs.Rollback(ctx))
		}
		applied = true
		return nil
	})
	return applied, err
}

func (d *Database) runMigration(ctx context.Context, file MigrationFile, hash string) error {
	for _, statement := range query.SplitStatements(file.Content) {
		if err := d.exec(ctx, statement); err != nil {
			return err
		}
	}

	s := d.Statements()
	record := s.Insert(s.Table("", MigrationsTable)).Values(
		query.F("content_hash", "content_hash"),
		query.F("name", "name"),
		query.F("content", "content"),
		query.F("run_at", "run_at"),
	).Build()
	_, err := d.Execute(ctx, record, map[string]any{
		"content_hash": hash,
		"name":         file.Name,
		"content":      file.Content,
		"run_at":       time.Now().UTC().Format(time.RFC3339),
	})
	return err
}
