package storage

import (
	"context"
	"fmt"
)

// InitSchema creates every table, index, and trigger if not already
// present, then records the schema version in system_config. FTS5
// creation failure is logged and treated as non-fatal; the query engine
// has no fallback, so keyword filters and searches that join
// memories_fts then fail with an error.
func (p *Pool) InitSchema(ctx context.Context) error {
	log.Info("initializing storage schema", "version", SchemaVersion)

	var exists string
	err := p.write.QueryRowContext(ctx, `
		SELECT name FROM sqlite_master WHERE type='table' AND name='memories' LIMIT 1
	`).Scan(&exists)
	if err == nil && exists != "" {
		log.Debug("schema already initialized")
		return p.RunMigrations(ctx)
	}

	tx, err := p.write.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(CoreSchema); err != nil {
		return fmt.Errorf("create core schema: %w", err)
	}

	if _, err := tx.Exec(FTS5Schema); err != nil {
		log.Warn("FTS5 schema creation failed, keyword search will degrade", "error", err)
	}

	if _, err := tx.Exec(`
		INSERT OR REPLACE INTO system_config (key, value) VALUES ('schema_version', ?)
	`, fmt.Sprintf("%d", SchemaVersion)); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}

	log.Info("storage schema initialized")
	return nil
}

// GetSchemaVersion reads schema_version from system_config, treating a
// missing key as version 0.
func (p *Pool) GetSchemaVersion(ctx context.Context) (int, error) {
	var v int
	err := p.write.QueryRowContext(ctx, `
		SELECT CAST(value AS INTEGER) FROM system_config WHERE key = 'schema_version'
	`).Scan(&v)
	if err != nil {
		return 0, nil
	}
	return v, nil
}

// TableExists reports whether a table exists, used by tests and stats.
func (p *Pool) TableExists(ctx context.Context, name string) (bool, error) {
	var count int
	err := p.write.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?
	`, name).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
