package storage

import (
	"context"
	"fmt"
)

// RunMigrations is the migration runner: it is append-only, linear,
// and numbered, per the storage engine's migration discipline.
// Currently a no-op dispatcher since the schema shipped at version 1;
// future migrations dispatch by version threshold, one `if version <
// N` block per step.
func (p *Pool) RunMigrations(ctx context.Context) error {
	version, err := p.GetSchemaVersion(ctx)
	if err != nil {
		version = 0
	}

	log.Info("checking migrations", "current_version", version, "target_version", SchemaVersion)
	if version >= SchemaVersion {
		log.Debug("storage schema up to date")
		return nil
	}

	// if version < 2 { if err := migrationV1ToV2(ctx, p.write); err != nil { return err } }

	if _, err := p.write.ExecContext(ctx, `
		INSERT OR REPLACE INTO system_config (key, value) VALUES ('schema_version', ?)
	`, fmt.Sprintf("%d", SchemaVersion)); err != nil {
		return fmt.Errorf("record migrated schema version: %w", err)
	}
	return nil
}
