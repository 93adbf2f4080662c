package postgres

import (
	"context"
	"fmt"

	"github.com/hszk-dev/fronttube/internal/domain/model"
	"github.com/hszk-dev/fronttube/internal/infrastructure/snapshot"
)

const createTableSQL = `
	CREATE TABLE IF NOT EXISTS %[1]s (
		hash           BIGINT PRIMARY KEY,
		canonical_url  TEXT NOT NULL,
		payload        JSONB NOT NULL,
		last_synced_at TIMESTAMPTZ,
		created_at     TIMESTAMPTZ NOT NULL,
		updated_at     TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_%[1]s_last_synced_at ON %[1]s (last_synced_at);
`

// EnsureSchema creates one table per entity kind if missing.
func EnsureSchema(ctx context.Context, db DBTX) error {
	for _, kind := range model.Kinds {
		table, err := snapshot.TableName(kind)
		if err != nil {
			return err
		}
		if _, err := db.Exec(ctx, fmt.Sprintf(createTableSQL, table)); err != nil {
			return fmt.Errorf("failed to create table %s: %w", table, err)
		}
	}
	return nil
}
