package journal

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"
)

func init() {
	migrate(up001, down001)
}

func up001(ctx context.Context, tx *sqlx.Tx) error {
	if _, err := tx.ExecContext(ctx, strings.ReplaceAll(`
		CREATE TABLE messages (
			id           TEXT PRIMARY KEY NOT NULL,
			direction    TEXT NOT NULL,
			byte_size    INTEGER NOT NULL,
			tile_count   INTEGER NOT NULL,
			started_at   INTEGER NOT NULL,
			finished_at  INTEGER,
			outcome      TEXT NOT NULL,
			failure_stage TEXT NOT NULL DEFAULT ''
		) STRICT;
	`, `
		`, "\n")); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `CREATE INDEX messages_started_at_idx ON messages(started_at)`); err != nil {
		return err
	}
	return nil
}

func down001(ctx context.Context, tx *sqlx.Tx) error {
	if _, err := tx.ExecContext(ctx, `DROP INDEX messages_started_at_idx`); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DROP TABLE messages`); err != nil {
		return err
	}
	return nil
}
