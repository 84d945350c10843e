package journal

import (
	"context"
	"database/sql"
	"fmt"
	"path"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
)

type migration struct {
	Name string
	Up   func(context.Context, *sqlx.Tx) error
	Down func(context.Context, *sqlx.Tx) error
}

var migrations = map[uint64]migration{}

// migrate registers a numbered migration, inferring its version from the
// calling file's "NNN_name.go" basename.
func migrate(up, down func(context.Context, *sqlx.Tx) error) {
	_, fn, _, ok := runtime.Caller(1)
	if !ok {
		panic("journal: add migration: failed to get filename")
	}
	fn = path.Base(strings.ReplaceAll(fn, `\`, `/`))

	n, _, ok := strings.Cut(fn, "_")
	if !ok {
		panic("journal: add migration: failed to parse filename")
	}
	v, err := strconv.ParseUint(n, 10, 64)
	if err != nil {
		panic("journal: add migration: failed to parse filename: " + err.Error())
	}
	if v == 0 {
		panic("journal: add migration: version must not be 0")
	}
	migrations[v] = migration{strings.TrimSuffix(fn, ".go"), up, down}
}

// Version reports the database's current schema version and the highest
// version known to this binary.
func (db *DB) Version() (current, required uint64, err error) {
	if err = db.x.Get(&current, `PRAGMA user_version`); err != nil {
		return 0, 0, fmt.Errorf("journal: get version: %w", err)
	}
	for v := range migrations {
		if v > required {
			required = v
		}
	}
	return current, required, nil
}

// MigrateUp migrates the database up to the given version.
func (db *DB) MigrateUp(ctx context.Context, to uint64) error {
	tx, err := db.x.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("journal: begin transaction: %w", err)
	}
	defer tx.Rollback()

	var cv uint64
	if err := tx.GetContext(ctx, &cv, `PRAGMA user_version`); err != nil {
		return fmt.Errorf("journal: get version: %w", err)
	}
	if to < cv {
		return fmt.Errorf("journal: target version %d is less than current version %d", to, cv)
	}

	var ms []uint64
	for v := range migrations {
		if v > cv && v <= to {
			ms = append(ms, v)
		}
	}
	sort.Slice(ms, func(i, j int) bool { return ms[i] < ms[j] })

	for _, v := range ms {
		if err := migrations[v].Up(ctx, tx); err != nil {
			return fmt.Errorf("journal: migrate %d: %w", v, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `PRAGMA user_version = `+strconv.FormatUint(to, 10)); err != nil {
		return fmt.Errorf("journal: update version: %w", err)
	}
	return tx.Commit()
}
