// Package journal records per-message transport metadata, never
// plaintext or key material, to a local SQLite database for operational
// diagnostics.
package journal

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/xid"
)

// Direction distinguishes an outbound (send) pipeline run from an inbound
// (receive) one.
type Direction string

const (
	DirectionSend    Direction = "send"
	DirectionReceive Direction = "receive"
)

// Outcome records how a pipeline iteration ended.
type Outcome string

const (
	OutcomeInProgress Outcome = "in_progress"
	OutcomeSuccess    Outcome = "success"
	OutcomeFailed     Outcome = "failed"
)

// DB stores session journal records in a sqlite3 database.
type DB struct {
	x *sqlx.DB
}

// Open opens (creating if necessary) a journal database at the given
// filesystem path, with WAL mode on and a bounded busy timeout.
func Open(path string) (*DB, error) {
	x, err := sqlx.Connect("sqlite3", (&url.URL{
		Path: path,
		RawQuery: (url.Values{
			"_journal":      {"WAL"},
			"_busy_timeout": {"6000"},
		}).Encode(),
	}).String())
	if err != nil {
		return nil, fmt.Errorf("journal: open: %w", err)
	}
	return &DB{x: x}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.x.Close()
}

// EnsureSchema migrates the database up to the schema this binary expects.
func (db *DB) EnsureSchema(ctx context.Context) error {
	_, required, err := db.Version()
	if err != nil {
		return err
	}
	return db.MigrateUp(ctx, required)
}

// Begin records the start of a pipeline iteration and returns its id for
// later correlation with log lines (never transmitted over the wire).
func (db *DB) Begin(ctx context.Context, dir Direction) (xid.ID, error) {
	id := xid.New()
	_, err := db.x.ExecContext(ctx, `
		INSERT INTO messages (id, direction, byte_size, tile_count, started_at, outcome)
		VALUES (?, ?, 0, 0, ?, ?)
	`, id.String(), string(dir), time.Now().Unix(), string(OutcomeInProgress))
	if err != nil {
		return xid.ID{}, fmt.Errorf("journal: begin record: %w", err)
	}
	return id, nil
}

// Finish records the outcome of a pipeline iteration previously started
// with Begin.
func (db *DB) Finish(ctx context.Context, id xid.ID, byteSize, tileCount int, outcome Outcome, failureStage string) error {
	_, err := db.x.ExecContext(ctx, `
		UPDATE messages
		SET byte_size = ?, tile_count = ?, finished_at = ?, outcome = ?, failure_stage = ?
		WHERE id = ?
	`, byteSize, tileCount, time.Now().Unix(), string(outcome), failureStage, id.String())
	if err != nil {
		return fmt.Errorf("journal: finish record: %w", err)
	}
	return nil
}

// Record is one row read back from the journal, used by diagnostics and
// tests.
type Record struct {
	ID           string    `db:"id"`
	Direction    string    `db:"direction"`
	ByteSize     int       `db:"byte_size"`
	TileCount    int       `db:"tile_count"`
	StartedAt    int64     `db:"started_at"`
	FinishedAt   *int64    `db:"finished_at"`
	Outcome      string    `db:"outcome"`
	FailureStage string    `db:"failure_stage"`
}

// Recent returns the most recent n journal records, newest first. Start
// times have one-second resolution; records started within the same
// second come back in no particular order.
func (db *DB) Recent(ctx context.Context, n int) ([]Record, error) {
	var recs []Record
	err := db.x.SelectContext(ctx, &recs, `
		SELECT id, direction, byte_size, tile_count, started_at, finished_at, outcome, failure_stage
		FROM messages ORDER BY started_at DESC LIMIT ?
	`, n)
	if err != nil {
		return nil, fmt.Errorf("journal: query recent: %w", err)
	}
	return recs, nil
}
