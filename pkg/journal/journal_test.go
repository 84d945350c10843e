package journal

import (
	"context"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	cur, tgt, err := db.Version()
	if err != nil {
		t.Fatal(err)
	}
	if cur != 0 {
		t.Fatalf("expected fresh database, got version %d", cur)
	}
	if err := db.MigrateUp(context.Background(), tgt); err != nil {
		t.Fatal(err)
	}
	return db
}

func TestMigrateUpIsIdempotentAtTargetVersion(t *testing.T) {
	db := openTestDB(t)
	_, tgt, err := db.Version()
	if err != nil {
		t.Fatal(err)
	}
	if err := db.MigrateUp(context.Background(), tgt); err != nil {
		t.Fatalf("re-running MigrateUp to the same version should be a no-op: %v", err)
	}
}

func TestBeginAndFinishRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	id, err := db.Begin(ctx, DirectionSend)
	if err != nil {
		t.Fatal(err)
	}

	if err := db.Finish(ctx, id, 1234, 48, OutcomeSuccess, ""); err != nil {
		t.Fatal(err)
	}

	recs, err := db.Recent(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
	rec := recs[0]
	if rec.ID != id.String() {
		t.Fatalf("id mismatch: got %s want %s", rec.ID, id.String())
	}
	if rec.ByteSize != 1234 || rec.TileCount != 48 {
		t.Fatalf("unexpected sizes: %+v", rec)
	}
	if rec.Outcome != string(OutcomeSuccess) {
		t.Fatalf("got outcome %q, want success", rec.Outcome)
	}
	if rec.FinishedAt == nil {
		t.Fatal("expected finished_at to be set")
	}
}

func TestFinishRecordsFailureStage(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	id, err := db.Begin(ctx, DirectionReceive)
	if err != nil {
		t.Fatal(err)
	}
	if err := db.Finish(ctx, id, 0, 0, OutcomeFailed, "pipeline_decode"); err != nil {
		t.Fatal(err)
	}

	recs, err := db.Recent(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if recs[0].FailureStage != "pipeline_decode" {
		t.Fatalf("got failure_stage %q, want pipeline_decode", recs[0].FailureStage)
	}
}

func TestRecentOrdersNewestFirst(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := db.Begin(ctx, DirectionSend)
		if err != nil {
			t.Fatal(err)
		}
		if err := db.Finish(ctx, id, 1, 1, OutcomeSuccess, ""); err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id.String())
	}

	recs, err := db.Recent(ctx, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 3 {
		t.Fatalf("got %d records, want 3", len(recs))
	}
	for i := 1; i < len(recs); i++ {
		if recs[i].StartedAt > recs[i-1].StartedAt {
			t.Fatalf("record %d started at %d, after record %d at %d", i, recs[i].StartedAt, i-1, recs[i-1].StartedAt)
		}
	}
}
