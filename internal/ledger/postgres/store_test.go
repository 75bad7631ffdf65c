package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/soundboard/internal/ledger"
	"github.com/MrWong99/soundboard/internal/ledger/postgres"
)

// testDSN returns the test database DSN from the environment, or skips the
// test if SOUNDBOARD_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("SOUNDBOARD_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("SOUNDBOARD_TEST_POSTGRES_DSN not set, skipping PostgreSQL integration tests")
	}
	return dsn
}

// newTestStore drops the ledger table and returns a freshly migrated store.
func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	t.Cleanup(pool.Close)
	if _, err := pool.Exec(ctx, "DROP TABLE IF EXISTS speech_archive CASCADE"); err != nil {
		t.Fatalf("drop: %v", err)
	}

	store, err := postgres.NewStore(ctx, dsn)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(store.Close)
	return store
}

func TestStore_RecordAndRecent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	entries := []ledger.Entry{
		{ID: uuid.New(), Voice: "Rachel", VoiceID: "v1", Message: "hello there", ArchivePath: "/archive/hello_there-1.mp3", CreatedAt: base},
		{ID: uuid.New(), Voice: "Adam", VoiceID: "v2", Message: "roll for initiative", ArchivePath: "/archive/roll_for_initiative-2.mp3", RequestedBy: "u42", CreatedAt: base.Add(time.Minute)},
	}
	for _, e := range entries {
		if err := store.Record(ctx, e); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	got, err := store.Recent(ctx, 0)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Recent returned %d entries, want 2", len(got))
	}
	if got[0].ID != entries[1].ID || got[0].RequestedBy != "u42" {
		t.Errorf("newest entry = %+v, want %+v", got[0], entries[1])
	}
	if !got[1].CreatedAt.Equal(base) {
		t.Errorf("CreatedAt = %v, want %v", got[1].CreatedAt, base)
	}

	limited, err := store.Recent(ctx, 1)
	if err != nil {
		t.Fatalf("Recent(1): %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("Recent(1) returned %d entries", len(limited))
	}
}

func TestStore_DuplicateID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	e := ledger.Entry{ID: uuid.New(), Voice: "Rachel", Message: "twice", ArchivePath: "/archive/twice.mp3"}
	if err := store.Record(ctx, e); err != nil {
		t.Fatalf("first Record: %v", err)
	}
	if err := store.Record(ctx, e); err == nil {
		t.Error("second Record with the same ID should fail")
	}
}

func TestStore_MigrateIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, testDSN(t))
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	defer pool.Close()
	for range 2 {
		if err := postgres.Migrate(ctx, pool); err != nil {
			t.Fatalf("Migrate: %v", err)
		}
	}
	if err := store.Ping(ctx); err != nil {
		t.Errorf("Ping: %v", err)
	}
}
