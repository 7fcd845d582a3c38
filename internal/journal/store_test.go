package journal_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"brightd/internal/journal"
)

func openStore(t *testing.T) *journal.Store {
	t.Helper()
	store, err := journal.Open(filepath.Join(t.TempDir(), "state", "journal.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRecordAndRecent(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, status := range []string{"ddc_failed", "transmission_failed", "no_longer_exist"} {
		if _, err := store.Record(ctx, journal.Failure{
			DeviceID:   "DEL-A0F3-1",
			Status:     status,
			Message:    "i2c read failed",
			ScanID:     "scan-1",
			OccurredAt: base.Add(time.Duration(i) * time.Minute),
		}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	got, err := store.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(got))
	}
	if got[0].Status != "no_longer_exist" || got[1].Status != "transmission_failed" {
		t.Fatalf("unexpected order: %+v", got)
	}
	if !got[0].OccurredAt.Equal(base.Add(2*time.Minute)) || got[0].ScanID != "scan-1" {
		t.Fatalf("round trip lost fields: %+v", got[0])
	}
}

func TestRecordStampsTime(t *testing.T) {
	store := openStore(t)
	before := time.Now().Add(-time.Second)
	if _, err := store.Record(context.Background(), journal.Failure{DeviceID: "X", Status: "ddc_failed"}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	got, err := store.Recent(context.Background(), 0)
	if err != nil || len(got) != 1 {
		t.Fatalf("Recent: %v %+v", err, got)
	}
	if got[0].OccurredAt.Before(before) {
		t.Fatalf("occurred_at not stamped: %s", got[0].OccurredAt)
	}
}

func TestPrune(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	now := time.Now()
	for _, age := range []time.Duration{48 * time.Hour, 30 * time.Hour, time.Hour} {
		if _, err := store.Record(ctx, journal.Failure{DeviceID: "X", Status: "ddc_failed", OccurredAt: now.Add(-age)}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	removed, err := store.Prune(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 2 {
		t.Fatalf("removed %d rows, want 2", removed)
	}
	left, _ := store.Recent(ctx, 10)
	if len(left) != 1 {
		t.Fatalf("expected 1 row left, got %d", len(left))
	}
}

func TestOpenRejectsSchemaMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	store, err := journal.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_ = store.Close()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	if _, err := db.Exec("UPDATE schema_version SET version = 99"); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	_ = db.Close()

	if _, err := journal.Open(path); !errors.Is(err, journal.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}

func TestReopenKeepsRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	store, err := journal.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := store.Record(context.Background(), journal.Failure{DeviceID: "X", Status: "ddc_failed"}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	_ = store.Close()

	store, err = journal.Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer store.Close()
	got, _ := store.Recent(context.Background(), 5)
	if len(got) != 1 {
		t.Fatalf("expected persisted row, got %d", len(got))
	}
}
