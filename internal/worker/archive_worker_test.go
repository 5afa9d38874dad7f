package worker

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"fleetbook/internal/amqp"
	"fleetbook/internal/core"
	"fleetbook/internal/storage"
)

func newTestWorker(t *testing.T) (*ArchiveWorker, *storage.SQLiteRepository, string) {
	t.Helper()
	dir := t.TempDir()
	repo, err := storage.NewSQLiteRepository(filepath.Join(dir, "fleetbook.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository() error = %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	archiveDir := filepath.Join(dir, "archive")
	return NewArchiveWorker(repo, nil, archiveDir, 10, time.Minute), repo, archiveDir
}

func TestHandleSyncMessageWritesSnapshot(t *testing.T) {
	w, repo, archiveDir := newTestWorker(t)
	ctx := context.Background()

	if err := repo.UpsertCell(ctx, "car-1", 2025, core.CategoryIncome, core.FieldRentalIncome, 1, 1234.56); err != nil {
		t.Fatalf("UpsertCell() error = %v", err)
	}

	msg := amqp.NewLedgerSyncMessage("car-1", 2025, 1)
	if err := w.HandleSyncMessage(ctx, msg); err != nil {
		t.Fatalf("HandleSyncMessage() error = %v", err)
	}

	path := filepath.Join(archiveDir, "car-1", "2025-v1.csv")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("snapshot not written: %v", err)
	}
	if !strings.Contains(string(data), "$1,234.56") {
		t.Errorf("snapshot missing formatted cell:\n%s", data)
	}

	pending, err := repo.PendingRevisions(ctx, 10)
	if err != nil {
		t.Fatalf("PendingRevisions() error = %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("revision still pending after archive: %+v", pending)
	}
}

func TestHandleSyncMessageArchivesLatestVersion(t *testing.T) {
	w, repo, archiveDir := newTestWorker(t)
	ctx := context.Background()

	// Two edits land before the first message is processed.
	if err := repo.UpsertCell(ctx, "car-1", 2025, core.CategoryCogs, "tires", 3, 100); err != nil {
		t.Fatalf("UpsertCell() error = %v", err)
	}
	if err := repo.UpsertCell(ctx, "car-1", 2025, core.CategoryCogs, "tires", 3, 150); err != nil {
		t.Fatalf("UpsertCell() error = %v", err)
	}

	if err := w.HandleSyncMessage(ctx, amqp.NewLedgerSyncMessage("car-1", 2025, 1)); err != nil {
		t.Fatalf("HandleSyncMessage() error = %v", err)
	}

	if _, err := os.Stat(filepath.Join(archiveDir, "car-1", "2025-v2.csv")); err != nil {
		t.Errorf("latest version snapshot missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(archiveDir, "car-1", "2025-v1.csv")); err == nil {
		t.Error("stale version snapshot should not be written")
	}
}

func TestHandleSyncMessageSkipsUnknownLedger(t *testing.T) {
	w, _, archiveDir := newTestWorker(t)

	msg := amqp.NewLedgerSyncMessage("ghost", 2025, 1)
	if err := w.HandleSyncMessage(context.Background(), msg); err != nil {
		t.Fatalf("HandleSyncMessage() for unknown ledger should be dropped, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(archiveDir, "ghost")); err == nil {
		t.Error("no snapshot should be written for unknown ledger")
	}
}

func TestProcessPendingRevisionsSweepsBacklog(t *testing.T) {
	w, repo, archiveDir := newTestWorker(t)
	ctx := context.Background()

	if err := repo.UpsertCell(ctx, "car-1", 2025, core.CategoryIncome, core.FieldRentalIncome, 1, 100); err != nil {
		t.Fatalf("UpsertCell() error = %v", err)
	}
	if err := repo.UpsertCell(ctx, "car-2", 2024, core.CategoryCogs, "repairs", 6, 250); err != nil {
		t.Fatalf("UpsertCell() error = %v", err)
	}

	if err := w.ProcessPendingRevisions(ctx); err != nil {
		t.Fatalf("ProcessPendingRevisions() error = %v", err)
	}

	for _, path := range []string{
		filepath.Join(archiveDir, "car-1", "2025-v1.csv"),
		filepath.Join(archiveDir, "car-2", "2024-v1.csv"),
	} {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("backlog snapshot missing: %v", err)
		}
	}

	pending, err := repo.PendingRevisions(ctx, 10)
	if err != nil {
		t.Fatalf("PendingRevisions() error = %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("backlog not drained: %+v", pending)
	}
}

func TestSnapshotIncludesPriorYearCarryOver(t *testing.T) {
	w, repo, archiveDir := newTestWorker(t)
	ctx := context.Background()

	// A 2024 December deficit must show up in the January 2025 snapshot.
	if err := repo.UpsertCell(ctx, "car-1", 2024, core.CategoryCogs, "repairs", 12, 300); err != nil {
		t.Fatalf("UpsertCell() error = %v", err)
	}
	if err := repo.UpsertCell(ctx, "car-1", 2025, core.CategoryIncome, core.FieldRentalIncome, 1, 1000); err != nil {
		t.Fatalf("UpsertCell() error = %v", err)
	}

	if err := w.HandleSyncMessage(ctx, amqp.NewLedgerSyncMessage("car-1", 2025, 1)); err != nil {
		t.Fatalf("HandleSyncMessage() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(archiveDir, "car-1", "2025-v1.csv"))
	if err != nil {
		t.Fatalf("snapshot not written: %v", err)
	}
	var carryRow string
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, "computed,carryOver,") {
			carryRow = line
			break
		}
	}
	if carryRow == "" {
		t.Fatalf("carryOver row missing:\n%s", data)
	}
	if !strings.Contains(carryRow, "($300.00)") {
		t.Errorf("January carry-over not rendered, row: %s", carryRow)
	}
}
