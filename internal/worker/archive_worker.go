// Package worker archives ledger revisions to CSV snapshots on disk. It is
// driven by AMQP sync messages, with a periodic catch-up sweep as a backup
// in case messages are lost.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"fleetbook/internal/amqp"
	"fleetbook/internal/core"
	"fleetbook/internal/export"
	"fleetbook/internal/storage"
)

// ArchiveStore is the persistence surface the worker depends on.
type ArchiveStore interface {
	LoadLedger(ctx context.Context, carID string, year int) (*core.YearLedger, error)
	Revision(ctx context.Context, carID string, year int) (int64, error)
	PendingRevisions(ctx context.Context, limit int) ([]storage.Revision, error)
	MarkArchived(ctx context.Context, carID string, year int, version int64) error
}

// SyncConsumer delivers ledger sync messages from the broker.
type SyncConsumer interface {
	ConsumeLedgerSync(ctx context.Context, handler func(*amqp.LedgerSyncMessage) error) error
}

// ArchiveWorker writes versioned CSV snapshots of changed ledgers.
type ArchiveWorker struct {
	store      ArchiveStore
	consumer   SyncConsumer
	archiveDir string
	batchSize  int
	interval   time.Duration
}

func NewArchiveWorker(store ArchiveStore, consumer SyncConsumer, archiveDir string, batchSize int, interval time.Duration) *ArchiveWorker {
	return &ArchiveWorker{
		store:      store,
		consumer:   consumer,
		archiveDir: archiveDir,
		batchSize:  batchSize,
		interval:   interval,
	}
}

// Run consumes sync messages and sweeps for missed revisions until ctx is
// cancelled.
func (w *ArchiveWorker) Run(ctx context.Context) error {
	if err := w.StartupCheck(ctx); err != nil {
		slog.ErrorContext(ctx, "Startup archive check failed", "error", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	if w.consumer != nil {
		g.Go(func() error {
			return w.consumer.ConsumeLedgerSync(ctx, func(msg *amqp.LedgerSyncMessage) error {
				return w.HandleSyncMessage(ctx, msg)
			})
		})
	}

	g.Go(func() error {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				if err := w.ProcessPendingRevisions(ctx); err != nil {
					slog.ErrorContext(ctx, "Periodic archive sweep failed", "error", err)
				}
			}
		}
	})

	return g.Wait()
}

// HandleSyncMessage archives the ledger named by one AMQP message. Stale
// messages for already-archived versions are dropped.
func (w *ArchiveWorker) HandleSyncMessage(ctx context.Context, msg *amqp.LedgerSyncMessage) error {
	slog.InfoContext(ctx, "Processing sync message",
		"car_id", msg.CarID,
		"year", msg.Year,
		"version", msg.Version)

	// Always archive the latest state. The message version only tells us a
	// change happened; a newer edit may have landed since it was published.
	current, err := w.store.Revision(ctx, msg.CarID, msg.Year)
	if err != nil {
		return fmt.Errorf("read revision: %w", err)
	}
	if current == 0 {
		slog.WarnContext(ctx, "Sync message for unknown ledger, skipping",
			"car_id", msg.CarID, "year", msg.Year)
		return nil
	}

	return w.archiveLedger(ctx, msg.CarID, msg.Year, current)
}

// ProcessPendingRevisions archives any revisions the AMQP path missed.
func (w *ArchiveWorker) ProcessPendingRevisions(ctx context.Context) error {
	pending, err := w.store.PendingRevisions(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("get pending revisions: %w", err)
	}

	if len(pending) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Processing pending revisions", "count", len(pending))

	for _, rev := range pending {
		if err := w.archiveLedger(ctx, rev.CarID, rev.Year, rev.Version); err != nil {
			slog.ErrorContext(ctx, "Failed to archive ledger",
				"car_id", rev.CarID, "year", rev.Year, "version", rev.Version, "error", err)
			continue
		}
	}

	return nil
}

// StartupCheck archives pending revisions accumulated while the worker
// was down, using a larger batch than the periodic sweep.
func (w *ArchiveWorker) StartupCheck(ctx context.Context) error {
	pending, err := w.store.PendingRevisions(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("get pending revisions for startup check: %w", err)
	}

	if len(pending) == 0 {
		slog.InfoContext(ctx, "No pending revisions found on startup")
		return nil
	}

	slog.InfoContext(ctx, "Found pending revisions on startup, processing...",
		"count", len(pending))

	successCount := 0
	errorCount := 0

	for _, rev := range pending {
		if err := w.archiveLedger(ctx, rev.CarID, rev.Year, rev.Version); err != nil {
			slog.ErrorContext(ctx, "Failed to archive ledger during startup",
				"car_id", rev.CarID, "year", rev.Year, "error", err)
			errorCount++
			continue
		}
		successCount++
	}

	slog.InfoContext(ctx, "Startup archive check completed",
		"total", len(pending),
		"archived", successCount,
		"errors", errorCount)

	return nil
}

// archiveLedger writes <archiveDir>/<car>/<year>-v<version>.csv and marks
// the version as archived. The file is renamed into place so readers never
// see a half-written snapshot.
func (w *ArchiveWorker) archiveLedger(ctx context.Context, carID string, year int, version int64) error {
	ledger, err := w.store.LoadLedger(ctx, carID, year)
	if err != nil {
		return fmt.Errorf("load ledger: %w", err)
	}
	var prior *core.YearLedger
	if year > core.EpochYear {
		prior, err = w.store.LoadLedger(ctx, carID, year-1)
		if err != nil {
			return fmt.Errorf("load prior ledger: %w", err)
		}
	}

	dir := filepath.Join(w.archiveDir, carID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create archive directory: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("%d-v%d.csv", year, version))
	tmp, err := os.CreateTemp(dir, ".archive-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := export.Write(tmp, ledger, prior); err != nil {
		tmp.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("publish snapshot: %w", err)
	}

	if err := w.store.MarkArchived(ctx, carID, year, version); err != nil {
		return fmt.Errorf("mark archived: %w", err)
	}

	slog.InfoContext(ctx, "Successfully archived ledger",
		"car_id", carID,
		"year", year,
		"version", version,
		"path", path)

	return nil
}
