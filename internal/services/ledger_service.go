// Package services orchestrates ledger operations across the SQLite store
// and the AMQP sync channel. Every mutation lands in SQLite first; the sync
// message to the archive worker is best effort and never fails the request.
package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"fleetbook/internal/core"
	"fleetbook/internal/export"
	applog "fleetbook/internal/log"
	"fleetbook/internal/rollup"
)

// LedgerStore is the persistence surface the service depends on.
type LedgerStore interface {
	LoadLedger(ctx context.Context, carID string, year int) (*core.YearLedger, error)
	UpsertCell(ctx context.Context, carID string, year int, cat core.Category, field string, month int, value float64) error
	SetSplitMode(ctx context.Context, carID string, year, month int, mode core.SplitMode) error
	SetSkiRacksOwner(ctx context.Context, carID string, year, month int, owner core.SkiRacksOwner) error
	CreateSubcategory(ctx context.Context, carID string, year int, cat core.Category, name string, fleetWide bool) (int64, error)
	RenameSubcategory(ctx context.Context, carID string, year int, id int64, name string) error
	DeleteSubcategory(ctx context.Context, carID string, year int, id int64) error
	UpsertSubcategoryValue(ctx context.Context, carID string, year int, id int64, month int, value float64) error
	ImportLedger(ctx context.Context, ledger *core.YearLedger) error
	Revision(ctx context.Context, carID string, year int) (int64, error)
	ListCars(ctx context.Context) ([]string, error)
}

// SyncPublisher notifies the archive worker that a ledger changed.
type SyncPublisher interface {
	PublishLedgerSync(ctx context.Context, carID string, year int, version int64) error
}

// LedgerView is the assembled read model for one ledger year.
type LedgerView struct {
	Ledger    *core.YearLedger      `json:"ledger"`
	Summaries []rollup.MonthSummary `json:"summaries"`
	Version   int64                 `json:"version"`
}

// LedgerService orchestrates ledger operations across SQLite and AMQP
type LedgerService struct {
	store     LedgerStore
	publisher SyncPublisher
	logs      *applog.StructuredLogger
}

func NewLedgerService(store LedgerStore, publisher SyncPublisher) *LedgerService {
	return &LedgerService{
		store:     store,
		publisher: publisher,
		logs: applog.NewStructuredLogger(applog.New(applog.Config{
			Handler: slog.Default().Handler(),
		})),
	}
}

// loadWithPrior fetches a ledger and, when the year is past the epoch, the
// previous year's ledger so January carry-over can reach back.
func (s *LedgerService) loadWithPrior(ctx context.Context, carID string, year int) (*core.YearLedger, *core.YearLedger, error) {
	ledger, err := s.store.LoadLedger(ctx, carID, year)
	if err != nil {
		return nil, nil, fmt.Errorf("load ledger: %w", err)
	}
	var prior *core.YearLedger
	if year > core.EpochYear {
		prior, err = s.store.LoadLedger(ctx, carID, year-1)
		if err != nil {
			return nil, nil, fmt.Errorf("load prior ledger: %w", err)
		}
	}
	return ledger, prior, nil
}

// GetLedger returns the ledger plus all computed month summaries.
func (s *LedgerService) GetLedger(ctx context.Context, carID string, year int) (*LedgerView, error) {
	ledger, prior, err := s.loadWithPrior(ctx, carID, year)
	if err != nil {
		return nil, err
	}
	version, err := s.store.Revision(ctx, carID, year)
	if err != nil {
		return nil, fmt.Errorf("load revision: %w", err)
	}
	return &LedgerView{
		Ledger:    ledger,
		Summaries: rollup.New(ledger, prior).Evaluate(),
		Version:   version,
	}, nil
}

// UpdateCell stores one cell value and publishes a sync message.
func (s *LedgerService) UpdateCell(ctx context.Context, carID string, year int, cat core.Category, field string, month int, value float64) error {
	if err := s.store.UpsertCell(ctx, carID, year, cat, field, month, value); err != nil {
		return fmt.Errorf("update cell: %w", err)
	}
	s.logs.LogCellStored(ctx, carID, year, string(cat), field, month, value)
	s.publishSync(ctx, carID, year, applog.OpUpdate)
	return nil
}

// SetSplitMode stores the month's split mode and publishes a sync message.
func (s *LedgerService) SetSplitMode(ctx context.Context, carID string, year, month int, mode core.SplitMode) error {
	if err := s.store.SetSplitMode(ctx, carID, year, month, mode); err != nil {
		return fmt.Errorf("set split mode: %w", err)
	}
	s.publishSync(ctx, carID, year, applog.OpUpdate)
	return nil
}

// SetSkiRacksOwner stores the month's ski-racks owner and publishes a sync message.
func (s *LedgerService) SetSkiRacksOwner(ctx context.Context, carID string, year, month int, owner core.SkiRacksOwner) error {
	if err := s.store.SetSkiRacksOwner(ctx, carID, year, month, owner); err != nil {
		return fmt.Errorf("set ski-racks owner: %w", err)
	}
	s.publishSync(ctx, carID, year, applog.OpUpdate)
	return nil
}

// CreateSubcategory adds a dynamic subcategory and publishes a sync message.
func (s *LedgerService) CreateSubcategory(ctx context.Context, carID string, year int, cat core.Category, name string, fleetWide bool) (int64, error) {
	if !core.IsExpenseCategory(cat) {
		return 0, core.ErrInvalidCategory
	}
	id, err := s.store.CreateSubcategory(ctx, carID, year, cat, name, fleetWide)
	if err != nil {
		return 0, fmt.Errorf("create subcategory: %w", err)
	}
	s.publishSync(ctx, carID, year, applog.OpCreate)
	return id, nil
}

// RenameSubcategory changes a subcategory name and publishes a sync message.
func (s *LedgerService) RenameSubcategory(ctx context.Context, carID string, year int, id int64, name string) error {
	if err := s.store.RenameSubcategory(ctx, carID, year, id, name); err != nil {
		return fmt.Errorf("rename subcategory: %w", err)
	}
	s.publishSync(ctx, carID, year, applog.OpUpdate)
	return nil
}

// DeleteSubcategory removes a subcategory and publishes a sync message.
func (s *LedgerService) DeleteSubcategory(ctx context.Context, carID string, year int, id int64) error {
	if err := s.store.DeleteSubcategory(ctx, carID, year, id); err != nil {
		return fmt.Errorf("delete subcategory: %w", err)
	}
	s.publishSync(ctx, carID, year, applog.OpDelete)
	return nil
}

// SetSubcategoryValue stores one subcategory cell and publishes a sync message.
func (s *LedgerService) SetSubcategoryValue(ctx context.Context, carID string, year int, id int64, month int, value float64) error {
	if err := s.store.UpsertSubcategoryValue(ctx, carID, year, id, month, value); err != nil {
		return fmt.Errorf("set subcategory value: %w", err)
	}
	s.publishSync(ctx, carID, year, applog.OpUpdate)
	return nil
}

// ExportCSV writes the full spreadsheet rendition of one ledger year.
func (s *LedgerService) ExportCSV(ctx context.Context, w io.Writer, carID string, year int) error {
	ledger, prior, err := s.loadWithPrior(ctx, carID, year)
	if err != nil {
		return err
	}
	if err := export.Write(w, ledger, prior); err != nil {
		return fmt.Errorf("export ledger: %w", err)
	}
	return nil
}

// ImportCSV replaces one ledger year with the uploaded spreadsheet state.
// The CSV's own Car/Year metadata is overridden by the request target.
func (s *LedgerService) ImportCSV(ctx context.Context, r io.Reader, carID string, year int) error {
	ledger, err := export.Read(r)
	if err != nil {
		return fmt.Errorf("parse import: %w", err)
	}
	ledger.CarID = carID
	ledger.Year = year
	if err := s.store.ImportLedger(ctx, ledger); err != nil {
		return fmt.Errorf("import ledger: %w", err)
	}
	s.publishSync(ctx, carID, year, applog.OpImport)
	return nil
}

// ListCars returns every car with ledger data.
func (s *LedgerService) ListCars(ctx context.Context) ([]string, error) {
	cars, err := s.store.ListCars(ctx)
	if err != nil {
		return nil, fmt.Errorf("list cars: %w", err)
	}
	return cars, nil
}

func (s *LedgerService) publishSync(ctx context.Context, carID string, year int, operation string) {
	version, err := s.store.Revision(ctx, carID, year)
	if err != nil {
		s.logs.LogError(ctx, "Failed to read revision for sync message", err,
			applog.ComponentStorage, operation, applog.NewFields().WithLedger(carID, year))
		return
	}

	s.logs.LogLedgerUpdated(ctx, carID, year, operation, version)

	if s.publisher == nil {
		return
	}

	// Don't fail the request - the change is saved locally and the worker's
	// periodic catch-up will pick it up.
	if err := s.publisher.PublishLedgerSync(ctx, carID, year, version); err != nil {
		s.logs.LogError(ctx, "Failed to publish sync message", err,
			applog.ComponentAMQP, applog.OpSync, applog.NewFields().WithLedger(carID, year))
	}
}
