// Package storage persists vehicle year ledgers in SQLite: one row per
// stored cell, dynamic subcategories with per-month values, per-month split
// settings, and a revision counter per (car, year) that drives the archive
// worker.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"fleetbook/internal/core"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db *sql.DB
}

// Revision identifies a ledger version pending archival.
type Revision struct {
	CarID     string
	Year      int
	Version   int64
	UpdatedAt time.Time
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// LoadLedger assembles the full YearLedger for one (car, year) pair,
// including fleet-wide subcategories and their values for that scope.
func (r *SQLiteRepository) LoadLedger(ctx context.Context, carID string, year int) (*core.YearLedger, error) {
	ledger := core.NewYearLedger(carID, year)

	rows, err := r.db.QueryContext(ctx,
		`SELECT category, field, month, value FROM month_cells WHERE car_id = ? AND year = ?`,
		carID, year)
	if err != nil {
		return nil, fmt.Errorf("query month cells: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			cat, field string
			month      int
			value      float64
		)
		if err := rows.Scan(&cat, &field, &month, &value); err != nil {
			return nil, fmt.Errorf("scan month cell: %w", err)
		}
		ledger.SetField(core.Category(cat), month, field, value)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate month cells: %w", err)
	}

	if err := r.loadSubcategories(ctx, ledger); err != nil {
		return nil, err
	}

	modeRows, err := r.db.QueryContext(ctx,
		`SELECT month, mode FROM split_modes WHERE car_id = ? AND year = ?`, carID, year)
	if err != nil {
		return nil, fmt.Errorf("query split modes: %w", err)
	}
	defer modeRows.Close()
	for modeRows.Next() {
		var month, mode int
		if err := modeRows.Scan(&month, &mode); err != nil {
			return nil, fmt.Errorf("scan split mode: %w", err)
		}
		ledger.SplitModes[month] = core.SplitMode(mode)
	}
	if err := modeRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate split modes: %w", err)
	}

	ownerRows, err := r.db.QueryContext(ctx,
		`SELECT month, owner FROM ski_racks_owners WHERE car_id = ? AND year = ?`, carID, year)
	if err != nil {
		return nil, fmt.Errorf("query ski-racks owners: %w", err)
	}
	defer ownerRows.Close()
	for ownerRows.Next() {
		var month int
		var owner string
		if err := ownerRows.Scan(&month, &owner); err != nil {
			return nil, fmt.Errorf("scan ski-racks owner: %w", err)
		}
		ledger.SkiRacksOwners[month] = core.SkiRacksOwner(owner)
	}
	if err := ownerRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ski-racks owners: %w", err)
	}

	return ledger, nil
}

func (r *SQLiteRepository) loadSubcategories(ctx context.Context, ledger *core.YearLedger) error {
	subRows, err := r.db.QueryContext(ctx,
		`SELECT id, car_id, category, name, display_order
		   FROM subcategories
		  WHERE car_id = ? OR car_id = ''
		  ORDER BY display_order, id`,
		ledger.CarID)
	if err != nil {
		return fmt.Errorf("query subcategories: %w", err)
	}
	defer subRows.Close()

	byID := make(map[int64]int)
	for subRows.Next() {
		var (
			id           int64
			scope, name  string
			cat          string
			displayOrder int
		)
		if err := subRows.Scan(&id, &scope, &cat, &name, &displayOrder); err != nil {
			return fmt.Errorf("scan subcategory: %w", err)
		}
		ledger.Subcategories = append(ledger.Subcategories, core.DynamicSubcategory{
			ID:           id,
			Category:     core.Category(cat),
			Name:         name,
			DisplayOrder: displayOrder,
			FleetWide:    scope == "",
			Values:       make(map[int]float64),
		})
		byID[id] = len(ledger.Subcategories) - 1
	}
	if err := subRows.Err(); err != nil {
		return fmt.Errorf("iterate subcategories: %w", err)
	}

	valRows, err := r.db.QueryContext(ctx,
		`SELECT subcategory_id, month, value FROM subcategory_values WHERE car_id = ? AND year = ?`,
		ledger.CarID, ledger.Year)
	if err != nil {
		return fmt.Errorf("query subcategory values: %w", err)
	}
	defer valRows.Close()
	for valRows.Next() {
		var (
			id    int64
			month int
			value float64
		)
		if err := valRows.Scan(&id, &month, &value); err != nil {
			return fmt.Errorf("scan subcategory value: %w", err)
		}
		if idx, ok := byID[id]; ok {
			ledger.Subcategories[idx].Values[month] = value
		}
	}
	if err := valRows.Err(); err != nil {
		return fmt.Errorf("iterate subcategory values: %w", err)
	}
	return nil
}

// UpsertCell stores one fixed cell and bumps the ledger revision.
func (r *SQLiteRepository) UpsertCell(ctx context.Context, carID string, year int, cat core.Category, field string, month int, value float64) error {
	if err := core.ValidateCell(cat, field, month); err != nil {
		return err
	}
	return r.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO month_cells (car_id, year, category, field, month, value)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT (car_id, year, category, field, month) DO UPDATE SET value = excluded.value`,
			carID, year, string(cat), field, month, value); err != nil {
			return fmt.Errorf("upsert cell: %w", err)
		}
		return bumpRevision(ctx, tx, carID, year)
	})
}

// SetSplitMode stores the month's split mode and resets that month's stored
// percentages to the mode defaults. Other months are untouched.
func (r *SQLiteRepository) SetSplitMode(ctx context.Context, carID string, year, month int, mode core.SplitMode) error {
	if err := mode.Validate(); err != nil {
		return err
	}
	if month < 1 || month > 12 {
		return core.ErrInvalidMonth
	}
	mgmt, owner := mode.DefaultPercentages()
	return r.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO split_modes (car_id, year, month, mode) VALUES (?, ?, ?, ?)
			 ON CONFLICT (car_id, year, month) DO UPDATE SET mode = excluded.mode`,
			carID, year, month, int(mode)); err != nil {
			return fmt.Errorf("upsert split mode: %w", err)
		}
		for field, pct := range map[string]float64{
			core.FieldCarManagementSplit: mgmt,
			core.FieldCarOwnerSplit:      owner,
		} {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO month_cells (car_id, year, category, field, month, value)
				 VALUES (?, ?, ?, ?, ?, ?)
				 ON CONFLICT (car_id, year, category, field, month) DO UPDATE SET value = excluded.value`,
				carID, year, string(core.CategoryIncome), field, month, pct); err != nil {
				return fmt.Errorf("reset %s: %w", field, err)
			}
		}
		return bumpRevision(ctx, tx, carID, year)
	})
}

// SetSkiRacksOwner stores the month's ski-racks owner.
func (r *SQLiteRepository) SetSkiRacksOwner(ctx context.Context, carID string, year, month int, owner core.SkiRacksOwner) error {
	if err := owner.Validate(); err != nil {
		return err
	}
	if month < 1 || month > 12 {
		return core.ErrInvalidMonth
	}
	return r.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO ski_racks_owners (car_id, year, month, owner) VALUES (?, ?, ?, ?)
			 ON CONFLICT (car_id, year, month) DO UPDATE SET owner = excluded.owner`,
			carID, year, month, string(owner)); err != nil {
			return fmt.Errorf("upsert ski-racks owner: %w", err)
		}
		return bumpRevision(ctx, tx, carID, year)
	})
}

// CreateSubcategory adds a dynamic subcategory scoped to one vehicle, or to
// the whole fleet when fleetWide is set. year is only used for revision
// bookkeeping of the ledger being edited.
func (r *SQLiteRepository) CreateSubcategory(ctx context.Context, carID string, year int, cat core.Category, name string, fleetWide bool) (int64, error) {
	sub := core.DynamicSubcategory{Category: cat, Name: name}
	if err := sub.Validate(); err != nil {
		return 0, err
	}
	scope := carID
	if fleetWide {
		scope = ""
	}

	var id int64
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		var next int
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(display_order), -1) + 1 FROM subcategories WHERE (car_id = ? OR car_id = '') AND category = ?`,
			carID, string(cat)).Scan(&next); err != nil {
			return fmt.Errorf("next display order: %w", err)
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO subcategories (car_id, category, name, display_order) VALUES (?, ?, ?, ?)`,
			scope, string(cat), name, next)
		if err != nil {
			return fmt.Errorf("insert subcategory: %w", err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("subcategory id: %w", err)
		}
		if fleetWide {
			return bumpFleetRevisions(ctx, tx, carID, year)
		}
		return bumpRevision(ctx, tx, carID, year)
	})
	if err != nil {
		return 0, err
	}

	slog.InfoContext(ctx, "Subcategory created",
		"id", id, "car_id", carID, "category", cat, "name", name, "fleet_wide", fleetWide)
	return id, nil
}

// RenameSubcategory changes a subcategory's display name.
func (r *SQLiteRepository) RenameSubcategory(ctx context.Context, carID string, year int, id int64, name string) error {
	if name == "" {
		return core.ErrEmptyName
	}
	return r.inTx(ctx, func(tx *sql.Tx) error {
		scope, err := subcategoryScope(ctx, tx, id)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE subcategories SET name = ? WHERE id = ?`, name, id); err != nil {
			return fmt.Errorf("rename subcategory: %w", err)
		}
		if scope == "" {
			return bumpFleetRevisions(ctx, tx, carID, year)
		}
		return bumpRevision(ctx, tx, carID, year)
	})
}

// DeleteSubcategory removes a subcategory and cascades all its monthly
// values, across every scope that referenced it.
func (r *SQLiteRepository) DeleteSubcategory(ctx context.Context, carID string, year int, id int64) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		scope, err := subcategoryScope(ctx, tx, id)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM subcategory_values WHERE subcategory_id = ?`, id); err != nil {
			return fmt.Errorf("delete subcategory values: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM subcategories WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete subcategory: %w", err)
		}
		if scope == "" {
			return bumpFleetRevisions(ctx, tx, carID, year)
		}
		return bumpRevision(ctx, tx, carID, year)
	})
}

// UpsertSubcategoryValue stores one subcategory cell for the given scope.
func (r *SQLiteRepository) UpsertSubcategoryValue(ctx context.Context, carID string, year int, id int64, month int, value float64) error {
	if month < 1 || month > 12 {
		return core.ErrInvalidMonth
	}
	return r.inTx(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(1) FROM subcategories WHERE id = ?`, id).Scan(&exists); err != nil {
			return fmt.Errorf("check subcategory: %w", err)
		}
		if exists == 0 {
			return sql.ErrNoRows
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO subcategory_values (subcategory_id, car_id, year, month, value)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT (subcategory_id, car_id, year, month) DO UPDATE SET value = excluded.value`,
			id, carID, year, month, value); err != nil {
			return fmt.Errorf("upsert subcategory value: %w", err)
		}
		return bumpRevision(ctx, tx, carID, year)
	})
}

// ImportLedger replaces every editable cell of one (car, year) pair with
// the given ledger state, resolving subcategories by (category, name) and
// creating missing ones scoped to the car.
func (r *SQLiteRepository) ImportLedger(ctx context.Context, ledger *core.YearLedger) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		carID, year := ledger.CarID, ledger.Year

		for _, table := range []string{"month_cells", "split_modes", "ski_racks_owners", "subcategory_values"} {
			if _, err := tx.ExecContext(ctx,
				fmt.Sprintf(`DELETE FROM %s WHERE car_id = ? AND year = ?`, table), carID, year); err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
		}

		for cat, months := range ledger.Rows {
			for month, row := range months {
				for field, value := range row.Fields {
					if _, err := tx.ExecContext(ctx,
						`INSERT INTO month_cells (car_id, year, category, field, month, value) VALUES (?, ?, ?, ?, ?, ?)`,
						carID, year, string(cat), field, month, value); err != nil {
						return fmt.Errorf("insert cell %s/%s: %w", cat, field, err)
					}
				}
			}
		}

		for month, mode := range ledger.SplitModes {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO split_modes (car_id, year, month, mode) VALUES (?, ?, ?, ?)`,
				carID, year, month, int(mode)); err != nil {
				return fmt.Errorf("insert split mode: %w", err)
			}
		}
		for month, owner := range ledger.SkiRacksOwners {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO ski_racks_owners (car_id, year, month, owner) VALUES (?, ?, ?, ?)`,
				carID, year, month, string(owner)); err != nil {
				return fmt.Errorf("insert ski-racks owner: %w", err)
			}
		}

		for _, sub := range ledger.Subcategories {
			id := sub.ID
			if id == 0 {
				if err := tx.QueryRowContext(ctx,
					`SELECT id FROM subcategories WHERE (car_id = ? OR car_id = '') AND category = ? AND name = ? ORDER BY id LIMIT 1`,
					carID, string(sub.Category), sub.Name).Scan(&id); err != nil {
					if err != sql.ErrNoRows {
						return fmt.Errorf("resolve subcategory %q: %w", sub.Name, err)
					}
					res, err := tx.ExecContext(ctx,
						`INSERT INTO subcategories (car_id, category, name, display_order) VALUES (?, ?, ?, ?)`,
						carID, string(sub.Category), sub.Name, sub.DisplayOrder)
					if err != nil {
						return fmt.Errorf("create subcategory %q: %w", sub.Name, err)
					}
					if id, err = res.LastInsertId(); err != nil {
						return fmt.Errorf("subcategory id: %w", err)
					}
				}
			}
			for month, value := range sub.Values {
				if _, err := tx.ExecContext(ctx,
					`INSERT INTO subcategory_values (subcategory_id, car_id, year, month, value) VALUES (?, ?, ?, ?, ?)`,
					id, carID, year, month, value); err != nil {
					return fmt.Errorf("insert value for %q: %w", sub.Name, err)
				}
			}
		}

		return bumpRevision(ctx, tx, carID, year)
	})
}

// PendingRevisions lists ledgers whose latest version has not been
// archived yet, oldest first.
func (r *SQLiteRepository) PendingRevisions(ctx context.Context, limit int) ([]Revision, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT car_id, year, version, updated_at
		   FROM ledger_revisions
		  WHERE version > archived_version
		  ORDER BY updated_at
		  LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending revisions: %w", err)
	}
	defer rows.Close()

	var out []Revision
	for rows.Next() {
		var rev Revision
		if err := rows.Scan(&rev.CarID, &rev.Year, &rev.Version, &rev.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan revision: %w", err)
		}
		out = append(out, rev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate revisions: %w", err)
	}
	return out, nil
}

// Revision returns the current version of one ledger (0 if never edited).
func (r *SQLiteRepository) Revision(ctx context.Context, carID string, year int) (int64, error) {
	var version int64
	err := r.db.QueryRowContext(ctx,
		`SELECT version FROM ledger_revisions WHERE car_id = ? AND year = ?`,
		carID, year).Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query revision: %w", err)
	}
	return version, nil
}

// MarkArchived records that version has been written to the archive.
func (r *SQLiteRepository) MarkArchived(ctx context.Context, carID string, year int, version int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE ledger_revisions
		    SET archived_version = MAX(archived_version, ?)
		  WHERE car_id = ? AND year = ?`,
		version, carID, year)
	if err != nil {
		return fmt.Errorf("mark archived: %w", err)
	}
	return nil
}

// ListCars returns every car ID with ledger data, sorted.
func (r *SQLiteRepository) ListCars(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT car_id FROM ledger_revisions WHERE car_id != '' ORDER BY car_id`)
	if err != nil {
		return nil, fmt.Errorf("query cars: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan car id: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cars: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.ErrorContext(ctx, "Transaction rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// subcategoryScope returns the car_id column of one subcategory row, the
// empty string for a fleet-wide row, or sql.ErrNoRows if the id is unknown.
func subcategoryScope(ctx context.Context, tx *sql.Tx, id int64) (string, error) {
	var scope string
	if err := tx.QueryRowContext(ctx,
		`SELECT car_id FROM subcategories WHERE id = ?`, id).Scan(&scope); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", sql.ErrNoRows
		}
		return "", fmt.Errorf("subcategory scope: %w", err)
	}
	return scope, nil
}

func bumpRevision(ctx context.Context, tx *sql.Tx, carID string, year int) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO ledger_revisions (car_id, year, version, updated_at)
		 VALUES (?, ?, 1, CURRENT_TIMESTAMP)
		 ON CONFLICT (car_id, year) DO UPDATE
		    SET version = version + 1, updated_at = CURRENT_TIMESTAMP`,
		carID, year)
	if err != nil {
		return fmt.Errorf("bump revision: %w", err)
	}
	return nil
}

// bumpFleetRevisions records a fleet-wide structure change: the edited
// (car, year) pair gets its row created or bumped as usual, and every other
// tracked ledger is bumped too, since fleet-scoped subcategories appear in
// all of them.
func bumpFleetRevisions(ctx context.Context, tx *sql.Tx, carID string, year int) error {
	if err := bumpRevision(ctx, tx, carID, year); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE ledger_revisions
		    SET version = version + 1, updated_at = CURRENT_TIMESTAMP
		  WHERE NOT (car_id = ? AND year = ?)`,
		carID, year); err != nil {
		return fmt.Errorf("bump fleet revisions: %w", err)
	}
	return nil
}
