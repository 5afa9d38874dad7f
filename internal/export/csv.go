// Package export serializes a year ledger to the back-office CSV layout
// and parses the same layout back into ledger state.
//
// Layout: metadata rows (car, year, exported-at), a blank row, a column
// header, then one row per fixed field and per dynamic subcategory with
// twelve month columns and three trailing summary columns. A computed
// section (carry-over, splits, expense totals, profit) and a settings
// section (split mode, ski-racks owner) follow the stored cells. Money
// cells are dollar-formatted with parenthesized negatives.
package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"fleetbook/internal/core"
	"fleetbook/internal/rollup"
)

const (
	colCategory  = 0
	colField     = 1
	colFirstMon  = 2
	colTotal     = 14
	colAverage   = 15
	colShare     = 16
	numColumns   = 17
	metaCarKey   = "Car"
	metaYearKey  = "Year"
	metaStampKey = "Exported"

	// Pseudo-categories for the non-stored sections.
	sectionComputed = "computed"
	sectionSettings = "settings"
)

var monthNames = [12]string{
	"Jan", "Feb", "Mar", "Apr", "May", "Jun",
	"Jul", "Aug", "Sep", "Oct", "Nov", "Dec",
}

// header returns the column header row.
func header() []string {
	row := make([]string, numColumns)
	row[colCategory] = "Category"
	row[colField] = "Field"
	copy(row[colFirstMon:], monthNames[:])
	row[colTotal] = "Total"
	row[colAverage] = "Average"
	row[colShare] = "% of Rental"
	return row
}

// Write serializes the ledger, including the computed roll-up section.
// prior may be nil; it only affects the carry-over row.
func Write(w io.Writer, ledger *core.YearLedger, prior *core.YearLedger) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	meta := [][]string{
		{metaCarKey, ledger.CarID},
		{metaYearKey, strconv.Itoa(ledger.Year)},
		{metaStampKey, time.Now().UTC().Format(time.RFC3339)},
		{},
	}
	for _, row := range meta {
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing metadata: %w", err)
		}
	}
	if err := cw.Write(header()); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	calc := rollup.New(ledger, prior)
	rentalTotal := yearTotal(func(m int) float64 {
		return ledger.Field(core.CategoryIncome, m, core.FieldRentalIncome)
	})

	for _, cat := range core.Categories() {
		for _, field := range core.FieldsOf(cat) {
			values := monthValues(func(m int) float64 { return ledger.Field(cat, m, field) })
			if err := cw.Write(marshalRow(string(cat), field, values, rentalTotal, isMoneyField(cat, field))); err != nil {
				return fmt.Errorf("writing %s/%s: %w", cat, field, err)
			}
		}
		for _, sub := range ledger.SubcategoriesOf(cat) {
			values := monthValues(func(m int) float64 { return sub.Values[m] })
			if err := cw.Write(marshalRow(string(cat), sub.Name, values, rentalTotal, true)); err != nil {
				return fmt.Errorf("writing subcategory %q: %w", sub.Name, err)
			}
		}
	}

	computed := []struct {
		name string
		fn   func(int) float64
	}{
		{"totalDirectDelivery", func(m int) float64 { return calc.CategoryTotal(core.CategoryDirectDelivery, m) }},
		{"totalCogs", func(m int) float64 { return calc.CategoryTotal(core.CategoryCogs, m) }},
		{"totalParkingFeeLabor", func(m int) float64 { return calc.CategoryTotal(core.CategoryParkingFeeLabor, m) }},
		{"totalReimbursedBills", func(m int) float64 { return calc.CategoryTotal(core.CategoryReimbursedBills, m) }},
		{"carryOver", calc.CarryOver},
		{"carManagementSplitAmount", calc.ManagementSplit},
		{"carOwnerSplitAmount", calc.OwnerSplit},
		{"carManagementTotalExpenses", calc.ManagementTotalExpenses},
		{"carOwnerTotalExpenses", calc.OwnerTotalExpenses},
		{"totalExpenses", calc.TotalExpenses},
		{"totalProfit", calc.TotalProfit},
	}
	for _, row := range computed {
		if err := cw.Write(marshalRow(sectionComputed, row.name, monthValues(row.fn), rentalTotal, true)); err != nil {
			return fmt.Errorf("writing computed %s: %w", row.name, err)
		}
	}

	if err := cw.Write(settingsRow("splitMode", func(m int) string {
		return strconv.Itoa(int(ledger.SplitMode(m)))
	})); err != nil {
		return fmt.Errorf("writing split modes: %w", err)
	}
	if err := cw.Write(settingsRow("skiRacksOwner", func(m int) string {
		return string(ledger.SkiRacksOwner(m))
	})); err != nil {
		return fmt.Errorf("writing ski-racks owners: %w", err)
	}

	return cw.Error()
}

// ErrMalformed reports input that cannot be parsed as an exported ledger.
// Callers match it with errors.Is to tell bad input apart from I/O or
// storage failures.
var ErrMalformed = errors.New("malformed ledger CSV")

// Read parses an exported CSV back into ledger state. Computed rows are
// skipped; rows in an expense category whose field name is not in the
// fixed schema become dynamic subcategories (with unassigned IDs).
// Any parse failure wraps ErrMalformed.
func Read(r io.Reader) (*core.YearLedger, error) {
	ledger, err := parse(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return ledger, nil
}

func parse(r io.Reader) (*core.YearLedger, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading ledger CSV: %w", err)
	}

	carID := ""
	year := 0
	start := -1
	for i, rec := range records {
		if len(rec) == 0 {
			continue
		}
		switch rec[0] {
		case metaCarKey:
			if len(rec) > 1 {
				carID = rec[1]
			}
		case metaYearKey:
			if len(rec) > 1 {
				year, err = strconv.Atoi(strings.TrimSpace(rec[1]))
				if err != nil {
					return nil, fmt.Errorf("parsing year %q: %w", rec[1], err)
				}
			}
		case "Category":
			start = i + 1
		}
		if start >= 0 {
			break
		}
	}
	if year == 0 {
		return nil, fmt.Errorf("missing %s metadata row", metaYearKey)
	}
	if start < 0 {
		return nil, fmt.Errorf("missing column header row")
	}

	ledger := core.NewYearLedger(carID, year)
	order := 0
	for i, rec := range records[start:] {
		if len(rec) == 0 || rec[colCategory] == "" {
			continue
		}
		if len(rec) < colFirstMon+12 {
			return nil, fmt.Errorf("row %d: expected at least %d fields, got %d", start+i+1, colFirstMon+12, len(rec))
		}
		switch rec[colCategory] {
		case sectionComputed:
			continue
		case sectionSettings:
			if err := applySettings(ledger, rec); err != nil {
				return nil, fmt.Errorf("row %d: %w", start+i+1, err)
			}
			continue
		}

		cat := core.Category(rec[colCategory])
		field := rec[colField]
		if core.ValidateCell(cat, field, 1) == nil {
			for m := 1; m <= 12; m++ {
				if v := core.ParseCellValue(rec[colFirstMon+m-1]); v != 0 {
					ledger.SetField(cat, m, field, v)
				}
			}
			continue
		}
		if !core.IsExpenseCategory(cat) {
			return nil, fmt.Errorf("row %d: unknown field %q in category %q", start+i+1, field, cat)
		}
		sub := core.DynamicSubcategory{
			Category:     cat,
			Name:         field,
			DisplayOrder: order,
			Values:       make(map[int]float64),
		}
		order++
		for m := 1; m <= 12; m++ {
			if v := core.ParseCellValue(rec[colFirstMon+m-1]); v != 0 {
				sub.Values[m] = v
			}
		}
		ledger.Subcategories = append(ledger.Subcategories, sub)
	}

	return ledger, nil
}

func applySettings(ledger *core.YearLedger, rec []string) error {
	switch rec[colField] {
	case "splitMode":
		for m := 1; m <= 12; m++ {
			n, err := strconv.Atoi(strings.TrimSpace(rec[colFirstMon+m-1]))
			if err != nil {
				return fmt.Errorf("parsing split mode %q: %w", rec[colFirstMon+m-1], err)
			}
			mode := core.SplitMode(n)
			if err := mode.Validate(); err != nil {
				return fmt.Errorf("month %d: %w", m, err)
			}
			if mode != core.Split50 {
				ledger.SplitModes[m] = mode
			}
		}
	case "skiRacksOwner":
		for m := 1; m <= 12; m++ {
			owner := core.SkiRacksOwner(strings.TrimSpace(rec[colFirstMon+m-1]))
			if err := owner.Validate(); err != nil {
				return fmt.Errorf("month %d: %w", m, err)
			}
			if owner != core.SkiRacksGLA {
				ledger.SkiRacksOwners[m] = owner
			}
		}
	default:
		return fmt.Errorf("unknown settings row %q", rec[colField])
	}
	return nil
}

func marshalRow(category, field string, values [12]float64, rentalTotal float64, money bool) []string {
	row := make([]string, numColumns)
	row[colCategory] = category
	row[colField] = field

	var total float64
	for i, v := range values {
		total += v
		if money {
			row[colFirstMon+i] = core.FormatDollars(v)
		} else {
			row[colFirstMon+i] = core.FormatCount(v)
		}
	}
	if money {
		row[colTotal] = core.FormatDollars(total)
		row[colAverage] = core.FormatDollars(total / 12)
	} else {
		row[colTotal] = core.FormatCount(total)
		row[colAverage] = core.FormatCount(total / 12)
	}
	if money && rentalTotal != 0 {
		row[colShare] = core.FormatCount(total/rentalTotal*100) + "%"
	}
	return row
}

func settingsRow(field string, value func(int) string) []string {
	row := make([]string, numColumns)
	row[colCategory] = sectionSettings
	row[colField] = field
	for m := 1; m <= 12; m++ {
		row[colFirstMon+m-1] = value(m)
	}
	return row
}

func monthValues(fn func(int) float64) [12]float64 {
	var out [12]float64
	for m := 1; m <= 12; m++ {
		out[m-1] = fn(m)
	}
	return out
}

func yearTotal(fn func(int) float64) float64 {
	var total float64
	for m := 1; m <= 12; m++ {
		total += fn(m)
	}
	return total
}

// isMoneyField reports whether a fixed field holds a dollar amount.
// History counts and the stored split percentages render as plain numbers.
func isMoneyField(cat core.Category, field string) bool {
	if cat == core.CategoryHistory {
		return false
	}
	return field != core.FieldCarManagementSplit && field != core.FieldCarOwnerSplit
}
