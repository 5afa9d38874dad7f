package core

import (
	"errors"
	"strings"
)

// Category identifies one of the fixed ledger sections of a vehicle's
// bookkeeping sheet.
type Category string

const (
	CategoryIncome          Category = "income"
	CategoryDirectDelivery  Category = "directDelivery"
	CategoryCogs            Category = "cogs"
	CategoryParkingFeeLabor Category = "parkingFeeLabor"
	CategoryReimbursedBills Category = "reimbursedBills"
	CategoryHistory         Category = "history"
)

// SplitMode selects the revenue-sharing convention for a month:
// 50:50 or 30:70 (management:owner).
type SplitMode int

const (
	Split50 SplitMode = 50
	Split70 SplitMode = 70
)

// SkiRacksOwner names the party that keeps ski-racks income for a month.
// Only consulted from fiscal year 2026 onward.
type SkiRacksOwner string

const (
	SkiRacksGLA      SkiRacksOwner = "GLA"
	SkiRacksCarOwner SkiRacksOwner = "CAR_OWNER"
)

// EpochYear is the first year with ledger data; January of this year has
// no carry-over by definition.
const EpochYear = 2019

var (
	ErrInvalidMonth    = errors.New("invalid month")
	ErrInvalidCategory = errors.New("invalid category")
	ErrInvalidField    = errors.New("invalid field")
	ErrInvalidMode     = errors.New("invalid split mode")
	ErrInvalidOwner    = errors.New("invalid ski-racks owner")
	ErrEmptyName       = errors.New("empty subcategory name")
)

// Income row field names.
const (
	FieldRentalIncome       = "rentalIncome"
	FieldDeliveryIncome     = "deliveryIncome"
	FieldElectricPrepaid    = "electricPrepaidIncome"
	FieldGasIncome          = "gasIncome"
	FieldSmokingFine        = "smokingFineIncome"
	FieldMilesIncome        = "milesIncome"
	FieldSkiRacksIncome     = "skiRacksIncome"
	FieldChildSeatIncome    = "childSeatIncome"
	FieldCoolersIncome      = "coolersIncome"
	FieldInsuranceWreck     = "insuranceWreckIncome"
	FieldOtherIncome        = "otherIncome"
	FieldCarManagementSplit = "carManagementSplit"
	FieldCarOwnerSplit      = "carOwnerSplit"
)

// categoryFields is the fixed schema: the named cells every ledger carries
// per category, in display order. Dynamic subcategories extend the four
// expense categories beyond this list.
var categoryFields = map[Category][]string{
	CategoryIncome: {
		FieldRentalIncome, FieldDeliveryIncome, FieldElectricPrepaid,
		FieldGasIncome, FieldSmokingFine, FieldMilesIncome,
		FieldSkiRacksIncome, FieldChildSeatIncome, FieldCoolersIncome,
		FieldInsuranceWreck, FieldOtherIncome,
		FieldCarManagementSplit, FieldCarOwnerSplit,
	},
	CategoryDirectDelivery: {
		"deliveryFee", "gasRefill", "tolls", "airportParking", "mileageReimbursement",
	},
	CategoryCogs: {
		"maintenance", "repairs", "tires", "carWash", "supplies", "depreciation",
	},
	CategoryParkingFeeLabor: {
		"parkingFee", "laborCarCleaning", "laborMaintenance",
	},
	CategoryReimbursedBills: {
		"insuranceBill", "registrationBill", "citations", "otherBill",
	},
	CategoryHistory: {
		"tripsTaken", "daysRented", "odometerStart", "odometerEnd",
	},
}

// expenseCategories are the categories that accept dynamic subcategories
// and participate in expense totals.
var expenseCategories = []Category{
	CategoryDirectDelivery,
	CategoryCogs,
	CategoryParkingFeeLabor,
	CategoryReimbursedBills,
}

// Categories returns every ledger category in display order.
func Categories() []Category {
	return []Category{
		CategoryIncome, CategoryDirectDelivery, CategoryCogs,
		CategoryParkingFeeLabor, CategoryReimbursedBills, CategoryHistory,
	}
}

// ExpenseCategories returns the categories that accept dynamic subcategories.
func ExpenseCategories() []Category {
	out := make([]Category, len(expenseCategories))
	copy(out, expenseCategories)
	return out
}

// FieldsOf returns the fixed field names of a category, in display order.
func FieldsOf(cat Category) []string {
	fields := categoryFields[cat]
	out := make([]string, len(fields))
	copy(out, fields)
	return out
}

// ValidateCell checks a (category, field, month) edit target against the
// fixed schema.
func ValidateCell(cat Category, field string, month int) error {
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	fields, ok := categoryFields[cat]
	if !ok {
		return ErrInvalidCategory
	}
	for _, f := range fields {
		if f == field {
			return nil
		}
	}
	return ErrInvalidField
}

// IsExpenseCategory reports whether cat accepts dynamic subcategories.
func IsExpenseCategory(cat Category) bool {
	for _, c := range expenseCategories {
		if c == cat {
			return true
		}
	}
	return false
}

// Validate checks a split mode value.
func (m SplitMode) Validate() error {
	if m != Split50 && m != Split70 {
		return ErrInvalidMode
	}
	return nil
}

// DefaultPercentages returns the management/owner percentages shown when a
// month is toggled to this mode. The stored percentages remain independent
// inputs afterwards.
func (m SplitMode) DefaultPercentages() (management, owner float64) {
	if m == Split70 {
		return 30, 70
	}
	return 50, 50
}

// Validate checks a ski-racks owner value.
func (o SkiRacksOwner) Validate() error {
	if o != SkiRacksGLA && o != SkiRacksCarOwner {
		return ErrInvalidOwner
	}
	return nil
}

// MonthRow holds the stored cells of one category for one calendar month.
// A missing field reads as zero.
type MonthRow struct {
	Month  int
	Fields map[string]float64
}

// DynamicSubcategory is a caller-defined expense line item beyond the fixed
// schema, scoped to one expense category. Values are keyed by month.
type DynamicSubcategory struct {
	ID           int64
	Category     Category
	Name         string
	DisplayOrder int
	FleetWide    bool
	Values       map[int]float64
}

// Validate checks the subcategory's category and name.
func (s DynamicSubcategory) Validate() error {
	if !IsExpenseCategory(s.Category) {
		return ErrInvalidCategory
	}
	if strings.TrimSpace(s.Name) == "" {
		return ErrEmptyName
	}
	return nil
}

// YearLedger aggregates one vehicle's bookkeeping for one calendar year:
// the per-category month rows, the dynamic subcategories with their monthly
// values, and the per-month split mode and ski-racks owner selections.
type YearLedger struct {
	CarID          string
	Year           int
	Rows           map[Category]map[int]MonthRow
	Subcategories  []DynamicSubcategory
	SplitModes     map[int]SplitMode
	SkiRacksOwners map[int]SkiRacksOwner
}

// NewYearLedger returns an empty ledger for one (vehicle, year) pair.
func NewYearLedger(carID string, year int) *YearLedger {
	return &YearLedger{
		CarID:          carID,
		Year:           year,
		Rows:           make(map[Category]map[int]MonthRow),
		SplitModes:     make(map[int]SplitMode),
		SkiRacksOwners: make(map[int]SkiRacksOwner),
	}
}

// Field returns the stored value of a fixed cell, or zero if the row or the
// field is absent.
func (l *YearLedger) Field(cat Category, month int, field string) float64 {
	if l == nil {
		return 0
	}
	rows, ok := l.Rows[cat]
	if !ok {
		return 0
	}
	row, ok := rows[month]
	if !ok {
		return 0
	}
	return row.Fields[field]
}

// SetField upserts a fixed cell value in memory.
func (l *YearLedger) SetField(cat Category, month int, field string, value float64) {
	rows, ok := l.Rows[cat]
	if !ok {
		rows = make(map[int]MonthRow)
		l.Rows[cat] = rows
	}
	row, ok := rows[month]
	if !ok {
		row = MonthRow{Month: month, Fields: make(map[string]float64)}
	}
	row.Fields[field] = value
	rows[month] = row
}

// SplitMode returns the month's split mode, defaulting to 50:50.
func (l *YearLedger) SplitMode(month int) SplitMode {
	if l == nil {
		return Split50
	}
	if m, ok := l.SplitModes[month]; ok {
		return m
	}
	return Split50
}

// SkiRacksOwner returns the month's ski-racks owner, defaulting to GLA.
func (l *YearLedger) SkiRacksOwner(month int) SkiRacksOwner {
	if l == nil {
		return SkiRacksGLA
	}
	if o, ok := l.SkiRacksOwners[month]; ok {
		return o
	}
	return SkiRacksGLA
}

// SubcategoriesOf returns the dynamic subcategories of one category in
// display order (the slice order as loaded).
func (l *YearLedger) SubcategoriesOf(cat Category) []DynamicSubcategory {
	if l == nil {
		return nil
	}
	var out []DynamicSubcategory
	for _, s := range l.Subcategories {
		if s.Category == cat {
			out = append(out, s)
		}
	}
	return out
}
