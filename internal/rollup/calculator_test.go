package rollup

import (
	"math"
	"testing"

	"fleetbook/internal/core"
)

const eps = 1e-9

func approx(t *testing.T, name string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > eps {
		t.Fatalf("%s: expected %v, got %v", name, want, got)
	}
}

func TestEmptyLedgerYieldsZeroEverywhere(t *testing.T) {
	c := New(core.NewYearLedger("car-1", 2025), nil)
	for m := 1; m <= 12; m++ {
		for _, cat := range core.ExpenseCategories() {
			approx(t, "category total", c.CategoryTotal(cat, m), 0)
		}
		approx(t, "carry over", c.CarryOver(m), 0)
		approx(t, "management split", c.ManagementSplit(m), 0)
		approx(t, "owner split", c.OwnerSplit(m), 0)
		approx(t, "total expenses", c.TotalExpenses(m), 0)
		approx(t, "total profit", c.TotalProfit(m), 0)
	}
}

func TestEpochJanuaryHasNoCarryOver(t *testing.T) {
	l := core.NewYearLedger("car-1", 2019)
	l.SetField(core.CategoryCogs, 12, "repairs", 9999)
	c := New(l, nil)
	approx(t, "epoch january", c.CarryOver(1), 0)

	// Years after the epoch with no prior ledger also start from zero.
	c = New(core.NewYearLedger("car-1", 2023), nil)
	approx(t, "january without prior", c.CarryOver(1), 0)
}

func TestCarryOverPropagatesOnlyDeficits(t *testing.T) {
	l := core.NewYearLedger("car-1", 2025)
	l.SetField(core.CategoryIncome, 1, core.FieldRentalIncome, 100)
	l.SetField(core.CategoryCogs, 1, "maintenance", 500)
	l.SetField(core.CategoryIncome, 2, core.FieldRentalIncome, 1000)

	c := New(l, nil)
	approx(t, "month 2 inherits deficit", c.CarryOver(2), -400)
	// Month 2 recovers: 1000 - 400 = 600 surplus, which resets to zero.
	approx(t, "month 3 after surplus", c.CarryOver(3), 0)

	for m := 1; m <= 12; m++ {
		if c.CarryOver(m) > 0 {
			t.Fatalf("carry over must never be positive, month %d gave %v", m, c.CarryOver(m))
		}
	}
}

func TestCarryOverMode70Formula(t *testing.T) {
	l := core.NewYearLedger("car-1", 2025)
	l.SplitModes[1] = core.Split70
	l.SetField(core.CategoryIncome, 1, core.FieldRentalIncome, 1000)
	l.SetField(core.CategoryIncome, 1, core.FieldMilesIncome, 100)
	l.SetField(core.CategoryIncome, 1, core.FieldSmokingFine, 50)
	l.SetField(core.CategoryIncome, 1, core.FieldCarOwnerSplit, 70)
	l.SetField(core.CategoryDirectDelivery, 1, "gasRefill", 200)
	l.SetField(core.CategoryCogs, 1, "repairs", 300)

	// part1 = 100 + 50*0.10 = 105
	// part2 = (1000 - 150) * 0.70 = 595
	// calc  = 105 - 200 - 2*300 + 0 + 595 = -100 (COGS doubled in this mode)
	c := New(l, nil)
	approx(t, "mode 70 carry over", c.CarryOver(2), -100)
}

func TestCarryOverUsesPreviousMonthsOwnMode(t *testing.T) {
	l := core.NewYearLedger("car-1", 2025)
	l.SplitModes[1] = core.Split70
	l.SplitModes[2] = core.Split50
	l.SetField(core.CategoryIncome, 1, core.FieldMilesIncome, 10)
	l.SetField(core.CategoryIncome, 1, core.FieldCarOwnerSplit, 70)
	l.SetField(core.CategoryCogs, 1, "repairs", 100)

	// Month 1 is mode 70: calc = 10 - 2*100 + (0-10)*0.7 = -197.
	// Under mode 50 it would have been 0 - 10 - 100 = -110.
	c := New(l, nil)
	approx(t, "mode of month 1 governs", c.CarryOver(2), -197)
}

func TestCarryOverCrossesYearBoundary(t *testing.T) {
	prior := core.NewYearLedger("car-1", 2024)
	prior.SetField(core.CategoryIncome, 12, core.FieldRentalIncome, 100)
	prior.SetField(core.CategoryCogs, 12, "tires", 350)

	l := core.NewYearLedger("car-1", 2025)
	c := New(l, prior)
	approx(t, "january from prior december", c.CarryOver(1), -250)

	// Deficits keep chaining forward through empty months.
	approx(t, "february still carries", c.CarryOver(2), -250)

	// Without the prior ledger the chain starts clean.
	approx(t, "no prior ledger", New(l, nil).CarryOver(1), 0)
}

func TestCategoryTotalIncludesDynamicSubcategories(t *testing.T) {
	l := core.NewYearLedger("car-1", 2025)
	l.SetField(core.CategoryCogs, 2, "maintenance", 60)
	c := New(l, nil)
	approx(t, "fixed only", c.CategoryTotal(core.CategoryCogs, 2), 60)

	l.Subcategories = append(l.Subcategories, core.DynamicSubcategory{
		ID: 1, Category: core.CategoryCogs, Name: "Detailing",
		Values: map[int]float64{2: 40},
	})
	approx(t, "with subcategory", c.CategoryTotal(core.CategoryCogs, 2), 100)
	approx(t, "other month untouched", c.CategoryTotal(core.CategoryCogs, 3), 0)
	approx(t, "other category untouched", c.CategoryTotal(core.CategoryParkingFeeLabor, 2), 0)

	// Deleting the subcategory removes its contribution from every month.
	l.Subcategories = nil
	approx(t, "after delete", c.CategoryTotal(core.CategoryCogs, 2), 60)
}

func TestStandardFiftyFiftyScenario(t *testing.T) {
	l := core.NewYearLedger("car-1", 2025)
	l.SetField(core.CategoryIncome, 6, core.FieldRentalIncome, 1000)
	l.SetField(core.CategoryIncome, 6, core.FieldCarManagementSplit, 50)
	l.SetField(core.CategoryIncome, 6, core.FieldCarOwnerSplit, 50)

	c := New(l, nil)
	approx(t, "management split", c.ManagementSplit(6), 500)
	approx(t, "owner split", c.OwnerSplit(6), 500)
	approx(t, "total profit", c.TotalProfit(6), 1000)
}

func TestSplitIgnoresSkiRacksBefore2026(t *testing.T) {
	l := core.NewYearLedger("car-1", 2025)
	l.SetField(core.CategoryIncome, 3, core.FieldRentalIncome, 1000)
	l.SetField(core.CategoryIncome, 3, core.FieldSkiRacksIncome, 200)
	l.SetField(core.CategoryIncome, 3, core.FieldSmokingFine, 100)
	l.SetField(core.CategoryIncome, 3, core.FieldCarManagementSplit, 50)
	l.SetField(core.CategoryIncome, 3, core.FieldCarOwnerSplit, 50)

	// pool = 1000 - 100 = 900; smoking goes whole to management.
	c := New(l, nil)
	approx(t, "management", c.ManagementSplit(3), 100+450)
	approx(t, "owner", c.OwnerSplit(3), 450)
}

func TestSplitSmokingFineFoldsFrom2026(t *testing.T) {
	l := core.NewYearLedger("car-1", 2026)
	l.SetField(core.CategoryIncome, 3, core.FieldRentalIncome, 1000)
	l.SetField(core.CategoryIncome, 3, core.FieldSmokingFine, 100)
	l.SetField(core.CategoryIncome, 3, core.FieldMilesIncome, 50)
	l.SetField(core.CategoryIncome, 3, core.FieldCarManagementSplit, 50)
	l.SetField(core.CategoryIncome, 3, core.FieldCarOwnerSplit, 50)

	// pool = 1000 - 100 - 50 = 850
	c := New(l, nil)
	approx(t, "management", c.ManagementSplit(3), 90+425)
	approx(t, "owner", c.OwnerSplit(3), 50+10+425)
}

func TestSplitSkiRacksOwnershipFrom2026(t *testing.T) {
	build := func(owner core.SkiRacksOwner) *Calculator {
		l := core.NewYearLedger("car-1", 2026)
		l.SetField(core.CategoryIncome, 1, core.FieldRentalIncome, 1000)
		l.SetField(core.CategoryIncome, 1, core.FieldSkiRacksIncome, 200)
		l.SetField(core.CategoryIncome, 1, core.FieldSmokingFine, 100)
		l.SetField(core.CategoryIncome, 1, core.FieldMilesIncome, 50)
		l.SetField(core.CategoryIncome, 1, core.FieldCarManagementSplit, 50)
		l.SetField(core.CategoryIncome, 1, core.FieldCarOwnerSplit, 50)
		l.SkiRacksOwners[1] = owner
		return New(l, nil)
	}

	// pool = 1000 - 100 - 50 - 200 = 650; base shares:
	// management 90 + 325 = 415, owner 50 + 10 + 325 = 385.
	c := build(core.SkiRacksGLA)
	approx(t, "GLA management", c.ManagementSplit(1), 415+200)
	approx(t, "GLA owner", c.OwnerSplit(1), 385)

	c = build(core.SkiRacksCarOwner)
	approx(t, "owner management", c.ManagementSplit(1), 415)
	approx(t, "owner owner", c.OwnerSplit(1), 385+200)
}

func TestSplitsFloorAtZero(t *testing.T) {
	l := core.NewYearLedger("car-1", 2025)
	l.SetField(core.CategoryIncome, 2, core.FieldRentalIncome, 100)
	l.SetField(core.CategoryIncome, 2, core.FieldCarManagementSplit, 50)
	l.SetField(core.CategoryIncome, 2, core.FieldCarOwnerSplit, 50)
	l.SetField(core.CategoryReimbursedBills, 2, "insuranceBill", 5000)
	l.SetField(core.CategoryCogs, 2, "repairs", 400)

	c := New(l, nil)
	if got := c.ManagementSplit(2); got != 0 {
		t.Fatalf("management split must floor at 0, got %v", got)
	}
	if got := c.OwnerSplit(2); got != 0 {
		t.Fatalf("owner split must floor at 0, got %v", got)
	}
}

func TestExpenseTotalsByMode(t *testing.T) {
	l := core.NewYearLedger("car-1", 2025)
	l.SetField(core.CategoryIncome, 5, core.FieldRentalIncome, 2000)
	l.SetField(core.CategoryIncome, 5, core.FieldCarManagementSplit, 50)
	l.SetField(core.CategoryIncome, 5, core.FieldCarOwnerSplit, 50)
	l.SetField(core.CategoryDirectDelivery, 5, "gasRefill", 100)
	l.SetField(core.CategoryCogs, 5, "maintenance", 300)
	l.SetField(core.CategoryParkingFeeLabor, 5, "parkingFee", 80)
	l.SetField(core.CategoryReimbursedBills, 5, "insuranceBill", 120)

	c := New(l, nil)

	// Mode 50: management 120 + 400*0.5, owner 400*0.5.
	approx(t, "mode 50 management expenses", c.ManagementTotalExpenses(5), 320)
	approx(t, "mode 50 owner expenses", c.OwnerTotalExpenses(5), 200)
	approx(t, "mode 50 total", c.TotalExpenses(5), 520)
	approx(t, "mode 50 profit", c.TotalProfit(5), 2000-520)

	// Mode 70: management keeps only reimbursed bills; owner takes the
	// categories whole plus parking/labor.
	l.SplitModes[5] = core.Split70
	approx(t, "mode 70 management expenses", c.ManagementTotalExpenses(5), 120)
	approx(t, "mode 70 owner expenses", c.OwnerTotalExpenses(5), 100+300+80)
	approx(t, "mode 70 total", c.TotalExpenses(5), 600)
	approx(t, "mode 70 profit", c.TotalProfit(5), 1400)
}

func TestTotalExpensesReconcilesByConstruction(t *testing.T) {
	l := core.NewYearLedger("car-1", 2026)
	for m := 1; m <= 12; m++ {
		l.SetField(core.CategoryIncome, m, core.FieldRentalIncome, float64(500+m*37))
		l.SetField(core.CategoryIncome, m, core.FieldCarManagementSplit, 30)
		l.SetField(core.CategoryIncome, m, core.FieldCarOwnerSplit, 70)
		l.SetField(core.CategoryCogs, m, "repairs", float64(m*11))
		l.SetField(core.CategoryDirectDelivery, m, "tolls", float64(m*3))
		if m%2 == 0 {
			l.SplitModes[m] = core.Split70
		}
	}

	c := New(l, nil)
	for m := 1; m <= 12; m++ {
		sum := c.ManagementTotalExpenses(m) + c.OwnerTotalExpenses(m)
		approx(t, "reconciliation", c.TotalExpenses(m), sum)
		approx(t, "profit identity", c.TotalProfit(m),
			l.Field(core.CategoryIncome, m, core.FieldRentalIncome)-c.TotalExpenses(m))
	}
}

func TestEvaluateCoversTwelveMonths(t *testing.T) {
	l := core.NewYearLedger("car-1", 2025)
	l.SetField(core.CategoryIncome, 7, core.FieldRentalIncome, 800)
	l.SetField(core.CategoryIncome, 7, core.FieldCarManagementSplit, 50)
	l.SetField(core.CategoryIncome, 7, core.FieldCarOwnerSplit, 50)

	summaries := New(l, nil).Evaluate()
	if len(summaries) != 12 {
		t.Fatalf("expected 12 summaries, got %d", len(summaries))
	}
	for i, s := range summaries {
		if s.Month != i+1 {
			t.Fatalf("summary %d has month %d", i, s.Month)
		}
	}
	approx(t, "july management", summaries[6].ManagementSplit, 400)
	approx(t, "july profit", summaries[6].TotalProfit, 800)
}
