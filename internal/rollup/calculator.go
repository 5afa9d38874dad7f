// Package rollup implements the monthly financial roll-up for one vehicle's
// year ledger: per-category totals, the recursive negative-balance
// carry-over, and the management/owner revenue split.
//
// Everything here is pure computation over in-memory ledger state. The
// calculator performs no I/O and recomputes from the ledger on every call,
// so callers can mutate the ledger between reads without stale results.
package rollup

import (
	"math"

	"fleetbook/internal/core"
)

// Calculator evaluates one YearLedger, with an optional read-only prior-year
// ledger for January carry-over. A nil prior ledger makes January carry-over
// zero for years after the epoch.
type Calculator struct {
	ledger *core.YearLedger
	prior  *core.YearLedger
}

// New returns a calculator over ledger. prior may be nil.
func New(ledger, prior *core.YearLedger) *Calculator {
	return &Calculator{ledger: ledger, prior: prior}
}

func (c *Calculator) income(month int, field string) float64 {
	return c.ledger.Field(core.CategoryIncome, month, field)
}

// CategoryTotal sums a category's fixed fields plus its dynamic
// subcategory values for one month. Missing rows and values contribute
// zero. The income row's stored split percentages are configuration, not
// amounts, and are excluded.
func (c *Calculator) CategoryTotal(cat core.Category, month int) float64 {
	var total float64
	for _, f := range core.FieldsOf(cat) {
		if f == core.FieldCarManagementSplit || f == core.FieldCarOwnerSplit {
			continue
		}
		total += c.ledger.Field(cat, month, f)
	}
	for _, sub := range c.ledger.SubcategoriesOf(cat) {
		total += sub.Values[month]
	}
	return total
}

// CarryOver returns the deficit carried into month from the preceding
// month, crossing into the prior-year ledger for January. The result is
// never positive: a surplus month passes zero forward.
func (c *Calculator) CarryOver(month int) float64 {
	if month <= 1 {
		if c.ledger.Year <= core.EpochYear {
			return 0
		}
		if c.prior == nil {
			return 0
		}
		// December balance of the prior year; the prior year's own January
		// starts from zero since no older ledger is reachable.
		return New(c.prior, nil).monthEndBalance(12)
	}
	return c.monthEndBalance(month - 1)
}

// monthEndBalance computes the balance month m passes forward, using m's
// own split mode, clamped so only deficits propagate.
func (c *Calculator) monthEndBalance(m int) float64 {
	dd := c.CategoryTotal(core.CategoryDirectDelivery, m)
	cogs := c.CategoryTotal(core.CategoryCogs, m)
	prior := c.CarryOver(m)

	rental := c.income(m, core.FieldRentalIncome)
	// Income lines attributed directly to one party; they are removed from
	// the rental pool before the balance is struck.
	attributed := c.income(m, core.FieldDeliveryIncome) +
		c.income(m, core.FieldElectricPrepaid) +
		c.income(m, core.FieldGasIncome) +
		c.income(m, core.FieldSmokingFine) +
		c.income(m, core.FieldMilesIncome) +
		c.income(m, core.FieldSkiRacksIncome) +
		c.income(m, core.FieldChildSeatIncome) +
		c.income(m, core.FieldCoolersIncome) +
		c.income(m, core.FieldInsuranceWreck) +
		c.income(m, core.FieldOtherIncome)

	var calc float64
	switch c.ledger.SplitMode(m) {
	case core.Split70:
		part1 := c.income(m, core.FieldMilesIncome) + c.income(m, core.FieldSmokingFine)*0.10
		part2 := (rental - attributed) * (c.income(m, core.FieldCarOwnerSplit) / 100)
		// COGS is counted twice in this branch; the 30:70 convention books
		// it against both parties.
		calc = part1 - dd - cogs - cogs + prior + part2
	default:
		calc = rental - attributed - dd - cogs + prior
	}

	if calc > 0 {
		return 0
	}
	return calc
}

// ManagementSplit returns the management share of one month's revenue,
// floored at zero.
func (c *Calculator) ManagementSplit(month int) float64 {
	mgmt, _ := c.splitShares(month)
	return mgmt
}

// OwnerSplit returns the car owner's share of one month's revenue, floored
// at zero.
func (c *Calculator) OwnerSplit(month int) float64 {
	_, owner := c.splitShares(month)
	return owner
}

// splitShares computes both shares together so the variant selection stays
// symmetric: each directly-attributed income line lands on exactly one
// side, and the remaining pool is divided by the stored percentages.
func (c *Calculator) splitShares(m int) (management, owner float64) {
	dd := c.CategoryTotal(core.CategoryDirectDelivery, m)
	cogs := c.CategoryTotal(core.CategoryCogs, m)
	reimbursed := c.CategoryTotal(core.CategoryReimbursedBills, m)

	rental := c.income(m, core.FieldRentalIncome)
	delivery := c.income(m, core.FieldDeliveryIncome)
	electric := c.income(m, core.FieldElectricPrepaid)
	gas := c.income(m, core.FieldGasIncome)
	smoking := c.income(m, core.FieldSmokingFine)
	miles := c.income(m, core.FieldMilesIncome)
	skiRacks := c.income(m, core.FieldSkiRacksIncome)

	mgmtPct := c.income(m, core.FieldCarManagementSplit) / 100
	ownerPct := c.income(m, core.FieldCarOwnerSplit) / 100
	carryOver := math.Abs(c.CarryOver(m))

	pool := rental - carryOver - delivery - electric - smoking - gas - miles - dd - cogs

	switch {
	case c.ledger.Year < 2026:
		// Standard formula; ski-racks income is ignored entirely.
		management = (delivery + electric + smoking + gas - reimbursed) + pool*mgmtPct
		owner = miles + pool*ownerPct

	case skiRacks == 0:
		// From 2026 the smoking fine splits 90/10 instead of going whole
		// to management.
		management = (delivery + electric + smoking*0.90 + gas - reimbursed) + pool*mgmtPct
		owner = miles + smoking*0.10 + pool*ownerPct

	default:
		// Ski-racks income present: it leaves the shared pool and lands
		// whole on whichever party owns the racks this month.
		pool -= skiRacks
		management = (delivery + electric + smoking*0.90 + gas - reimbursed) + pool*mgmtPct
		owner = miles + smoking*0.10 + pool*ownerPct
		if c.ledger.SkiRacksOwner(m) == core.SkiRacksCarOwner {
			owner += skiRacks
		} else {
			management += skiRacks
		}
	}

	if management < 0 {
		management = 0
	}
	if owner < 0 {
		owner = 0
	}
	return management, owner
}

// ManagementTotalExpenses returns the expense load attributed to
// management for one month, following the month's split mode.
func (c *Calculator) ManagementTotalExpenses(month int) float64 {
	reimbursed := c.CategoryTotal(core.CategoryReimbursedBills, month)
	if c.ledger.SplitMode(month) == core.Split70 {
		return reimbursed
	}
	dd := c.CategoryTotal(core.CategoryDirectDelivery, month)
	cogs := c.CategoryTotal(core.CategoryCogs, month)
	mgmtPct := c.income(month, core.FieldCarManagementSplit) / 100
	return reimbursed + (dd+cogs)*mgmtPct
}

// OwnerTotalExpenses returns the expense load attributed to the car owner
// for one month, following the month's split mode.
func (c *Calculator) OwnerTotalExpenses(month int) float64 {
	dd := c.CategoryTotal(core.CategoryDirectDelivery, month)
	cogs := c.CategoryTotal(core.CategoryCogs, month)
	if c.ledger.SplitMode(month) == core.Split70 {
		return dd + cogs + c.CategoryTotal(core.CategoryParkingFeeLabor, month)
	}
	ownerPct := c.income(month, core.FieldCarOwnerSplit) / 100
	return (dd + cogs) * ownerPct
}

// TotalExpenses is the sum of both parties' expense loads.
func (c *Calculator) TotalExpenses(month int) float64 {
	return c.ManagementTotalExpenses(month) + c.OwnerTotalExpenses(month)
}

// TotalProfit is rental income net of total expenses.
func (c *Calculator) TotalProfit(month int) float64 {
	return c.income(month, core.FieldRentalIncome) - c.TotalExpenses(month)
}
