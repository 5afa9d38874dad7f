package rollup

import "fleetbook/internal/core"

// MonthSummary bundles every computed scalar for one month, the shape the
// HTTP view and the CSV exporter consume.
type MonthSummary struct {
	Month                   int                       `json:"month"`
	CategoryTotals          map[core.Category]float64 `json:"categoryTotals"`
	CarryOver               float64                   `json:"carryOver"`
	ManagementSplit         float64                   `json:"managementSplit"`
	OwnerSplit              float64                   `json:"ownerSplit"`
	ManagementTotalExpenses float64                   `json:"managementTotalExpenses"`
	OwnerTotalExpenses      float64                   `json:"ownerTotalExpenses"`
	TotalExpenses           float64                   `json:"totalExpenses"`
	TotalProfit             float64                   `json:"totalProfit"`
}

// MonthSummary computes the full scalar bundle for one month.
func (c *Calculator) MonthSummary(month int) MonthSummary {
	totals := make(map[core.Category]float64, 4)
	for _, cat := range core.ExpenseCategories() {
		totals[cat] = c.CategoryTotal(cat, month)
	}
	return MonthSummary{
		Month:                   month,
		CategoryTotals:          totals,
		CarryOver:               c.CarryOver(month),
		ManagementSplit:         c.ManagementSplit(month),
		OwnerSplit:              c.OwnerSplit(month),
		ManagementTotalExpenses: c.ManagementTotalExpenses(month),
		OwnerTotalExpenses:      c.OwnerTotalExpenses(month),
		TotalExpenses:           c.TotalExpenses(month),
		TotalProfit:             c.TotalProfit(month),
	}
}

// Evaluate computes summaries for all twelve months in order.
func (c *Calculator) Evaluate() []MonthSummary {
	out := make([]MonthSummary, 0, 12)
	for m := 1; m <= 12; m++ {
		out = append(out, c.MonthSummary(m))
	}
	return out
}
