package core

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// CategorySpendingResult compares one category's actual share of spend with its target.
type CategorySpendingResult struct {
	Category    Category
	Weight      float64
	ActualShare float64
	SpendUSD    decimal.Decimal
	DeltaPct    float64 // percentage over target, only set when Breached
	Breached    bool
}

// AnalysisResult is the outcome of analysing one user's spending over a period.
type AnalysisResult struct {
	UserID           string
	PeriodStart      time.Time
	PeriodEnd        time.Time
	TotalSpendingUSD decimal.Decimal
	Categories       []CategorySpendingResult
}

// Breaches returns the breached categories, largest overshoot first.
func (r AnalysisResult) Breaches() []CategorySpendingResult {
	var out []CategorySpendingResult
	for _, c := range r.Categories {
		if c.Breached {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DeltaPct > out[j].DeltaPct
	})
	return out
}

// SortedBySpend returns a copy of the categories ordered by spend, highest first.
// Ties keep canonical category order.
func (r AnalysisResult) SortedBySpend() []CategorySpendingResult {
	out := append([]CategorySpendingResult(nil), r.Categories...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SpendUSD.GreaterThan(out[j].SpendUSD)
	})
	return out
}
