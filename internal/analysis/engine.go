// Package analysis compares a user's spending over a period with their
// category weights and reports which categories overshoot their target.
package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"spendwatch/internal/core"
	"spendwatch/internal/log"
	"spendwatch/internal/metrics"
)

var hundred = decimal.NewFromInt(100)

type WeightResolver interface {
	GetEffectiveWeights(ctx context.Context, userID string) ([]core.CategoryWeight, error)
}

// SpendingAggregator sums spend per category over [from, to], days inclusive.
type SpendingAggregator interface {
	SpendByCategory(ctx context.Context, userID string, from, to time.Time) (map[core.Category]decimal.Decimal, error)
}

// Options tune a single analysis. ThresholdBuffer is the tolerance, as a
// share of total spend, added to each weight before a category counts as
// breached.
type Options struct {
	ThresholdBuffer float64
}

type Engine struct {
	weights  WeightResolver
	spending SpendingAggregator
	logger   *slog.Logger
}

func NewEngine(weights WeightResolver, spending SpendingAggregator, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		weights:  weights,
		spending: spending,
		logger:   logger.With(log.FieldComponent, log.ComponentAnalysis),
	}
}

// AnalyzePeriod computes each weighted category's share of total spend and
// flags it breached when the share is strictly above weight + buffer.
func (e *Engine) AnalyzePeriod(ctx context.Context, userID string, periodStart, periodEnd time.Time, opts Options) (core.AnalysisResult, error) {
	if err := core.ValidatePeriod(periodStart, periodEnd); err != nil {
		return core.AnalysisResult{}, fmt.Errorf("analyze user %s: %w", userID, err)
	}
	if opts.ThresholdBuffer < 0 {
		return core.AnalysisResult{}, fmt.Errorf("analyze user %s: negative threshold buffer %g", userID, opts.ThresholdBuffer)
	}

	weights, err := e.weights.GetEffectiveWeights(ctx, userID)
	if err != nil {
		return core.AnalysisResult{}, fmt.Errorf("resolve weights for user %s: %w", userID, err)
	}

	spend, err := e.spending.SpendByCategory(ctx, userID, periodStart, periodEnd)
	if err != nil {
		return core.AnalysisResult{}, fmt.Errorf("aggregate spending for user %s: %w", userID, err)
	}

	total := decimal.Zero
	for _, amount := range spend {
		total = total.Add(amount)
	}

	result := core.AnalysisResult{
		UserID:           userID,
		PeriodStart:      core.NormalizeDate(periodStart),
		PeriodEnd:        core.NormalizeDate(periodEnd),
		TotalSpendingUSD: total,
		Categories:       make([]core.CategorySpendingResult, 0, len(core.AllCategories())),
	}

	byCategory := make(map[core.Category]float64, len(weights))
	for _, w := range weights {
		byCategory[w.Category] = w.Weight
	}

	// Every known category is reported; a category without a weight targets 0.
	buffer := decimal.NewFromFloat(opts.ThresholdBuffer)
	for _, c := range core.AllCategories() {
		w := core.CategoryWeight{Category: c, Weight: byCategory[c]}
		res := evaluate(w, spend[c], total, buffer)
		if res.Breached {
			metrics.CategoryBreachesTotal.WithLabelValues(string(c)).Inc()
		}
		result.Categories = append(result.Categories, res)
	}

	e.logger.DebugContext(ctx, "Spending analysed",
		log.FieldUserID, userID,
		log.FieldPeriodStart, core.FormatDate(periodStart),
		log.FieldPeriodEnd, core.FormatDate(periodEnd),
		"total_usd", total.StringFixed(2),
		"breaches", len(result.Breaches()))

	return result, nil
}

func evaluate(w core.CategoryWeight, spend, total, buffer decimal.Decimal) core.CategorySpendingResult {
	res := core.CategorySpendingResult{
		Category: w.Category,
		Weight:   w.Weight,
		SpendUSD: spend,
	}

	share := decimal.Zero
	if total.IsPositive() {
		share = spend.Div(total)
	}
	res.ActualShare = share.InexactFloat64()

	weight := decimal.NewFromFloat(w.Weight)
	if !share.GreaterThan(weight.Add(buffer)) {
		return res
	}

	res.Breached = true
	if weight.IsZero() {
		// No target to compare against; report the share itself.
		res.DeltaPct = share.Mul(hundred).Round(2).InexactFloat64()
	} else {
		res.DeltaPct = share.Sub(weight).Div(weight).Mul(hundred).Round(2).InexactFloat64()
	}
	return res
}
