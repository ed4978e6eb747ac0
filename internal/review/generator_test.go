package review

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spendwatch/internal/core"
	"spendwatch/internal/llm"
	"spendwatch/internal/metrics"
)

type llmFunc func(ctx context.Context, prompt string) (string, error)

func (f llmFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

func sampleResult() core.AnalysisResult {
	return core.AnalysisResult{
		UserID:           "user-1",
		PeriodStart:      time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:        time.Date(2024, 5, 14, 0, 0, 0, 0, time.UTC),
		TotalSpendingUSD: decimal.RequireFromString("1000"),
		Categories: []core.CategorySpendingResult{
			{Category: core.CategoryFood, Weight: 0.20, ActualShare: 0.30, SpendUSD: decimal.RequireFromString("300"), DeltaPct: 50, Breached: true},
			{Category: core.CategoryHousing, Weight: 0.70, ActualShare: 0.6845, SpendUSD: decimal.RequireFromString("684.50")},
			{Category: core.CategoryTravel, Weight: 0.10, ActualShare: 0.0155, SpendUSD: decimal.RequireFromString("15.50")},
		},
	}
}

func newGenerator(t *testing.T, client llm.Client, timeout time.Duration) *Generator {
	t.Helper()
	g, err := NewGenerator(client, timeout, nil)
	require.NoError(t, err)
	return g
}

func assertCompleteFallback(t *testing.T, text string) {
	t.Helper()
	assert.Contains(t, text, "$1,000.00")
	assert.Contains(t, text, "$300.00")
	assert.Contains(t, text, "$684.50")
	assert.Contains(t, text, "$15.50")
	assert.Contains(t, text, "Food")
	assert.Contains(t, text, "Over by 50.0%")
}

func TestGenerate_UsesAIText(t *testing.T) {
	var gotPrompt string
	g := newGenerator(t, llmFunc(func(ctx context.Context, prompt string) (string, error) {
		gotPrompt = prompt
		return "  Great job overall.  ", nil
	}), time.Second)

	rv := g.Generate(context.Background(), sampleResult())
	assert.Equal(t, metrics.SourceAI, rv.Source)
	assert.Equal(t, "Great job overall.", rv.Text)

	assert.Contains(t, gotPrompt, "Total spending: $1,000.00")
	assert.Contains(t, gotPrompt, "Food is 50.0% above its 20.0% target")
}

func TestGenerate_TimeoutFallsBackAndDiscardsLateResult(t *testing.T) {
	release := make(chan struct{})
	finished := make(chan struct{})
	g := newGenerator(t, llmFunc(func(ctx context.Context, prompt string) (string, error) {
		defer close(finished)
		<-release // ignores ctx, like a hung provider
		return "late AI text", nil
	}), 20*time.Millisecond)

	rv := g.Generate(context.Background(), sampleResult())
	close(release)
	<-finished

	assert.Equal(t, metrics.SourceFallback, rv.Source)
	assert.Equal(t, ReasonTimeout, rv.Reason)
	assert.NotContains(t, rv.Text, "late AI text")
	assertCompleteFallback(t, rv.Text)
}

func TestGenerate_FallbackReasons(t *testing.T) {
	tests := []struct {
		name   string
		client llm.Client
		reason string
	}{
		{
			name: "provider error",
			client: llmFunc(func(context.Context, string) (string, error) {
				return "", errors.New("503 service unavailable")
			}),
			reason: ReasonError,
		},
		{
			name: "empty completion",
			client: llmFunc(func(context.Context, string) (string, error) {
				return "   \n", nil
			}),
			reason: ReasonEmpty,
		},
		{
			name:   "disabled provider",
			client: llm.Disabled{},
			reason: ReasonDisabled,
		},
		{
			name:   "nil client",
			client: nil,
			reason: ReasonDisabled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newGenerator(t, tt.client, time.Second)
			rv := g.Generate(context.Background(), sampleResult())
			assert.Equal(t, metrics.SourceFallback, rv.Source)
			assert.Equal(t, tt.reason, rv.Reason)
			assertCompleteFallback(t, rv.Text)
		})
	}
}

func TestFallback_NoBreaches(t *testing.T) {
	g := newGenerator(t, nil, time.Second)
	result := sampleResult()
	result.Categories[0].Breached = false
	result.Categories[0].DeltaPct = 0

	text := g.Fallback(result)
	assert.Contains(t, text, "Every category stayed within its target")
	assert.NotContains(t, text, "Categories above target")
}

func TestFallback_ZeroSpend(t *testing.T) {
	g := newGenerator(t, nil, time.Second)
	result := core.AnalysisResult{
		UserID:           "user-1",
		PeriodStart:      time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:        time.Date(2024, 5, 14, 0, 0, 0, 0, time.UTC),
		TotalSpendingUSD: decimal.Zero,
		Categories: []core.CategorySpendingResult{
			{Category: core.CategoryFood, Weight: 0.15, SpendUSD: decimal.Zero},
		},
	}

	text := g.GenerateReview(context.Background(), result)
	assert.Contains(t, text, "$0.00")
	assert.True(t, strings.Contains(text, "| Food | $0.00 | 0.0% | 15.0% | On track |"), text)
}

func TestGenerate_PromptListsCategoriesBySpendDescending(t *testing.T) {
	result := core.AnalysisResult{
		UserID:           "user-1",
		PeriodStart:      time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:        time.Date(2024, 5, 14, 0, 0, 0, 0, time.UTC),
		TotalSpendingUSD: decimal.RequireFromString("1050"),
		Categories: []core.CategorySpendingResult{
			{Category: core.CategoryHousing, Weight: 0.30, ActualShare: 0.0952, SpendUSD: decimal.RequireFromString("100")},
			{Category: core.CategoryFood, Weight: 0.15, ActualShare: 0.0476, SpendUSD: decimal.RequireFromString("50")},
			{Category: core.CategoryTravel, Weight: 0.05, ActualShare: 0.8571, SpendUSD: decimal.RequireFromString("900"), DeltaPct: 1614.2, Breached: true},
		},
	}

	var prompt string
	g := newGenerator(t, llmFunc(func(ctx context.Context, p string) (string, error) {
		prompt = p
		return "ok", nil
	}), time.Second)
	g.Generate(context.Background(), result)

	travel := strings.Index(prompt, "- Travel: $900.00")
	housing := strings.Index(prompt, "- Housing: $100.00")
	food := strings.Index(prompt, "- Food: $50.00")
	require.NotEqual(t, -1, travel, prompt)
	require.NotEqual(t, -1, housing, prompt)
	require.NotEqual(t, -1, food, prompt)
	assert.Less(t, travel, housing)
	assert.Less(t, housing, food)
}

func TestGenerate_LogsSourceReasonAndDuration(t *testing.T) {
	tests := []struct {
		name       string
		client     llm.Client
		wantLevel  string
		wantSource string
		wantReason string
	}{
		{
			name:       "ai",
			client:     llmFunc(func(ctx context.Context, p string) (string, error) { return "fine", nil }),
			wantLevel:  "INFO",
			wantSource: metrics.SourceAI,
			wantReason: ReasonNone,
		},
		{
			name:       "provider error",
			client:     llmFunc(func(ctx context.Context, p string) (string, error) { return "", errors.New("503") }),
			wantLevel:  "WARN",
			wantSource: metrics.SourceFallback,
			wantReason: ReasonError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
			g, err := NewGenerator(tt.client, time.Second, logger)
			require.NoError(t, err)

			g.Generate(context.Background(), sampleResult())

			lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
			require.Len(t, lines, 1)
			var rec map[string]any
			require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
			assert.Equal(t, tt.wantLevel, rec["level"])
			assert.Equal(t, tt.wantSource, rec["source"])
			assert.Equal(t, tt.wantReason, rec["reason"])
			assert.Equal(t, "user-1", rec["user_id"])
			assert.Contains(t, rec, "duration_ms")
		})
	}
}
