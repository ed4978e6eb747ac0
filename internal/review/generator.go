// Package review turns an analysis result into a Markdown review. The AI
// provider is raced against a timeout; on any failure a template-rendered
// report is returned instead, so a review is always produced.
package review

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"text/template"
	"time"

	"spendwatch/internal/core"
	"spendwatch/internal/llm"
	"spendwatch/internal/log"
	"spendwatch/internal/metrics"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

const DefaultTimeout = 15 * time.Second

// Fallback reasons, reported in logs and metrics.
const (
	ReasonNone     = "none"
	ReasonTimeout  = "timeout"
	ReasonError    = "error"
	ReasonEmpty    = "empty"
	ReasonDisabled = "disabled"
)

// Review is a generated review and where it came from.
type Review struct {
	Text   string
	Source string // metrics.SourceAI or metrics.SourceFallback
	Reason string
}

type Generator struct {
	client   llm.Client
	timeout  time.Duration
	prompt   *template.Template
	fallback *template.Template
	logger   *slog.Logger
}

var funcMap = template.FuncMap{
	"usd":   core.FormatUSD,
	"pct":   core.Percent,
	"date":  core.FormatDate,
	"delta": func(p float64) string { return fmt.Sprintf("%.1f%%", p) },
}

func NewGenerator(client llm.Client, timeout time.Duration, logger *slog.Logger) (*Generator, error) {
	if client == nil {
		client = llm.Disabled{}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	prompt, err := template.New("prompt.tmpl").Funcs(funcMap).ParseFS(templateFS, "templates/prompt.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to parse prompt template: %w", err)
	}
	fallback, err := template.New("fallback.md.tmpl").Funcs(funcMap).ParseFS(templateFS, "templates/fallback.md.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to parse fallback template: %w", err)
	}

	return &Generator{
		client:   client,
		timeout:  timeout,
		prompt:   prompt,
		fallback: fallback,
		logger:   logger.With(log.FieldComponent, log.ComponentReview),
	}, nil
}

// GenerateReview returns the review text for result. It never returns an
// empty string.
func (g *Generator) GenerateReview(ctx context.Context, result core.AnalysisResult) string {
	return g.Generate(ctx, result).Text
}

func (g *Generator) Generate(ctx context.Context, result core.AnalysisResult) Review {
	started := time.Now()
	rv, cause := g.generate(ctx, result)
	elapsed := time.Since(started)
	metrics.ReviewsGeneratedTotal.WithLabelValues(rv.Source, rv.Reason).Inc()
	metrics.ReviewGenerationDuration.WithLabelValues(rv.Source).Observe(elapsed.Seconds())

	fields := log.NewFields().WithUser(result.UserID).WithDuration(elapsed)
	fields["source"] = rv.Source
	fields["reason"] = rv.Reason
	switch {
	case rv.Source == metrics.SourceAI:
		g.logger.InfoContext(ctx, "Review generated", fields.ToSlice()...)
	case rv.Reason == ReasonDisabled:
		g.logger.DebugContext(ctx, "Review generated from fallback report", fields.ToSlice()...)
	default:
		g.logger.WarnContext(ctx, "AI review unavailable, using fallback report", fields.WithError(cause).ToSlice()...)
	}
	return rv
}

type completion struct {
	text string
	err  error
}

// generate returns the review and, for a fallback, the error that caused it.
func (g *Generator) generate(ctx context.Context, result core.AnalysisResult) (Review, error) {
	prompt, err := g.render(g.prompt, result)
	if err != nil {
		return g.fallbackReview(result, ReasonError), err
	}

	aiCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	// Buffered so a late completion never blocks; it is dropped with the channel.
	done := make(chan completion, 1)
	go func() {
		text, err := g.client.Complete(aiCtx, prompt)
		done <- completion{text: text, err: err}
	}()

	select {
	case c := <-done:
		switch {
		case errors.Is(c.err, llm.ErrDisabled):
			return g.fallbackReview(result, ReasonDisabled), c.err
		case c.err != nil:
			return g.fallbackReview(result, ReasonError), c.err
		}
		text := strings.TrimSpace(c.text)
		if text == "" {
			return g.fallbackReview(result, ReasonEmpty), llm.ErrEmptyCompletion
		}
		return Review{Text: text, Source: metrics.SourceAI, Reason: ReasonNone}, nil
	case <-aiCtx.Done():
		return g.fallbackReview(result, ReasonTimeout), aiCtx.Err()
	}
}

func (g *Generator) fallbackReview(result core.AnalysisResult, reason string) Review {
	return Review{Text: g.Fallback(result), Source: metrics.SourceFallback, Reason: reason}
}

// Fallback renders the deterministic Markdown report for result.
func (g *Generator) Fallback(result core.AnalysisResult) string {
	text, err := g.render(g.fallback, result)
	if err == nil && strings.TrimSpace(text) != "" {
		return text
	}
	g.logger.Error("Fallback template failed, using plain report", log.FieldError, err)
	return plainReport(result)
}

func (g *Generator) render(t *template.Template, result core.AnalysisResult) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, result); err != nil {
		return "", fmt.Errorf("failed to execute template %s: %w", t.Name(), err)
	}
	return strings.TrimSpace(buf.String()) + "\n", nil
}

func plainReport(result core.AnalysisResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Spending review %s to %s\n", core.FormatDate(result.PeriodStart), core.FormatDate(result.PeriodEnd))
	fmt.Fprintf(&b, "Total spending: %s\n", core.FormatUSD(result.TotalSpendingUSD))
	for _, c := range result.Categories {
		fmt.Fprintf(&b, "- %s: %s\n", c.Category.Label(), core.FormatUSD(c.SpendUSD))
	}
	return b.String()
}
