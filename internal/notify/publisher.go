// Package notify publishes user notifications exactly once per dedupe key.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"spendwatch/internal/core"
	"spendwatch/internal/log"
	"spendwatch/internal/metrics"
)

// PeriodLayout is the default period label: one alert per resource per month.
const PeriodLayout = "2006-01"

// CriticalDeltaPct is the overshoot at which a breach becomes CRITICAL.
const CriticalDeltaPct = 50.0

// ErrDedupeConflict means a dedupe key is already held by another user's
// notification.
var ErrDedupeConflict = errors.New("dedupe key belongs to another user")

type Store interface {
	FindNotificationByDedupeKey(ctx context.Context, dedupeKey string) (*core.Notification, error)
	// CreateNotification must not create a second row for an existing key.
	CreateNotification(ctx context.Context, n core.Notification) (*core.Notification, bool, error)
}

// PublishInput describes a notification. Period overrides the default
// year-month label used in the dedupe key.
type PublishInput struct {
	UserID       string
	Type         string
	Severity     string
	ResourceType string
	ResourceID   string
	Title        string
	Message      string
	Meta         map[string]string
	Period       string
}

// BreachInput is one breached category for NotifyCategoryThresholdBreach.
type BreachInput struct {
	UserID      string
	Category    core.Category
	Weight      float64
	ActualShare float64
	DeltaPct    float64
	Period      string
}

type Publisher struct {
	store  Store
	now    func() time.Time
	logger *slog.Logger
}

func NewPublisher(store Store, now func() time.Time, logger *slog.Logger) *Publisher {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		store:  store,
		now:    now,
		logger: logger.With(log.FieldComponent, log.ComponentNotify),
	}
}

// DedupeKey joins the identifying fields as type:severity:resourceType:resourceID:period.
func DedupeKey(notificationType, severity, resourceType, resourceID, period string) string {
	return strings.Join([]string{notificationType, severity, resourceType, resourceID, period}, ":")
}

// Publish creates the notification unless one with the same dedupe key
// exists, in which case the existing record is returned unchanged.
func (p *Publisher) Publish(ctx context.Context, in PublishInput) (*core.Notification, error) {
	if in.UserID == "" || in.Type == "" {
		return nil, fmt.Errorf("publish notification: user id and type are required")
	}

	period := in.Period
	if period == "" {
		period = p.now().UTC().Format(PeriodLayout)
	}
	key := DedupeKey(in.Type, in.Severity, in.ResourceType, in.ResourceID, period)

	existing, err := p.store.FindNotificationByDedupeKey(ctx, key)
	if err == nil {
		if existing.UserID != in.UserID {
			return nil, fmt.Errorf("publish notification %s for user %s: %w", key, in.UserID, ErrDedupeConflict)
		}
		metrics.NotificationsTotal.WithLabelValues(in.Type, metrics.OutcomeDuplicate).Inc()
		p.logger.DebugContext(ctx, "Notification already published",
			log.FieldUserID, in.UserID,
			log.FieldDedupeKey, key)
		return existing, nil
	}
	if !errors.Is(err, core.ErrNotFound) {
		return nil, fmt.Errorf("lookup notification %s: %w", key, err)
	}

	n, created, err := p.store.CreateNotification(ctx, core.Notification{
		UserID:       in.UserID,
		Type:         in.Type,
		Severity:     in.Severity,
		ResourceType: in.ResourceType,
		ResourceID:   in.ResourceID,
		Title:        in.Title,
		Message:      in.Message,
		Meta:         in.Meta,
		DedupeKey:    key,
		CreatedAt:    p.now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("create notification %s: %w", key, err)
	}
	if n.UserID != in.UserID {
		return nil, fmt.Errorf("publish notification %s for user %s: %w", key, in.UserID, ErrDedupeConflict)
	}

	outcome := metrics.OutcomeDuplicate
	if created {
		outcome = metrics.OutcomeCreated
		p.logger.InfoContext(ctx, "Notification published",
			log.FieldUserID, in.UserID,
			log.FieldDedupeKey, key)
	}
	metrics.NotificationsTotal.WithLabelValues(in.Type, outcome).Inc()
	return n, nil
}

// NotifyCategoryThresholdBreach publishes a breach alert for one category.
func (p *Publisher) NotifyCategoryThresholdBreach(ctx context.Context, in BreachInput) (*core.Notification, error) {
	severity := BreachSeverity(in.DeltaPct)
	label := in.Category.Label()

	return p.Publish(ctx, PublishInput{
		UserID:       in.UserID,
		Type:         core.NotificationTypeCategoryThresholdBreach,
		Severity:     severity,
		ResourceType: core.ResourceTypeCategory,
		ResourceID:   CategoryResourceID(in.UserID, in.Category),
		Title:        fmt.Sprintf("%s spending above target", label),
		Message: fmt.Sprintf("%s made up %s of your spending this period, %.1f%% above your %s target.",
			label, core.Percent(in.ActualShare), in.DeltaPct, core.Percent(in.Weight)),
		Meta: map[string]string{
			"category":    string(in.Category),
			"weight":      fmt.Sprintf("%.4f", in.Weight),
			"actualShare": fmt.Sprintf("%.4f", in.ActualShare),
			"deltaPct":    fmt.Sprintf("%.1f", in.DeltaPct),
		},
		Period: in.Period,
	})
}

// CategoryResourceID scopes a category to its owner so breach keys of
// different users never collide.
func CategoryResourceID(userID string, category core.Category) string {
	return userID + "/" + string(category)
}

func BreachSeverity(deltaPct float64) string {
	if deltaPct >= CriticalDeltaPct {
		return core.SeverityCritical
	}
	return core.SeverityWarning
}
