package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"spendwatch/internal/core"
)

func toCoreRun(row AnalysisRun) (core.AnalysisRun, error) {
	start, err := core.ParseDate(row.PeriodStart)
	if err != nil {
		return core.AnalysisRun{}, fmt.Errorf("analysis run %s: period start %q: %w", row.ID, row.PeriodStart, err)
	}
	end, err := core.ParseDate(row.PeriodEnd)
	if err != nil {
		return core.AnalysisRun{}, fmt.Errorf("analysis run %s: period end %q: %w", row.ID, row.PeriodEnd, err)
	}
	return core.AnalysisRun{
		ID:           row.ID,
		UserID:       row.UserID,
		PeriodStart:  start,
		PeriodEnd:    end,
		Status:       core.RunStatus(row.Status),
		AttemptCount: int(row.AttemptCount),
		LastError:    row.LastError.String,
		CreatedAt:    time.UnixMilli(row.CreatedAt).UTC(),
		UpdatedAt:    time.UnixMilli(row.UpdatedAt).UTC(),
	}, nil
}

func toCoreWeights(ctx context.Context, rows []CategoryWeight) []core.CategoryWeight {
	out := make([]core.CategoryWeight, 0, len(rows))
	for _, row := range rows {
		w := core.CategoryWeight{Category: core.Category(row.Category), Weight: row.Weight}
		if err := w.Validate(); err != nil {
			slog.WarnContext(ctx, "Ignoring invalid category weight",
				"category", row.Category,
				"weight", row.Weight,
				"error", err)
			continue
		}
		out = append(out, w)
	}
	return out
}

func toCoreNotification(row Notification) (core.Notification, error) {
	var meta map[string]string
	if row.Meta != "" {
		if err := json.Unmarshal([]byte(row.Meta), &meta); err != nil {
			return core.Notification{}, fmt.Errorf("notification %s: decode meta: %w", row.ID, err)
		}
	}
	return core.Notification{
		ID:           row.ID,
		UserID:       row.UserID,
		Type:         row.Type,
		Severity:     row.Severity,
		ResourceType: row.ResourceType,
		ResourceID:   row.ResourceID,
		Title:        row.Title,
		Message:      row.Message,
		Meta:         meta,
		IsRead:       row.IsRead != 0,
		DedupeKey:    row.DedupeKey,
		CreatedAt:    time.UnixMilli(row.CreatedAt).UTC(),
		UpdatedAt:    time.UnixMilli(row.UpdatedAt).UTC(),
	}, nil
}

func fromCoreNotification(n core.Notification, now time.Time) (Notification, error) {
	if n.DedupeKey == "" {
		return Notification{}, fmt.Errorf("notification for user %s: empty dedupe key", n.UserID)
	}
	meta := "{}"
	if len(n.Meta) > 0 {
		raw, err := json.Marshal(n.Meta)
		if err != nil {
			return Notification{}, fmt.Errorf("encode notification meta: %w", err)
		}
		meta = string(raw)
	}
	id := n.ID
	if id == "" {
		id = uuid.NewString()
	}
	created := n.CreatedAt
	if created.IsZero() {
		created = now
	}
	var isRead int64
	if n.IsRead {
		isRead = 1
	}
	return Notification{
		ID:           id,
		UserID:       n.UserID,
		Type:         n.Type,
		Severity:     n.Severity,
		ResourceType: n.ResourceType,
		ResourceID:   n.ResourceID,
		Title:        n.Title,
		Message:      n.Message,
		Meta:         meta,
		IsRead:       isRead,
		DedupeKey:    n.DedupeKey,
		CreatedAt:    created.UnixMilli(),
		UpdatedAt:    created.UnixMilli(),
	}, nil
}
