package core

import "time"

const (
	NotificationTypeCategoryThresholdBreach = "CATEGORY_THRESHOLD_BREACH"

	ResourceTypeCategory = "CATEGORY"

	SeverityInfo     = "INFO"
	SeverityWarning  = "WARNING"
	SeverityCritical = "CRITICAL"
)

// Notification is a user-facing alert, unique by DedupeKey.
type Notification struct {
	ID           string
	UserID       string
	Type         string
	Severity     string
	ResourceType string
	ResourceID   string
	Title        string
	Message      string
	Meta         map[string]string
	IsRead       bool
	DedupeKey    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
