package storage

import "database/sql"

// Row types mirror the tables one-to-one. Dates are 'YYYY-MM-DD' text and
// timestamps are unix milliseconds.

type User struct {
	ID     string
	Email  string
	Active int64
}

type CategoryWeight struct {
	Category string
	Weight   float64
}

type CategorySpend struct {
	Category   string
	TotalCents int64
}

type AnalysisRun struct {
	ID           string
	UserID       string
	PeriodStart  string
	PeriodEnd    string
	Status       string
	AttemptCount int64
	LastError    sql.NullString
	CreatedAt    int64
	UpdatedAt    int64
}

type Review struct {
	ID          string
	UserID      string
	Content     string
	PeriodStart string
	PeriodEnd   string
	CreatedAt   int64
}

type Notification struct {
	ID           string
	UserID       string
	Type         string
	Severity     string
	ResourceType string
	ResourceID   string
	Title        string
	Message      string
	Meta         string
	IsRead       int64
	DedupeKey    string
	CreatedAt    int64
	UpdatedAt    int64
}
