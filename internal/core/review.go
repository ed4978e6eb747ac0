package core

import "time"

// ReviewInput is a generated review waiting to be persisted.
type ReviewInput struct {
	UserID      string
	Content     string
	PeriodStart time.Time
	PeriodEnd   time.Time
}

// Review is a persisted spending review.
type Review struct {
	ID          string
	UserID      string
	Content     string
	PeriodStart time.Time
	PeriodEnd   time.Time
	CreatedAt   time.Time
}

// EmailJob asks the notification-email queue to deliver a review.
type EmailJob struct {
	UserID      string    `json:"user_id"`
	Email       string    `json:"email"`
	ReviewText  string    `json:"review_text"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
}
