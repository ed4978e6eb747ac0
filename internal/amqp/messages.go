package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"spendwatch/internal/core"
)

// ReviewEmailMessage asks the mail service to deliver a spending review.
// Dates are YYYY-MM-DD.
type ReviewEmailMessage struct {
	UserID      string    `json:"user_id"`
	Email       string    `json:"email"`
	Subject     string    `json:"subject"`
	ReviewText  string    `json:"review_text"`
	PeriodStart string    `json:"period_start"`
	PeriodEnd   string    `json:"period_end"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewReviewEmailMessage builds the queue message for an email job
func NewReviewEmailMessage(job core.EmailJob) *ReviewEmailMessage {
	start, end := core.FormatDate(job.PeriodStart), core.FormatDate(job.PeriodEnd)
	return &ReviewEmailMessage{
		UserID:      job.UserID,
		Email:       job.Email,
		Subject:     fmt.Sprintf("Your spending review for %s to %s", start, end),
		ReviewText:  job.ReviewText,
		PeriodStart: start,
		PeriodEnd:   end,
		Timestamp:   time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *ReviewEmailMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}
