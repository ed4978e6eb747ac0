package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is a single spending entry attributed to a category.
type Transaction struct {
	ID          int64
	UserID      string
	Category    Category
	Amount      decimal.Decimal // USD, positive for spend
	OccurredOn  time.Time
	Description string
}
