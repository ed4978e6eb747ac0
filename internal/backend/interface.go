package backend

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"spendwatch/internal/core"
	"spendwatch/internal/storage"
	"spendwatch/internal/storage/memory"
)

// Store is the full persistence surface the analysis pipeline runs on.
// Both the SQLite repository and the in-memory store satisfy it.
type Store interface {
	// Run ledger
	ClaimRun(ctx context.Context, candidate core.AnalysisRun) (*core.AnalysisRun, error)
	SaveRun(ctx context.Context, run *core.AnalysisRun) error
	FindStaleRuns(ctx context.Context, threshold time.Time) ([]core.AnalysisRun, error)
	GetRun(ctx context.Context, userID string, periodStart, periodEnd time.Time) (*core.AnalysisRun, error)

	// Users and weights
	FindUsers(ctx context.Context, q core.UserQuery) ([]core.User, error)
	SaveUser(ctx context.Context, u core.User) error
	GetEffectiveWeights(ctx context.Context, userID string) ([]core.CategoryWeight, error)
	SetUserWeight(ctx context.Context, userID string, w core.CategoryWeight) error

	// Spending
	RecordTransaction(ctx context.Context, t core.Transaction) (int64, error)
	SpendByCategory(ctx context.Context, userID string, from, to time.Time) (map[core.Category]decimal.Decimal, error)

	// Reviews
	CreateReviews(ctx context.Context, inputs []core.ReviewInput) (int, error)
	ListReviews(ctx context.Context, userID string) ([]core.Review, error)

	// Notifications
	FindNotificationByDedupeKey(ctx context.Context, dedupeKey string) (*core.Notification, error)
	CreateNotification(ctx context.Context, n core.Notification) (*core.Notification, bool, error)
	ListNotifications(ctx context.Context, userID string, unreadOnly bool) ([]core.Notification, error)
	MarkNotificationRead(ctx context.Context, id string) error

	Ping(ctx context.Context) error
}

var (
	_ Store = (*storage.SQLiteRepository)(nil)
	_ Store = (*memory.Store)(nil)
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the store and optional cleanup function
type BackendResult struct {
	Store   Store
	Cleanup CleanupFunc
}

// Close runs the cleanup function if there is one.
func (r *BackendResult) Close() error {
	if r == nil || r.Cleanup == nil {
		return nil
	}
	return r.Cleanup()
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
