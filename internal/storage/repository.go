package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"spendwatch/internal/core"

	_ "modernc.org/sqlite"
)

// SQLiteRepository persists users, spending data, the analysis ledger,
// reviews and notifications in a single SQLite database.
type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	now     func() time.Time
}

type Option func(*SQLiteRepository)

// WithClock overrides the time source used for created/updated stamps.
func WithClock(now func() time.Time) Option {
	return func(r *SQLiteRepository) {
		r.now = now
	}
}

// DSN builds the modernc.org/sqlite connection string for dbPath.
func DSN(dbPath string) string {
	return "file:" + dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
}

func NewSQLiteRepository(dbPath string, opts ...Option) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", DSN(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows one writer; a single connection serializes claims.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return NewWithDB(db, opts...), nil
}

// NewWithDB wraps an already-open, already-migrated database.
func NewWithDB(db *sql.DB, opts ...Option) *SQLiteRepository {
	repo := &SQLiteRepository{
		db:      db,
		queries: New(db),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// ClaimRun atomically creates a RUNNING row for the candidate's slot or
// re-claims a FAILED one. It returns (nil, nil) when the slot is already
// RUNNING or COMPLETED.
func (r *SQLiteRepository) ClaimRun(ctx context.Context, candidate core.AnalysisRun) (*core.AnalysisRun, error) {
	row, err := r.queries.ClaimAnalysisRun(ctx, ClaimAnalysisRunParams{
		ID:          candidate.ID,
		UserID:      candidate.UserID,
		PeriodStart: core.FormatDate(candidate.PeriodStart),
		PeriodEnd:   core.FormatDate(candidate.PeriodEnd),
		Now:         candidate.CreatedAt.UnixMilli(),
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim analysis run: %w", err)
	}

	run, err := toCoreRun(row)
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// SaveRun persists a run's status. The write only applies while the stored
// row is still RUNNING for the same attempt; otherwise core.ErrRunNotRunning
// is returned and nothing changes.
func (r *SQLiteRepository) SaveRun(ctx context.Context, run *core.AnalysisRun) error {
	affected, err := r.queries.UpdateAnalysisRunStatus(ctx, UpdateAnalysisRunStatusParams{
		Status:       string(run.Status),
		LastError:    sql.NullString{String: run.LastError, Valid: run.LastError != ""},
		UpdatedAt:    run.UpdatedAt.UnixMilli(),
		ID:           run.ID,
		AttemptCount: int64(run.AttemptCount),
	})
	if err != nil {
		return fmt.Errorf("save analysis run %s: %w", run.ID, err)
	}
	if affected == 0 {
		return fmt.Errorf("save analysis run %s: %w", run.ID, core.ErrRunNotRunning)
	}
	return nil
}

// FindStaleRuns returns RUNNING rows last updated before threshold.
func (r *SQLiteRepository) FindStaleRuns(ctx context.Context, threshold time.Time) ([]core.AnalysisRun, error) {
	rows, err := r.queries.ListStaleAnalysisRuns(ctx, threshold.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("list stale analysis runs: %w", err)
	}

	runs := make([]core.AnalysisRun, 0, len(rows))
	for _, row := range rows {
		run, err := toCoreRun(row)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, nil
}

func (r *SQLiteRepository) GetRun(ctx context.Context, userID string, periodStart, periodEnd time.Time) (*core.AnalysisRun, error) {
	row, err := r.queries.GetAnalysisRun(ctx, userID, core.FormatDate(periodStart), core.FormatDate(periodEnd))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get analysis run: %w", err)
	}
	run, err := toCoreRun(row)
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *SQLiteRepository) FindUsers(ctx context.Context, q core.UserQuery) ([]core.User, error) {
	var activeOnly int64
	if q.Where.ActiveOnly {
		activeOnly = 1
	}
	limit := int64(q.Take)
	if limit <= 0 {
		limit = -1 // no limit
	}
	rows, err := r.queries.ListUsers(ctx, ListUsersParams{
		ActiveOnly: activeOnly,
		Limit:      limit,
		Offset:     int64(q.Skip),
	})
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	users := make([]core.User, len(rows))
	for i, u := range rows {
		users[i] = core.User{ID: u.ID, Email: u.Email, Active: u.Active != 0}
	}
	return users, nil
}

func (r *SQLiteRepository) SaveUser(ctx context.Context, u core.User) error {
	if u.ID == "" {
		return fmt.Errorf("save user: empty id")
	}
	var active int64
	if u.Active {
		active = 1
	}
	if err := r.queries.UpsertUser(ctx, UpsertUserParams{
		ID:        u.ID,
		Email:     u.Email,
		Active:    active,
		CreatedAt: r.now().UnixMilli(),
	}); err != nil {
		return fmt.Errorf("save user %s: %w", u.ID, err)
	}
	return nil
}

// GetEffectiveWeights merges the system defaults with the user's overrides.
func (r *SQLiteRepository) GetEffectiveWeights(ctx context.Context, userID string) ([]core.CategoryWeight, error) {
	defaultRows, err := r.queries.ListDefaultWeights(ctx)
	if err != nil {
		return nil, fmt.Errorf("list default weights: %w", err)
	}
	defaults := toCoreWeights(ctx, defaultRows)
	if len(defaults) == 0 {
		defaults = core.DefaultWeights()
	}

	overrideRows, err := r.queries.ListUserWeights(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list weights for user %s: %w", userID, err)
	}

	return core.MergeWeights(defaults, toCoreWeights(ctx, overrideRows)), nil
}

func (r *SQLiteRepository) SetUserWeight(ctx context.Context, userID string, w core.CategoryWeight) error {
	if err := w.Validate(); err != nil {
		return fmt.Errorf("set weight %s for user %s: %w", w.Category, userID, err)
	}
	if err := r.queries.UpsertUserWeight(ctx, userID, string(w.Category), w.Weight); err != nil {
		return fmt.Errorf("set weight %s for user %s: %w", w.Category, userID, err)
	}
	return nil
}

func (r *SQLiteRepository) RecordTransaction(ctx context.Context, t core.Transaction) (int64, error) {
	if !t.Category.IsValid() {
		return 0, fmt.Errorf("record transaction: %w: %q", core.ErrInvalidCategory, t.Category)
	}
	id, err := r.queries.CreateTransaction(ctx, CreateTransactionParams{
		UserID:      t.UserID,
		Category:    string(t.Category),
		AmountCents: core.CentsFromUSD(t.Amount),
		OccurredOn:  core.FormatDate(t.OccurredOn),
		Description: t.Description,
	})
	if err != nil {
		return 0, fmt.Errorf("record transaction: %w", err)
	}
	return id, nil
}

// SpendByCategory sums positive spend per category over [from, to], both
// days inclusive. Rows with an unknown category are counted as OTHER.
func (r *SQLiteRepository) SpendByCategory(ctx context.Context, userID string, from, to time.Time) (map[core.Category]decimal.Decimal, error) {
	rows, err := r.queries.SumSpendByCategory(ctx, userID, core.FormatDate(from), core.FormatDate(to))
	if err != nil {
		return nil, fmt.Errorf("sum spend for user %s: %w", userID, err)
	}

	spend := make(map[core.Category]decimal.Decimal, len(rows))
	for _, row := range rows {
		category, err := core.ParseCategory(row.Category)
		if err != nil {
			category = core.CategoryOther
		}
		spend[category] = spend[category].Add(core.USDFromCents(row.TotalCents))
	}
	return spend, nil
}

// CreateReviews inserts all reviews in one transaction and returns how many
// were written.
func (r *SQLiteRepository) CreateReviews(ctx context.Context, inputs []core.ReviewInput) (int, error) {
	if len(inputs) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin review transaction: %w", err)
	}
	defer tx.Rollback()

	qtx := r.queries.WithTx(tx)
	createdAt := r.now().UnixMilli()
	for _, in := range inputs {
		if err := qtx.CreateReview(ctx, Review{
			ID:          uuid.NewString(),
			UserID:      in.UserID,
			Content:     in.Content,
			PeriodStart: core.FormatDate(in.PeriodStart),
			PeriodEnd:   core.FormatDate(in.PeriodEnd),
			CreatedAt:   createdAt,
		}); err != nil {
			return 0, fmt.Errorf("create review for user %s: %w", in.UserID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit reviews: %w", err)
	}

	slog.DebugContext(ctx, "Reviews persisted", "count", len(inputs))
	return len(inputs), nil
}

func (r *SQLiteRepository) ListReviews(ctx context.Context, userID string) ([]core.Review, error) {
	rows, err := r.queries.ListReviewsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list reviews for user %s: %w", userID, err)
	}

	reviews := make([]core.Review, 0, len(rows))
	for _, row := range rows {
		start, err := core.ParseDate(row.PeriodStart)
		if err != nil {
			return nil, fmt.Errorf("review %s: period start: %w", row.ID, err)
		}
		end, err := core.ParseDate(row.PeriodEnd)
		if err != nil {
			return nil, fmt.Errorf("review %s: period end: %w", row.ID, err)
		}
		reviews = append(reviews, core.Review{
			ID:          row.ID,
			UserID:      row.UserID,
			Content:     row.Content,
			PeriodStart: start,
			PeriodEnd:   end,
			CreatedAt:   time.UnixMilli(row.CreatedAt).UTC(),
		})
	}
	return reviews, nil
}

func (r *SQLiteRepository) FindNotificationByDedupeKey(ctx context.Context, dedupeKey string) (*core.Notification, error) {
	row, err := r.queries.GetNotificationByDedupeKey(ctx, dedupeKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get notification %s: %w", dedupeKey, err)
	}
	n, err := toCoreNotification(row)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// CreateNotification inserts n unless its dedupe key already exists. It
// returns the stored notification and whether this call created it.
func (r *SQLiteRepository) CreateNotification(ctx context.Context, n core.Notification) (*core.Notification, bool, error) {
	row, err := fromCoreNotification(n, r.now())
	if err != nil {
		return nil, false, err
	}

	affected, err := r.queries.InsertNotification(ctx, row)
	if err != nil {
		return nil, false, fmt.Errorf("insert notification %s: %w", n.DedupeKey, err)
	}

	stored, err := r.FindNotificationByDedupeKey(ctx, n.DedupeKey)
	if err != nil {
		return nil, false, err
	}
	return stored, affected > 0, nil
}

func (r *SQLiteRepository) ListNotifications(ctx context.Context, userID string, unreadOnly bool) ([]core.Notification, error) {
	var flag int64
	if unreadOnly {
		flag = 1
	}
	rows, err := r.queries.ListNotificationsByUser(ctx, userID, flag)
	if err != nil {
		return nil, fmt.Errorf("list notifications for user %s: %w", userID, err)
	}

	out := make([]core.Notification, 0, len(rows))
	for _, row := range rows {
		n, err := toCoreNotification(row)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func (r *SQLiteRepository) MarkNotificationRead(ctx context.Context, id string) error {
	affected, err := r.queries.MarkNotificationRead(ctx, id, r.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("mark notification %s read: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("mark notification %s read: %w", id, core.ErrNotFound)
	}
	return nil
}
