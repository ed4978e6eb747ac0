package storage

import (
	"context"
	"database/sql"
)

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

const analysisRunColumns = `id, user_id, period_start, period_end, status, attempt_count, last_error, created_at, updated_at`

func scanAnalysisRun(row interface{ Scan(...interface{}) error }) (AnalysisRun, error) {
	var i AnalysisRun
	err := row.Scan(
		&i.ID,
		&i.UserID,
		&i.PeriodStart,
		&i.PeriodEnd,
		&i.Status,
		&i.AttemptCount,
		&i.LastError,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const claimAnalysisRun = `
INSERT INTO analysis_runs (id, user_id, period_start, period_end, status, attempt_count, last_error, created_at, updated_at)
VALUES (?, ?, ?, ?, 'RUNNING', 1, NULL, ?, ?)
ON CONFLICT (user_id, period_start, period_end) DO UPDATE SET
    status = 'RUNNING',
    attempt_count = analysis_runs.attempt_count + 1,
    last_error = NULL,
    updated_at = excluded.updated_at
WHERE analysis_runs.status = 'FAILED'
RETURNING ` + analysisRunColumns

type ClaimAnalysisRunParams struct {
	ID          string
	UserID      string
	PeriodStart string
	PeriodEnd   string
	Now         int64
}

// ClaimAnalysisRun returns sql.ErrNoRows when the slot is RUNNING or COMPLETED.
func (q *Queries) ClaimAnalysisRun(ctx context.Context, arg ClaimAnalysisRunParams) (AnalysisRun, error) {
	row := q.db.QueryRowContext(ctx, claimAnalysisRun,
		arg.ID,
		arg.UserID,
		arg.PeriodStart,
		arg.PeriodEnd,
		arg.Now,
		arg.Now,
	)
	return scanAnalysisRun(row)
}

const updateAnalysisRunStatus = `
UPDATE analysis_runs
SET status = ?, last_error = ?, updated_at = ?
WHERE id = ? AND status = 'RUNNING' AND attempt_count = ?`

type UpdateAnalysisRunStatusParams struct {
	Status       string
	LastError    sql.NullString
	UpdatedAt    int64
	ID           string
	AttemptCount int64
}

func (q *Queries) UpdateAnalysisRunStatus(ctx context.Context, arg UpdateAnalysisRunStatusParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, updateAnalysisRunStatus,
		arg.Status,
		arg.LastError,
		arg.UpdatedAt,
		arg.ID,
		arg.AttemptCount,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const listStaleAnalysisRuns = `
SELECT ` + analysisRunColumns + `
FROM analysis_runs
WHERE status = 'RUNNING' AND updated_at < ?
ORDER BY updated_at`

func (q *Queries) ListStaleAnalysisRuns(ctx context.Context, before int64) ([]AnalysisRun, error) {
	rows, err := q.db.QueryContext(ctx, listStaleAnalysisRuns, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []AnalysisRun
	for rows.Next() {
		i, err := scanAnalysisRun(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getAnalysisRun = `
SELECT ` + analysisRunColumns + `
FROM analysis_runs
WHERE user_id = ? AND period_start = ? AND period_end = ?`

func (q *Queries) GetAnalysisRun(ctx context.Context, userID, periodStart, periodEnd string) (AnalysisRun, error) {
	row := q.db.QueryRowContext(ctx, getAnalysisRun, userID, periodStart, periodEnd)
	return scanAnalysisRun(row)
}

const listUsers = `
SELECT id, email, active
FROM users
WHERE (? = 0 OR active = 1)
ORDER BY id
LIMIT ? OFFSET ?`

type ListUsersParams struct {
	ActiveOnly int64
	Limit      int64
	Offset     int64
}

func (q *Queries) ListUsers(ctx context.Context, arg ListUsersParams) ([]User, error) {
	rows, err := q.db.QueryContext(ctx, listUsers, arg.ActiveOnly, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []User
	for rows.Next() {
		var i User
		if err := rows.Scan(&i.ID, &i.Email, &i.Active); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const upsertUser = `
INSERT INTO users (id, email, active, created_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET email = excluded.email, active = excluded.active`

type UpsertUserParams struct {
	ID        string
	Email     string
	Active    int64
	CreatedAt int64
}

func (q *Queries) UpsertUser(ctx context.Context, arg UpsertUserParams) error {
	_, err := q.db.ExecContext(ctx, upsertUser, arg.ID, arg.Email, arg.Active, arg.CreatedAt)
	return err
}

const listDefaultWeights = `SELECT category, weight FROM category_weight_defaults`

func (q *Queries) ListDefaultWeights(ctx context.Context) ([]CategoryWeight, error) {
	return q.listWeights(ctx, listDefaultWeights)
}

const listUserWeights = `SELECT category, weight FROM user_category_weights WHERE user_id = ?`

func (q *Queries) ListUserWeights(ctx context.Context, userID string) ([]CategoryWeight, error) {
	return q.listWeights(ctx, listUserWeights, userID)
}

func (q *Queries) listWeights(ctx context.Context, query string, args ...interface{}) ([]CategoryWeight, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []CategoryWeight
	for rows.Next() {
		var i CategoryWeight
		if err := rows.Scan(&i.Category, &i.Weight); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const upsertUserWeight = `
INSERT INTO user_category_weights (user_id, category, weight)
VALUES (?, ?, ?)
ON CONFLICT (user_id, category) DO UPDATE SET weight = excluded.weight`

func (q *Queries) UpsertUserWeight(ctx context.Context, userID, category string, weight float64) error {
	_, err := q.db.ExecContext(ctx, upsertUserWeight, userID, category, weight)
	return err
}

const createTransaction = `
INSERT INTO transactions (user_id, category, amount_cents, occurred_on, description)
VALUES (?, ?, ?, ?, ?)`

type CreateTransactionParams struct {
	UserID      string
	Category    string
	AmountCents int64
	OccurredOn  string
	Description string
}

func (q *Queries) CreateTransaction(ctx context.Context, arg CreateTransactionParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, createTransaction,
		arg.UserID,
		arg.Category,
		arg.AmountCents,
		arg.OccurredOn,
		arg.Description,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

const sumSpendByCategory = `
SELECT category, CAST(SUM(amount_cents) AS INTEGER) AS total_cents
FROM transactions
WHERE user_id = ? AND occurred_on >= ? AND occurred_on <= ? AND amount_cents > 0
GROUP BY category
ORDER BY category`

func (q *Queries) SumSpendByCategory(ctx context.Context, userID, from, to string) ([]CategorySpend, error) {
	rows, err := q.db.QueryContext(ctx, sumSpendByCategory, userID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []CategorySpend
	for rows.Next() {
		var i CategorySpend
		if err := rows.Scan(&i.Category, &i.TotalCents); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const createReview = `
INSERT INTO reviews (id, user_id, content, period_start, period_end, created_at)
VALUES (?, ?, ?, ?, ?, ?)`

func (q *Queries) CreateReview(ctx context.Context, arg Review) error {
	_, err := q.db.ExecContext(ctx, createReview,
		arg.ID,
		arg.UserID,
		arg.Content,
		arg.PeriodStart,
		arg.PeriodEnd,
		arg.CreatedAt,
	)
	return err
}

const listReviewsByUser = `
SELECT id, user_id, content, period_start, period_end, created_at
FROM reviews
WHERE user_id = ?
ORDER BY created_at DESC, id`

func (q *Queries) ListReviewsByUser(ctx context.Context, userID string) ([]Review, error) {
	rows, err := q.db.QueryContext(ctx, listReviewsByUser, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Review
	for rows.Next() {
		var i Review
		if err := rows.Scan(&i.ID, &i.UserID, &i.Content, &i.PeriodStart, &i.PeriodEnd, &i.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const notificationColumns = `id, user_id, type, severity, resource_type, resource_id, title, message, meta, is_read, dedupe_key, created_at, updated_at`

func scanNotification(row interface{ Scan(...interface{}) error }) (Notification, error) {
	var i Notification
	err := row.Scan(
		&i.ID,
		&i.UserID,
		&i.Type,
		&i.Severity,
		&i.ResourceType,
		&i.ResourceID,
		&i.Title,
		&i.Message,
		&i.Meta,
		&i.IsRead,
		&i.DedupeKey,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getNotificationByDedupeKey = `SELECT ` + notificationColumns + ` FROM notifications WHERE dedupe_key = ?`

func (q *Queries) GetNotificationByDedupeKey(ctx context.Context, dedupeKey string) (Notification, error) {
	row := q.db.QueryRowContext(ctx, getNotificationByDedupeKey, dedupeKey)
	return scanNotification(row)
}

const insertNotification = `
INSERT INTO notifications (` + notificationColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (dedupe_key) DO NOTHING`

// InsertNotification returns 0 rows affected when the dedupe key already exists.
func (q *Queries) InsertNotification(ctx context.Context, arg Notification) (int64, error) {
	result, err := q.db.ExecContext(ctx, insertNotification,
		arg.ID,
		arg.UserID,
		arg.Type,
		arg.Severity,
		arg.ResourceType,
		arg.ResourceID,
		arg.Title,
		arg.Message,
		arg.Meta,
		arg.IsRead,
		arg.DedupeKey,
		arg.CreatedAt,
		arg.UpdatedAt,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const listNotificationsByUser = `
SELECT ` + notificationColumns + `
FROM notifications
WHERE user_id = ? AND (? = 0 OR is_read = 0)
ORDER BY created_at DESC, id`

func (q *Queries) ListNotificationsByUser(ctx context.Context, userID string, unreadOnly int64) ([]Notification, error) {
	rows, err := q.db.QueryContext(ctx, listNotificationsByUser, userID, unreadOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Notification
	for rows.Next() {
		i, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const markNotificationRead = `UPDATE notifications SET is_read = 1, updated_at = ? WHERE id = ?`

func (q *Queries) MarkNotificationRead(ctx context.Context, id string, updatedAt int64) (int64, error) {
	result, err := q.db.ExecContext(ctx, markNotificationRead, updatedAt, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
