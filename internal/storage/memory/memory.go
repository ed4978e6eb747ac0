package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"spendwatch/internal/core"
)

type runKey struct {
	userID string
	start  string
	end    string
}

// Store is an in-process implementation of the repository used by tests and
// DATA_BACKEND=memory. It mirrors the SQLite semantics: atomic claims,
// guarded run saves and dedupe-key uniqueness.
type Store struct {
	mu            sync.Mutex
	now           func() time.Time
	users         map[string]core.User
	defaults      []core.CategoryWeight
	overrides     map[string]map[core.Category]float64
	transactions  []core.Transaction
	runs          map[runKey]*core.AnalysisRun
	reviews       []core.Review
	notifications map[string]*core.Notification // by dedupe key
}

func New() *Store {
	return &Store{
		now:           time.Now,
		users:         make(map[string]core.User),
		defaults:      core.DefaultWeights(),
		overrides:     make(map[string]map[core.Category]float64),
		runs:          make(map[runKey]*core.AnalysisRun),
		notifications: make(map[string]*core.Notification),
	}
}

// SetClock overrides the time source for created/updated stamps.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func keyOf(userID string, start, end time.Time) runKey {
	return runKey{userID: userID, start: core.FormatDate(start), end: core.FormatDate(end)}
}

func (s *Store) ClaimRun(ctx context.Context, candidate core.AnalysisRun) (*core.AnalysisRun, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := keyOf(candidate.UserID, candidate.PeriodStart, candidate.PeriodEnd)
	now := candidate.CreatedAt.UTC()
	existing, ok := s.runs[key]
	if !ok {
		run := &core.AnalysisRun{
			ID:           candidate.ID,
			UserID:       candidate.UserID,
			PeriodStart:  core.NormalizeDate(candidate.PeriodStart),
			PeriodEnd:    core.NormalizeDate(candidate.PeriodEnd),
			Status:       core.RunStatusRunning,
			AttemptCount: 1,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		s.runs[key] = run
		out := *run
		return &out, nil
	}
	if existing.Status != core.RunStatusFailed {
		return nil, nil
	}
	existing.Status = core.RunStatusRunning
	existing.AttemptCount++
	existing.LastError = ""
	existing.UpdatedAt = now
	out := *existing
	return &out, nil
}

func (s *Store) SaveRun(ctx context.Context, run *core.AnalysisRun) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.runs[keyOf(run.UserID, run.PeriodStart, run.PeriodEnd)]
	if !ok || stored.ID != run.ID || stored.Status != core.RunStatusRunning || stored.AttemptCount != run.AttemptCount {
		return fmt.Errorf("save analysis run %s: %w", run.ID, core.ErrRunNotRunning)
	}
	stored.Status = run.Status
	stored.LastError = run.LastError
	stored.UpdatedAt = run.UpdatedAt.UTC()
	return nil
}

func (s *Store) FindStaleRuns(ctx context.Context, threshold time.Time) ([]core.AnalysisRun, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []core.AnalysisRun
	for _, r := range s.runs {
		if r.Status == core.RunStatusRunning && r.UpdatedAt.Before(threshold) {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return out, nil
}

func (s *Store) GetRun(ctx context.Context, userID string, periodStart, periodEnd time.Time) (*core.AnalysisRun, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.runs[keyOf(userID, periodStart, periodEnd)]
	if !ok {
		return nil, core.ErrNotFound
	}
	out := *r
	return &out, nil
}

func (s *Store) SaveUser(ctx context.Context, u core.User) error {
	if u.ID == "" {
		return fmt.Errorf("save user: empty id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
	return nil
}

// FindUsers pages through users ordered by id.
func (s *Store) FindUsers(ctx context.Context, q core.UserQuery) ([]core.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.users))
	for id, u := range s.users {
		if q.Where.ActiveOnly && !u.Active {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)

	if q.Skip >= len(ids) {
		return []core.User{}, nil
	}
	end := len(ids)
	if q.Take > 0 && q.Skip+q.Take < end {
		end = q.Skip + q.Take
	}
	out := make([]core.User, 0, end-q.Skip)
	for _, id := range ids[q.Skip:end] {
		out = append(out, s.users[id])
	}
	return out, nil
}

func (s *Store) GetEffectiveWeights(ctx context.Context, userID string) ([]core.CategoryWeight, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var overrides []core.CategoryWeight
	for c, w := range s.overrides[userID] {
		overrides = append(overrides, core.CategoryWeight{Category: c, Weight: w})
	}
	return core.MergeWeights(s.defaults, overrides), nil
}

func (s *Store) SetUserWeight(ctx context.Context, userID string, w core.CategoryWeight) error {
	if err := w.Validate(); err != nil {
		return fmt.Errorf("set weight %s for user %s: %w", w.Category, userID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.overrides[userID] == nil {
		s.overrides[userID] = make(map[core.Category]float64)
	}
	s.overrides[userID][w.Category] = w.Weight
	return nil
}

func (s *Store) RecordTransaction(ctx context.Context, t core.Transaction) (int64, error) {
	if !t.Category.IsValid() {
		return 0, fmt.Errorf("record transaction: %w: %q", core.ErrInvalidCategory, t.Category)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t.ID = int64(len(s.transactions) + 1)
	t.OccurredOn = core.NormalizeDate(t.OccurredOn)
	s.transactions = append(s.transactions, t)
	return t.ID, nil
}

func (s *Store) SpendByCategory(ctx context.Context, userID string, from, to time.Time) (map[core.Category]decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	from, to = core.NormalizeDate(from), core.NormalizeDate(to)
	spend := make(map[core.Category]decimal.Decimal)
	for _, t := range s.transactions {
		if t.UserID != userID || !t.Amount.IsPositive() {
			continue
		}
		if t.OccurredOn.Before(from) || t.OccurredOn.After(to) {
			continue
		}
		spend[t.Category] = spend[t.Category].Add(t.Amount)
	}
	return spend, nil
}

func (s *Store) CreateReviews(ctx context.Context, inputs []core.ReviewInput) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	for _, in := range inputs {
		s.reviews = append(s.reviews, core.Review{
			ID:          uuid.NewString(),
			UserID:      in.UserID,
			Content:     in.Content,
			PeriodStart: core.NormalizeDate(in.PeriodStart),
			PeriodEnd:   core.NormalizeDate(in.PeriodEnd),
			CreatedAt:   now,
		})
	}
	return len(inputs), nil
}

func (s *Store) ListReviews(ctx context.Context, userID string) ([]core.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []core.Review
	for _, r := range s.reviews {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) FindNotificationByDedupeKey(ctx context.Context, dedupeKey string) (*core.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[dedupeKey]
	if !ok {
		return nil, core.ErrNotFound
	}
	return cloneNotification(n), nil
}

func (s *Store) CreateNotification(ctx context.Context, n core.Notification) (*core.Notification, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if n.DedupeKey == "" {
		return nil, false, fmt.Errorf("notification for user %s: empty dedupe key", n.UserID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.notifications[n.DedupeKey]; ok {
		return cloneNotification(existing), false, nil
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now().UTC()
	}
	n.UpdatedAt = n.CreatedAt
	stored := cloneNotification(&n)
	s.notifications[n.DedupeKey] = stored
	return cloneNotification(stored), true, nil
}

func (s *Store) ListNotifications(ctx context.Context, userID string, unreadOnly bool) ([]core.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []core.Notification
	for _, n := range s.notifications {
		if n.UserID != userID || (unreadOnly && n.IsRead) {
			continue
		}
		out = append(out, *cloneNotification(n))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) MarkNotificationRead(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, n := range s.notifications {
		if n.ID == id {
			n.IsRead = true
			n.UpdatedAt = s.now().UTC()
			return nil
		}
	}
	return fmt.Errorf("mark notification %s read: %w", id, core.ErrNotFound)
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) Close() error {
	return nil
}

func cloneNotification(n *core.Notification) *core.Notification {
	out := *n
	if n.Meta != nil {
		out.Meta = make(map[string]string, len(n.Meta))
		for k, v := range n.Meta {
			out.Meta[k] = v
		}
	}
	return &out
}
