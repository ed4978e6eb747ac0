package adapters

import (
	"context"

	"spendwatch/internal/core"
)

type UserFinder interface {
	FindUsers(ctx context.Context, q core.UserQuery) ([]core.User, error)
}

type ReviewWriter interface {
	CreateReviews(ctx context.Context, inputs []core.ReviewInput) (int, error)
}

// UserDirectory adapts a repository to services.UserDirectory
type UserDirectory struct {
	users UserFinder
}

func NewUserDirectory(users UserFinder) *UserDirectory {
	return &UserDirectory{users: users}
}

// Find implements services.UserDirectory
func (d *UserDirectory) Find(ctx context.Context, q core.UserQuery) ([]core.User, error) {
	return d.users.FindUsers(ctx, q)
}

// ReviewStore adapts a repository to services.ReviewStore
type ReviewStore struct {
	reviews ReviewWriter
}

func NewReviewStore(reviews ReviewWriter) *ReviewStore {
	return &ReviewStore{reviews: reviews}
}

// CreateMany implements services.ReviewStore
func (s *ReviewStore) CreateMany(ctx context.Context, inputs []core.ReviewInput) (int, error) {
	return s.reviews.CreateReviews(ctx, inputs)
}
