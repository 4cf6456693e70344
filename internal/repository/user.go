package repository

import (
	"context"
	"errors"
	"fmt"

	"garagelog/internal/domain"
)

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when an insert violates a uniqueness constraint.
// The email and username variants wrap it so callers can report which
// field collided while still matching on ErrConflict.
var (
	ErrConflict         = errors.New("already exists")
	ErrEmailConflict    = fmt.Errorf("email %w", ErrConflict)
	ErrUsernameConflict = fmt.Errorf("username %w", ErrConflict)
)

// UserRepository defines persistence operations for User entities.
type UserRepository interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, user *domain.User) (int64, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByID(ctx context.Context, id int64) (*domain.User, error)
}
