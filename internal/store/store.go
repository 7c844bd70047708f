package store

import (
	"context"
	"errors"
	"time"
)

// User is the persisted credential record. The email uniqueness invariant is
// enforced at the store boundary (unique index / map key), not by callers.
type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Name         string    `gorm:"size:100" json:"name"`
	Email        string    `gorm:"uniqueIndex;size:254" json:"email"`
	PasswordHash string    `gorm:"size:100" json:"-"`
	CreatedAt    time.Time `json:"-"`
}

var (
	// ErrNotFound means no credential exists for the given email.
	ErrNotFound = errors.New("user not found")
	// ErrDuplicateEmail is the authoritative conflict signal for a
	// concurrent or repeated registration of the same email.
	ErrDuplicateEmail = errors.New("email already registered")
)

// Credentials is the lookup/insert surface the auth handlers depend on.
// Implementations must treat a uniqueness violation on Create as
// ErrDuplicateEmail; callers use any pre-lookup only as a fast path.
type Credentials interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	Create(ctx context.Context, u *User) error
}
