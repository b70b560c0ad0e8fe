package domain

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrUserNotFound = errors.New("user not found")

// User is the part of a bidder's account the auction core reads.
type User struct {
	ID       uuid.UUID
	Username string
	Points   int64
	Banned   bool
}

// CanBid reports whether the user is in good standing for a points threshold.
func (u *User) CanBid(minPoints int64) bool {
	return !u.Banned && u.Points >= minPoints
}

type UserRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
}
