package application

import (
	"context"
	"errors"

	"github.com/cristianortiz/liveAuction/internal/user/domain"
	"github.com/google/uuid"
)

// StandingChecker answers the auction core's standing question from the user accounts.
// Unknown users have no standing.
type StandingChecker struct {
	users     domain.UserRepository
	minPoints int64
}

func NewStandingChecker(users domain.UserRepository, minPoints int64) *StandingChecker {
	return &StandingChecker{users: users, minPoints: minPoints}
}

func (c *StandingChecker) HasStanding(ctx context.Context, bidderID uuid.UUID) (bool, error) {
	user, err := c.users.GetByID(ctx, bidderID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return false, nil
		}
		return false, err
	}
	return user.CanBid(c.minPoints), nil
}
