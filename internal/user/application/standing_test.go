package application

import (
	"context"
	"errors"
	"testing"

	"github.com/cristianortiz/liveAuction/internal/user/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockUserRepository struct {
	mock.Mock
}

func (m *mockUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	args := m.Called(ctx, id)
	if u := args.Get(0); u != nil {
		return u.(*domain.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestStandingChecker_HasStanding(t *testing.T) {
	ctx := context.Background()

	t.Run("Enough Points", func(t *testing.T) {
		// Arrange
		repo := new(mockUserRepository)
		id := uuid.New()
		repo.On("GetByID", ctx, id).Return(&domain.User{ID: id, Points: 500}, nil)
		checker := NewStandingChecker(repo, 100)

		// Act
		ok, err := checker.HasStanding(ctx, id)

		// Assert
		require.NoError(t, err)
		assert.True(t, ok)
		repo.AssertExpectations(t)
	})

	t.Run("Unknown User Has No Standing", func(t *testing.T) {
		repo := new(mockUserRepository)
		id := uuid.New()
		repo.On("GetByID", ctx, id).Return(nil, domain.ErrUserNotFound)

		ok, err := NewStandingChecker(repo, 0).HasStanding(ctx, id)

		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Repository Failure Is Returned", func(t *testing.T) {
		repo := new(mockUserRepository)
		id := uuid.New()
		repo.On("GetByID", ctx, id).Return(nil, errors.New("connection refused"))

		_, err := NewStandingChecker(repo, 0).HasStanding(ctx, id)

		assert.Error(t, err)
	})
}
