package plan

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/habitup-billing/internal/lib/apperr"
	"github.com/magabrotheeeer/habitup-billing/internal/models"
	"github.com/magabrotheeeer/habitup-billing/internal/storage/memory"
)

type MockCache struct {
	mock.Mock
}

func (m *MockCache) Get(ctx context.Context, key string, result any) (bool, error) {
	args := m.Called(ctx, key, result)
	return args.Bool(0), args.Error(1)
}

func (m *MockCache) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	args := m.Called(ctx, key, value, expiration)
	return args.Error(0)
}

func (m *MockCache) Invalidate(ctx context.Context, keys ...string) error {
	args := m.Called(ctx, keys)
	return args.Error(0)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func newService(t *testing.T) (*Service, *memory.Store, *MockCache) {
	t.Helper()
	store := memory.New()
	cache := &MockCache{}
	cache.On("Invalidate", mock.Anything, []string{ActivePlansKey}).Return(nil).Maybe()
	return New(store, cache, 10*time.Minute, newNoopLogger()), store, cache
}

func createPlan(t *testing.T, s *Service, name string, price int64, active bool) *models.Plan {
	t.Helper()
	p, err := s.CreatePlan(context.Background(), CreateInput{
		Name:         name,
		Price:        decimal.NewFromInt(price),
		DurationType: models.CycleMonthly,
		Features:     []string{"habits"},
		IsActive:     active,
	})
	require.NoError(t, err)
	return p
}

func TestService_CreatePlan(t *testing.T) {
	tests := []struct {
		name    string
		in      CreateInput
		check   func(error) bool
		wantErr bool
	}{
		{
			name: "success with default duration",
			in:   CreateInput{Name: "Pro", Price: decimal.NewFromInt(99), IsActive: true},
		},
		{
			name:    "empty name",
			in:      CreateInput{Name: "  ", Price: decimal.NewFromInt(99)},
			check:   apperr.IsValidation,
			wantErr: true,
		},
		{
			name:    "zero price",
			in:      CreateInput{Name: "Free", Price: decimal.Zero},
			check:   apperr.IsValidation,
			wantErr: true,
		},
		{
			name:    "unknown duration",
			in:      CreateInput{Name: "Weekly", Price: decimal.NewFromInt(10), DurationType: "WEEKLY"},
			check:   apperr.IsValidation,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _, _ := newService(t)
			p, err := s.CreatePlan(context.Background(), tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, tt.check(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, models.CycleMonthly, p.DurationType)
			assert.NotNil(t, p.Features)
			assert.NotEqual(t, uuid.Nil, p.ID)
		})
	}
}

func TestService_CreatePlan_DuplicateName(t *testing.T) {
	s, _, _ := newService(t)
	createPlan(t, s, "Pro", 99, true)

	_, err := s.CreatePlan(context.Background(), CreateInput{Name: "Pro", Price: decimal.NewFromInt(10)})
	require.Error(t, err)
	assert.True(t, apperr.IsConflict(err))
}

func TestService_UpdatePlan(t *testing.T) {
	s, _, cache := newService(t)
	pro := createPlan(t, s, "Pro", 99, true)
	createPlan(t, s, "Basic", 49, true)

	newPrice := decimal.NewFromInt(129)
	updated, err := s.UpdatePlan(context.Background(), pro.ID, models.PlanPatch{Price: &newPrice})
	require.NoError(t, err)
	assert.True(t, newPrice.Equal(updated.Price))
	assert.Equal(t, "Pro", updated.Name)
	cache.AssertCalled(t, "Invalidate", mock.Anything, []string{ActivePlansKey})

	taken := "Basic"
	_, err = s.UpdatePlan(context.Background(), pro.ID, models.PlanPatch{Name: &taken})
	require.Error(t, err)
	assert.True(t, apperr.IsConflict(err))

	_, err = s.UpdatePlan(context.Background(), uuid.New(), models.PlanPatch{Price: &newPrice})
	require.Error(t, err)
	assert.True(t, apperr.IsNotFound(err))
}

func TestService_DeactivateOrDeletePlan(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		status models.SubscriptionStatus
		seed   bool
		want   models.PlanRemoval
	}{
		{name: "no subscriptions - deleted", want: models.PlanDeleted},
		{name: "active subscriber - deactivated", seed: true, status: models.StatusActive, want: models.PlanDeactivated},
		{name: "only history - deactivated", seed: true, status: models.StatusCancelled, want: models.PlanDeactivated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, store, _ := newService(t)
			p := createPlan(t, s, "Pro", 99, true)
			if tt.seed {
				require.NoError(t, store.CreateSubscription(ctx, &models.Subscription{
					ID:        uuid.New(),
					UserID:    uuid.New(),
					PlanID:    p.ID,
					Status:    tt.status,
					StartDate: now,
					EndDate:   now.AddDate(0, 1, 0),
				}))
			}

			got, err := s.DeactivateOrDeletePlan(ctx, p.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			stored, err := store.GetPlan(ctx, p.ID)
			if tt.want == models.PlanDeleted {
				assert.True(t, apperr.IsNotFound(err))
				return
			}
			require.NoError(t, err)
			assert.False(t, stored.IsActive)
		})
	}

	t.Run("missing plan", func(t *testing.T) {
		s, _, _ := newService(t)
		_, err := s.DeactivateOrDeletePlan(ctx, uuid.New())
		require.Error(t, err)
		assert.True(t, apperr.IsNotFound(err))
	})
}

func TestService_ListPlans(t *testing.T) {
	ctx := context.Background()

	t.Run("cache hit skips storage", func(t *testing.T) {
		store := memory.New()
		cache := &MockCache{}
		cache.On("Get", mock.Anything, ActivePlansKey, mock.Anything).Return(true, nil).Once()
		s := New(store, cache, time.Minute, newNoopLogger())

		_, err := s.ListPlans(ctx, false)
		require.NoError(t, err)
		cache.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("cache miss fills cache with active plans", func(t *testing.T) {
		s, _, cache := newService(t)
		createPlan(t, s, "Pro", 99, true)
		createPlan(t, s, "Legacy", 10, false)

		cache.On("Get", mock.Anything, ActivePlansKey, mock.Anything).Return(false, nil).Once()
		cache.On("Set", mock.Anything, ActivePlansKey, mock.Anything, time.Duration(10*time.Minute)).Return(nil).Once()

		plans, err := s.ListPlans(ctx, false)
		require.NoError(t, err)
		require.Len(t, plans, 1)
		assert.Equal(t, "Pro", plans[0].Name)
		cache.AssertExpectations(t)
	})

	t.Run("cache errors fall back to storage", func(t *testing.T) {
		s, _, cache := newService(t)
		createPlan(t, s, "Pro", 99, true)

		cache.On("Get", mock.Anything, ActivePlansKey, mock.Anything).Return(false, errors.New("redis down")).Once()
		cache.On("Set", mock.Anything, ActivePlansKey, mock.Anything, mock.Anything).Return(errors.New("redis down")).Once()

		plans, err := s.ListPlans(ctx, false)
		require.NoError(t, err)
		assert.Len(t, plans, 1)
	})

	t.Run("include inactive bypasses cache", func(t *testing.T) {
		s, _, cache := newService(t)
		createPlan(t, s, "Pro", 99, true)
		createPlan(t, s, "Legacy", 10, false)

		plans, err := s.ListPlans(ctx, true)
		require.NoError(t, err)
		assert.Len(t, plans, 2)
		cache.AssertNotCalled(t, "Get", mock.Anything, mock.Anything, mock.Anything)
	})
}
