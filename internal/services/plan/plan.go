// Package plan управляет каталогом тарифных планов.
// Публичный список активных планов кэшируется в Redis и сбрасывается при любой записи.
package plan

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/magabrotheeeer/habitup-billing/internal/lib/apperr"
	"github.com/magabrotheeeer/habitup-billing/internal/lib/sl"
	"github.com/magabrotheeeer/habitup-billing/internal/models"
)

// ActivePlansKey ключ кэша со списком активных планов.
const ActivePlansKey = "plans:active"

type Repository interface {
	CreatePlan(ctx context.Context, plan *models.Plan) error
	GetPlan(ctx context.Context, id uuid.UUID) (*models.Plan, error)
	UpdatePlan(ctx context.Context, plan *models.Plan) error
	DeletePlan(ctx context.Context, id uuid.UUID) error
	ListPlans(ctx context.Context, includeInactive bool) ([]*models.Plan, error)
	CountActiveSubscriptionsByPlan(ctx context.Context, planID uuid.UUID) (int, error)
}

type Cache interface {
	Get(ctx context.Context, key string, result any) (bool, error)
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	Invalidate(ctx context.Context, keys ...string) error
}

type Service struct {
	repo  Repository
	cache Cache
	ttl   time.Duration
	log   *slog.Logger
	now   func() time.Time
}

// New создаёт сервис каталога. ttl время жизни кэша списка планов.
func New(repo Repository, cache Cache, ttl time.Duration, log *slog.Logger) *Service {
	return &Service{
		repo:  repo,
		cache: cache,
		ttl:   ttl,
		log:   log,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// CreateInput параметры нового плана.
type CreateInput struct {
	Name         string
	Price        decimal.Decimal
	DurationType models.BillingCycle
	Features     []string
	IsActive     bool
}

func (s *Service) CreatePlan(ctx context.Context, in CreateInput) (*models.Plan, error) {
	const op = "services.plan.CreatePlan"

	if in.DurationType == "" {
		in.DurationType = models.CycleMonthly
	}
	if err := validate(in.Name, in.Price, in.DurationType); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	now := s.now()
	plan := &models.Plan{
		ID:           uuid.New(),
		Name:         strings.TrimSpace(in.Name),
		Price:        in.Price,
		DurationType: in.DurationType,
		Features:     nonNil(in.Features),
		IsActive:     in.IsActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.CreatePlan(ctx, plan); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.invalidate(ctx)
	s.log.Info("plan created", "plan_id", plan.ID, "name", plan.Name)
	return plan, nil
}

func (s *Service) UpdatePlan(ctx context.Context, id uuid.UUID, patch models.PlanPatch) (*models.Plan, error) {
	const op = "services.plan.UpdatePlan"

	plan, err := s.repo.GetPlan(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if patch.Name != nil {
		plan.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Price != nil {
		plan.Price = *patch.Price
	}
	if patch.DurationType != nil {
		plan.DurationType = *patch.DurationType
	}
	if patch.Features != nil {
		plan.Features = patch.Features
	}
	if patch.IsActive != nil {
		plan.IsActive = *patch.IsActive
	}
	if err := validate(plan.Name, plan.Price, plan.DurationType); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	plan.UpdatedAt = s.now()
	if err := s.repo.UpdatePlan(ctx, plan); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.invalidate(ctx)
	return plan, nil
}

// DeactivateOrDeletePlan удаляет план, а если на нём есть активные подписки, только скрывает его.
func (s *Service) DeactivateOrDeletePlan(ctx context.Context, id uuid.UUID) (models.PlanRemoval, error) {
	const op = "services.plan.DeactivateOrDeletePlan"

	plan, err := s.repo.GetPlan(ctx, id)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	active, err := s.repo.CountActiveSubscriptionsByPlan(ctx, id)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	if active == 0 {
		err = s.repo.DeletePlan(ctx, id)
		if err == nil {
			s.invalidate(ctx)
			s.log.Info("plan deleted", "plan_id", id)
			return models.PlanDeleted, nil
		}
		// на план ссылаются завершённые подписки, историю не трогаем
		if !apperr.IsConflict(err) {
			return "", fmt.Errorf("%s: %w", op, err)
		}
	}

	plan.IsActive = false
	plan.UpdatedAt = s.now()
	if err := s.repo.UpdatePlan(ctx, plan); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	s.invalidate(ctx)
	s.log.Info("plan deactivated", "plan_id", id, "active_subscriptions", active)
	return models.PlanDeactivated, nil
}

// ListPlans список планов. Активные планы отдаются из кэша, если он прогрет.
func (s *Service) ListPlans(ctx context.Context, includeInactive bool) ([]*models.Plan, error) {
	const op = "services.plan.ListPlans"

	if includeInactive {
		plans, err := s.repo.ListPlans(ctx, true)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return plans, nil
	}

	var cached []*models.Plan
	found, err := s.cache.Get(ctx, ActivePlansKey, &cached)
	if err != nil {
		s.log.Warn("failed to read plans from cache", sl.Err(err))
	}
	if found {
		return cached, nil
	}

	plans, err := s.repo.ListPlans(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := s.cache.Set(ctx, ActivePlansKey, plans, s.ttl); err != nil {
		s.log.Warn("failed to cache plans", sl.Err(err))
	}
	return plans, nil
}

func (s *Service) GetPlan(ctx context.Context, id uuid.UUID) (*models.Plan, error) {
	const op = "services.plan.GetPlan"
	plan, err := s.repo.GetPlan(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return plan, nil
}

func (s *Service) invalidate(ctx context.Context) {
	if err := s.cache.Invalidate(ctx, ActivePlansKey); err != nil {
		s.log.Warn("failed to invalidate plans cache", sl.Err(err))
	}
}

func validate(name string, price decimal.Decimal, cycle models.BillingCycle) error {
	if strings.TrimSpace(name) == "" {
		return apperr.Validation("plan name is required")
	}
	if !price.IsPositive() {
		return apperr.Validation("plan price must be positive")
	}
	if !cycle.Valid() {
		return apperr.Validation("unknown duration type %q", cycle)
	}
	return nil
}

func nonNil(features []string) []string {
	if features == nil {
		return []string{}
	}
	return features
}
