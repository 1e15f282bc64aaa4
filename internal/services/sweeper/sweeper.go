// Package sweeper периодически переводит истёкшие подписки в EXPIRED
// и рассылает напоминания о скором окончании.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/habitup-billing/internal/lib/sl"
	"github.com/magabrotheeeer/habitup-billing/internal/models"
)

type Repository interface {
	ExpireOverdue(ctx context.Context, now time.Time) ([]*models.Subscription, error)
	ListExpiringBetween(ctx context.Context, from, to time.Time) ([]*models.SubscriptionRow, error)
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type Publisher interface {
	Publish(ctx context.Context, event models.LifecycleEvent) error
}

// Guard не даёт отправить напоминание по одной подписке дважды за окно.
type Guard interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// Result итог одного прохода.
type Result struct {
	Expired  int
	Reminded int
}

type Service struct {
	repo   Repository
	events Publisher
	guard  Guard
	window time.Duration
	log    *slog.Logger
	now    func() time.Time
}

// New создаёт сервис. guard может быть nil, тогда напоминания не дедуплицируются.
func New(repo Repository, events Publisher, guard Guard, window time.Duration, log *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		events: events,
		guard:  guard,
		window: window,
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Run выполняет проход сразу и затем каждые interval до отмены ctx.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	s.tick(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("sweeper stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Service) tick(ctx context.Context) {
	res, err := s.Sweep(ctx)
	if err != nil {
		s.log.Error("sweep failed", sl.Err(err))
		return
	}
	s.log.Info("sweep finished", "expired", res.Expired, "reminded", res.Reminded)
}

// Sweep переводит просроченные подписки в EXPIRED и рассылает напоминания
// по подпискам, которые закончатся в ближайшее окно.
func (s *Service) Sweep(ctx context.Context) (Result, error) {
	const op = "services.sweeper.Sweep"

	var res Result
	now := s.now()

	expired, err := s.repo.ExpireOverdue(ctx, now)
	if err != nil {
		return res, fmt.Errorf("%s: %w", op, err)
	}
	for _, sub := range expired {
		event := s.event(models.EventExpired, sub, now)
		if user, err := s.repo.GetUser(ctx, sub.UserID); err == nil {
			event.Email = user.Email
			event.Name = user.Name
		}
		s.publish(ctx, event)
	}
	res.Expired = len(expired)

	if s.window <= 0 {
		return res, nil
	}
	expiring, err := s.repo.ListExpiringBetween(ctx, now, now.Add(s.window))
	if err != nil {
		return res, fmt.Errorf("%s: %w", op, err)
	}
	for _, row := range expiring {
		if !s.firstReminder(ctx, row.ID) {
			continue
		}
		event := s.event(models.EventExpiring, &row.Subscription, now)
		event.Email = row.UserEmail
		event.Name = row.UserName
		s.publish(ctx, event)
		res.Reminded++
	}
	return res, nil
}

func (s *Service) firstReminder(ctx context.Context, id uuid.UUID) bool {
	if s.guard == nil {
		return true
	}
	ok, err := s.guard.Acquire(ctx, "reminder:"+id.String(), s.window)
	if err != nil {
		s.log.Warn("reminder guard unavailable", sl.SubscriptionID(id), sl.Err(err))
		return true
	}
	return ok
}

func (s *Service) event(eventType string, sub *models.Subscription, now time.Time) models.LifecycleEvent {
	return models.LifecycleEvent{
		Type:           eventType,
		SubscriptionID: sub.ID,
		UserID:         sub.UserID,
		PlanType:       sub.PlanType,
		Amount:         sub.Amount,
		Currency:       sub.Currency,
		EndDate:        sub.EndDate,
		OccurredAt:     now,
	}
}

func (s *Service) publish(ctx context.Context, event models.LifecycleEvent) {
	if err := s.events.Publish(ctx, event); err != nil {
		s.log.Error("failed to publish message", "type", event.Type, sl.SubscriptionID(event.SubscriptionID), sl.Err(err))
	}
}
