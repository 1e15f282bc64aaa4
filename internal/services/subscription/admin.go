package subscription

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/habitup-billing/internal/lib/apperr"
	"github.com/magabrotheeeer/habitup-billing/internal/lib/month"
	"github.com/magabrotheeeer/habitup-billing/internal/lib/sl"
	"github.com/magabrotheeeer/habitup-billing/internal/models"
)

// MaxBulkIDs ограничение на число подписок в одной массовой операции.
const MaxBulkIDs = 100

// Extend продлевает подписку на days дней от большей из дат окончания и текущего момента
// и возвращает её в ACTIVE. Применимо к активным и истёкшим подпискам.
func (s *Service) Extend(ctx context.Context, id uuid.UUID, days int) (*models.Subscription, error) {
	const op = "services.subscription.Extend"

	if days <= 0 {
		return nil, fmt.Errorf("%s: %w", op, apperr.Validation("extension days must be positive"))
	}

	now := s.now()
	var sub *models.Subscription
	err := s.repo.InTx(ctx, func(ctx context.Context) error {
		current, err := s.repo.GetSubscription(ctx, id)
		if err != nil {
			return err
		}
		if err := s.repo.LockUser(ctx, current.UserID); err != nil {
			return err
		}
		switch current.Status {
		case models.StatusActive, models.StatusExpired:
		default:
			return apperr.Conflict("cannot extend %s subscription", current.Status)
		}

		current.EndDate = month.Max(current.EndDate, now).AddDate(0, 0, days)
		current.Status = models.StatusActive
		current.UpdatedAt = now
		if err := s.repo.UpdateSubscription(ctx, current); err != nil {
			return err
		}
		sub = current
		return s.repo.SetUserSubscriptionStatus(ctx, current.UserID, models.StatusActive)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("subscription extended", sl.UserID(sub.UserID), sl.SubscriptionID(sub.ID), "days", days)
	s.publish(ctx, models.EventExtended, sub)
	return sub, nil
}

// BulkCancel отменяет активные подписки из списка, возвращает число отменённых.
func (s *Service) BulkCancel(ctx context.Context, ids []uuid.UUID, reason string) (int, error) {
	const op = "services.subscription.BulkCancel"

	if err := validateIDs(ids); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	n, err := s.repo.BulkCancel(ctx, ids, reason, s.now())
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("bulk cancel done", "requested", len(ids), "cancelled", n)
	return n, nil
}

// BulkExtend продлевает подписки из списка на days дней, возвращает число изменённых.
func (s *Service) BulkExtend(ctx context.Context, ids []uuid.UUID, days int) (int, error) {
	const op = "services.subscription.BulkExtend"

	if days <= 0 {
		return 0, fmt.Errorf("%s: %w", op, apperr.Validation("extension days must be positive"))
	}
	if err := validateIDs(ids); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	n, err := s.repo.BulkExtend(ctx, ids, days, s.now())
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("bulk extend done", "requested", len(ids), "extended", n, "days", days)
	return n, nil
}

func validateIDs(ids []uuid.UUID) error {
	if len(ids) == 0 {
		return apperr.Validation("subscription ids are required")
	}
	if len(ids) > MaxBulkIDs {
		return apperr.Validation("at most %d subscriptions per request", MaxBulkIDs)
	}
	return nil
}
