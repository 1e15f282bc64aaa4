package subscription

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/habitup-billing/internal/lib/apperr"
	"github.com/magabrotheeeer/habitup-billing/internal/lib/sl"
	"github.com/magabrotheeeer/habitup-billing/internal/models"
	"github.com/magabrotheeeer/habitup-billing/internal/services/proration"
)

// ChangePlan переводит активную подписку на другой план.
// Понижение применяется сразу. Для повышения создаётся заказ на доплату,
// а план меняется только после оплаты.
func (s *Service) ChangePlan(ctx context.Context, userID, newPlanID uuid.UUID, newCycle models.BillingCycle) (*models.PlanChange, error) {
	const op = "services.subscription.ChangePlan"

	if newCycle != "" && !newCycle.Valid() {
		return nil, fmt.Errorf("%s: %w", op, apperr.Validation("unknown billing cycle %q", newCycle))
	}

	now := s.now()
	var (
		sub    *models.Subscription
		result proration.Result
	)
	err := s.repo.InTx(ctx, func(ctx context.Context) error {
		if err := s.repo.LockUser(ctx, userID); err != nil {
			return err
		}
		active, err := s.repo.GetActiveSubscription(ctx, userID)
		if err != nil {
			if apperr.IsNotFound(err) {
				return apperr.NotFound("no active subscription")
			}
			return err
		}
		if active.EffectiveStatus(now) != models.StatusActive {
			return apperr.NotFound("no active subscription")
		}
		if active.PlanID == newPlanID {
			return apperr.Conflict("already subscribed to this plan")
		}
		plan, err := s.activePlan(ctx, newPlanID)
		if err != nil {
			return err
		}

		cycle := newCycle
		if cycle == "" {
			cycle = active.BillingCycle
		}
		result, err = proration.Prorate(proration.Input{
			OldAmount:       active.Amount,
			OldStart:        active.StartDate,
			OldEnd:          active.EndDate,
			NewMonthlyPrice: plan.Price,
			NewCycle:        cycle,
			AsOf:            now,
		})
		if err != nil {
			return err
		}

		if result.Type == models.ChangeDowngrade {
			active.PlanID = plan.ID
			active.PlanType = plan.Name
			active.PendingPlanID = nil
			active.PendingBillingCycle = ""
		} else {
			active.PendingPlanID = &plan.ID
			active.PendingBillingCycle = cycle
		}
		active.UpdatedAt = now
		sub = active
		return s.repo.UpdateSubscription(ctx, active)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	change := &models.PlanChange{Type: result.Type, ProratedAmount: result.Amount, Subscription: sub}
	if result.Type == models.ChangeDowngrade {
		s.log.Info("plan downgraded", sl.UserID(userID), sl.SubscriptionID(sub.ID), "plan_id", sub.PlanID)
		return change, nil
	}

	order, err := s.orders.CreateOrder(ctx, sub.ID, result.Amount, sub.Currency, map[string]string{
		"userId": userID.String(),
		"planId": newPlanID.String(),
		"type":   string(models.ChangeUpgrade),
	})
	if err != nil {
		s.log.Error("failed to create upgrade order", sl.UserID(userID), sl.SubscriptionID(sub.ID), sl.Err(err))
		s.clearPendingUpgrade(ctx, sub.ID)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	sub.RazorpayOrderID = order.OrderID
	change.Order = order
	s.log.Info("upgrade awaiting payment", sl.UserID(userID), sl.SubscriptionID(sub.ID), "order_id", order.OrderID)
	return change, nil
}

func (s *Service) clearPendingUpgrade(ctx context.Context, id uuid.UUID) {
	err := s.repo.InTx(ctx, func(ctx context.Context) error {
		sub, err := s.repo.GetSubscription(ctx, id)
		if err != nil {
			return err
		}
		if err := s.repo.LockUser(ctx, sub.UserID); err != nil {
			return err
		}
		sub.PendingPlanID = nil
		sub.PendingBillingCycle = ""
		sub.UpdatedAt = s.now()
		return s.repo.UpdateSubscription(ctx, sub)
	})
	if err != nil {
		s.log.Error("failed to clear pending upgrade", sl.SubscriptionID(id), sl.Err(err))
	}
}
