package subscription

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/magabrotheeeer/habitup-billing/internal/lib/apperr"
	"github.com/magabrotheeeer/habitup-billing/internal/lib/sl"
	"github.com/magabrotheeeer/habitup-billing/internal/models"
	"github.com/magabrotheeeer/habitup-billing/internal/services/proration"
)

// Cancel отменяет активную подписку.
// Пользователь может отменить только свою подписку и всегда получает возврат по правилам расчёта.
// Администратор возвращает деньги только при refund=true.
// Возврат у провайдера выполняется до записи в базу: его ошибка отменяет всю операцию.
func (s *Service) Cancel(ctx context.Context, actor models.Actor, id uuid.UUID, reason string, refund bool) (*models.Cancellation, error) {
	const op = "services.subscription.Cancel"

	now := s.now()
	sub, err := s.repo.GetSubscription(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !actor.IsAdmin() && sub.UserID != actor.UserID {
		return nil, fmt.Errorf("%s: %w", op, apperr.NotFound("subscription not found"))
	}
	if err := cancellable(sub.EffectiveStatus(now)); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	cancelledBy := models.CancelledByUser
	if actor.IsAdmin() {
		cancelledBy = models.CancelledByAdmin
	}

	amount := decimal.Zero
	if !actor.IsAdmin() || refund {
		amount = proration.Refund(sub.Amount, sub.StartDate, sub.EndDate, now)
	}

	var refundID string
	if amount.IsPositive() {
		if sub.RazorpayPaymentID == "" {
			s.log.Warn("no captured payment to refund", sl.SubscriptionID(sub.ID), "amount", amount.String())
			amount = decimal.Zero
		} else {
			refundID, err = s.orders.Refund(ctx, sub.ID, sub.RazorpayPaymentID, amount)
			if err != nil {
				s.log.Error("refund failed, cancellation aborted", sl.UserID(sub.UserID), sl.SubscriptionID(sub.ID), sl.Err(err))
				return nil, fmt.Errorf("%s: %w", op, err)
			}
		}
	}

	err = s.repo.InTx(ctx, func(ctx context.Context) error {
		if err := s.repo.LockUser(ctx, sub.UserID); err != nil {
			return err
		}
		current, err := s.repo.GetSubscription(ctx, id)
		if err != nil {
			return err
		}
		if err := cancellable(current.EffectiveStatus(now)); err != nil {
			return err
		}

		current.Status = models.StatusCancelled
		current.CancelledAt = &now
		current.CancellationReason = strings.TrimSpace(reason)
		current.CancelledBy = cancelledBy
		current.RefundAmount = amount
		current.PendingPlanID = nil
		current.PendingBillingCycle = ""
		current.UpdatedAt = now
		if err := s.repo.UpdateSubscription(ctx, current); err != nil {
			return err
		}

		if refundID != "" {
			err := s.repo.CreatePayment(ctx, &models.Payment{
				ID:               uuid.New(),
				UserID:           current.UserID,
				SubscriptionID:   current.ID,
				Amount:           amount,
				Currency:         current.Currency,
				Status:           models.PaymentRefunded,
				Type:             models.PaymentRefund,
				GatewayPaymentID: current.RazorpayPaymentID,
				GatewayOrderID:   current.RazorpayOrderID,
				GatewayRefundID:  refundID,
				CreatedAt:        now,
			})
			if err != nil {
				return err
			}
		}
		sub = current
		return s.repo.SetUserSubscriptionStatus(ctx, current.UserID, models.StatusCancelled)
	})
	if err != nil {
		if refundID != "" {
			s.log.Error("refund issued but cancellation not saved",
				sl.UserID(sub.UserID), sl.SubscriptionID(sub.ID), "refund_id", refundID, sl.Err(err))
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("subscription cancelled", sl.UserID(sub.UserID), sl.SubscriptionID(sub.ID),
		"cancelled_by", cancelledBy, "refund", amount.String())
	s.publish(ctx, models.EventCancelled, sub)
	return &models.Cancellation{Subscription: sub, RefundAmount: amount, RefundID: refundID}, nil
}

func cancellable(status models.SubscriptionStatus) error {
	switch status {
	case models.StatusActive:
		return nil
	case models.StatusCancelled:
		return apperr.Conflict("subscription already cancelled")
	}
	return apperr.Conflict("only active subscriptions can be cancelled, current status %s", status)
}
