package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/habitup-billing/internal/lib/apperr"
	"github.com/magabrotheeeer/habitup-billing/internal/lib/sl"
	"github.com/magabrotheeeer/habitup-billing/internal/models"
	"github.com/magabrotheeeer/habitup-billing/internal/services/proration"
)

const (
	statusCaptured = "captured"
	statusFailed   = "failed"
)

// errDuplicate откатывает транзакцию, если платёж уже записан.
var errDuplicate = errors.New("payment already processed")

// envelope формат событий Razorpay: платёж лежит в payload.payment.entity.
type envelope struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity models.WebhookPayload `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// ParsePayload разбирает тело уведомления в плоском формате или в конверте события.
func ParsePayload(body []byte) (models.WebhookPayload, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return models.WebhookPayload{}, apperr.Validation("invalid webhook payload")
	}
	if env.Payload.Payment.Entity.ID != "" {
		return env.Payload.Payment.Entity, nil
	}
	var p models.WebhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return models.WebhookPayload{}, apperr.Validation("invalid webhook payload")
	}
	return p, nil
}

// HandleWebhook проверяет подпись и применяет уведомление о платеже.
// Бизнес-исходы (неизвестный заказ, повтор, конфликт) не являются ошибкой,
// ошибка возвращается только когда провайдеру стоит повторить доставку.
func (s *Service) HandleWebhook(ctx context.Context, body []byte, signature string) (models.WebhookOutcome, error) {
	const op = "services.payment.HandleWebhook"

	if !s.gateway.VerifyWebhookSignature(body, signature) {
		return "", fmt.Errorf("%s: %w", op, apperr.Unauthorized("invalid webhook signature"))
	}
	p, err := ParsePayload(body)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	switch p.Status {
	case statusCaptured, statusFailed:
	default:
		s.log.Info("webhook ignored", "status", p.Status, "payment_id", p.ID)
		return models.WebhookIgnored, nil
	}
	if p.ID == "" || p.OrderID == "" {
		s.log.Warn("webhook without payment or order id ignored", "status", p.Status, "payment_id", p.ID, "order_id", p.OrderID)
		return models.WebhookIgnored, nil
	}

	key := "webhook:" + p.ID
	acquired, err := s.guard.Acquire(ctx, key, s.guardTTL)
	if err != nil {
		// без Redis повторы отсекает уникальный индекс платежей
		s.log.Warn("webhook guard unavailable", "payment_id", p.ID, sl.Err(err))
		acquired = true
	}
	if !acquired {
		s.log.Info("webhook already in progress", "payment_id", p.ID)
		return models.WebhookDuplicate, nil
	}

	var outcome models.WebhookOutcome
	if p.Status == statusCaptured {
		outcome, err = s.captured(ctx, p)
	} else {
		outcome, err = s.failed(ctx, p)
	}

	switch {
	case errors.Is(err, errDuplicate):
		return models.WebhookDuplicate, nil
	case apperr.IsConflict(err):
		s.log.Warn("webhook conflicts with subscription state", "payment_id", p.ID, "order_id", p.OrderID, sl.Err(err))
		return models.WebhookIgnored, nil
	case err != nil:
		if rerr := s.guard.Release(ctx, key); rerr != nil {
			s.log.Warn("failed to release webhook guard", "payment_id", p.ID, sl.Err(rerr))
		}
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return outcome, nil
}

func (s *Service) captured(ctx context.Context, p models.WebhookPayload) (models.WebhookOutcome, error) {
	now := s.now()
	outcome := models.WebhookRecorded
	var sub *models.Subscription

	err := s.repo.InTx(ctx, func(ctx context.Context) error {
		current, err := s.lockByOrder(ctx, p)
		if err != nil {
			return err
		}
		if current == nil {
			outcome = models.WebhookIgnored
			return nil
		}

		payment := s.paymentRow(current, p, models.PaymentSuccess, now)
		if err := s.repo.CreatePayment(ctx, payment); err != nil {
			if apperr.IsConflict(err) {
				return errDuplicate
			}
			return err
		}

		switch {
		case current.Status == models.StatusPending:
			if err := s.expireStale(ctx, current.UserID, now); err != nil {
				if !apperr.IsConflict(err) {
					return err
				}
				// деньги списаны, но активной может быть только одна подписка
				s.log.Warn("payment captured while another subscription is active",
					sl.SubscriptionID(current.ID), "payment_id", p.ID)
				return nil
			}
			months := current.DurationMonths
			if months == 0 {
				months = current.BillingCycle.Months()
			}
			current.Status = models.StatusActive
			current.RazorpayPaymentID = p.ID
			current.LastPaymentDate = &now
			current.StartDate = now
			current.EndDate = proration.EndDate(now, months)
			current.FailureReason = ""
			outcome = models.WebhookActivated

		case current.Status == models.StatusActive && current.PendingPlanID != nil:
			plan, err := s.repo.GetPlan(ctx, *current.PendingPlanID)
			if err != nil {
				return err
			}
			if current.PendingBillingCycle != "" {
				current.BillingCycle = current.PendingBillingCycle
			}
			// стоимость периода пересчитывается по новому тарифу, продления и возвраты идут от неё
			months := current.BillingCycle.Months()
			amount, err := proration.PriceForDuration(plan.Price, months)
			if err != nil {
				return err
			}
			current.PlanID = plan.ID
			current.PlanType = plan.Name
			current.DurationMonths = months
			current.Amount = amount
			current.PendingPlanID = nil
			current.PendingBillingCycle = ""
			current.LastPaymentDate = &now
			outcome = models.WebhookUpgraded

		default:
			s.log.Warn("payment captured for stale order",
				sl.SubscriptionID(current.ID), "status", current.Status, "payment_id", p.ID)
			return nil
		}

		current.UpdatedAt = now
		if err := s.repo.UpdateSubscription(ctx, current); err != nil {
			return err
		}
		sub = current
		return s.repo.SetUserSubscriptionStatus(ctx, current.UserID, models.StatusActive)
	})
	if err != nil {
		return "", err
	}

	switch outcome {
	case models.WebhookActivated:
		s.log.Info("subscription activated", sl.UserID(sub.UserID), sl.SubscriptionID(sub.ID), "payment_id", p.ID)
		s.publish(ctx, models.EventActivated, sub)
	case models.WebhookUpgraded:
		s.log.Info("subscription upgraded", sl.UserID(sub.UserID), sl.SubscriptionID(sub.ID), "plan_id", sub.PlanID)
		s.publish(ctx, models.EventUpgraded, sub)
	}
	return outcome, nil
}

func (s *Service) failed(ctx context.Context, p models.WebhookPayload) (models.WebhookOutcome, error) {
	now := s.now()
	reason := p.ErrorDescription
	if reason == "" {
		reason = "payment failed"
	}
	outcome := models.WebhookRecorded
	var sub *models.Subscription

	err := s.repo.InTx(ctx, func(ctx context.Context) error {
		current, err := s.lockByOrder(ctx, p)
		if err != nil {
			return err
		}
		if current == nil {
			outcome = models.WebhookIgnored
			return nil
		}

		payment := s.paymentRow(current, p, models.PaymentFailed, now)
		payment.FailureReason = reason
		if err := s.repo.CreatePayment(ctx, payment); err != nil {
			if apperr.IsConflict(err) {
				return errDuplicate
			}
			return err
		}

		switch {
		case current.Status == models.StatusPending:
			current.Status = models.StatusFailed
			current.FailureReason = reason
			outcome = models.WebhookFailed
		case current.Status == models.StatusActive && current.PendingPlanID != nil:
			current.PendingPlanID = nil
			current.PendingBillingCycle = ""
			outcome = models.WebhookFailed
		default:
			return nil
		}
		current.UpdatedAt = now
		sub = current
		return s.repo.UpdateSubscription(ctx, current)
	})
	if err != nil {
		return "", err
	}

	if outcome == models.WebhookFailed {
		s.log.Info("payment failed", sl.UserID(sub.UserID), sl.SubscriptionID(sub.ID), "reason", reason)
		s.publish(ctx, models.EventFailed, sub)
	}
	return outcome, nil
}

// lockByOrder находит подписку по заказу и блокирует её владельца.
// nil без ошибки означает неизвестный заказ.
func (s *Service) lockByOrder(ctx context.Context, p models.WebhookPayload) (*models.Subscription, error) {
	if _, err := s.repo.GetPaymentByGatewayID(ctx, p.ID, models.PaymentCharge); err == nil {
		return nil, errDuplicate
	} else if !apperr.IsNotFound(err) {
		return nil, err
	}

	sub, err := s.repo.GetSubscriptionByOrderID(ctx, p.OrderID)
	if err != nil {
		if apperr.IsNotFound(err) {
			s.log.Warn("webhook for unknown order", "order_id", p.OrderID, "payment_id", p.ID)
			return nil, nil
		}
		return nil, err
	}
	if err := s.repo.LockUser(ctx, sub.UserID); err != nil {
		return nil, err
	}
	return s.repo.GetSubscription(ctx, sub.ID)
}

// expireStale фиксирует лениво истёкшую подписку, чтобы активировать новую.
func (s *Service) expireStale(ctx context.Context, userID uuid.UUID, now time.Time) error {
	active, err := s.repo.GetActiveSubscription(ctx, userID)
	if err != nil {
		if apperr.IsNotFound(err) {
			return nil
		}
		return err
	}
	if active.EffectiveStatus(now) == models.StatusActive {
		return apperr.Conflict("user already has an active subscription")
	}
	active.Status = models.StatusExpired
	active.UpdatedAt = now
	return s.repo.UpdateSubscription(ctx, active)
}

func (s *Service) paymentRow(sub *models.Subscription, p models.WebhookPayload, status models.PaymentStatus, now time.Time) *models.Payment {
	amount := sub.Amount
	if p.Amount > 0 {
		amount = fromPaise(p.Amount)
	}
	return &models.Payment{
		ID:               uuid.New(),
		UserID:           sub.UserID,
		SubscriptionID:   sub.ID,
		Amount:           amount,
		Currency:         sub.Currency,
		Status:           status,
		Type:             models.PaymentCharge,
		GatewayPaymentID: p.ID,
		GatewayOrderID:   p.OrderID,
		CreatedAt:        now,
	}
}
