// Package subscription реализует жизненный цикл подписки: оформление, продление,
// смену плана, отмену и административные операции.
// Все проверки "прочитать и записать" выполняются в транзакции под блокировкой пользователя.
package subscription

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/magabrotheeeer/habitup-billing/internal/lib/apperr"
	"github.com/magabrotheeeer/habitup-billing/internal/lib/sl"
	"github.com/magabrotheeeer/habitup-billing/internal/models"
	"github.com/magabrotheeeer/habitup-billing/internal/services/proration"
)

const reasonSuperseded = "superseded by a new checkout"

// Repository определяет методы хранилища, нужные жизненному циклу подписки.
type Repository interface {
	// InTx выполняет fn в одной транзакции.
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
	// LockUser сериализует операции над подписками одного пользователя до конца транзакции.
	LockUser(ctx context.Context, userID uuid.UUID) error

	GetPlan(ctx context.Context, id uuid.UUID) (*models.Plan, error)

	CreateSubscription(ctx context.Context, sub *models.Subscription) error
	UpdateSubscription(ctx context.Context, sub *models.Subscription) error
	GetSubscription(ctx context.Context, id uuid.UUID) (*models.Subscription, error)
	GetActiveSubscription(ctx context.Context, userID uuid.UUID) (*models.Subscription, error)
	GetLatestSubscription(ctx context.Context, userID uuid.UUID) (*models.Subscription, error)
	// FailPendingSubscriptions переводит неоплаченные подписки пользователя в FAILED.
	FailPendingSubscriptions(ctx context.Context, userID uuid.UUID, reason string, now time.Time) (int, error)
	BulkCancel(ctx context.Context, ids []uuid.UUID, reason string, now time.Time) (int, error)
	BulkExtend(ctx context.Context, ids []uuid.UUID, days int, now time.Time) (int, error)

	CreatePayment(ctx context.Context, payment *models.Payment) error

	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	SetUserSubscriptionStatus(ctx context.Context, userID uuid.UUID, status models.SubscriptionStatus) error
}

// Orchestrator создаёт заказы и возвраты у платёжного провайдера.
type Orchestrator interface {
	CreateOrder(ctx context.Context, subscriptionID uuid.UUID, amount decimal.Decimal, currency string, notes map[string]string) (*models.Order, error)
	Refund(ctx context.Context, subscriptionID uuid.UUID, paymentID string, amount decimal.Decimal) (string, error)
}

// Publisher отправляет события жизненного цикла в очередь уведомлений.
type Publisher interface {
	Publish(ctx context.Context, event models.LifecycleEvent) error
}

type Service struct {
	repo     Repository
	orders   Orchestrator
	events   Publisher
	currency string
	log      *slog.Logger
	now      func() time.Time
}

func New(repo Repository, orders Orchestrator, events Publisher, currency string, log *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		orders:   orders,
		events:   events,
		currency: currency,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Subscribe оформляет подписку на план: создаёт PENDING запись и заказ на оплату.
// durationMonths 0 означает срок по интервалу оплаты (MONTHLY 1, YEARLY 12),
// годовая оплата возможна только на 12 месяцев.
func (s *Service) Subscribe(ctx context.Context, userID, planID uuid.UUID, cycle models.BillingCycle, durationMonths int) (*models.Checkout, error) {
	const op = "services.subscription.Subscribe"

	months, err := proration.Term(cycle, durationMonths)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	now := s.now()
	var sub *models.Subscription
	err = s.repo.InTx(ctx, func(ctx context.Context) error {
		if err := s.repo.LockUser(ctx, userID); err != nil {
			return err
		}
		if err := s.ensureNoActive(ctx, userID, now); err != nil {
			return err
		}
		plan, err := s.activePlan(ctx, planID)
		if err != nil {
			return err
		}
		amount, err := proration.PriceForDuration(plan.Price, months)
		if err != nil {
			return err
		}
		if _, err := s.repo.FailPendingSubscriptions(ctx, userID, reasonSuperseded, now); err != nil {
			return err
		}

		sub = &models.Subscription{
			ID:             uuid.New(),
			UserID:         userID,
			PlanID:         plan.ID,
			PlanType:       plan.Name,
			BillingCycle:   cycle,
			DurationMonths: months,
			Status:         models.StatusPending,
			Amount:         amount,
			Currency:       s.currency,
			StartDate:      now,
			EndDate:        proration.EndDate(now, months),
			RefundAmount:   decimal.Zero,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		return s.repo.CreateSubscription(ctx, sub)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return s.checkout(ctx, op, sub)
}

// Renew создаёт новую PENDING подписку по последней подписке пользователя
// с той же суммой и интервалом оплаты, даже если цена плана изменилась.
func (s *Service) Renew(ctx context.Context, userID uuid.UUID) (*models.Checkout, error) {
	const op = "services.subscription.Renew"

	now := s.now()
	var sub *models.Subscription
	err := s.repo.InTx(ctx, func(ctx context.Context) error {
		if err := s.repo.LockUser(ctx, userID); err != nil {
			return err
		}
		latest, err := s.repo.GetLatestSubscription(ctx, userID)
		if err != nil {
			if apperr.IsNotFound(err) {
				return apperr.NotFound("no subscription to renew")
			}
			return err
		}
		switch latest.EffectiveStatus(now) {
		case models.StatusPending:
			return apperr.Conflict("previous checkout is still pending payment")
		case models.StatusActive:
			return apperr.Conflict("subscription is still active")
		}
		plan, err := s.activePlan(ctx, latest.PlanID)
		if err != nil {
			return err
		}

		months := latest.DurationMonths
		if months == 0 {
			months = latest.BillingCycle.Months()
		}
		sub = &models.Subscription{
			ID:             uuid.New(),
			UserID:         userID,
			PlanID:         plan.ID,
			PlanType:       plan.Name,
			BillingCycle:   latest.BillingCycle,
			DurationMonths: months,
			Status:         models.StatusPending,
			Amount:         latest.Amount,
			Currency:       latest.Currency,
			StartDate:      now,
			EndDate:        proration.EndDate(now, months),
			RefundAmount:   decimal.Zero,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if sub.Currency == "" {
			sub.Currency = s.currency
		}
		return s.repo.CreateSubscription(ctx, sub)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return s.checkout(ctx, op, sub)
}

// GetCurrent возвращает последнюю подписку пользователя с учётом ленивого истечения.
func (s *Service) GetCurrent(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	const op = "services.subscription.GetCurrent"

	sub, err := s.repo.GetLatestSubscription(ctx, userID)
	if err != nil {
		if apperr.IsNotFound(err) {
			return nil, fmt.Errorf("%s: %w", op, apperr.NotFound("no subscription found"))
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	sub.Status = sub.EffectiveStatus(s.now())
	return sub, nil
}

// checkout создаёт заказ для только что созданной PENDING подписки.
// Если провайдер недоступен, подписка переводится в FAILED.
func (s *Service) checkout(ctx context.Context, op string, sub *models.Subscription) (*models.Checkout, error) {
	order, err := s.orders.CreateOrder(ctx, sub.ID, sub.Amount, sub.Currency, map[string]string{
		"userId": sub.UserID.String(),
		"planId": sub.PlanID.String(),
	})
	if err != nil {
		s.log.Error("failed to create order", sl.UserID(sub.UserID), sl.SubscriptionID(sub.ID), sl.Err(err))
		sub.Status = models.StatusFailed
		sub.FailureReason = "order creation failed: " + apperr.Message(err)
		sub.UpdatedAt = s.now()
		if uerr := s.repo.UpdateSubscription(ctx, sub); uerr != nil {
			s.log.Error("failed to mark subscription failed", sl.SubscriptionID(sub.ID), sl.Err(uerr))
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	sub.RazorpayOrderID = order.OrderID
	s.log.Info("checkout created", sl.UserID(sub.UserID), sl.SubscriptionID(sub.ID), "order_id", order.OrderID)
	return &models.Checkout{Subscription: sub, Order: order}, nil
}

// ensureNoActive возвращает Conflict, если у пользователя есть действующая подписка.
// Подписка, истёкшая лениво, фиксируется как EXPIRED, чтобы не мешать уникальному индексу.
func (s *Service) ensureNoActive(ctx context.Context, userID uuid.UUID, now time.Time) error {
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

func (s *Service) activePlan(ctx context.Context, planID uuid.UUID) (*models.Plan, error) {
	plan, err := s.repo.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	if !plan.IsActive {
		return nil, apperr.NotFound("plan not found or inactive")
	}
	return plan, nil
}

// publish отправляет событие. Ошибки доставки не влияют на результат операции.
func (s *Service) publish(ctx context.Context, eventType string, sub *models.Subscription) {
	event := models.LifecycleEvent{
		Type:           eventType,
		SubscriptionID: sub.ID,
		UserID:         sub.UserID,
		PlanType:       sub.PlanType,
		Amount:         sub.Amount,
		Currency:       sub.Currency,
		EndDate:        sub.EndDate,
		OccurredAt:     s.now(),
	}
	if user, err := s.repo.GetUser(ctx, sub.UserID); err == nil {
		event.Email = user.Email
		event.Name = user.Name
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.log.Warn("failed to publish event", "type", eventType, sl.SubscriptionID(sub.ID), sl.Err(err))
	}
}
