// Package payment связывает подписки с платёжным провайдером:
// создаёт заказы и возвраты, обрабатывает уведомления о платежах.
package payment

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
	"github.com/magabrotheeeer/habitup-billing/internal/paymentprovider"
)

var hundred = decimal.NewFromInt(100)

// Gateway платёжный провайдер.
type Gateway interface {
	KeyID() string
	CreateOrder(ctx context.Context, req paymentprovider.OrderRequest) (*paymentprovider.Order, error)
	CreateRefund(ctx context.Context, paymentID string, amount int64) (*paymentprovider.Refund, error)
	VerifyWebhookSignature(body []byte, signature string) bool
}

type Repository interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
	LockUser(ctx context.Context, userID uuid.UUID) error

	GetPlan(ctx context.Context, id uuid.UUID) (*models.Plan, error)
	GetSubscription(ctx context.Context, id uuid.UUID) (*models.Subscription, error)
	GetSubscriptionByOrderID(ctx context.Context, orderID string) (*models.Subscription, error)
	GetActiveSubscription(ctx context.Context, userID uuid.UUID) (*models.Subscription, error)
	UpdateSubscription(ctx context.Context, sub *models.Subscription) error
	SetOrderID(ctx context.Context, id uuid.UUID, orderID string, now time.Time) error

	CreatePayment(ctx context.Context, payment *models.Payment) error
	GetPaymentByGatewayID(ctx context.Context, gatewayPaymentID string, paymentType models.PaymentType) (*models.Payment, error)

	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	SetUserSubscriptionStatus(ctx context.Context, userID uuid.UUID, status models.SubscriptionStatus) error
}

// Guard кратковременная блокировка по ключу, отсекает параллельные повторы уведомлений.
type Guard interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

type Publisher interface {
	Publish(ctx context.Context, event models.LifecycleEvent) error
}

type Service struct {
	repo     Repository
	gateway  Gateway
	guard    Guard
	guardTTL time.Duration
	events   Publisher
	log      *slog.Logger
	now      func() time.Time
}

func New(repo Repository, gateway Gateway, guard Guard, guardTTL time.Duration, events Publisher, log *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		gateway:  gateway,
		guard:    guard,
		guardTTL: guardTTL,
		events:   events,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateOrder создаёт заказ у провайдера и привязывает его к подписке.
// Сумма передаётся провайдеру в пайсах.
func (s *Service) CreateOrder(ctx context.Context, subscriptionID uuid.UUID, amount decimal.Decimal, currency string, notes map[string]string) (*models.Order, error) {
	const op = "services.payment.CreateOrder"

	paise := toPaise(amount)
	if paise <= 0 {
		return nil, fmt.Errorf("%s: %w", op, apperr.Validation("order amount must be positive"))
	}

	order, err := s.gateway.CreateOrder(ctx, paymentprovider.OrderRequest{
		Amount:   paise,
		Currency: currency,
		Receipt:  "sub_" + subscriptionID.String(),
		Notes:    notes,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, apperr.Gateway(err))
	}
	if err := s.repo.SetOrderID(ctx, subscriptionID, order.ID, s.now()); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("order created", sl.SubscriptionID(subscriptionID), "order_id", order.ID, "amount", paise)
	return &models.Order{
		OrderID:  order.ID,
		Amount:   amount,
		Currency: currency,
		KeyID:    s.gateway.KeyID(),
	}, nil
}

// Refund возвращает amount по платежу paymentID и отдаёт идентификатор возврата.
func (s *Service) Refund(ctx context.Context, subscriptionID uuid.UUID, paymentID string, amount decimal.Decimal) (string, error) {
	const op = "services.payment.Refund"

	paise := toPaise(amount)
	if paise <= 0 {
		return "", fmt.Errorf("%s: %w", op, apperr.Validation("refund amount must be positive"))
	}
	refund, err := s.gateway.CreateRefund(ctx, paymentID, paise)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, apperr.Gateway(err))
	}

	s.log.Info("refund created", sl.SubscriptionID(subscriptionID), "payment_id", paymentID, "refund_id", refund.ID)
	return refund.ID, nil
}

func toPaise(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

func fromPaise(paise int64) decimal.Decimal {
	return decimal.NewFromInt(paise).Div(hundred)
}

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
