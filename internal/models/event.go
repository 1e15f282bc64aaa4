package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Типы событий жизненного цикла подписки.
const (
	EventActivated = "subscription.activated"
	EventUpgraded  = "subscription.upgraded"
	EventCancelled = "subscription.cancelled"
	EventExtended  = "subscription.extended"
	EventExpired   = "subscription.expired"
	EventExpiring  = "subscription.expiring"
	EventFailed    = "payment.failed"
)

// LifecycleEvent сообщение, которое публикуется в RabbitMQ
// и превращается сервисом рассылки в письмо.
type LifecycleEvent struct {
	Type           string          `json:"type"`
	SubscriptionID uuid.UUID       `json:"subscriptionId"`
	UserID         uuid.UUID       `json:"userId"`
	Email          string          `json:"email"`
	Name           string          `json:"name"`
	PlanType       string          `json:"planType"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	EndDate        time.Time       `json:"endDate"`
	OccurredAt     time.Time       `json:"occurredAt"`
}
