package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SubscriptionStatus состояние подписки.
type SubscriptionStatus string

const (
	StatusPending   SubscriptionStatus = "PENDING"
	StatusActive    SubscriptionStatus = "ACTIVE"
	StatusCancelled SubscriptionStatus = "CANCELLED"
	StatusExpired   SubscriptionStatus = "EXPIRED"
	StatusFailed    SubscriptionStatus = "FAILED"
)

// Valid сообщает, известен ли статус.
func (s SubscriptionStatus) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusCancelled, StatusExpired, StatusFailed:
		return true
	}
	return false
}

// CancelledBy инициатор отмены.
type CancelledBy string

const (
	CancelledByUser  CancelledBy = "USER"
	CancelledByAdmin CancelledBy = "ADMIN"
)

// Subscription запись о подписке пользователя.
// Amount и PlanType фиксируются при оформлении и не меняются при правке плана.
type Subscription struct {
	ID                  uuid.UUID          `json:"id"`
	UserID              uuid.UUID          `json:"userId"`
	PlanID              uuid.UUID          `json:"planId"`
	PlanType            string             `json:"planType"`
	BillingCycle        BillingCycle       `json:"billingCycle"`
	DurationMonths      int                `json:"durationMonths"`
	Status              SubscriptionStatus `json:"status"`
	Amount              decimal.Decimal    `json:"amount"`
	Currency            string             `json:"currency"`
	StartDate           time.Time          `json:"startDate"`
	EndDate             time.Time          `json:"endDate"`
	RazorpayOrderID     string             `json:"razorpayOrderId,omitempty"`
	RazorpayPaymentID   string             `json:"razorpayPaymentId,omitempty"`
	LastPaymentDate     *time.Time         `json:"lastPaymentDate,omitempty"`
	CancelledAt         *time.Time         `json:"cancelledAt,omitempty"`
	CancellationReason  string             `json:"cancellationReason,omitempty"`
	CancelledBy         CancelledBy        `json:"cancelledBy,omitempty"`
	RefundAmount        decimal.Decimal    `json:"refundAmount"`
	FailureReason       string             `json:"failureReason,omitempty"`
	PendingPlanID       *uuid.UUID         `json:"pendingPlanId,omitempty"`
	PendingBillingCycle BillingCycle       `json:"pendingBillingCycle,omitempty"`
	CreatedAt           time.Time          `json:"createdAt"`
	UpdatedAt           time.Time          `json:"updatedAt"`
}

// EffectiveStatus возвращает статус с учётом ленивого истечения:
// ACTIVE с прошедшей датой окончания считается EXPIRED.
func (s *Subscription) EffectiveStatus(now time.Time) SubscriptionStatus {
	if s.Status == StatusActive && s.EndDate.Before(now) {
		return StatusExpired
	}
	return s.Status
}

// SubscriptionRow подписка вместе с данными плана и пользователя для выдачи в списках.
type SubscriptionRow struct {
	Subscription
	PlanName  string `json:"planName"`
	UserName  string `json:"userName"`
	UserEmail string `json:"userEmail"`
}

// Order параметры заказа, которые клиент передаёт в checkout провайдера.
type Order struct {
	OrderID  string          `json:"orderId"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	KeyID    string          `json:"keyId"`
}

// Checkout результат оформления или продления подписки.
type Checkout struct {
	Subscription *Subscription `json:"subscription"`
	Order        *Order        `json:"order"`
}

// ChangeType направление смены плана.
type ChangeType string

const (
	ChangeUpgrade   ChangeType = "UPGRADE"
	ChangeDowngrade ChangeType = "DOWNGRADE"
)

// PlanChange результат смены плана.
type PlanChange struct {
	Type           ChangeType      `json:"type"`
	ProratedAmount decimal.Decimal `json:"proratedAmount"`
	Subscription   *Subscription   `json:"subscription"`
	Order          *Order          `json:"order,omitempty"`
}

// Cancellation результат отмены подписки.
type Cancellation struct {
	Subscription *Subscription   `json:"subscription"`
	RefundAmount decimal.Decimal `json:"refundAmount"`
	RefundID     string          `json:"refundId,omitempty"`
}
