package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentStatus итог платёжной операции.
type PaymentStatus string

const (
	PaymentSuccess  PaymentStatus = "SUCCESS"
	PaymentFailed   PaymentStatus = "FAILED"
	PaymentRefunded PaymentStatus = "REFUNDED"
)

// PaymentType вид движения денег.
type PaymentType string

const (
	PaymentCharge PaymentType = "CHARGE"
	PaymentRefund PaymentType = "REFUND"
)

// Payment запись журнала платежей. Записи только добавляются.
type Payment struct {
	ID               uuid.UUID       `json:"id"`
	UserID           uuid.UUID       `json:"userId"`
	SubscriptionID   uuid.UUID       `json:"subscriptionId"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	Status           PaymentStatus   `json:"status"`
	Type             PaymentType     `json:"type"`
	GatewayPaymentID string          `json:"gatewayPaymentId"`
	GatewayOrderID   string          `json:"gatewayOrderId,omitempty"`
	GatewayRefundID  string          `json:"gatewayRefundId,omitempty"`
	FailureReason    string          `json:"failureReason,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
}

// WebhookPayload данные уведомления провайдера о платеже.
type WebhookPayload struct {
	Status           string `json:"status"`
	ID               string `json:"id"`
	OrderID          string `json:"order_id"`
	Amount           int64  `json:"amount"`
	ErrorDescription string `json:"error_description"`
}

// WebhookOutcome что сделал обработчик уведомления.
type WebhookOutcome string

const (
	WebhookActivated WebhookOutcome = "activated"
	WebhookUpgraded  WebhookOutcome = "upgraded"
	WebhookRecorded  WebhookOutcome = "recorded"
	WebhookFailed    WebhookOutcome = "failed"
	WebhookDuplicate WebhookOutcome = "duplicate"
	WebhookIgnored   WebhookOutcome = "ignored"
)
