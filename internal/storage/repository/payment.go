package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/magabrotheeeer/habitup-billing/internal/lib/apperr"
	"github.com/magabrotheeeer/habitup-billing/internal/models"
)

const paymentColumns = `id, user_id, subscription_id, amount, currency, status, type,
	gateway_payment_id, gateway_order_id, gateway_refund_id, failure_reason, created_at`

// CreatePayment добавляет запись в журнал платежей.
// Повтор по паре (gateway_payment_id, type) возвращает ошибку конфликта.
func (s *Storage) CreatePayment(ctx context.Context, payment *models.Payment) error {
	const op = "storage.CreatePayment"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}

	query := `INSERT INTO payments (` + paymentColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := s.conn(ctx).ExecContext(ctx, query,
		payment.ID, payment.UserID, payment.SubscriptionID, payment.Amount, payment.Currency,
		string(payment.Status), string(payment.Type), payment.GatewayPaymentID, payment.GatewayOrderID,
		payment.GatewayRefundID, payment.FailureReason, payment.CreatedAt)
	if err != nil {
		return fmt.Errorf("%s: %w", op, mapError(err))
	}
	return nil
}

// GetPaymentByGatewayID ищет запись журнала по ID платежа провайдера и виду операции.
func (s *Storage) GetPaymentByGatewayID(ctx context.Context, gatewayPaymentID string, paymentType models.PaymentType) (*models.Payment, error) {
	const op = "storage.GetPaymentByGatewayID"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	query := `SELECT ` + paymentColumns + ` FROM payments WHERE gateway_payment_id = $1 AND type = $2`
	var p models.Payment
	err := s.conn(ctx).QueryRowContext(ctx, query, gatewayPaymentID, string(paymentType)).Scan(
		&p.ID, &p.UserID, &p.SubscriptionID, &p.Amount, &p.Currency, &p.Status, &p.Type,
		&p.GatewayPaymentID, &p.GatewayOrderID, &p.GatewayRefundID, &p.FailureReason, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, apperr.NotFound("payment not found"))
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &p, nil
}
