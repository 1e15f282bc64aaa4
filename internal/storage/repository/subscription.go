package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/habitup-billing/internal/lib/apperr"
	"github.com/magabrotheeeer/habitup-billing/internal/models"
)

const subscriptionColumns = `id, user_id, plan_id, plan_type, billing_cycle, duration_months, status,
	amount, currency, start_date, end_date, razorpay_order_id, razorpay_payment_id,
	last_payment_date, cancelled_at, cancellation_reason, cancelled_by, refund_amount,
	failure_reason, pending_plan_id, pending_billing_cycle, created_at, updated_at`

const rowSelect = `SELECT s.id, s.user_id, s.plan_id, s.plan_type, s.billing_cycle, s.duration_months, s.status,
	s.amount, s.currency, s.start_date, s.end_date, s.razorpay_order_id, s.razorpay_payment_id,
	s.last_payment_date, s.cancelled_at, s.cancellation_reason, s.cancelled_by, s.refund_amount,
	s.failure_reason, s.pending_plan_id, s.pending_billing_cycle, s.created_at, s.updated_at,
	COALESCE(p.name, ''), COALESCE(u.name, ''), COALESCE(u.email, '')
	FROM subscriptions s
	LEFT JOIN plans p ON p.id = s.plan_id
	LEFT JOIN users u ON u.id = s.user_id`

// Статус с учётом ленивого истечения. В $1 передаётся текущее время.
const effectiveStatus = `CASE WHEN s.status = 'ACTIVE' AND s.end_date < $1 THEN 'EXPIRED' ELSE s.status END`

var sortColumns = map[string]string{
	models.SortCreatedAt: "s.created_at",
	models.SortStartDate: "s.start_date",
	models.SortEndDate:   "s.end_date",
	models.SortAmount:    "s.amount",
}

// CreateSubscription сохраняет новую подписку.
func (s *Storage) CreateSubscription(ctx context.Context, sub *models.Subscription) error {
	const op = "storage.CreateSubscription"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}

	query := `INSERT INTO subscriptions (` + subscriptionColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			          $16, $17, $18, $19, $20, $21, $22, $23)`
	_, err := s.conn(ctx).ExecContext(ctx, query, subscriptionArgs(sub)...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, mapError(err))
	}
	return nil
}

// UpdateSubscription перезаписывает изменяемые поля подписки.
func (s *Storage) UpdateSubscription(ctx context.Context, sub *models.Subscription) error {
	const op = "storage.UpdateSubscription"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}

	query := `UPDATE subscriptions SET
				  plan_id = $3, plan_type = $4, billing_cycle = $5, duration_months = $6, status = $7,
				  amount = $8, currency = $9, start_date = $10, end_date = $11,
				  razorpay_order_id = $12, razorpay_payment_id = $13, last_payment_date = $14,
				  cancelled_at = $15, cancellation_reason = $16, cancelled_by = $17,
				  refund_amount = $18, failure_reason = $19, pending_plan_id = $20,
				  pending_billing_cycle = $21, created_at = $22, updated_at = $23
			  WHERE id = $1 AND user_id = $2`
	res, err := s.conn(ctx).ExecContext(ctx, query, subscriptionArgs(sub)...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, mapError(err))
	}
	return expectAffected(res, op, "subscription not found")
}

// GetSubscription возвращает подписку по ID.
func (s *Storage) GetSubscription(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	const op = "storage.GetSubscription"
	return s.getSubscription(ctx, op, `WHERE id = $1`, id)
}

// GetSubscriptionByOrderID ищет подписку по ID заказа провайдера.
func (s *Storage) GetSubscriptionByOrderID(ctx context.Context, orderID string) (*models.Subscription, error) {
	const op = "storage.GetSubscriptionByOrderID"
	return s.getSubscription(ctx, op, `WHERE razorpay_order_id = $1`, orderID)
}

// GetActiveSubscription возвращает подписку пользователя в статусе ACTIVE.
func (s *Storage) GetActiveSubscription(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	const op = "storage.GetActiveSubscription"
	return s.getSubscription(ctx, op, `WHERE user_id = $1 AND status = 'ACTIVE'`, userID)
}

// GetLatestSubscription возвращает последнюю по времени создания подписку пользователя.
func (s *Storage) GetLatestSubscription(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	const op = "storage.GetLatestSubscription"
	return s.getSubscription(ctx, op, `WHERE user_id = $1 ORDER BY created_at DESC LIMIT 1`, userID)
}

func (s *Storage) getSubscription(ctx context.Context, op, where string, arg any) (*models.Subscription, error) {
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions ` + where
	sub, err := scanSubscription(s.conn(ctx).QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, apperr.NotFound("subscription not found"))
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sub, nil
}

// SetOrderID привязывает заказ провайдера к подписке.
func (s *Storage) SetOrderID(ctx context.Context, id uuid.UUID, orderID string, now time.Time) error {
	const op = "storage.SetOrderID"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}

	res, err := s.conn(ctx).ExecContext(ctx,
		`UPDATE subscriptions SET razorpay_order_id = $2, updated_at = $3 WHERE id = $1`,
		id, orderID, now)
	if err != nil {
		return fmt.Errorf("%s: %w", op, mapError(err))
	}
	return expectAffected(res, op, "subscription not found")
}

// FailPendingSubscriptions переводит все PENDING подписки пользователя в FAILED.
func (s *Storage) FailPendingSubscriptions(ctx context.Context, userID uuid.UUID, reason string, now time.Time) (int, error) {
	const op = "storage.FailPendingSubscriptions"
	if err := checkCtx(ctx, op); err != nil {
		return 0, err
	}

	res, err := s.conn(ctx).ExecContext(ctx,
		`UPDATE subscriptions SET status = 'FAILED', failure_reason = $2, updated_at = $3
		 WHERE user_id = $1 AND status = 'PENDING'`,
		userID, reason, now)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(n), nil
}

// BulkCancel отменяет активные подписки из списка одним запросом.
// Уже отменённые строки не затрагиваются.
func (s *Storage) BulkCancel(ctx context.Context, ids []uuid.UUID, reason string, now time.Time) (int, error) {
	const op = "storage.BulkCancel"
	if err := checkCtx(ctx, op); err != nil {
		return 0, err
	}

	res, err := s.conn(ctx).ExecContext(ctx,
		`UPDATE subscriptions
		 SET status = 'CANCELLED', cancelled_at = $2, cancellation_reason = $3,
		     cancelled_by = 'ADMIN', updated_at = $2
		 WHERE id = ANY($1::uuid[]) AND status = 'ACTIVE'`,
		uuidStrings(ids), now, reason)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(n), nil
}

// BulkExtend продлевает активные и истёкшие подписки из списка на days дней
// от большей из дат окончания и текущего момента, возвращая их в ACTIVE.
func (s *Storage) BulkExtend(ctx context.Context, ids []uuid.UUID, days int, now time.Time) (int, error) {
	const op = "storage.BulkExtend"
	if err := checkCtx(ctx, op); err != nil {
		return 0, err
	}

	res, err := s.conn(ctx).ExecContext(ctx,
		`UPDATE subscriptions
		 SET end_date = GREATEST(end_date, $2) + make_interval(days => $3),
		     status = 'ACTIVE', updated_at = $2
		 WHERE id = ANY($1::uuid[]) AND status IN ('ACTIVE', 'EXPIRED')`,
		uuidStrings(ids), now, days)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, mapError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(n), nil
}

// ListSubscriptions возвращает страницу подписок по фильтру и общее число подходящих записей.
func (s *Storage) ListSubscriptions(ctx context.Context, filter models.SubscriptionFilter, now time.Time) ([]*models.SubscriptionRow, int, error) {
	const op = "storage.ListSubscriptions"
	if err := checkCtx(ctx, op); err != nil {
		return nil, 0, err
	}

	args := []any{now}
	conds := []string{"$1::timestamptz IS NOT NULL"}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("%s = $%d", effectiveStatus, len(args)))
	}
	if filter.PlanType != "" {
		args = append(args, filter.PlanType)
		conds = append(conds, fmt.Sprintf("s.plan_type = $%d", len(args)))
	}
	if filter.BillingCycle != "" {
		args = append(args, string(filter.BillingCycle))
		conds = append(conds, fmt.Sprintf("s.billing_cycle = $%d", len(args)))
	}
	if filter.UserSearch != "" {
		args = append(args, "%"+filter.UserSearch+"%")
		conds = append(conds, fmt.Sprintf("(u.name ILIKE $%d OR u.email ILIKE $%d)", len(args), len(args)))
	}
	where := " WHERE " + strings.Join(conds, " AND ")

	column, ok := sortColumns[filter.SortBy]
	if !ok {
		column = sortColumns[models.SortCreatedAt]
	}
	direction := "ASC"
	if filter.SortDesc {
		direction = "DESC"
	}

	total, err := s.countRows(ctx, where, args)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}

	query := rowSelect + where +
		fmt.Sprintf(" ORDER BY %s %s, s.id LIMIT $%d OFFSET $%d", column, direction, len(args)+1, len(args)+2)
	rows, err := s.queryRows(ctx, query, append(args, filter.Limit, filter.Offset()), now)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}
	return rows, total, nil
}

// ListExpired возвращает ACTIVE подписки с прошедшей датой окончания.
func (s *Storage) ListExpired(ctx context.Context, now time.Time, limit, offset int) ([]*models.SubscriptionRow, int, error) {
	const op = "storage.ListExpired"
	if err := checkCtx(ctx, op); err != nil {
		return nil, 0, err
	}

	where := ` WHERE s.status = 'ACTIVE' AND s.end_date < $1`
	total, err := s.countRows(ctx, where, []any{now})
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}

	query := rowSelect + where + ` ORDER BY s.end_date, s.id LIMIT $2 OFFSET $3`
	rows, err := s.queryRows(ctx, query, []any{now, limit, offset}, now)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}
	return rows, total, nil
}

// ListExpiringBetween возвращает ACTIVE подписки, заканчивающиеся в интервале [from, to).
func (s *Storage) ListExpiringBetween(ctx context.Context, from, to time.Time) ([]*models.SubscriptionRow, error) {
	const op = "storage.ListExpiringBetween"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	query := rowSelect + ` WHERE s.status = 'ACTIVE' AND s.end_date >= $1 AND s.end_date < $2 ORDER BY s.end_date`
	rows, err := s.queryRows(ctx, query, []any{from, to}, from)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return rows, nil
}

// ExpireOverdue переводит просроченные ACTIVE подписки в EXPIRED,
// обновляет статус их владельцев и возвращает изменённые записи.
func (s *Storage) ExpireOverdue(ctx context.Context, now time.Time) ([]*models.Subscription, error) {
	const op = "storage.ExpireOverdue"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	query := `WITH expired AS (
				  UPDATE subscriptions SET status = 'EXPIRED', updated_at = $1
				  WHERE status = 'ACTIVE' AND end_date < $1
				  RETURNING ` + subscriptionColumns + `
			  ), touched AS (
				  UPDATE users SET subscription_status = 'EXPIRED'
				  FROM expired WHERE users.id = expired.user_id
			  )
			  SELECT ` + subscriptionColumns + ` FROM expired`
	rows, err := s.conn(ctx).QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	result := make([]*models.Subscription, 0)
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, sub)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

func (s *Storage) countRows(ctx context.Context, where string, args []any) (int, error) {
	query := `SELECT COUNT(*) FROM subscriptions s LEFT JOIN users u ON u.id = s.user_id` + where
	var total int
	if err := s.conn(ctx).QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Storage) queryRows(ctx context.Context, query string, args []any, now time.Time) ([]*models.SubscriptionRow, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	result := make([]*models.SubscriptionRow, 0)
	for rows.Next() {
		var row models.SubscriptionRow
		sub, err := scanSubscription(rows, &row.PlanName, &row.UserName, &row.UserEmail)
		if err != nil {
			return nil, err
		}
		row.Subscription = *sub
		row.Status = row.EffectiveStatus(now)
		result = append(result, &row)
	}
	return result, rows.Err()
}

func subscriptionArgs(sub *models.Subscription) []any {
	pending := uuid.NullUUID{}
	if sub.PendingPlanID != nil {
		pending = uuid.NullUUID{UUID: *sub.PendingPlanID, Valid: true}
	}
	return []any{
		sub.ID, sub.UserID, sub.PlanID, sub.PlanType, string(sub.BillingCycle), sub.DurationMonths,
		string(sub.Status), sub.Amount, sub.Currency, sub.StartDate, sub.EndDate,
		nullString(sub.RazorpayOrderID), nullString(sub.RazorpayPaymentID), nullTime(sub.LastPaymentDate),
		nullTime(sub.CancelledAt), sub.CancellationReason, string(sub.CancelledBy), sub.RefundAmount,
		sub.FailureReason, pending, string(sub.PendingBillingCycle), sub.CreatedAt, sub.UpdatedAt,
	}
}

func scanSubscription(row scanner, extra ...any) (*models.Subscription, error) {
	var (
		sub                      models.Subscription
		orderID, paymentID       sql.NullString
		lastPayment, cancelledAt sql.NullTime
		pendingPlan              uuid.NullUUID
	)
	dest := []any{
		&sub.ID, &sub.UserID, &sub.PlanID, &sub.PlanType, &sub.BillingCycle, &sub.DurationMonths,
		&sub.Status, &sub.Amount, &sub.Currency, &sub.StartDate, &sub.EndDate,
		&orderID, &paymentID, &lastPayment, &cancelledAt, &sub.CancellationReason,
		&sub.CancelledBy, &sub.RefundAmount, &sub.FailureReason, &pendingPlan,
		&sub.PendingBillingCycle, &sub.CreatedAt, &sub.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	sub.RazorpayOrderID = orderID.String
	sub.RazorpayPaymentID = paymentID.String
	if lastPayment.Valid {
		sub.LastPaymentDate = &lastPayment.Time
	}
	if cancelledAt.Valid {
		sub.CancelledAt = &cancelledAt.Time
	}
	if pendingPlan.Valid {
		sub.PendingPlanID = &pendingPlan.UUID
	}
	return &sub, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}
