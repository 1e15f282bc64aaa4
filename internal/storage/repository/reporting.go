package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// RevenueBetween сумма успешных списаний за период [from, to).
func (s *Storage) RevenueBetween(ctx context.Context, from, to time.Time) (decimal.Decimal, error) {
	const op = "storage.RevenueBetween"
	return s.sum(ctx, op, `SELECT COALESCE(SUM(amount), 0) FROM payments
		WHERE status = 'SUCCESS' AND type = 'CHARGE' AND created_at >= $1 AND created_at < $2`, from, to)
}

// MonthlyRecurringRevenue сумма месячной стоимости действующих подписок.
func (s *Storage) MonthlyRecurringRevenue(ctx context.Context, now time.Time) (decimal.Decimal, error) {
	const op = "storage.MonthlyRecurringRevenue"
	return s.sum(ctx, op, `SELECT COALESCE(SUM(amount / duration_months), 0) FROM subscriptions
		WHERE status = 'ACTIVE' AND end_date >= $1`, now)
}

// CountActive число действующих подписок на момент now.
func (s *Storage) CountActive(ctx context.Context, now time.Time) (int, error) {
	const op = "storage.CountActive"
	return s.count(ctx, op, `SELECT COUNT(*) FROM subscriptions WHERE status = 'ACTIVE' AND end_date >= $1`, now)
}

// CountStartedBetween число оплаченных подписок, начавшихся в периоде [from, to).
func (s *Storage) CountStartedBetween(ctx context.Context, from, to time.Time) (int, error) {
	const op = "storage.CountStartedBetween"
	return s.count(ctx, op, `SELECT COUNT(*) FROM subscriptions
		WHERE status IN ('ACTIVE', 'EXPIRED', 'CANCELLED') AND start_date >= $1 AND start_date < $2`, from, to)
}

// CountCancelledBetween число отмен в периоде [from, to).
func (s *Storage) CountCancelledBetween(ctx context.Context, from, to time.Time) (int, error) {
	const op = "storage.CountCancelledBetween"
	return s.count(ctx, op, `SELECT COUNT(*) FROM subscriptions
		WHERE cancelled_at >= $1 AND cancelled_at < $2`, from, to)
}

// CountActiveAt число подписок, действовавших в момент at.
func (s *Storage) CountActiveAt(ctx context.Context, at time.Time) (int, error) {
	const op = "storage.CountActiveAt"
	return s.count(ctx, op, `SELECT COUNT(*) FROM subscriptions
		WHERE status IN ('ACTIVE', 'EXPIRED', 'CANCELLED')
		  AND start_date <= $1 AND end_date > $1
		  AND (cancelled_at IS NULL OR cancelled_at > $1)`, at)
}

func (s *Storage) count(ctx context.Context, op, query string, args ...any) (int, error) {
	if err := checkCtx(ctx, op); err != nil {
		return 0, err
	}
	var n int
	if err := s.conn(ctx).QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

func (s *Storage) sum(ctx context.Context, op, query string, args ...any) (decimal.Decimal, error) {
	if err := checkCtx(ctx, op); err != nil {
		return decimal.Zero, err
	}
	var total decimal.Decimal
	if err := s.conn(ctx).QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", op, err)
	}
	return total, nil
}
