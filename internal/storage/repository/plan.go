package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/magabrotheeeer/habitup-billing/internal/lib/apperr"
	"github.com/magabrotheeeer/habitup-billing/internal/models"
)

const planColumns = `id, name, price, duration_type, features, is_active, created_at, updated_at`

// CreatePlan сохраняет новый тарифный план.
func (s *Storage) CreatePlan(ctx context.Context, plan *models.Plan) error {
	const op = "storage.CreatePlan"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}

	features, err := json.Marshal(plan.Features)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	query := `INSERT INTO plans (` + planColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err = s.conn(ctx).ExecContext(ctx, query,
		plan.ID, plan.Name, plan.Price, string(plan.DurationType), string(features),
		plan.IsActive, plan.CreatedAt, plan.UpdatedAt)
	if err != nil {
		return fmt.Errorf("%s: %w", op, mapError(err))
	}
	return nil
}

// GetPlan возвращает план по ID.
func (s *Storage) GetPlan(ctx context.Context, id uuid.UUID) (*models.Plan, error) {
	const op = "storage.GetPlan"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	query := `SELECT ` + planColumns + ` FROM plans WHERE id = $1`
	plan, err := scanPlan(s.conn(ctx).QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, apperr.NotFound("plan not found"))
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return plan, nil
}

// UpdatePlan перезаписывает изменяемые поля плана.
func (s *Storage) UpdatePlan(ctx context.Context, plan *models.Plan) error {
	const op = "storage.UpdatePlan"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}

	features, err := json.Marshal(plan.Features)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	query := `UPDATE plans
			  SET name = $2, price = $3, duration_type = $4, features = $5,
			      is_active = $6, updated_at = $7
			  WHERE id = $1`
	res, err := s.conn(ctx).ExecContext(ctx, query,
		plan.ID, plan.Name, plan.Price, string(plan.DurationType), string(features),
		plan.IsActive, plan.UpdatedAt)
	if err != nil {
		return fmt.Errorf("%s: %w", op, mapError(err))
	}
	return expectAffected(res, op, "plan not found")
}

// DeletePlan удаляет план. Если на план ссылаются подписки, возвращает Conflict.
func (s *Storage) DeletePlan(ctx context.Context, id uuid.UUID) error {
	const op = "storage.DeletePlan"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}

	res, err := s.conn(ctx).ExecContext(ctx, `DELETE FROM plans WHERE id = $1`, id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == codeForeignKeyViolation {
			return fmt.Errorf("%s: %w", op, apperr.Conflict("plan is referenced by subscriptions"))
		}
		return fmt.Errorf("%s: %w", op, mapError(err))
	}
	return expectAffected(res, op, "plan not found")
}

// ListPlans возвращает планы, отсортированные по цене.
func (s *Storage) ListPlans(ctx context.Context, includeInactive bool) ([]*models.Plan, error) {
	const op = "storage.ListPlans"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	query := `SELECT ` + planColumns + ` FROM plans
			  WHERE $1 OR is_active
			  ORDER BY price, name`
	rows, err := s.conn(ctx).QueryContext(ctx, query, includeInactive)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	result := make([]*models.Plan, 0)
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, plan)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// CountActiveSubscriptionsByPlan считает подписки в статусе ACTIVE на плане.
func (s *Storage) CountActiveSubscriptionsByPlan(ctx context.Context, planID uuid.UUID) (int, error) {
	const op = "storage.CountActiveSubscriptionsByPlan"
	if err := checkCtx(ctx, op); err != nil {
		return 0, err
	}

	var count int
	query := `SELECT COUNT(*) FROM subscriptions WHERE plan_id = $1 AND status = 'ACTIVE'`
	if err := s.conn(ctx).QueryRowContext(ctx, query, planID).Scan(&count); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return count, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPlan(row scanner) (*models.Plan, error) {
	var (
		plan     models.Plan
		features []byte
	)
	err := row.Scan(&plan.ID, &plan.Name, &plan.Price, &plan.DurationType, &features,
		&plan.IsActive, &plan.CreatedAt, &plan.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err = json.Unmarshal(features, &plan.Features); err != nil {
		return nil, err
	}
	if plan.Features == nil {
		plan.Features = []string{}
	}
	return &plan, nil
}

func expectAffected(res sql.Result, op, notFound string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, apperr.NotFound("%s", notFound))
	}
	return nil
}
