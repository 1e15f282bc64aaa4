package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/habitup-billing/internal/lib/apperr"
	"github.com/magabrotheeeer/habitup-billing/internal/models"
)

// GetUser возвращает проекцию пользователя по ID.
func (s *Storage) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	const op = "storage.GetUser"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	var u models.User
	query := `SELECT id, name, email, role, subscription_status FROM users WHERE id = $1`
	err := s.conn(ctx).QueryRowContext(ctx, query, id).Scan(&u.ID, &u.Name, &u.Email, &u.Role, &u.SubscriptionStatus)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, apperr.NotFound("user not found"))
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &u, nil
}

// UpsertUser сохраняет проекцию пользователя, пришедшую из сервиса идентификации.
func (s *Storage) UpsertUser(ctx context.Context, user *models.User) error {
	const op = "storage.UpsertUser"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}

	query := `INSERT INTO users (id, name, email, role)
			  VALUES ($1, $2, $3, $4)
			  ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, email = EXCLUDED.email, role = EXCLUDED.role`
	if _, err := s.conn(ctx).ExecContext(ctx, query, user.ID, user.Name, user.Email, user.Role); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// SetUserSubscriptionStatus обновляет денормализованный статус подписки пользователя.
// Отсутствие пользователя в проекции ошибкой не считается.
func (s *Storage) SetUserSubscriptionStatus(ctx context.Context, userID uuid.UUID, status models.SubscriptionStatus) error {
	const op = "storage.SetUserSubscriptionStatus"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}

	_, err := s.conn(ctx).ExecContext(ctx,
		`UPDATE users SET subscription_status = $2 WHERE id = $1`, userID, string(status))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
