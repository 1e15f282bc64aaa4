// Package sl содержит вспомогательные атрибуты для логгера slog.
package sl

import (
	"log/slog"

	"github.com/google/uuid"
)

// Err возвращает атрибут с ключом "error" и текстом ошибки.
//
//	log.Error("failed to create order", sl.Err(err))
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}

// UserID атрибут идентификатора пользователя.
func UserID(id uuid.UUID) slog.Attr {
	return slog.String("user_id", id.String())
}

// SubscriptionID атрибут идентификатора подписки.
func SubscriptionID(id uuid.UUID) slog.Attr {
	return slog.String("subscription_id", id.String())
}
