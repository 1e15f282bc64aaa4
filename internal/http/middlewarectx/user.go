package middlewarectx

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/magabrotheeeer/habitup-billing/internal/lib/jwt"
	"github.com/magabrotheeeer/habitup-billing/internal/lib/sl"
	"github.com/magabrotheeeer/habitup-billing/internal/models"
)

// UserUpserter сохраняет проекцию пользователя.
type UserUpserter interface {
	UpsertUser(ctx context.Context, user *models.User) error
}

// SyncUser обновляет локальную проекцию пользователя по данным токена,
// чтобы письма и списки знали имя и email. Ошибка записи не прерывает запрос.
func SyncUser(repo UserUpserter, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := r.Context().Value(ClaimsKey).(*jwt.CustomClaims)
			if ok && claims.Email != "" {
				if userID, err := claims.UserID(); err == nil {
					user := &models.User{ID: userID, Name: claims.Name, Email: claims.Email, Role: claims.Role}
					if err := repo.UpsertUser(r.Context(), user); err != nil {
						log.Warn("failed to sync user projection", sl.UserID(userID), sl.Err(err))
					}
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
