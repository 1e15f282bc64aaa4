// Package jwt выпускает и проверяет JWT токены пользователей HabitUP.
//
// Токены выдаёт сервис идентификации, биллинг только проверяет подпись общим секретом.
// GenerateToken нужен для тестов и локального запуска.
package jwt

import (
	"time"

	"github.com/google/uuid"
)

// Maker описывает интерфейс для генерации и парсинга JWT токенов.
type Maker interface {
	GenerateToken(user Identity) (string, error)
	ParseToken(tokenStr string) (*CustomClaims, error)
}

// Identity данные пользователя, которые кладутся в токен.
type Identity struct {
	UserID uuid.UUID
	Role   string
	Email  string
	Name   string
}

// MakerImpl реализует Maker с использованием секретного ключа
// и времени жизни токена (TTL).
type MakerImpl struct {
	secretKey string
	tokenTTL  time.Duration
}

// NewJWTMaker создаёт новый экземпляр MakerImpl на основе секретного ключа и TTL.
func NewJWTMaker(secretKey string, ttl time.Duration) *MakerImpl {
	return &MakerImpl{
		secretKey: secretKey,
		tokenTTL:  ttl,
	}
}
