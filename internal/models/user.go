package models

import "github.com/google/uuid"

// Роли пользователей, приходящие в JWT.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User проекция пользователя из сервиса идентификации.
// SubscriptionStatus денормализован и обновляется при смене статуса подписки.
type User struct {
	ID                 uuid.UUID `json:"id"`
	Name               string    `json:"name"`
	Email              string    `json:"email"`
	Role               string    `json:"role"`
	SubscriptionStatus string    `json:"subscriptionStatus"`
}

// Actor тот, кто выполняет операцию.
type Actor struct {
	UserID uuid.UUID
	Role   string
}

// IsAdmin сообщает, обладает ли актор правами администратора.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}
