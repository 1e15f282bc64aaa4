package rabbitmq

import "github.com/magabrotheeeer/habitup-billing/internal/models"

// Ключи маршрутизации очередей уведомлений.
const (
	RoutingLifecycle = "lifecycle"
	RoutingUpcoming  = "upcoming"
)

type QueueConfig struct {
	QueueName  string
	RoutingKey string
}

// GetNotificationQueues очереди, которые слушает сервис рассылки.
func GetNotificationQueues() []QueueConfig {
	return []QueueConfig{
		{QueueName: "notification.lifecycle", RoutingKey: RoutingLifecycle},
		{QueueName: "notification.upcoming", RoutingKey: RoutingUpcoming},
	}
}

// RoutingKeyFor выбирает очередь по типу события: напоминания идут отдельно.
func RoutingKeyFor(eventType string) string {
	if eventType == models.EventExpiring {
		return RoutingUpcoming
	}
	return RoutingLifecycle
}
