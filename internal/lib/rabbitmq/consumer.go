package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/habitup-billing/internal/lib/sl"
)

const prefetch = 10

// ConsumerMessage читает очередь queueName и обрабатывает сообщения параллельно,
// не более prefetch одновременно. Ошибка обработчика возвращает сообщение в очередь.
func ConsumerMessage(ctx context.Context, ch *amqp.Channel, queueName string, handler func([]byte) error, log *slog.Logger) error {
	const op = "rabbitmq.ConsumerMessage"
	delivery, err := ch.Consume(queueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	go Dispatch(ctx, delivery, handler, log)
	return nil
}

// Dispatch раздаёт доставки обработчику до закрытия канала или отмены ctx.
func Dispatch(ctx context.Context, delivery <-chan amqp.Delivery, handler func([]byte) error, log *slog.Logger) {
	sem := make(chan struct{}, prefetch)
	for {
		select {
		case d, ok := <-delivery:
			if !ok {
				return
			}
			sem <- struct{}{}
			go func(d amqp.Delivery) {
				defer func() { <-sem }()
				handle(d.Acknowledger, d.DeliveryTag, d.Body, handler, log)
			}(d)
		case <-ctx.Done():
			return
		}
	}
}

func handle(ack amqp.Acknowledger, tag uint64, body []byte, handler func([]byte) error, log *slog.Logger) {
	if err := handler(body); err != nil {
		log.Warn("message handling failed, requeue", sl.Err(err))
		if nackErr := ack.Nack(tag, false, true); nackErr != nil {
			log.Error("failed to nack message", sl.Err(nackErr))
		}
		return
	}
	if ackErr := ack.Ack(tag, false); ackErr != nil {
		log.Error("failed to ack message", sl.Err(ackErr))
	}
}
