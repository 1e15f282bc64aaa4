// Package paymentprovider клиент платёжного провайдера Razorpay:
// создание заказов, возвраты и проверка подписи уведомлений.
package paymentprovider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	razorpay "github.com/razorpay/razorpay-go"
	"github.com/razorpay/razorpay-go/utils"
	"github.com/sony/gobreaker/v2"

	"github.com/magabrotheeeer/habitup-billing/internal/config"
)

// ErrCircuitOpen провайдер недоступен, вызовы временно не выполняются.
var ErrCircuitOpen = errors.New("payment provider is temporarily unavailable")

// OrderAPI часть SDK для работы с заказами.
type OrderAPI interface {
	Create(data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

// PaymentAPI часть SDK для работы с платежами.
type PaymentAPI interface {
	Refund(paymentID string, amount int, data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

type Client struct {
	keyID         string
	webhookSecret string
	orders        OrderAPI
	payments      PaymentAPI
	breaker       *gobreaker.CircuitBreaker[any]
	log           *slog.Logger
}

// NewClient создаёт клиент Razorpay по настройкам из конфига.
func NewClient(cfg config.Razorpay, log *slog.Logger) *Client {
	rz := razorpay.NewClient(cfg.KeyID, cfg.KeySecret)
	return NewWithAPI(rz.Order, rz.Payment, cfg, log)
}

// NewWithAPI собирает клиент поверх произвольной реализации SDK.
func NewWithAPI(orders OrderAPI, payments PaymentAPI, cfg config.Razorpay, log *slog.Logger) *Client {
	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	timeout := cfg.BreakerTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	settings := gobreaker.Settings{
		Name:        "razorpay",
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	}
	return &Client{
		keyID:         cfg.KeyID,
		webhookSecret: cfg.WebhookSecret,
		orders:        orders,
		payments:      payments,
		breaker:       gobreaker.NewCircuitBreaker[any](settings),
		log:           log,
	}
}

// KeyID публичный ключ, который отдаётся клиенту вместе с заказом.
func (c *Client) KeyID() string {
	return c.keyID
}

// CreateOrder создаёт заказ на оплату.
func (c *Client) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	const op = "paymentprovider.CreateOrder"
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	notes := make(map[string]interface{}, len(req.Notes))
	for k, v := range req.Notes {
		notes[k] = v
	}
	data := map[string]interface{}{
		"amount":   req.Amount,
		"currency": req.Currency,
		"receipt":  req.Receipt,
		"notes":    notes,
	}

	body, err := c.execute(func() (map[string]interface{}, error) {
		return c.orders.Create(data, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	order := &Order{
		ID:       stringField(body, "id"),
		Amount:   intField(body, "amount"),
		Currency: stringField(body, "currency"),
	}
	if order.ID == "" {
		return nil, fmt.Errorf("%s: provider returned order without id", op)
	}
	if order.Amount == 0 {
		order.Amount = req.Amount
	}
	if order.Currency == "" {
		order.Currency = req.Currency
	}
	return order, nil
}

// CreateRefund возвращает amount пайс по платежу paymentID.
func (c *Client) CreateRefund(ctx context.Context, paymentID string, amount int64) (*Refund, error) {
	const op = "paymentprovider.CreateRefund"
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	body, err := c.execute(func() (map[string]interface{}, error) {
		return c.payments.Refund(paymentID, int(amount), map[string]interface{}{}, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	refund := &Refund{ID: stringField(body, "id"), Amount: intField(body, "amount")}
	if refund.ID == "" {
		return nil, fmt.Errorf("%s: provider returned refund without id", op)
	}
	return refund, nil
}

// VerifyWebhookSignature проверяет HMAC-подпись тела уведомления.
func (c *Client) VerifyWebhookSignature(body []byte, signature string) bool {
	if signature == "" || c.webhookSecret == "" {
		return false
	}
	return utils.VerifyWebhookSignature(string(body), signature, c.webhookSecret)
}

func (c *Client) execute(fn func() (map[string]interface{}, error)) (map[string]interface{}, error) {
	res, err := c.breaker.Execute(func() (any, error) {
		return fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, ErrCircuitOpen
	}
	if err != nil {
		return nil, err
	}
	body, _ := res.(map[string]interface{})
	return body, nil
}

func stringField(body map[string]interface{}, key string) string {
	s, _ := body[key].(string)
	return s
}

// JSON-числа из SDK приходят как float64.
func intField(body map[string]interface{}, key string) int64 {
	switch v := body[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	}
	return 0
}
