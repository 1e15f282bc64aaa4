package paymentprovider

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/habitup-billing/internal/config"
)

type MockOrders struct {
	mock.Mock
}

func (m *MockOrders) Create(data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error) {
	args := m.Called(data, extraHeaders)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]interface{}), args.Error(1)
}

type MockPayments struct {
	mock.Mock
}

func (m *MockPayments) Refund(paymentID string, amount int, data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error) {
	args := m.Called(paymentID, amount, data, extraHeaders)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]interface{}), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func testConfig() config.Razorpay {
	return config.Razorpay{
		KeyID:           "rzp_test_key",
		KeySecret:       "secret",
		WebhookSecret:   "whsec",
		Currency:        "INR",
		BreakerFailures: 2,
		BreakerTimeout:  time.Minute,
	}
}

func TestClient_CreateOrder(t *testing.T) {
	tests := []struct {
		name       string
		setupMocks func(*MockOrders)
		want       *Order
		wantErr    string
	}{
		{
			name: "success",
			setupMocks: func(m *MockOrders) {
				m.On("Create", mock.MatchedBy(func(data map[string]interface{}) bool {
					return data["amount"] == int64(26700) && data["receipt"] == "sub_1" && data["currency"] == "INR"
				}), mock.Anything).Return(map[string]interface{}{
					"id": "order_1", "amount": float64(26700), "currency": "INR",
				}, nil).Once()
			},
			want: &Order{ID: "order_1", Amount: 26700, Currency: "INR"},
		},
		{
			name: "provider error",
			setupMocks: func(m *MockOrders) {
				m.On("Create", mock.Anything, mock.Anything).Return(nil, errors.New("bad request")).Once()
			},
			wantErr: "bad request",
		},
		{
			name: "missing id",
			setupMocks: func(m *MockOrders) {
				m.On("Create", mock.Anything, mock.Anything).Return(map[string]interface{}{}, nil).Once()
			},
			wantErr: "without id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orders := &MockOrders{}
			tt.setupMocks(orders)
			c := NewWithAPI(orders, &MockPayments{}, testConfig(), newNoopLogger())

			got, err := c.CreateOrder(context.Background(), OrderRequest{
				Amount:   26700,
				Currency: "INR",
				Receipt:  "sub_1",
				Notes:    map[string]string{"userId": "u1"},
			})
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
			orders.AssertExpectations(t)
		})
	}
}

func TestClient_CreateRefund(t *testing.T) {
	payments := &MockPayments{}
	payments.On("Refund", "pay_1", 22000, mock.Anything, mock.Anything).
		Return(map[string]interface{}{"id": "rfnd_1", "amount": float64(22000)}, nil).Once()
	c := NewWithAPI(&MockOrders{}, payments, testConfig(), newNoopLogger())

	got, err := c.CreateRefund(context.Background(), "pay_1", 22000)
	require.NoError(t, err)
	assert.Equal(t, &Refund{ID: "rfnd_1", Amount: 22000}, got)
	payments.AssertExpectations(t)
}

func TestClient_BreakerOpensAfterFailures(t *testing.T) {
	orders := &MockOrders{}
	orders.On("Create", mock.Anything, mock.Anything).Return(nil, errors.New("timeout")).Times(2)
	c := NewWithAPI(orders, &MockPayments{}, testConfig(), newNoopLogger())

	for range 2 {
		_, err := c.CreateOrder(context.Background(), OrderRequest{Amount: 100, Currency: "INR"})
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrCircuitOpen)
	}

	_, err := c.CreateOrder(context.Background(), OrderRequest{Amount: 100, Currency: "INR"})
	require.ErrorIs(t, err, ErrCircuitOpen)
	orders.AssertNumberOfCalls(t, "Create", 2)
}

func TestClient_CanceledContext(t *testing.T) {
	c := NewWithAPI(&MockOrders{}, &MockPayments{}, testConfig(), newNoopLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.CreateOrder(ctx, OrderRequest{})
	require.ErrorIs(t, err, context.Canceled)
	_, err = c.CreateRefund(ctx, "pay_1", 1)
	require.ErrorIs(t, err, context.Canceled)
}

func TestClient_VerifyWebhookSignature(t *testing.T) {
	c := NewWithAPI(&MockOrders{}, &MockPayments{}, testConfig(), newNoopLogger())
	body := []byte(`{"status":"captured","id":"pay_1","order_id":"order_1"}`)

	mac := hmac.New(sha256.New, []byte("whsec"))
	mac.Write(body)
	valid := hex.EncodeToString(mac.Sum(nil))

	assert.True(t, c.VerifyWebhookSignature(body, valid))
	assert.False(t, c.VerifyWebhookSignature(body, "deadbeef"))
	assert.False(t, c.VerifyWebhookSignature(body, ""))
	assert.False(t, c.VerifyWebhookSignature([]byte(`{"status":"failed"}`), valid))
	assert.Equal(t, "rzp_test_key", c.KeyID())
}
