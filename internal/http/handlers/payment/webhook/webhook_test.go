package webhook

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/habitup-billing/internal/lib/apperr"
	"github.com/magabrotheeeer/habitup-billing/internal/models"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) HandleWebhook(ctx context.Context, body []byte, signature string) (models.WebhookOutcome, error) {
	args := m.Called(ctx, body, signature)
	return args.Get(0).(models.WebhookOutcome), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func TestWebhookHandler(t *testing.T) {
	payload := `{"status":"captured","id":"pay_1","order_id":"order_1","amount":26700}`

	tests := []struct {
		name           string
		body           string
		signature      string
		setupMock      func(*MockService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name:      "activated",
			body:      payload,
			signature: "sig",
			setupMock: func(m *MockService) {
				m.On("HandleWebhook", mock.Anything, []byte(payload), "sig").Return(models.WebhookActivated, nil).Once()
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `{"success":true,"message":"webhook activated"}`,
		},
		{
			name:      "duplicate delivery",
			body:      payload,
			signature: "sig",
			setupMock: func(m *MockService) {
				m.On("HandleWebhook", mock.Anything, []byte(payload), "sig").Return(models.WebhookDuplicate, nil).Once()
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `webhook duplicate`,
		},
		{
			name:      "bad signature",
			body:      payload,
			signature: "forged",
			setupMock: func(m *MockService) {
				m.On("HandleWebhook", mock.Anything, []byte(payload), "forged").
					Return(models.WebhookOutcome(""), fmt.Errorf("op: %w", apperr.Unauthorized("invalid webhook signature"))).Once()
			},
			expectedStatus: http.StatusUnauthorized,
			expectedBody:   `invalid webhook signature`,
		},
		{
			name:      "storage failure asks for redelivery",
			body:      payload,
			signature: "sig",
			setupMock: func(m *MockService) {
				m.On("HandleWebhook", mock.Anything, []byte(payload), "sig").
					Return(models.WebhookOutcome(""), errors.New("connection refused")).Once()
			},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `internal server error`,
		},
		{
			name:           "body too large",
			body:           strings.Repeat("x", maxBodyBytes+1),
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `failed to read request body`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockService)
			tt.setupMock(svc)

			req := httptest.NewRequest(http.MethodPost, "/subscriptions/webhook", strings.NewReader(tt.body))
			if tt.signature != "" {
				req.Header.Set(SignatureHeader, tt.signature)
			}
			rr := httptest.NewRecorder()

			New(newNoopLogger(), svc).ServeHTTP(rr, req)

			assert.Equal(t, tt.expectedStatus, rr.Code)
			assert.Contains(t, rr.Body.String(), tt.expectedBody)
			svc.AssertExpectations(t)
		})
	}
}
