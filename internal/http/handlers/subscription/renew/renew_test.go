package renew

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/habitup-billing/internal/http/middlewarectx"
	"github.com/magabrotheeeer/habitup-billing/internal/lib/apperr"
	"github.com/magabrotheeeer/habitup-billing/internal/models"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) Renew(ctx context.Context, userID uuid.UUID) (*models.Checkout, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Checkout), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func TestRenewHandler(t *testing.T) {
	userID := uuid.New()

	tests := []struct {
		name           string
		anonymous      bool
		setupMock      func(*MockService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name: "success",
			setupMock: func(m *MockService) {
				m.On("Renew", mock.Anything, userID).Return(&models.Checkout{
					Subscription: &models.Subscription{ID: uuid.New(), UserID: userID, Status: models.StatusPending},
					Order:        &models.Order{OrderID: "order_r"},
				}, nil).Once()
			},
			expectedStatus: http.StatusCreated,
			expectedBody:   `"orderId":"order_r"`,
		},
		{
			name: "nothing to renew",
			setupMock: func(m *MockService) {
				m.On("Renew", mock.Anything, userID).Return(nil, apperr.NotFound("no subscription to renew")).Once()
			},
			expectedStatus: http.StatusNotFound,
		},
		{
			name: "still active",
			setupMock: func(m *MockService) {
				m.On("Renew", mock.Anything, userID).Return(nil, apperr.Conflict("user already has an active subscription")).Once()
			},
			expectedStatus: http.StatusConflict,
		},
		{
			name:           "anonymous",
			anonymous:      true,
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockService)
			tt.setupMock(svc)

			req := httptest.NewRequest(http.MethodPost, "/subscriptions/renew", nil)
			if !tt.anonymous {
				req = req.WithContext(middlewarectx.WithActor(req.Context(), models.Actor{UserID: userID, Role: models.RoleUser}))
			}
			rr := httptest.NewRecorder()

			New(newNoopLogger(), svc).ServeHTTP(rr, req)

			assert.Equal(t, tt.expectedStatus, rr.Code)
			assert.Contains(t, rr.Body.String(), tt.expectedBody)
			svc.AssertExpectations(t)
		})
	}
}
