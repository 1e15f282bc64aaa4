package current

import (
	"context"
	"errors"
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

func (m *MockService) GetCurrent(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func TestCurrentHandler(t *testing.T) {
	userID := uuid.New()

	tests := []struct {
		name           string
		setupMock      func(*MockService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name: "found",
			setupMock: func(m *MockService) {
				m.On("GetCurrent", mock.Anything, userID).Return(&models.Subscription{ID: uuid.New(), UserID: userID, PlanType: "Pro", Status: models.StatusActive}, nil).Once()
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"planType":"Pro"`,
		},
		{
			name: "none",
			setupMock: func(m *MockService) {
				m.On("GetCurrent", mock.Anything, userID).Return(nil, apperr.NotFound("no active subscription")).Once()
			},
			expectedStatus: http.StatusNotFound,
			expectedBody:   `{"success":false,"message":"no active subscription"}`,
		},
		{
			name: "storage failure",
			setupMock: func(m *MockService) {
				m.On("GetCurrent", mock.Anything, userID).Return(nil, errors.New("connection reset")).Once()
			},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `internal server error`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockService)
			tt.setupMock(svc)

			req := httptest.NewRequest(http.MethodGet, "/subscriptions/current", nil)
			req = req.WithContext(middlewarectx.WithActor(req.Context(), models.Actor{UserID: userID, Role: models.RoleUser}))
			rr := httptest.NewRecorder()

			New(newNoopLogger(), svc).ServeHTTP(rr, req)

			assert.Equal(t, tt.expectedStatus, rr.Code)
			assert.Contains(t, rr.Body.String(), tt.expectedBody)
			svc.AssertExpectations(t)
		})
	}
}
