package extend

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi"
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

func (m *MockService) Extend(ctx context.Context, id uuid.UUID, days int) (*models.Subscription, error) {
	args := m.Called(ctx, id, days)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func TestExtendHandler(t *testing.T) {
	subID := uuid.New()
	end := time.Date(2025, 4, 5, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name           string
		id             string
		body           string
		setupMock      func(*MockService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name: "success",
			id:   subID.String(),
			body: `{"extensionDays":5,"reason":"support ticket"}`,
			setupMock: func(m *MockService) {
				m.On("Extend", mock.Anything, subID, 5).Return(&models.Subscription{ID: subID, Status: models.StatusActive, EndDate: end}, nil).Once()
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"endDate":"2025-04-05T00:00:00Z"`,
		},
		{
			name:           "zero days",
			id:             subID.String(),
			body:           `{"extensionDays":0}`,
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `field ExtensionDays is a required field`,
		},
		{
			name:           "negative days",
			id:             subID.String(),
			body:           `{"extensionDays":-3}`,
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `field ExtensionDays must be greater than 0`,
		},
		{
			name:           "empty body",
			id:             subID.String(),
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `failed to decode request`,
		},
		{
			name:           "bad id",
			id:             "abc",
			body:           `{"extensionDays":5}`,
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `invalid subscription id`,
		},
		{
			name: "pending subscription",
			id:   subID.String(),
			body: `{"extensionDays":5}`,
			setupMock: func(m *MockService) {
				m.On("Extend", mock.Anything, subID, 5).Return(nil, apperr.Conflict("cannot extend PENDING subscription")).Once()
			},
			expectedStatus: http.StatusConflict,
			expectedBody:   `cannot extend PENDING subscription`,
		},
		{
			name: "missing",
			id:   subID.String(),
			body: `{"extensionDays":5}`,
			setupMock: func(m *MockService) {
				m.On("Extend", mock.Anything, subID, 5).Return(nil, apperr.NotFound("subscription not found")).Once()
			},
			expectedStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockService)
			tt.setupMock(svc)

			req := httptest.NewRequest(http.MethodPut, "/subscriptions/"+tt.id+"/extend", strings.NewReader(tt.body))
			ctx := middlewarectx.WithActor(req.Context(), models.Actor{UserID: uuid.New(), Role: models.RoleAdmin})
			rctx := chi.NewRouteContext()
			rctx.URLParams.Add("id", tt.id)
			req = req.WithContext(context.WithValue(ctx, chi.RouteCtxKey, rctx))
			rr := httptest.NewRecorder()

			New(newNoopLogger(), svc).ServeHTTP(rr, req)

			assert.Equal(t, tt.expectedStatus, rr.Code)
			assert.Contains(t, rr.Body.String(), tt.expectedBody)
			svc.AssertExpectations(t)
		})
	}
}
