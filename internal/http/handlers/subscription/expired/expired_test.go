package expired

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/habitup-billing/internal/models"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) GetExpired(ctx context.Context, page, limit int) (*models.Page[*models.SubscriptionRow], error) {
	args := m.Called(ctx, page, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Page[*models.SubscriptionRow]), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func TestExpiredHandler(t *testing.T) {
	tests := []struct {
		name           string
		query          string
		setupMock      func(*MockService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name: "defaults",
			setupMock: func(m *MockService) {
				m.On("GetExpired", mock.Anything, 1, 20).Return(&models.Page[*models.SubscriptionRow]{Items: []*models.SubscriptionRow{}, Page: 1, Limit: 20}, nil).Once()
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"data":{"items":[],"total":0,"page":1,"limit":20}`,
		},
		{
			name:  "explicit page",
			query: "?page=3&limit=10",
			setupMock: func(m *MockService) {
				m.On("GetExpired", mock.Anything, 3, 10).Return(&models.Page[*models.SubscriptionRow]{Items: []*models.SubscriptionRow{}, Total: 21, Page: 3, Limit: 10}, nil).Once()
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"total":21`,
		},
		{
			name:           "filters are not supported",
			query:          "?status=ACTIVE",
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `unknown query parameter \"status\"`,
		},
		{
			name:           "page zero",
			query:          "?page=0",
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `page must be a positive integer`,
		},
		{
			name: "storage failure",
			setupMock: func(m *MockService) {
				m.On("GetExpired", mock.Anything, 1, 20).Return(nil, errors.New("timeout")).Once()
			},
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockService)
			tt.setupMock(svc)

			req := httptest.NewRequest(http.MethodGet, "/subscriptions/expired"+tt.query, nil)
			rr := httptest.NewRecorder()

			New(newNoopLogger(), svc).ServeHTTP(rr, req)

			assert.Equal(t, tt.expectedStatus, rr.Code)
			assert.Contains(t, rr.Body.String(), tt.expectedBody)
			svc.AssertExpectations(t)
		})
	}
}
