package planremove

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/habitup-billing/internal/lib/apperr"
	"github.com/magabrotheeeer/habitup-billing/internal/models"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) DeactivateOrDeletePlan(ctx context.Context, id uuid.UUID) (models.PlanRemoval, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(models.PlanRemoval), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func TestRemoveHandler(t *testing.T) {
	planID := uuid.New()

	tests := []struct {
		name           string
		id             string
		setupMock      func(*MockService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name: "deleted",
			id:   planID.String(),
			setupMock: func(m *MockService) {
				m.On("DeactivateOrDeletePlan", mock.Anything, planID).Return(models.PlanDeleted, nil).Once()
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `{"success":true,"message":"plan deleted","data":{"result":"deleted"}}`,
		},
		{
			name: "deactivated",
			id:   planID.String(),
			setupMock: func(m *MockService) {
				m.On("DeactivateOrDeletePlan", mock.Anything, planID).Return(models.PlanDeactivated, nil).Once()
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `{"success":true,"message":"plan deactivated","data":{"result":"deactivated"}}`,
		},
		{
			name:           "bad id",
			id:             "nope",
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `{"success":false,"message":"invalid plan id"}`,
		},
		{
			name: "missing",
			id:   planID.String(),
			setupMock: func(m *MockService) {
				m.On("DeactivateOrDeletePlan", mock.Anything, planID).Return(models.PlanRemoval(""), apperr.NotFound("plan not found")).Once()
			},
			expectedStatus: http.StatusNotFound,
			expectedBody:   `{"success":false,"message":"plan not found"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockService)
			tt.setupMock(svc)

			req := httptest.NewRequest(http.MethodDelete, "/subscriptions/plans/"+tt.id, nil)
			rctx := chi.NewRouteContext()
			rctx.URLParams.Add("id", tt.id)
			req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
			rr := httptest.NewRecorder()

			New(newNoopLogger(), svc).ServeHTTP(rr, req)

			assert.Equal(t, tt.expectedStatus, rr.Code)
			assert.JSONEq(t, tt.expectedBody, rr.Body.String())
			svc.AssertExpectations(t)
		})
	}
}
