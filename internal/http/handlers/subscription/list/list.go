// Package list отдаёт администратору постраничный список подписок с фильтрами.
package list

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/habitup-billing/internal/http/response"
	"github.com/magabrotheeeer/habitup-billing/internal/models"
	"github.com/magabrotheeeer/habitup-billing/internal/services/reporting"
)

type Service interface {
	ListSubscriptions(ctx context.Context, filter models.SubscriptionFilter) (*models.Page[*models.SubscriptionRow], error)
}

type Handler struct {
	log     *slog.Logger
	service Service
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// ServeHTTP godoc
// @Summary Список подписок
// @Tags admin
// @Produce json
// @Param status query string false "PENDING, ACTIVE, CANCELLED, EXPIRED или FAILED"
// @Param planType query string false "название плана"
// @Param billingCycle query string false "MONTHLY или YEARLY"
// @Param search query string false "поиск по имени или email"
// @Param sortBy query string false "createdAt, startDate, endDate или amount"
// @Param order query string false "asc или desc"
// @Param page query int false "номер страницы"
// @Param limit query int false "размер страницы, до 100"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.ErrorResponse
// @Security BearerAuth
// @Router /subscriptions [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.list.ServeHTTP"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	filter, err := reporting.ParseFilter(r.URL.Query())
	if err != nil {
		response.WriteError(w, r, log, err)
		return
	}

	page, err := h.service.ListSubscriptions(r.Context(), filter)
	if err != nil {
		response.WriteError(w, r, log, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, response.OK(page))
}
