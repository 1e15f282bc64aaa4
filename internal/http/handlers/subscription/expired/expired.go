// Package expired отдаёт подписки, срок которых вышел, а статус ещё ACTIVE.
package expired

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
	GetExpired(ctx context.Context, page, limit int) (*models.Page[*models.SubscriptionRow], error)
}

type Handler struct {
	log     *slog.Logger
	service Service
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// ServeHTTP godoc
// @Summary Просроченные подписки
// @Tags admin
// @Produce json
// @Param page query int false "номер страницы"
// @Param limit query int false "размер страницы, до 100"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.ErrorResponse
// @Security BearerAuth
// @Router /subscriptions/expired [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.expired.ServeHTTP"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	page, limit, err := reporting.ParsePage(r.URL.Query())
	if err != nil {
		response.WriteError(w, r, log, err)
		return
	}

	result, err := h.service.GetExpired(r.Context(), page, limit)
	if err != nil {
		response.WriteError(w, r, log, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, response.OK(result))
}
