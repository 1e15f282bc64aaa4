// Package analytics отдаёт агрегированные показатели подписок за период.
package analytics

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/habitup-billing/internal/http/response"
	"github.com/magabrotheeeer/habitup-billing/internal/lib/apperr"
	"github.com/magabrotheeeer/habitup-billing/internal/models"
	"github.com/magabrotheeeer/habitup-billing/internal/services/reporting"
)

type Service interface {
	Analytics(ctx context.Context, periodDays int) (*models.Analytics, error)
}

type Handler struct {
	log     *slog.Logger
	service Service
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// ServeHTTP godoc
// @Summary Аналитика подписок
// @Tags admin
// @Produce json
// @Param period query int false "длина окна в днях, по умолчанию 30"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.ErrorResponse
// @Security BearerAuth
// @Router /subscriptions/analytics [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.analytics.ServeHTTP"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	period, err := parsePeriod(r)
	if err != nil {
		response.WriteError(w, r, log, err)
		return
	}

	result, err := h.service.Analytics(r.Context(), period)
	if err != nil {
		response.WriteError(w, r, log, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, response.OK(result))
}

func parsePeriod(r *http.Request) (int, error) {
	q := r.URL.Query()
	for key := range q {
		if key != "period" {
			return 0, apperr.Validation("unknown query parameter %q", key)
		}
	}
	raw := q.Get("period")
	if raw == "" {
		return reporting.DefaultPeriodDays, nil
	}
	period, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.Validation("period must be an integer")
	}
	return period, nil
}
