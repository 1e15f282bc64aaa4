// Package planlist отдаёт публичный каталог активных тарифных планов.
package planlist

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/habitup-billing/internal/http/middlewarectx"
	"github.com/magabrotheeeer/habitup-billing/internal/http/response"
	"github.com/magabrotheeeer/habitup-billing/internal/models"
)

type Service interface {
	ListPlans(ctx context.Context, includeInactive bool) ([]*models.Plan, error)
}

type Handler struct {
	log     *slog.Logger
	service Service
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Список тарифных планов
// @Tags plans
// @Produce json
// @Param includeInactive query bool false "только для администратора"
// @Success 200 {object} response.Response
// @Router /subscriptions/plans [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.planlist.ServeHTTP"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	includeInactive := false
	if r.URL.Query().Get("includeInactive") == "true" {
		actor, ok := middlewarectx.ActorFrom(r.Context())
		includeInactive = ok && actor.IsAdmin()
	}

	plans, err := h.service.ListPlans(r.Context(), includeInactive)
	if err != nil {
		response.WriteError(w, r, log, err)
		return
	}

	render.JSON(w, r, response.OK(plans))
}
