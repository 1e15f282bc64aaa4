// Package planremove удаляет тарифный план или скрывает его, если на нём есть подписчики.
package planremove

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/magabrotheeeer/habitup-billing/internal/http/response"
	"github.com/magabrotheeeer/habitup-billing/internal/models"
)

type Service interface {
	DeactivateOrDeletePlan(ctx context.Context, id uuid.UUID) (models.PlanRemoval, error)
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
// @Summary Удалить или деактивировать план
// @Tags plans
// @Produce json
// @Param id path string true "ID плана"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse
// @Security BearerAuth
// @Router /subscriptions/plans/{id} [delete]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.planremove.ServeHTTP"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid plan id"))
		return
	}

	result, err := h.service.DeactivateOrDeletePlan(r.Context(), id)
	if err != nil {
		response.WriteError(w, r, log, err)
		return
	}

	log.Info("plan removed", slog.String("plan_id", id.String()), slog.String("result", string(result)))
	render.JSON(w, r, response.Response{
		Success: true,
		Message: "plan " + string(result),
		Data:    map[string]any{"result": result},
	})
}
