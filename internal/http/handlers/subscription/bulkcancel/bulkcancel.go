// Package bulkcancel отменяет набор подписок одним запросом.
package bulkcancel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"
	"github.com/google/uuid"

	"github.com/magabrotheeeer/habitup-billing/internal/http/response"
	"github.com/magabrotheeeer/habitup-billing/internal/lib/sl"
)

type Service interface {
	BulkCancel(ctx context.Context, ids []uuid.UUID, reason string) (int, error)
}

type Request struct {
	SubscriptionIDs []string `json:"subscriptionIds" validate:"required,min=1,max=100,dive,uuid"`
	Reason          string   `json:"reason" validate:"max=500"`
}

// Result число подписок, фактически переведённых в CANCELLED.
type Result struct {
	Affected int `json:"affected"`
}

type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Массовая отмена подписок
// @Tags admin
// @Accept json
// @Produce json
// @Param request body Request true "ID подписок и причина"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.ErrorResponse
// @Security BearerAuth
// @Router /subscriptions/bulk-cancel [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.bulkcancel.ServeHTTP"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req Request
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		log.Info("failed to decode request body", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("failed to decode request"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.ValidationError(verrs))
			return
		}
		response.WriteError(w, r, log, err)
		return
	}

	ids := make([]uuid.UUID, 0, len(req.SubscriptionIDs))
	for _, raw := range req.SubscriptionIDs {
		ids = append(ids, uuid.MustParse(raw))
	}

	n, err := h.service.BulkCancel(r.Context(), ids, strings.TrimSpace(req.Reason))
	if err != nil {
		response.WriteError(w, r, log, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, response.Response{
		Success: true,
		Message: fmt.Sprintf("%d subscriptions cancelled", n),
		Data:    Result{Affected: n},
	})
}
