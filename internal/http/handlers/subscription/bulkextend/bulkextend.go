// Package bulkextend продлевает набор подписок одним запросом.
package bulkextend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"
	"github.com/google/uuid"

	"github.com/magabrotheeeer/habitup-billing/internal/http/response"
	"github.com/magabrotheeeer/habitup-billing/internal/lib/sl"
)

type Service interface {
	BulkExtend(ctx context.Context, ids []uuid.UUID, days int) (int, error)
}

type Request struct {
	SubscriptionIDs []string `json:"subscriptionIds" validate:"required,min=1,max=100,dive,uuid"`
	ExtensionDays   int      `json:"extensionDays" validate:"required,gt=0,max=3650"`
	Reason          string   `json:"reason" validate:"max=500"`
}

// Result число продлённых подписок.
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
// @Summary Массовое продление подписок
// @Tags admin
// @Accept json
// @Produce json
// @Param request body Request true "ID подписок и число дней"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.ErrorResponse
// @Security BearerAuth
// @Router /subscriptions/bulk-extend [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.bulkextend.ServeHTTP"

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

	n, err := h.service.BulkExtend(r.Context(), ids, req.ExtensionDays)
	if err != nil {
		response.WriteError(w, r, log, err)
		return
	}

	if req.Reason != "" {
		log.Info("bulk extension reason", slog.String("reason", req.Reason), slog.Int("affected", n))
	}
	render.Status(r, http.StatusOK)
	render.JSON(w, r, response.Response{
		Success: true,
		Message: fmt.Sprintf("%d subscriptions extended by %d days", n, req.ExtensionDays),
		Data:    Result{Affected: n},
	})
}
