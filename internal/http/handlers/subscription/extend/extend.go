// Package extend продлевает подписку по решению администратора.
package extend

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"
	"github.com/google/uuid"

	"github.com/magabrotheeeer/habitup-billing/internal/http/middlewarectx"
	"github.com/magabrotheeeer/habitup-billing/internal/http/response"
	"github.com/magabrotheeeer/habitup-billing/internal/lib/sl"
	"github.com/magabrotheeeer/habitup-billing/internal/models"
)

type Service interface {
	Extend(ctx context.Context, id uuid.UUID, days int) (*models.Subscription, error)
}

// Request тело запроса. Reason попадает только в журнал.
type Request struct {
	ExtensionDays int    `json:"extensionDays" validate:"required,gt=0,max=3650"`
	Reason        string `json:"reason" validate:"max=500"`
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
// @Summary Продлить подписку на N дней
// @Tags admin
// @Accept json
// @Produce json
// @Param id path string true "ID подписки"
// @Param request body Request true "число дней и причина"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Failure 409 {object} response.ErrorResponse
// @Security BearerAuth
// @Router /subscriptions/{id}/extend [put]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.extend.ServeHTTP"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid subscription id"))
		return
	}

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

	log = log.With(sl.SubscriptionID(id))
	if actor, ok := middlewarectx.ActorFrom(r.Context()); ok {
		log = log.With(slog.String("admin_id", actor.UserID.String()))
	}

	sub, err := h.service.Extend(r.Context(), id, req.ExtensionDays)
	if err != nil {
		response.WriteError(w, r, log, err)
		return
	}

	log.Info("subscription extended by admin", slog.Int("days", req.ExtensionDays), slog.String("reason", req.Reason))
	render.Status(r, http.StatusOK)
	render.JSON(w, r, response.OK(sub))
}
