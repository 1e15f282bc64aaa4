// Package change переводит активную подписку пользователя на другой план.
package change

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

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
	ChangePlan(ctx context.Context, userID, newPlanID uuid.UUID, newCycle models.BillingCycle) (*models.PlanChange, error)
}

// Request тело запроса. Пустой billingCycle оставляет текущий интервал оплаты.
type Request struct {
	BillingCycle string `json:"billingCycle" validate:"omitempty,oneof=MONTHLY YEARLY"`
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
// @Summary Сменить план
// @Description Апгрейд возвращает заказ на доплату, даунгрейд применяется сразу.
// @Tags subscriptions
// @Accept json
// @Produce json
// @Param planId path string true "ID нового плана"
// @Param request body Request false "новый интервал оплаты"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Security BearerAuth
// @Router /subscriptions/{planId}/change [put]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.change.ServeHTTP"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	actor, ok := middlewarectx.ActorFrom(r.Context())
	if !ok {
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	planID, err := uuid.Parse(chi.URLParam(r, "planId"))
	if err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid plan id"))
		return
	}

	var req Request
	if err := render.DecodeJSON(r.Body, &req); err != nil && !errors.Is(err, io.EOF) {
		log.Info("failed to decode request body", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("failed to decode request"))
		return
	}
	req.BillingCycle = strings.ToUpper(req.BillingCycle)
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

	log = log.With(sl.UserID(actor.UserID))
	result, err := h.service.ChangePlan(r.Context(), actor.UserID, planID, models.BillingCycle(req.BillingCycle))
	if err != nil {
		response.WriteError(w, r, log, err)
		return
	}

	log.Info("plan change processed", slog.String("type", string(result.Type)), slog.String("prorated", result.ProratedAmount.String()))
	render.Status(r, http.StatusOK)
	render.JSON(w, r, response.OK(result))
}
