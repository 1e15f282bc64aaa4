// Package subscribe оформляет подписку на план и возвращает заказ для оплаты.
package subscribe

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
	Subscribe(ctx context.Context, userID, planID uuid.UUID, cycle models.BillingCycle, durationMonths int) (*models.Checkout, error)
}

// Request тело запроса, целиком необязательное.
// Без billingCycle подписка ежемесячная, без durationMonths срок равен интервалу оплаты.
type Request struct {
	BillingCycle   string `json:"billingCycle" validate:"omitempty,oneof=MONTHLY YEARLY"`
	DurationMonths int    `json:"durationMonths" validate:"omitempty,oneof=1 3 6 12"`
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
// @Summary Оформить подписку
// @Tags subscriptions
// @Accept json
// @Produce json
// @Param planId path string true "ID плана"
// @Param request body Request false "интервал и срок"
// @Success 201 {object} response.Response
// @Failure 400 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Failure 409 {object} response.ErrorResponse
// @Security BearerAuth
// @Router /subscriptions/{planId}/subscribe [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscribe.ServeHTTP"

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

	cycle := models.BillingCycle(req.BillingCycle)
	if cycle == "" {
		cycle = models.CycleMonthly
		if req.DurationMonths == 12 {
			cycle = models.CycleYearly
		}
	}

	log = log.With(sl.UserID(actor.UserID))
	checkout, err := h.service.Subscribe(r.Context(), actor.UserID, planID, cycle, req.DurationMonths)
	if err != nil {
		response.WriteError(w, r, log, err)
		return
	}

	log.Info("checkout started", sl.SubscriptionID(checkout.Subscription.ID))
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, response.OK(checkout))
}
