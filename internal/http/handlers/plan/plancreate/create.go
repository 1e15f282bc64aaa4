// Package plancreate создаёт тарифный план (только администратор).
package plancreate

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"
	"github.com/shopspring/decimal"

	"github.com/magabrotheeeer/habitup-billing/internal/http/response"
	"github.com/magabrotheeeer/habitup-billing/internal/lib/sl"
	"github.com/magabrotheeeer/habitup-billing/internal/models"
	planservice "github.com/magabrotheeeer/habitup-billing/internal/services/plan"
)

type Service interface {
	CreatePlan(ctx context.Context, in planservice.CreateInput) (*models.Plan, error)
}

// Request тело запроса. Цена указывается за месяц.
type Request struct {
	Name         string          `json:"name" validate:"required,max=100"`
	Price        decimal.Decimal `json:"price"`
	DurationType string          `json:"durationType" validate:"omitempty,oneof=MONTHLY YEARLY"`
	Features     []string        `json:"features"`
	IsActive     *bool           `json:"isActive"`
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
// @Summary Создать тарифный план
// @Tags plans
// @Accept json
// @Produce json
// @Param request body Request true "план"
// @Success 201 {object} response.Response
// @Failure 400 {object} response.ErrorResponse
// @Failure 409 {object} response.ErrorResponse
// @Security BearerAuth
// @Router /subscriptions/plans [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.plancreate.ServeHTTP"

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
	req.Name = strings.TrimSpace(req.Name)
	req.DurationType = strings.ToUpper(req.DurationType)

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

	in := planservice.CreateInput{
		Name:         req.Name,
		Price:        req.Price,
		DurationType: models.BillingCycle(req.DurationType),
		Features:     req.Features,
		IsActive:     req.IsActive == nil || *req.IsActive,
	}
	plan, err := h.service.CreatePlan(r.Context(), in)
	if err != nil {
		response.WriteError(w, r, log, err)
		return
	}

	log.Info("plan created", slog.String("plan_id", plan.ID.String()), slog.String("name", plan.Name))
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, response.OK(plan))
}
