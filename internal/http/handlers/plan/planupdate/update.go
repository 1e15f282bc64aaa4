// Package planupdate частично обновляет тарифный план.
package planupdate

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/magabrotheeeer/habitup-billing/internal/http/response"
	"github.com/magabrotheeeer/habitup-billing/internal/lib/sl"
	"github.com/magabrotheeeer/habitup-billing/internal/models"
)

type Service interface {
	UpdatePlan(ctx context.Context, id uuid.UUID, patch models.PlanPatch) (*models.Plan, error)
}

// Request поля, которые не переданы, не меняются.
type Request struct {
	Name         *string          `json:"name" validate:"omitempty,min=1,max=100"`
	Price        *decimal.Decimal `json:"price"`
	DurationType *string          `json:"durationType" validate:"omitempty,oneof=MONTHLY YEARLY"`
	Features     []string         `json:"features"`
	IsActive     *bool            `json:"isActive"`
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
// @Summary Обновить тарифный план
// @Tags plans
// @Accept json
// @Produce json
// @Param id path string true "ID плана"
// @Param request body Request true "изменяемые поля"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse
// @Security BearerAuth
// @Router /subscriptions/plans/{id} [put]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.planupdate.ServeHTTP"

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

	var req Request
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		log.Info("failed to decode request body", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("failed to decode request"))
		return
	}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		req.Name = &name
	}
	if req.DurationType != nil {
		cycle := strings.ToUpper(*req.DurationType)
		req.DurationType = &cycle
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

	patch := models.PlanPatch{
		Name:     req.Name,
		Price:    req.Price,
		Features: req.Features,
		IsActive: req.IsActive,
	}
	if req.DurationType != nil {
		cycle := models.BillingCycle(*req.DurationType)
		patch.DurationType = &cycle
	}

	plan, err := h.service.UpdatePlan(r.Context(), id, patch)
	if err != nil {
		response.WriteError(w, r, log, err)
		return
	}

	log.Info("plan updated", slog.String("plan_id", plan.ID.String()))
	render.JSON(w, r, response.OK(plan))
}
