// Package renew продлевает последнюю подписку пользователя новым заказом.
package renew

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/magabrotheeeer/habitup-billing/internal/http/middlewarectx"
	"github.com/magabrotheeeer/habitup-billing/internal/http/response"
	"github.com/magabrotheeeer/habitup-billing/internal/lib/sl"
	"github.com/magabrotheeeer/habitup-billing/internal/models"
)

type Service interface {
	Renew(ctx context.Context, userID uuid.UUID) (*models.Checkout, error)
}

type Handler struct {
	log     *slog.Logger
	service Service
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// ServeHTTP godoc
// @Summary Продлить подписку
// @Tags subscriptions
// @Produce json
// @Success 201 {object} response.Response
// @Failure 404 {object} response.ErrorResponse
// @Failure 409 {object} response.ErrorResponse
// @Security BearerAuth
// @Router /subscriptions/renew [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.renew.ServeHTTP"

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

	log = log.With(sl.UserID(actor.UserID))
	checkout, err := h.service.Renew(r.Context(), actor.UserID)
	if err != nil {
		response.WriteError(w, r, log, err)
		return
	}

	log.Info("renewal checkout started", sl.SubscriptionID(checkout.Subscription.ID))
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, response.OK(checkout))
}
