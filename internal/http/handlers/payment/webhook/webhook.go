// Package webhook принимает уведомления Razorpay о платежах.
package webhook

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/habitup-billing/internal/http/response"
	"github.com/magabrotheeeer/habitup-billing/internal/lib/sl"
	"github.com/magabrotheeeer/habitup-billing/internal/models"
)

const (
	// SignatureHeader заголовок с HMAC-подписью тела уведомления.
	SignatureHeader = "X-Razorpay-Signature"

	maxBodyBytes = 1 << 20
)

type Service interface {
	HandleWebhook(ctx context.Context, body []byte, signature string) (models.WebhookOutcome, error)
}

type Handler struct {
	log     *slog.Logger
	service Service
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// ServeHTTP godoc
// @Summary Уведомление платёжного провайдера
// @Description Подпись проверяется по сырому телу запроса. 500 означает, что провайдеру стоит повторить доставку.
// @Tags payments
// @Accept json
// @Produce json
// @Param X-Razorpay-Signature header string true "подпись тела"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.ErrorResponse
// @Failure 401 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /subscriptions/webhook [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.webhook.ServeHTTP"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		log.Info("failed to read webhook body", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("failed to read request body"))
		return
	}

	outcome, err := h.service.HandleWebhook(r.Context(), body, r.Header.Get(SignatureHeader))
	if err != nil {
		response.WriteError(w, r, log, err)
		return
	}

	log.Info("webhook processed", slog.String("outcome", string(outcome)))
	render.Status(r, http.StatusOK)
	render.JSON(w, r, response.Message("webhook "+string(outcome)))
}
