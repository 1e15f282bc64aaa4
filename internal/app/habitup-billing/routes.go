// Package habitupbilling собирает HTTP API биллинга: сервисы, middleware и маршруты.
package habitupbilling

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/magabrotheeeer/habitup-billing/internal/http/handlers/payment/webhook"
	"github.com/magabrotheeeer/habitup-billing/internal/http/handlers/plan/plancreate"
	"github.com/magabrotheeeer/habitup-billing/internal/http/handlers/plan/planlist"
	"github.com/magabrotheeeer/habitup-billing/internal/http/handlers/plan/planremove"
	"github.com/magabrotheeeer/habitup-billing/internal/http/handlers/plan/planupdate"
	"github.com/magabrotheeeer/habitup-billing/internal/http/handlers/subscription/analytics"
	"github.com/magabrotheeeer/habitup-billing/internal/http/handlers/subscription/bulkcancel"
	"github.com/magabrotheeeer/habitup-billing/internal/http/handlers/subscription/bulkextend"
	"github.com/magabrotheeeer/habitup-billing/internal/http/handlers/subscription/cancel"
	"github.com/magabrotheeeer/habitup-billing/internal/http/handlers/subscription/change"
	"github.com/magabrotheeeer/habitup-billing/internal/http/handlers/subscription/current"
	"github.com/magabrotheeeer/habitup-billing/internal/http/handlers/subscription/expired"
	"github.com/magabrotheeeer/habitup-billing/internal/http/handlers/subscription/extend"
	"github.com/magabrotheeeer/habitup-billing/internal/http/handlers/subscription/health"
	"github.com/magabrotheeeer/habitup-billing/internal/http/handlers/subscription/list"
	"github.com/magabrotheeeer/habitup-billing/internal/http/handlers/subscription/renew"
	"github.com/magabrotheeeer/habitup-billing/internal/http/handlers/subscription/subscribe"
	"github.com/magabrotheeeer/habitup-billing/internal/http/middlewarectx"
)

// SubscriptionService операции жизненного цикла подписки, доступные через API.
type SubscriptionService interface {
	subscribe.Service
	change.Service
	renew.Service
	current.Service
	cancel.Service
	extend.Service
	bulkcancel.Service
	bulkextend.Service
}

// PlanService каталог планов.
type PlanService interface {
	planlist.Service
	plancreate.Service
	planupdate.Service
	planremove.Service
}

// ReportingService административные отчёты.
type ReportingService interface {
	list.Service
	expired.Service
	analytics.Service
}

// Deps зависимости маршрутов.
type Deps struct {
	Plans         PlanService
	Subscriptions SubscriptionService
	Reporting     ReportingService
	Webhooks      webhook.Service
	Tokens        middlewarectx.TokenParser
	Users         middlewarectx.UserUpserter
	Limiter       *middlewarectx.RateLimiter
	Health        map[string]health.Pinger
}

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, deps Deps) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
		middlewarectx.Metrics,
	)

	r.Route("/api/v1/subscriptions", func(r chi.Router) {
		// Открытые конечные точки
		r.Get("/plans", planlist.New(logger, deps.Plans).ServeHTTP)

		// Уведомления провайдера проверяются по подписи, а не по JWT
		r.Post("/webhook", webhook.New(logger, deps.Webhooks).ServeHTTP)

		// Группа с JWT аутентификацией
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.JWTMiddleware(deps.Tokens, logger))
			r.Use(middlewarectx.SyncUser(deps.Users, logger))
			r.Use(deps.Limiter.Middleware(logger))

			r.Post("/{planId}/subscribe", subscribe.New(logger, deps.Subscriptions).ServeHTTP)
			r.Put("/{planId}/change", change.New(logger, deps.Subscriptions).ServeHTTP)
			r.Post("/renew", renew.New(logger, deps.Subscriptions).ServeHTTP)
			r.Get("/current", current.New(logger, deps.Subscriptions).ServeHTTP)
			r.Put("/{id}/cancel", cancel.New(logger, deps.Subscriptions).ServeHTTP)

			// Администрирование
			r.Group(func(r chi.Router) {
				r.Use(middlewarectx.RequireAdmin(logger))

				r.Post("/plans", plancreate.New(logger, deps.Plans).ServeHTTP)
				r.Put("/plans/{id}", planupdate.New(logger, deps.Plans).ServeHTTP)
				r.Delete("/plans/{id}", planremove.New(logger, deps.Plans).ServeHTTP)

				r.Get("/", list.New(logger, deps.Reporting).ServeHTTP)
				r.Get("/expired", expired.New(logger, deps.Reporting).ServeHTTP)
				r.Get("/analytics", analytics.New(logger, deps.Reporting).ServeHTTP)
				r.Put("/{id}/extend", extend.New(logger, deps.Subscriptions).ServeHTTP)
				r.Post("/bulk-cancel", bulkcancel.New(logger, deps.Subscriptions).ServeHTTP)
				r.Post("/bulk-extend", bulkextend.New(logger, deps.Subscriptions).ServeHTTP)
			})
		})
	})

	r.Get("/health", health.New(logger, deps.Health).ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
