package habitupbilling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/habitup-billing/internal/cache"
	"github.com/magabrotheeeer/habitup-billing/internal/config"
	"github.com/magabrotheeeer/habitup-billing/internal/http/handlers/subscription/health"
	"github.com/magabrotheeeer/habitup-billing/internal/http/middlewarectx"
	"github.com/magabrotheeeer/habitup-billing/internal/lib/jwt"
	"github.com/magabrotheeeer/habitup-billing/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/habitup-billing/internal/lib/sl"
	"github.com/magabrotheeeer/habitup-billing/internal/migrations"
	"github.com/magabrotheeeer/habitup-billing/internal/paymentprovider"
	paymentservice "github.com/magabrotheeeer/habitup-billing/internal/services/payment"
	planservice "github.com/magabrotheeeer/habitup-billing/internal/services/plan"
	"github.com/magabrotheeeer/habitup-billing/internal/services/reporting"
	subservice "github.com/magabrotheeeer/habitup-billing/internal/services/subscription"
	"github.com/magabrotheeeer/habitup-billing/internal/storage/repository"
)

// Publisher публикует события жизненного цикла.
type Publisher interface {
	subservice.Publisher
}

type App struct {
	server *http.Server
	logger *slog.Logger
	db     *repository.Storage
	cache  *cache.Cache
	conn   *amqp.Connection
	ch     *amqp.Channel
}

func waitForDB(ctx context.Context, db *repository.Storage) error {
	for range 10 {
		if err := db.Ping(ctx); err == nil {
			return nil
		}
		time.Sleep(3 * time.Second)
	}
	return fmt.Errorf("database not ready after retries")
}

// New подключает хранилище, кэш и брокер, применяет миграции и собирает роутер.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, err
	}
	app := &App{logger: logger, db: db}

	if err := waitForDB(ctx, db); err != nil {
		app.close()
		return nil, err
	}
	if err := migrations.Run(db.DB, cfg.MigrationsPath); err != nil {
		app.close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	app.cache, err = cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		app.close()
		return nil, fmt.Errorf("cache not initialized: %w", err)
	}

	events, err := app.publisher(cfg.RabbitMQ)
	if err != nil {
		app.close()
		return nil, err
	}

	provider := paymentprovider.NewClient(cfg.Razorpay, logger)
	paymentService := paymentservice.New(db, provider, app.cache, cfg.RedisConnection.WebhookTTL, events, logger)
	subscriptionService := subservice.New(db, paymentService, events, cfg.Razorpay.Currency, logger)
	planService := planservice.New(db, app.cache, cfg.RedisConnection.PlansTTL, logger)
	reportingService := reporting.New(db, logger)

	router := chi.NewRouter()
	RegisterRoutes(router, logger, Deps{
		Plans:         planService,
		Subscriptions: subscriptionService,
		Reporting:     reportingService,
		Webhooks:      paymentService,
		Tokens:        jwt.NewJWTMaker(cfg.JWTSecretKey, cfg.TokenTTL),
		Users:         db,
		Limiter:       middlewarectx.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst),
		Health: map[string]health.Pinger{
			"postgres": db,
			"redis":    app.cache,
		},
	})

	app.server = &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return app, nil
}

// publisher без URL брокера события не публикуются.
func (a *App) publisher(cfg config.RabbitMQ) (Publisher, error) {
	if cfg.URL == "" {
		a.logger.Warn("rabbitmq url is empty, lifecycle events are disabled")
		return rabbitmq.NopPublisher{}, nil
	}
	conn, err := rabbitmq.Connect(cfg.URL, cfg.MaxRetries, cfg.RetryDelay)
	if err != nil {
		return nil, fmt.Errorf("failed to connect RabbitMQ: %w", err)
	}
	a.conn = conn

	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.GetNotificationQueues())
	if err != nil {
		return nil, fmt.Errorf("failed to setup RabbitMQ channel: %w", err)
	}
	a.ch = ch
	return rabbitmq.NewPublisher(ch), nil
}

func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		a.close()
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		a.close()
		return err
	}
}

func (a *App) close() {
	if a.ch != nil {
		if err := a.ch.Close(); err != nil {
			a.logger.Error("failed to close channel", sl.Err(err))
		}
	}
	if a.conn != nil {
		if err := a.conn.Close(); err != nil {
			a.logger.Error("failed to close connection", sl.Err(err))
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Error("failed to close redis", sl.Err(err))
		}
	}
	if err := a.db.Close(); err != nil {
		a.logger.Error("failed to close storage", sl.Err(err))
	}
}
