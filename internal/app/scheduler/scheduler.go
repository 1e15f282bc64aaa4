// Package scheduler запускает фоновую проверку подписок: перевод истёкших в EXPIRED
// и напоминания об окончании срока.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/habitup-billing/internal/cache"
	"github.com/magabrotheeeer/habitup-billing/internal/config"
	"github.com/magabrotheeeer/habitup-billing/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/habitup-billing/internal/lib/sl"
	"github.com/magabrotheeeer/habitup-billing/internal/services/sweeper"
	"github.com/magabrotheeeer/habitup-billing/internal/storage/repository"
)

// App представляет приложение планировщика.
type App struct {
	sweeper  *sweeper.Service
	interval time.Duration
	db       *repository.Storage
	cache    *cache.Cache
	conn     *amqp.Connection
	ch       *amqp.Channel
	logger   *slog.Logger
}

// waitForDB ждёт, пока API применит миграции.
func waitForDB(ctx context.Context, db *repository.Storage) error {
	for range 10 {
		if err := repository.CheckDatabaseReady(ctx, db); err == nil {
			return nil
		}
		time.Sleep(3 * time.Second)
	}
	return fmt.Errorf("database not ready after retries")
}

// New создает новый экземпляр приложения планировщика.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect storage: %w", err)
	}
	app := &App{db: db, logger: logger, interval: cfg.Sweeper.Interval}

	if err := waitForDB(ctx, db); err != nil {
		app.close()
		return nil, err
	}

	app.cache, err = cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		app.close()
		return nil, fmt.Errorf("cache not initialized: %w", err)
	}

	var events sweeper.Publisher = rabbitmq.NopPublisher{}
	if cfg.RabbitMQ.URL != "" {
		app.conn, err = rabbitmq.Connect(cfg.RabbitMQ.URL, cfg.RabbitMQ.MaxRetries, cfg.RabbitMQ.RetryDelay)
		if err != nil {
			app.close()
			return nil, fmt.Errorf("failed to connect RabbitMQ: %w", err)
		}
		app.ch, err = rabbitmq.SetupChannel(app.conn, rabbitmq.GetNotificationQueues())
		if err != nil {
			app.close()
			return nil, fmt.Errorf("failed to setup RabbitMQ channel: %w", err)
		}
		events = rabbitmq.NewPublisher(app.ch)
	} else {
		logger.Warn("rabbitmq url is empty, expiry notifications are disabled")
	}

	app.sweeper = sweeper.New(db, events, app.cache, cfg.Sweeper.ReminderWindow, logger)
	return app, nil
}

// Run запускает планировщик и блокируется до отмены ctx.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("sweeper started", slog.Duration("interval", a.interval))
	a.sweeper.Run(ctx, a.interval)

	a.logger.Info("shutting down scheduler service")
	a.close()
	return nil
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
