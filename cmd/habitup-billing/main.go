// Package main HabitUP Billing API
//
// @title           HabitUP Billing API
// @version         1.0
// @description     Подписки HabitUP: планы, оплата через Razorpay, смена плана с перерасчётом, отмена с возвратом и отчёты.

// @host      localhost:8080
// @BasePath  /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	habitupbilling "github.com/magabrotheeeer/habitup-billing/internal/app/habitup-billing"
	"github.com/magabrotheeeer/habitup-billing/internal/config"
	"github.com/magabrotheeeer/habitup-billing/internal/lib/sl"
)

func main() {
	cfg := config.MustLoad()
	logger := sl.New(cfg.Env, os.Stdout)

	logger.Info("starting habitup-billing", slog.String("env", cfg.Env))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := habitupbilling.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize app", sl.Err(err))
		os.Exit(1)
	}

	if err := app.Run(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("app stopped with error", sl.Err(err))
		os.Exit(1)
	}

	logger.Info("habitup-billing stopped gracefully")
}
