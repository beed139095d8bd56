package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"mockupreview/config"
	"mockupreview/internal/api"
	"mockupreview/internal/app"
	"mockupreview/internal/service/review"
	"mockupreview/pkg/logger"
	"mockupreview/pkg/mq"
	"mockupreview/pkg/otel"
	"mockupreview/pkg/outbox"
)

func main() {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := logger.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOtel, err := otel.Init(cfg.Otel, logger)
	if err != nil {
		logger.Fatal("OpenTelemetry initialization failed", zap.Error(err))
	}
	defer shutdownOtel()

	// Init stores
	stores, err := app.OpenStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Store initialization failed", zap.Error(err))
	}
	defer stores.Close()

	// Init MQ Publisher
	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		logger.Fatal("Failed to init MQ publisher", zap.Error(err))
	}
	defer publisher.Close()

	// Init Services
	reviewService := review.NewService(stores.Review, logger)
	replayService := outbox.NewReplayService(stores.Outbox, publisher, logger)

	// Init Outbox Dispatcher
	if cfg.Outbox.Enabled {
		dispatcher := app.NewDispatcher(cfg, stores.Outbox, publisher, logger)
		go dispatcher.Start(ctx)
	}

	checks := append(stores.Readiness(), api.ReadinessCheck{
		Name: "mq",
		Check: func(context.Context) error {
			if !publisher.IsConnected() {
				return errors.New("mq connection closed")
			}
			return nil
		},
	})

	// Router
	router := api.NewRouter(
		api.NewReviewHandler(reviewService, logger),
		api.NewAdminHandler(replayService, logger),
		cfg.JWT.Secret,
		checks,
		logger,
	)
	srv := router.Server(":" + cfg.Server.Port)

	go func() {
		logger.Info("Starting review API", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server start failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down review API")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", zap.Error(err))
	}
}
