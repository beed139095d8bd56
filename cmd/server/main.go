// server 单进程部署：API 与通知投递在同一进程内完成，不依赖 RabbitMQ 与 Redis
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
	"mockupreview/internal/service/notification"
	"mockupreview/internal/service/review"
	"mockupreview/pkg/logger"
	"mockupreview/pkg/otel"
	"mockupreview/pkg/outbox"
)

func main() {
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

	stores, err := app.OpenStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Store initialization failed", zap.Error(err))
	}
	defer stores.Close()

	// outbox 事件直接在进程内投递
	sender := notification.NewSender(app.NewChannel(cfg, logger), stores.Logs, logger)
	publisher := notification.NewInlinePublisher(sender)

	reviewService := review.NewService(stores.Review, logger)
	replayService := outbox.NewReplayService(stores.Outbox, publisher, logger)

	dispatcher := app.NewDispatcher(cfg, stores.Outbox, publisher, logger)
	go dispatcher.Start(ctx)

	router := api.NewRouter(
		api.NewReviewHandler(reviewService, logger),
		api.NewAdminHandler(replayService, logger),
		cfg.JWT.Secret,
		stores.Readiness(),
		logger,
	)
	srv := router.Server(":" + cfg.Server.Port)

	go func() {
		logger.Info("Starting review server",
			zap.String("port", cfg.Server.Port),
			zap.String("store", cfg.Store.Driver),
			zap.String("channel", cfg.Notification.Channel),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server start failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down review server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", zap.Error(err))
	}
}
