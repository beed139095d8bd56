package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"

	"mockupreview/config"
	mqcontracts "mockupreview/contracts/mq"
	"mockupreview/internal/app"
	"mockupreview/internal/mqhandler"
	"mockupreview/internal/service/notification"
	"mockupreview/pkg/logger"
	"mockupreview/pkg/mq"
	"mockupreview/pkg/otel"
	redisclient "mockupreview/pkg/redis"
	"mockupreview/pkg/util"
)

func main() {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := logger.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("Starting notification worker...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOtel, err := otel.Init(cfg.Otel, logger)
	if err != nil {
		logger.Fatal("OpenTelemetry initialization failed", zap.Error(err))
	}
	defer shutdownOtel()

	// Init Redis
	rdb := redisclient.NewRedisClient(cfg.Redis)
	defer rdb.Close()
	if err := redisclient.Ping(ctx, rdb); err != nil {
		logger.Fatal("Redis unavailable", zap.Error(err))
	}

	deduper := util.NewDeduper(rdb, cfg.DedupTTL(), logger)
	retryCounter := util.NewRetryCounter(rdb, cfg.DedupTTL())

	// 投递记录与 API 共用存储
	stores, err := app.OpenStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Store initialization failed", zap.Error(err))
	}
	defer stores.Close()

	// DLQ 发布
	dlq, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		logger.Fatal("Failed to init DLQ publisher", zap.Error(err))
	}
	defer dlq.Close()

	sender := notification.NewSender(app.NewChannel(cfg, logger), stores.Logs, logger)
	handler := mqhandler.NewReviewEventHandler(sender, deduper, retryCounter, dlq, cfg.Notification.RetryMax, logger)

	var wg sync.WaitGroup
	consumers := make([]*mq.Consumer, 0, len(mqcontracts.ReviewRoutingKeys))
	for _, routingKey := range mqcontracts.ReviewRoutingKeys {
		queue := cfg.Notification.QueuePrefix + "." + routingKey
		logger.Info("Initializing consumer", zap.String("queue", queue), zap.String("routing_key", routingKey))

		consumer, err := mq.NewConsumer(cfg.MQ.URL, queue, routingKey, logger)
		if err != nil {
			logger.Fatal("failed to init consumer", zap.String("queue", queue), zap.Error(err))
		}
		consumer.SetHandler(handler.For(routingKey))
		consumers = append(consumers, consumer)

		wg.Add(1)
		go func(c *mq.Consumer, queue string) {
			defer wg.Done()
			if err := c.StartConsuming(); err != nil {
				logger.Error("consumer failed", zap.String("queue", queue), zap.Error(err))
				stop()
			}
		}(consumer, queue)
	}

	logger.Info("All consumers started, worker is ready to process messages")

	<-ctx.Done()
	logger.Info("Shutting down worker")
	for _, c := range consumers {
		c.Stop()
	}
	wg.Wait()
	for _, c := range consumers {
		c.Close()
	}
}
