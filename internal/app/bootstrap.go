// Package app 组装各个进程共用的依赖
package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"mockupreview/config"
	"mockupreview/internal/api"
	"mockupreview/internal/repository"
	"mockupreview/internal/repository/memory"
	"mockupreview/internal/service/notification"
	"mockupreview/internal/service/review"
	"mockupreview/pkg/circuitbreaker"
	"mockupreview/pkg/db"
	"mockupreview/pkg/outbox"
)

// OutboxStore Dispatcher 与 ReplayService 共用的 outbox 存储
type OutboxStore interface {
	outbox.EventStore
	outbox.ReplayStore
}

// Stores 按 store.driver 选出的评审存储
type Stores struct {
	Review review.Store
	Outbox OutboxStore
	Logs   notification.LogStore
	Pool   *pgxpool.Pool
}

// Readiness 存储相关的就绪检查
func (s *Stores) Readiness() []api.ReadinessCheck {
	if s.Pool == nil {
		return nil
	}
	return []api.ReadinessCheck{{Name: "db", Check: s.Pool.Ping}}
}

func (s *Stores) Close() {
	if s.Pool != nil {
		s.Pool.Close()
	}
}

// OpenStores postgres 模式下连接数据库并执行迁移
func OpenStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Stores, error) {
	if cfg.Store.Driver == "memory" {
		logger.Warn("Using in-memory review store, state is lost on restart")
		mem := memory.NewStore()
		return &Stores{Review: mem, Outbox: mem, Logs: memory.NewNotificationLogStore()}, nil
	}

	pool, err := db.NewConnection(cfg.DB, logger)
	if err != nil {
		return nil, fmt.Errorf("db init: %w", err)
	}
	if err := repository.Migrate(ctx, pool, logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	outboxRepo := outbox.NewRepository(pool)
	store := repository.NewStore(pool, outboxRepo, logger).WithLockTimeout(cfg.LockTimeout())
	return &Stores{
		Review: store,
		Outbox: outboxRepo,
		Logs:   repository.NewNotificationLogRepository(pool),
		Pool:   pool,
	}, nil
}

// NewChannel 按 notification.channel 创建投递通道，webhook 带熔断
func NewChannel(cfg *config.Config, logger *zap.Logger) notification.Channel {
	if cfg.Notification.Channel != notification.ChannelWebhook {
		return notification.NewLogChannel(logger)
	}

	breakerCfg := circuitbreaker.DefaultConfig()
	if cfg.Notification.BreakerFailures > 0 {
		breakerCfg.FailureThreshold = cfg.Notification.BreakerFailures
	}
	breakerCfg.Timeout = cfg.BreakerTimeout()
	breakerCfg.OnStateChange = func(from, to circuitbreaker.State) {
		logger.Warn("Webhook circuit breaker state changed",
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}
	return notification.NewWebhookChannel(
		cfg.Notification.WebhookURL,
		cfg.WebhookTimeout(),
		circuitbreaker.NewCircuitBreaker(breakerCfg),
	)
}

// NewDispatcher 按 outbox 配置创建 Dispatcher
func NewDispatcher(cfg *config.Config, store outbox.EventStore, publisher outbox.Publisher, logger *zap.Logger) *outbox.Dispatcher {
	d := outbox.NewDispatcher(store, publisher, logger)
	if cfg.Outbox.MaxRetries > 0 {
		d = d.WithMaxRetries(cfg.Outbox.MaxRetries)
	}
	if cfg.OutboxInterval() > 0 {
		d = d.WithInterval(cfg.OutboxInterval())
	}
	if cfg.Outbox.BatchSize > 0 {
		d = d.WithBatchSize(cfg.Outbox.BatchSize)
	}
	return d
}
