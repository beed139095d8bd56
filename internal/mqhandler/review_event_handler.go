package mqhandler

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	mqcontracts "mockupreview/contracts/mq"
	"mockupreview/pkg/logger"
	"mockupreview/pkg/mq"
	"mockupreview/pkg/util"
)

const defaultMaxRetries = 5

// Deliverer 投递一条评审事件
type Deliverer interface {
	Deliver(ctx context.Context, p mqcontracts.ReviewEventPayload) error
}

// DLQPublisher 死信发布
type DLQPublisher interface {
	PublishToDLQ(ctx context.Context, routingKey string, payload []byte, originalError string) error
}

// ReviewEventHandler 消费评审事件并投递通知
// Redis 去重按 event_id，重试次数由 Redis 计数，超过上限或不可重试的错误进入 DLQ
type ReviewEventHandler struct {
	deliverer    Deliverer
	deduper      *util.Deduper
	retryCounter *util.RetryCounter
	dlq          DLQPublisher
	maxRetries   int64
	logger       *zap.Logger
}

func NewReviewEventHandler(
	deliverer Deliverer,
	deduper *util.Deduper,
	retryCounter *util.RetryCounter,
	dlq DLQPublisher,
	maxRetries int,
	logger *zap.Logger,
) *ReviewEventHandler {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	return &ReviewEventHandler{
		deliverer:    deliverer,
		deduper:      deduper,
		retryCounter: retryCounter,
		dlq:          dlq,
		maxRetries:   int64(maxRetries),
		logger:       logger,
	}
}

// For 返回绑定到某个 routing key 的消费函数
func (h *ReviewEventHandler) For(routingKey string) mq.MessageHandler {
	return func(ctx context.Context, raw json.RawMessage) error {
		return h.handle(ctx, routingKey, raw)
	}
}

func (h *ReviewEventHandler) handle(ctx context.Context, routingKey string, raw json.RawMessage) error {
	log := logger.WithTrace(ctx, h.logger).With(zap.String("routing_key", routingKey))

	var p mqcontracts.ReviewEventPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		// 格式错误不可重试，直接进 DLQ 并 ack
		log.Error("Failed to unmarshal review event (non-retryable, sending to DLQ)",
			zap.Error(err),
			zap.String("raw_payload", string(raw)),
		)
		h.toDLQ(ctx, routingKey, raw, fmt.Errorf("json_unmarshal_error: %w", err))
		return nil
	}
	if p.EventID == "" {
		log.Error("Review event without event_id, sending to DLQ")
		h.toDLQ(ctx, routingKey, raw, fmt.Errorf("missing event_id"))
		return nil
	}

	handlerName := "notify:" + routingKey
	log = log.With(zap.String("event_id", p.EventID), zap.Int64("artifact_id", p.ArtifactID))

	if h.deduper != nil && !h.deduper.AcquireOnce(ctx, handlerName, p.EventID) {
		log.Info("Skipped duplicated review event")
		return nil
	}

	err := h.deliverer.Deliver(ctx, p)
	if err == nil {
		if h.retryCounter != nil {
			_ = h.retryCounter.Reset(ctx, util.FormatRetryKey(handlerName, p.EventID))
		}
		return nil
	}

	isRetryable, errType := util.IsRetryableError(err)
	retryCount := int64(1)
	if h.retryCounter != nil {
		n, rcErr := h.retryCounter.IncrementAndGet(ctx, util.FormatRetryKey(handlerName, p.EventID))
		if rcErr != nil {
			log.Warn("Failed to get retry count, continuing anyway", zap.Error(rcErr))
		} else {
			retryCount = n
		}
	}

	log.Error("Failed to deliver review event",
		zap.String("error_type", errType),
		zap.Bool("retryable", isRetryable),
		zap.Int64("retry_count", retryCount),
		zap.Error(err),
	)

	if !util.ShouldRetry(retryCount, h.maxRetries, isRetryable) {
		log.Warn("Giving up on review event, sending to DLQ",
			zap.Int64("retry_count", retryCount),
			zap.Int64("max_retries", h.maxRetries),
		)
		h.toDLQ(ctx, routingKey, raw, err)
		if h.retryCounter != nil {
			_ = h.retryCounter.Reset(ctx, util.FormatRetryKey(handlerName, p.EventID))
		}
		return nil
	}

	// 释放去重锁，让重投的消息可以再次处理
	if h.deduper != nil {
		h.deduper.Release(ctx, handlerName, p.EventID)
	}
	return err
}

func (h *ReviewEventHandler) toDLQ(ctx context.Context, routingKey string, raw []byte, cause error) {
	if h.dlq == nil {
		return
	}
	if err := h.dlq.PublishToDLQ(ctx, routingKey, raw, cause.Error()); err != nil {
		h.logger.Error("Failed to publish to DLQ",
			zap.String("routing_key", routingKey),
			zap.Error(err),
		)
	}
}
