package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	mqcontracts "mockupreview/contracts/mq"
	"mockupreview/pkg/circuitbreaker"
)

const (
	ChannelLog     = "log"
	ChannelWebhook = "webhook"
)

// Message 发给单个接收人的通知
type Message struct {
	EventID   string                         `json:"event_id"`
	Kind      string                         `json:"kind"`
	Recipient mqcontracts.Recipient          `json:"recipient"`
	Subject   string                         `json:"subject"`
	Body      string                         `json:"body"`
	Event     mqcontracts.ReviewEventPayload `json:"event"`
}

// Channel 通知投递渠道
type Channel interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// LogChannel 只写日志，用于本地运行
type LogChannel struct {
	logger *zap.Logger
}

func NewLogChannel(logger *zap.Logger) *LogChannel {
	return &LogChannel{logger: logger}
}

func (c *LogChannel) Name() string { return ChannelLog }

func (c *LogChannel) Send(ctx context.Context, msg Message) error {
	c.logger.Info("Notification",
		zap.String("event_id", msg.EventID),
		zap.String("kind", msg.Kind),
		zap.String("recipient_id", msg.Recipient.ID),
		zap.String("subject", msg.Subject),
	)
	return nil
}

// WebhookChannel 以 JSON POST 投递，熔断保护下游
type WebhookChannel struct {
	url     string
	client  *http.Client
	breaker *circuitbreaker.CircuitBreaker
}

func NewWebhookChannel(url string, timeout time.Duration, breaker *circuitbreaker.CircuitBreaker) *WebhookChannel {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if breaker == nil {
		breaker = circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig())
	}
	return &WebhookChannel{
		url:     url,
		client:  &http.Client{Timeout: timeout},
		breaker: breaker,
	}
}

func (c *WebhookChannel) Name() string { return ChannelWebhook }

func (c *WebhookChannel) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook body: %w", err)
	}

	return c.breaker.ExecuteContext(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Event-ID", msg.EventID)

		resp, err := c.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			return fmt.Errorf("webhook returned status %d", resp.StatusCode)
		}
		return nil
	})
}
