package notification

import (
	"context"
	"encoding/json"
	"fmt"

	mqcontracts "mockupreview/contracts/mq"
)

// InlinePublisher 在进程内直接投递 outbox 事件，单机部署时替代 RabbitMQ
type InlinePublisher struct {
	sender *Sender
}

func NewInlinePublisher(sender *Sender) *InlinePublisher {
	return &InlinePublisher{sender: sender}
}

// PublishWithContext 实现 outbox.Publisher
func (p *InlinePublisher) PublishWithContext(ctx context.Context, routingKey string, payload any) error {
	var raw []byte
	switch v := payload.(type) {
	case json.RawMessage:
		raw = v
	case []byte:
		raw = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal %s payload: %w", routingKey, err)
		}
		raw = b
	}

	var event mqcontracts.ReviewEventPayload
	if err := json.Unmarshal(raw, &event); err != nil {
		return fmt.Errorf("decode %s payload: %w", routingKey, err)
	}
	return p.sender.Deliver(ctx, event)
}
