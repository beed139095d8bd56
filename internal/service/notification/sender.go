package notification

import (
	"context"
	"errors"

	"go.uber.org/zap"

	mqcontracts "mockupreview/contracts/mq"
	"mockupreview/internal/model"
	"mockupreview/pkg/logger"
	"mockupreview/pkg/metrics"
)

const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

// LogStore 投递记录存储
type LogStore interface {
	Upsert(ctx context.Context, log *model.NotificationLog) error
	Delivered(ctx context.Context, eventID, recipientID string) (bool, error)
}

// Sender 把评审事件投递给每个接收人，并记录结果
// 已成功投递过的接收人会被跳过，重投时只补发失败的部分
type Sender struct {
	channel Channel
	logs    LogStore
	logger  *zap.Logger
}

func NewSender(channel Channel, logs LogStore, logger *zap.Logger) *Sender {
	return &Sender{channel: channel, logs: logs, logger: logger}
}

// Deliver 任一接收人失败时返回合并后的错误
func (s *Sender) Deliver(ctx context.Context, p mqcontracts.ReviewEventPayload) error {
	log := logger.WithTrace(ctx, s.logger).With(
		zap.String("event_id", p.EventID),
		zap.String("kind", p.Kind),
		zap.Int64("artifact_id", p.ArtifactID),
	)
	subject, body := Render(p)

	var errs []error
	for _, r := range p.Recipients {
		if s.logs != nil {
			done, err := s.logs.Delivered(ctx, p.EventID, r.ID)
			if err != nil {
				return err
			}
			if done {
				metrics.IncrementNotificationDelivery(p.Kind, s.channel.Name(), "skipped")
				continue
			}
		}

		msg := Message{
			EventID:   p.EventID,
			Kind:      p.Kind,
			Recipient: r,
			Subject:   subject,
			Body:      body,
			Event:     p,
		}
		sendErr := s.channel.Send(ctx, msg)

		entry := &model.NotificationLog{
			EventID:     p.EventID,
			EventKind:   p.Kind,
			RecipientID: r.ID,
			Channel:     s.channel.Name(),
			Status:      StatusSent,
		}
		if sendErr != nil {
			entry.Status = StatusFailed
			entry.Error = sendErr.Error()
			errs = append(errs, sendErr)
			log.Warn("Notification delivery failed", zap.String("recipient_id", r.ID), zap.Error(sendErr))
		}
		metrics.IncrementNotificationDelivery(p.Kind, s.channel.Name(), entry.Status)

		if s.logs != nil {
			if err := s.logs.Upsert(ctx, entry); err != nil {
				log.Error("Failed to write notification log", zap.String("recipient_id", r.ID), zap.Error(err))
				errs = append(errs, err)
			}
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	log.Info("Notifications delivered", zap.Int("recipients", len(p.Recipients)))
	return nil
}
