package memory

import (
	"context"
	"sync"
	"time"

	"mockupreview/internal/model"
)

// NotificationLogStore 通知投递记录的内存实现
type NotificationLogStore struct {
	mu   sync.Mutex
	seq  int64
	logs map[[2]string]model.NotificationLog
}

func NewNotificationLogStore() *NotificationLogStore {
	return &NotificationLogStore{logs: make(map[[2]string]model.NotificationLog)}
}

func (s *NotificationLogStore) Upsert(ctx context.Context, log *model.NotificationLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := [2]string{log.EventID, log.RecipientID}
	if existing, ok := s.logs[key]; ok {
		log.ID = existing.ID
		log.CreatedAt = existing.CreatedAt
	} else {
		s.seq++
		log.ID = s.seq
		log.CreatedAt = time.Now().UTC()
	}
	s.logs[key] = *log
	return nil
}

func (s *NotificationLogStore) Delivered(ctx context.Context, eventID, recipientID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.logs[[2]string{eventID, recipientID}]
	return ok && l.Status == "sent", nil
}

// All 返回全部记录（测试用）
func (s *NotificationLogStore) All() []model.NotificationLog {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.NotificationLog, 0, len(s.logs))
	for _, l := range s.logs {
		out = append(out, l)
	}
	return out
}
