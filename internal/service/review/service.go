package review

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mockupreview/pkg/logger"
)

// Actor 由身份服务提供的用户；名字只做快照，不做校验
type Actor struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Service 评审流程：工作流定义、评审人登记、阶段流转与终审
type Service struct {
	store      Store
	logger     *zap.Logger
	now        func() time.Time
	newEventID func() string
}

func NewService(store Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:      store,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
		newEventID: uuid.NewString,
	}
}

func (s *Service) log(ctx context.Context) *zap.Logger {
	return logger.WithTrace(ctx, s.logger)
}
