package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"mockupreview/internal/service/review"
	"mockupreview/pkg/outbox"
)

// Store 基于 PostgreSQL 的评审存储
type Store struct {
	db          *pgxpool.Pool
	outbox      *outbox.Repository
	logger      *zap.Logger
	lockTimeout time.Duration
}

func NewStore(db *pgxpool.Pool, outboxRepo *outbox.Repository, logger *zap.Logger) *Store {
	return &Store{
		db:          db,
		outbox:      outboxRepo,
		logger:      logger,
		lockTimeout: 5 * time.Second,
	}
}

// WithLockTimeout 设置事务内等待行锁的上限，超时返回可重试的 55P03
func (s *Store) WithLockTimeout(d time.Duration) *Store {
	if d > 0 {
		s.lockTimeout = d
	}
	return s
}

var _ review.Store = (*Store)(nil)

// InTx 开启事务执行 fn；fn 出错或 panic 时回滚
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx review.Tx) error) (err error) {
	pgxTx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = pgxTx.Rollback(ctx)
			panic(p)
		}
		if err != nil {
			if rbErr := pgxTx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				s.logger.Warn("Failed to rollback tx", zap.Error(rbErr))
			}
		}
	}()

	lockTimeout := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())
	if _, err = pgxTx.Exec(ctx, lockTimeout); err != nil {
		return fmt.Errorf("failed to set lock timeout: %w", err)
	}

	if err = fn(ctx, &pgTx{tx: pgxTx, outbox: s.outbox}); err != nil {
		return err
	}
	if err = pgxTx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit tx: %w", err)
	}
	return nil
}

// pgTx 实现 review.Tx，按表拆分在各 *_repo.go 中
type pgTx struct {
	tx     pgx.Tx
	outbox *outbox.Repository
}

func (t *pgTx) EnqueueEvent(ctx context.Context, aggregateType string, aggregateID int64, routingKey string, payload any) error {
	id := aggregateID
	return outbox.InsertEventInTx(ctx, t.tx, t.outbox, aggregateType, &id, routingKey, payload)
}

// notFoundOr 把 pgx.ErrNoRows 转成 KindNotFound，其余错误加上上下文
func notFoundOr(err error, what string, id any) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return review.NewError(review.KindNotFound, "%s %v not found", what, id)
	}
	return fmt.Errorf("failed to load %s %v: %w", what, id, err)
}
