package review

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mockupreview/internal/model"
)

// normalizeStages 校验并整理阶段列表
// 全部 order 为 0 时按给定顺序编号；否则要求 order 恰为 1..N
func normalizeStages(stages []model.Stage) ([]model.Stage, error) {
	if len(stages) == 0 {
		return nil, NewError(KindInvalidWorkflow, "workflow must have at least one stage")
	}

	out := make([]model.Stage, len(stages))
	copy(out, stages)

	autoNumber := true
	for _, st := range out {
		if st.Order != 0 {
			autoNumber = false
			break
		}
	}
	if autoNumber {
		for i := range out {
			out[i].Order = i + 1
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	for i := range out {
		out[i].Name = strings.TrimSpace(out[i].Name)
		if out[i].Order != i+1 {
			return nil, NewError(KindInvalidWorkflow, "stage orders must be contiguous from 1, got %d at position %d", out[i].Order, i+1)
		}
		if out[i].Name == "" {
			return nil, NewError(KindInvalidWorkflow, "stage %d has an empty name", out[i].Order)
		}
	}
	return out, nil
}

// CreateWorkflow 创建版本 1 的工作流
func (s *Service) CreateWorkflow(ctx context.Context, name string, stages []model.Stage) (*model.Workflow, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, NewError(KindInvalidWorkflow, "workflow name is required")
	}
	normalized, err := normalizeStages(stages)
	if err != nil {
		return nil, err
	}

	wf := &model.Workflow{
		Key:     uuid.NewString(),
		Version: 1,
		Name:    name,
		Stages:  normalized,
	}
	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.InsertWorkflow(ctx, wf)
	})
	if err != nil {
		s.log(ctx).Error("Failed to create workflow", zap.String("name", name), zap.Error(err))
		return nil, err
	}

	s.log(ctx).Info("Workflow created",
		zap.Int64("workflow_id", wf.ID),
		zap.String("key", wf.Key),
		zap.Int("stages", len(wf.Stages)),
	)
	return wf, nil
}

// ReviseWorkflow 以相同 key 创建新版本；旧版本保持不变，已提交的稿件继续使用旧版本
// name 为空时沿用原名称
func (s *Service) ReviseWorkflow(ctx context.Context, workflowID int64, name string, stages []model.Stage) (*model.Workflow, error) {
	normalized, err := normalizeStages(stages)
	if err != nil {
		return nil, err
	}

	var wf *model.Workflow
	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		base, err := tx.GetWorkflow(ctx, workflowID)
		if err != nil {
			return err
		}
		latest, err := tx.LatestWorkflow(ctx, base.Key)
		if err != nil {
			return err
		}

		wf = &model.Workflow{
			Key:     base.Key,
			Version: latest.Version + 1,
			Name:    strings.TrimSpace(name),
			Stages:  normalized,
		}
		if wf.Name == "" {
			wf.Name = base.Name
		}
		return tx.InsertWorkflow(ctx, wf)
	})
	if err != nil {
		return nil, err
	}

	s.log(ctx).Info("Workflow revised",
		zap.Int64("workflow_id", wf.ID),
		zap.String("key", wf.Key),
		zap.Int("version", wf.Version),
	)
	return wf, nil
}

func (s *Service) GetWorkflow(ctx context.Context, id int64) (*model.Workflow, error) {
	var wf *model.Workflow
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		wf, err = tx.GetWorkflow(ctx, id)
		return err
	})
	return wf, err
}

// LatestWorkflow 返回 key 对应的最新版本
func (s *Service) LatestWorkflow(ctx context.Context, key string) (*model.Workflow, error) {
	var wf *model.Workflow
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		wf, err = tx.LatestWorkflow(ctx, key)
		return err
	})
	return wf, err
}
