package review

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"mockupreview/internal/model"
)

// StageWarning 配置类警告，目前只有零评审人阶段
type StageWarning struct {
	Kind       Kind   `json:"kind"`
	StageOrder int    `json:"stage_order"`
	StageName  string `json:"stage_name"`
	Message    string `json:"message"`
}

func zeroQuorumWarning(stage model.Stage) StageWarning {
	return StageWarning{
		Kind:       KindZeroQuorumStage,
		StageOrder: stage.Order,
		StageName:  stage.Name,
		Message:    fmt.Sprintf("stage %q has no assigned reviewers and cannot reach quorum", stage.Name),
	}
}

// stagesInUse 项目当前工作流与仍在评审中的稿件所用工作流的阶段并集，按 order 排序
// SetProjectWorkflow 保证同一 order 在这些版本中名称一致
func stagesInUse(ctx context.Context, tx Tx, projectID int64) ([]model.Stage, error) {
	project, err := tx.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	ids, err := tx.ListLiveWorkflowIDs(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project.WorkflowID != nil {
		ids = append([]int64{*project.WorkflowID}, ids...)
	}

	byOrder := make(map[int]model.Stage)
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		wf, err := tx.GetWorkflow(ctx, id)
		if err != nil {
			return nil, err
		}
		for _, stage := range wf.Stages {
			if _, ok := byOrder[stage.Order]; !ok {
				byOrder[stage.Order] = stage
			}
		}
	}

	stages := make([]model.Stage, 0, len(byOrder))
	for _, stage := range byOrder {
		stages = append(stages, stage)
	}
	sort.Slice(stages, func(i, j int) bool { return stages[i].Order < stages[j].Order })
	return stages, nil
}

// assignableStage 校验 stageOrder 属于项目当前工作流，或仍有稿件在用的旧版本工作流
func assignableStage(ctx context.Context, tx Tx, projectID int64, stageOrder int) (model.Stage, error) {
	stages, err := stagesInUse(ctx, tx, projectID)
	if err != nil {
		return model.Stage{}, err
	}
	if len(stages) == 0 {
		return model.Stage{}, NewError(KindInvalidStage, "project %d has no workflow", projectID)
	}
	for _, stage := range stages {
		if stage.Order == stageOrder {
			return stage, nil
		}
	}
	return model.Stage{}, NewError(KindInvalidStage, "stage %d is not part of any workflow in use by project %d", stageOrder, projectID)
}

// Assign 把评审人登记到项目的某个阶段
// 已打开的阶段不受影响，其 approvals_required 在打开时已固定
func (s *Service) Assign(ctx context.Context, projectID int64, stageOrder int, reviewer Actor) (*model.StageReviewerAssignment, error) {
	if reviewer.ID == "" {
		return nil, NewError(KindNotAReviewer, "reviewer id is required")
	}

	var assignment *model.StageReviewerAssignment
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := assignableStage(ctx, tx, projectID, stageOrder); err != nil {
			return err
		}
		assignment = &model.StageReviewerAssignment{
			ProjectID:    projectID,
			StageOrder:   stageOrder,
			ReviewerID:   reviewer.ID,
			ReviewerName: reviewer.Name,
			CreatedAt:    s.now(),
		}
		return tx.InsertAssignment(ctx, assignment)
	})
	if err != nil {
		return nil, err
	}

	s.log(ctx).Info("Reviewer assigned",
		zap.Int64("project_id", projectID),
		zap.Int("stage_order", stageOrder),
		zap.String("reviewer_id", reviewer.ID),
	)
	return assignment, nil
}

// Unassign 取消登记；没有对应登记时返回 KindNotFound
func (s *Service) Unassign(ctx context.Context, projectID int64, stageOrder int, reviewerID string) error {
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		removed, err := tx.DeleteAssignment(ctx, projectID, stageOrder, reviewerID)
		if err != nil {
			return err
		}
		if !removed {
			return NewError(KindNotFound, "reviewer %s is not assigned to stage %d of project %d", reviewerID, stageOrder, projectID)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.log(ctx).Info("Reviewer unassigned",
		zap.Int64("project_id", projectID),
		zap.Int("stage_order", stageOrder),
		zap.String("reviewer_id", reviewerID),
	)
	return nil
}

// QuorumFor 当前登记人数；只在打开阶段时读取
func (s *Service) QuorumFor(ctx context.Context, projectID int64, stageOrder int) (int, error) {
	var n int
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		n, err = tx.CountAssignments(ctx, projectID, stageOrder)
		return err
	})
	return n, err
}

func (s *Service) ListAssignments(ctx context.Context, projectID int64) ([]model.StageReviewerAssignment, error) {
	var out []model.StageReviewerAssignment
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.GetProject(ctx, projectID); err != nil {
			return err
		}
		var err error
		out, err = tx.ListAssignments(ctx, projectID)
		return err
	})
	return out, err
}

// ZeroQuorumStages 列出项目在用阶段中没有评审人的阶段
// 包括旧版本工作流中仍有稿件会进入的阶段
func (s *Service) ZeroQuorumStages(ctx context.Context, projectID int64) ([]StageWarning, error) {
	warnings := []StageWarning{}
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		stages, err := stagesInUse(ctx, tx, projectID)
		if err != nil {
			return err
		}
		for _, stage := range stages {
			n, err := tx.CountAssignments(ctx, projectID, stage.Order)
			if err != nil {
				return err
			}
			if n == 0 {
				warnings = append(warnings, zeroQuorumWarning(stage))
			}
		}
		return nil
	})
	return warnings, err
}
