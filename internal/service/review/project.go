package review

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"mockupreview/internal/model"
	"mockupreview/pkg/metrics"
)

// CreateProject 创建项目；workflowID 为 nil 表示该项目不走分阶段评审
func (s *Service) CreateProject(ctx context.Context, name, ownerID string, workflowID *int64) (*model.Project, error) {
	project := &model.Project{
		Name:       strings.TrimSpace(name),
		OwnerID:    ownerID,
		WorkflowID: workflowID,
		Status:     model.ProjectStatusActive,
	}
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if workflowID != nil {
			if _, err := tx.GetWorkflow(ctx, *workflowID); err != nil {
				return err
			}
		}
		return tx.InsertProject(ctx, project)
	})
	if err != nil {
		return nil, err
	}

	s.log(ctx).Info("Project created",
		zap.Int64("project_id", project.ID),
		zap.String("owner_id", ownerID),
	)
	return project, nil
}

// SetProjectWorkflow 更换项目工作流；已提交的稿件保留各自的工作流快照
// 评审人按 (project, stage_order) 登记，因此新工作流不能给在用的 order 换名字：
// 评审中稿件的工作流的所有阶段，以及当前工作流中已登记评审人的阶段
func (s *Service) SetProjectWorkflow(ctx context.Context, projectID int64, workflowID *int64) (*model.Project, error) {
	var project *model.Project
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if workflowID != nil {
			next, err := tx.GetWorkflow(ctx, *workflowID)
			if err != nil {
				return err
			}
			if err := checkStagesInUse(ctx, tx, projectID, next); err != nil {
				return err
			}
		}
		if err := tx.SetProjectWorkflow(ctx, projectID, workflowID); err != nil {
			return err
		}
		var err error
		project, err = tx.GetProject(ctx, projectID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log(ctx).Info("Project workflow changed", zap.Int64("project_id", projectID))
	return project, nil
}

// checkStagesInUse 拒绝会让在用阶段改名的工作流
func checkStagesInUse(ctx context.Context, tx Tx, projectID int64, next *model.Workflow) error {
	project, err := tx.GetProject(ctx, projectID)
	if err != nil {
		return err
	}
	compare := func(stage model.Stage) error {
		if replacement, ok := next.StageByOrder(stage.Order); ok && replacement.Name != stage.Name {
			return NewError(KindInvalidWorkflow,
				"stage %d is %q in use by project %d but %q in workflow %q v%d",
				stage.Order, stage.Name, projectID, replacement.Name, next.Name, next.Version)
		}
		return nil
	}

	live, err := tx.ListLiveWorkflowIDs(ctx, projectID)
	if err != nil {
		return err
	}
	for _, id := range live {
		wf, err := tx.GetWorkflow(ctx, id)
		if err != nil {
			return err
		}
		for _, stage := range wf.Stages {
			if err := compare(stage); err != nil {
				return err
			}
		}
	}

	if project.WorkflowID == nil {
		return nil
	}
	current, err := tx.GetWorkflow(ctx, *project.WorkflowID)
	if err != nil {
		return err
	}
	for _, stage := range current.Stages {
		n, err := tx.CountAssignments(ctx, projectID, stage.Order)
		if err != nil {
			return err
		}
		if n == 0 {
			continue
		}
		if err := compare(stage); err != nil {
			return err
		}
	}
	return nil
}

// SubmitResult 提交稿件的结果
type SubmitResult struct {
	Artifact *model.Artifact `json:"artifact"`
	Warnings []StageWarning  `json:"warnings,omitempty"`
}

// SubmitArtifact 提交稿件；项目有工作流时打开第一阶段
func (s *Service) SubmitArtifact(ctx context.Context, projectID int64, creator Actor, title string) (*SubmitResult, error) {
	result := &SubmitResult{}
	var opened *openedStage
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		project, err := tx.GetProject(ctx, projectID)
		if err != nil {
			return err
		}

		artifact := &model.Artifact{
			ProjectID:  projectID,
			CreatorID:  creator.ID,
			Title:      strings.TrimSpace(title),
			WorkflowID: project.WorkflowID,
			Round:      1,
			Status:     model.ArtifactStatusNoReview,
		}
		if err := tx.InsertArtifact(ctx, artifact); err != nil {
			return err
		}
		result.Artifact = artifact

		if artifact.WorkflowID == nil {
			return nil
		}
		wf, err := tx.GetWorkflow(ctx, *artifact.WorkflowID)
		if err != nil {
			return err
		}
		opened, err = s.openStage(ctx, tx, artifact, wf.Stages[0])
		if err != nil {
			return err
		}
		if opened.warning != nil {
			result.Warnings = append(result.Warnings, *opened.warning)
		}
		return tx.UpdateArtifactState(ctx, artifact)
	})
	if err != nil {
		return nil, err
	}

	if opened != nil {
		s.afterStageOpened(ctx, result.Artifact, opened)
	}
	s.log(ctx).Info("Artifact submitted",
		zap.Int64("artifact_id", result.Artifact.ID),
		zap.Int64("project_id", projectID),
		zap.String("status", result.Artifact.Status),
	)
	return result, nil
}

// afterStageOpened 提交后记录阶段打开的指标与零评审人告警
func (s *Service) afterStageOpened(ctx context.Context, artifact *model.Artifact, opened *openedStage) {
	metrics.IncrementStageTransition("opened")
	if opened.warning == nil {
		return
	}
	metrics.IncrementZeroQuorumStage()
	s.log(ctx).Warn("Stage opened with no assigned reviewers",
		zap.Int64("artifact_id", artifact.ID),
		zap.Int64("project_id", artifact.ProjectID),
		zap.Int("stage_order", opened.stage.Order),
		zap.String("stage_name", opened.stage.Name),
	)
}
