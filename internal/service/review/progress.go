package review

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"mockupreview/internal/model"
)

// ProgressView 稿件的评审进度
type ProgressView struct {
	Artifact      *model.Artifact       `json:"artifact"`
	WorkflowName  string                `json:"workflow_name,omitempty"`
	WorkflowVer   int                   `json:"workflow_version,omitempty"`
	CurrentStage  *int                  `json:"current_stage,omitempty"`
	Round         int                   `json:"round"`
	Stages        []model.StageProgress `json:"stages"`
	FinalApproval *model.FinalApproval  `json:"final_approval,omitempty"`
}

// GetProgress 返回工作流每个阶段的进度，尚未打开的阶段显示为 pending
func (s *Service) GetProgress(ctx context.Context, artifactID int64) (*ProgressView, error) {
	view := &ProgressView{Stages: []model.StageProgress{}}
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		artifact, err := tx.GetArtifact(ctx, artifactID)
		if err != nil {
			return err
		}
		view.Artifact = artifact
		view.CurrentStage = artifact.CurrentStage
		view.Round = artifact.Round

		view.FinalApproval, err = tx.FindFinalApproval(ctx, artifactID)
		if err != nil {
			return err
		}
		if artifact.WorkflowID == nil {
			return nil
		}

		wf, err := tx.GetWorkflow(ctx, *artifact.WorkflowID)
		if err != nil {
			return err
		}
		view.WorkflowName = wf.Name
		view.WorkflowVer = wf.Version

		rows, err := tx.ListProgress(ctx, artifactID)
		if err != nil {
			return err
		}
		byOrder := make(map[int]model.StageProgress, len(rows))
		for _, r := range rows {
			byOrder[r.StageOrder] = r
		}
		for _, stage := range wf.Stages {
			p, ok := byOrder[stage.Order]
			if !ok {
				p = model.StageProgress{
					ArtifactID: artifactID,
					StageOrder: stage.Order,
					Status:     model.StageStatusPending,
				}
			}
			p.StageName = stage.Name
			view.Stages = append(view.Stages, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// ListDecisions 返回稿件所有轮次的评审记录
func (s *Service) ListDecisions(ctx context.Context, artifactID int64) ([]model.ApprovalRecord, error) {
	var records []model.ApprovalRecord
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.GetArtifact(ctx, artifactID); err != nil {
			return err
		}
		var err error
		records, err = tx.ListApprovals(ctx, artifactID)
		return err
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Round != records[j].Round {
			return records[i].Round < records[j].Round
		}
		return records[i].ID < records[j].ID
	})
	return records, nil
}

// StageDrift 某阶段计数器与决定记录的对比
type StageDrift struct {
	StageOrder int  `json:"stage_order"`
	Counter    int  `json:"approvals_received"`
	Records    int  `json:"approve_records"`
	Drift      bool `json:"drift"`
}

// ReconcileReport 对账结果
type ReconcileReport struct {
	ArtifactID int64        `json:"artifact_id"`
	Round      int          `json:"round"`
	Consistent bool         `json:"consistent"`
	Stages     []StageDrift `json:"stages"`
}

// Reconcile 比对本轮每个阶段的 approvals_received 与 approve 记录数
func (s *Service) Reconcile(ctx context.Context, artifactID int64) (*ReconcileReport, error) {
	report := &ReconcileReport{ArtifactID: artifactID, Consistent: true, Stages: []StageDrift{}}
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		artifact, err := tx.GetArtifact(ctx, artifactID)
		if err != nil {
			return err
		}
		report.Round = artifact.Round

		rows, err := tx.ListProgress(ctx, artifactID)
		if err != nil {
			return err
		}
		for _, p := range rows {
			n, err := tx.CountApprovals(ctx, artifactID, artifact.Round, p.StageOrder)
			if err != nil {
				return err
			}
			d := StageDrift{
				StageOrder: p.StageOrder,
				Counter:    p.ApprovalsReceived,
				Records:    n,
				Drift:      n != p.ApprovalsReceived,
			}
			if d.Drift {
				report.Consistent = false
			}
			report.Stages = append(report.Stages, d)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !report.Consistent {
		s.log(ctx).Warn("Approval counter drift detected",
			zap.Int64("artifact_id", artifactID),
			zap.Int("round", report.Round),
		)
	}
	return report, nil
}
