package review

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	mqcontracts "mockupreview/contracts/mq"
	"mockupreview/internal/model"
	"mockupreview/pkg/metrics"
	"mockupreview/pkg/otel"
)

// DecisionRequest 一次评审决定
type DecisionRequest struct {
	ArtifactID int64
	StageOrder int
	Reviewer   Actor
	Action     model.Action
	Notes      string
}

// DecisionResult 评审决定的结果
type DecisionResult struct {
	StageComplete         bool           `json:"stage_complete"`
	Advanced              bool           `json:"advanced"`
	NextStageName         string         `json:"next_stage_name,omitempty"`
	ApprovalsReceived     int            `json:"approvals_received"`
	ApprovalsRequired     int            `json:"approvals_required"`
	AwaitingFinalApproval bool           `json:"awaiting_final_approval"`
	Reset                 bool           `json:"reset"`
	Round                 int            `json:"round"`
	Warnings              []StageWarning `json:"warnings,omitempty"`
}

// openedStage 事务内打开的阶段，提交后用于记录指标
type openedStage struct {
	stage    model.Stage
	required int
	warning  *StageWarning
}

// openStage 以当前登记人数为快照打开阶段，并通知该阶段评审人
// 调用方负责写回 artifact
func (s *Service) openStage(ctx context.Context, tx Tx, artifact *model.Artifact, stage model.Stage) (*openedStage, error) {
	assignments, err := tx.ListAssignments(ctx, artifact.ProjectID)
	if err != nil {
		return nil, err
	}
	recipients := stageRecipients(assignments, stage.Order)

	now := s.now()
	progress := &model.StageProgress{
		ArtifactID:        artifact.ID,
		StageOrder:        stage.Order,
		StageName:         stage.Name,
		Status:            model.StageStatusInReview,
		ApprovalsRequired: len(recipients),
		OpenedAt:          &now,
	}
	if err := tx.InsertProgress(ctx, progress); err != nil {
		return nil, err
	}

	order := stage.Order
	artifact.CurrentStage = &order
	artifact.Status = model.ArtifactStatusInReview

	opened := &openedStage{stage: stage, required: len(recipients)}
	if len(recipients) == 0 {
		w := zeroQuorumWarning(stage)
		opened.warning = &w
	}

	if err := s.emit(ctx, tx, eventInput{
		kind:       mqcontracts.RoutingKeyStageOpened,
		artifact:   artifact,
		stage:      &stage,
		recipients: recipients,
	}); err != nil {
		return nil, err
	}
	return opened, nil
}

// RecordDecision 记录一次评审决定，并在同一事务内完成计数、推进或重置
func (s *Service) RecordDecision(ctx context.Context, req DecisionRequest) (*DecisionResult, error) {
	start := s.now()
	ctx, span := otel.StartSpan(ctx, "review.RecordDecision")
	defer span.End()

	var (
		result      *DecisionResult
		transitions []string
		opened      *openedStage
	)
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		result, opened, transitions, err = s.recordDecision(ctx, tx, req)
		return err
	})

	action := string(req.Action)
	metrics.RecordDecisionDuration(action, s.now().Sub(start))
	log := s.log(ctx).With(
		zap.Int64("artifact_id", req.ArtifactID),
		zap.Int("stage_order", req.StageOrder),
		zap.String("reviewer_id", req.Reviewer.ID),
		zap.String("action", action),
	)

	if err != nil {
		kind := KindOf(err)
		switch {
		case kind == "":
			metrics.IncrementDecision(action, "error")
			otel.RecordError(span, err)
			log.Error("Failed to record decision", zap.Error(err))
		case kind.Benign():
			metrics.IncrementDecision(action, string(kind))
			log.Info("Decision not applied", zap.String("kind", string(kind)))
		default:
			metrics.IncrementDecision(action, string(kind))
			log.Warn("Decision rejected", zap.String("kind", string(kind)), zap.Error(err))
		}
		return nil, err
	}

	metrics.IncrementDecision(action, "recorded")
	for _, t := range transitions {
		metrics.IncrementStageTransition(t)
	}
	if opened != nil && opened.warning != nil {
		metrics.IncrementZeroQuorumStage()
		log.Warn("Stage opened with no assigned reviewers",
			zap.Int("opened_stage", opened.stage.Order),
			zap.String("stage_name", opened.stage.Name),
		)
	}
	log.Info("Decision recorded",
		zap.Int("approvals_received", result.ApprovalsReceived),
		zap.Int("approvals_required", result.ApprovalsRequired),
		zap.Bool("stage_complete", result.StageComplete),
		zap.Bool("advanced", result.Advanced),
		zap.Bool("reset", result.Reset),
	)
	return result, nil
}

func (s *Service) recordDecision(ctx context.Context, tx Tx, req DecisionRequest) (*DecisionResult, *openedStage, []string, error) {
	if !req.Action.Valid() {
		return nil, nil, nil, NewError(KindInvalidAction, "unknown action %q", req.Action)
	}

	artifact, err := tx.LockArtifact(ctx, req.ArtifactID)
	if err != nil {
		return nil, nil, nil, err
	}
	if artifact.WorkflowID == nil {
		return nil, nil, nil, stageError(ErrInvalidStage, artifact.ID, req.StageOrder, req.Reviewer.ID)
	}
	wf, err := tx.GetWorkflow(ctx, *artifact.WorkflowID)
	if err != nil {
		return nil, nil, nil, err
	}
	stage, ok := wf.StageByOrder(req.StageOrder)
	if !ok {
		return nil, nil, nil, stageError(ErrInvalidStage, artifact.ID, req.StageOrder, req.Reviewer.ID)
	}

	// 1. 必须是该阶段登记的评审人
	assignment, err := tx.FindAssignment(ctx, artifact.ProjectID, stage.Order, req.Reviewer.ID)
	if err != nil {
		return nil, nil, nil, err
	}
	if assignment == nil {
		return nil, nil, nil, stageError(ErrNotAReviewer, artifact.ID, stage.Order, req.Reviewer.ID)
	}

	// 2. 阶段必须在评审中
	progress, err := tx.GetProgress(ctx, artifact.ID, stage.Order)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, nil, nil, err
	}
	if progress == nil || progress.Status != model.StageStatusInReview {
		return nil, nil, nil, stageError(ErrStageNotActive, artifact.ID, stage.Order, req.Reviewer.ID)
	}

	// 3. 本轮同一评审人只能决定一次
	decided, err := tx.HasApproval(ctx, artifact.ID, artifact.Round, stage.Order, req.Reviewer.ID)
	if err != nil {
		return nil, nil, nil, err
	}
	if decided {
		return nil, nil, nil, stageError(ErrAlreadyDecided, artifact.ID, stage.Order, req.Reviewer.ID)
	}

	notes := strings.TrimSpace(req.Notes)
	if req.Action == model.ActionRequestChanges && notes == "" {
		return nil, nil, nil, stageError(ErrMissingNotesOnRejection, artifact.ID, stage.Order, req.Reviewer.ID)
	}
	if req.Action == model.ActionApprove && progress.ApprovalsRequired == 0 {
		return nil, nil, nil, stageError(ErrZeroQuorumStage, artifact.ID, stage.Order, req.Reviewer.ID)
	}

	reviewer := req.Reviewer
	if reviewer.Name == "" {
		reviewer.Name = assignment.ReviewerName
	}

	// 4. 写入决定；唯一约束兜底并发的重复请求
	record := &model.ApprovalRecord{
		ArtifactID:   artifact.ID,
		Round:        artifact.Round,
		StageOrder:   stage.Order,
		ReviewerID:   reviewer.ID,
		ReviewerName: reviewer.Name,
		Action:       req.Action,
		Notes:        notes,
		CreatedAt:    s.now(),
	}
	if err := tx.InsertApproval(ctx, record); err != nil {
		return nil, nil, nil, err
	}

	if req.Action == model.ActionRequestChanges {
		return s.requestChanges(ctx, tx, artifact, wf, stage, reviewer, notes)
	}
	return s.approve(ctx, tx, artifact, wf, stage, reviewer)
}

// requestChanges 标记 changes_requested 后重置到第一阶段
func (s *Service) requestChanges(ctx context.Context, tx Tx, artifact *model.Artifact, wf *model.Workflow, stage model.Stage, reviewer Actor, notes string) (*DecisionResult, *openedStage, []string, error) {
	won, err := tx.CompleteStage(ctx, artifact.ID, stage.Order, model.StageStatusChangesRequested, reviewer.ID, notes, s.now())
	if err != nil {
		return nil, nil, nil, err
	}
	if !won {
		return nil, nil, nil, stageError(ErrStageNotActive, artifact.ID, stage.Order, reviewer.ID)
	}

	if err := tx.DeleteProgress(ctx, artifact.ID); err != nil {
		return nil, nil, nil, err
	}
	artifact.Round++

	if err := s.emit(ctx, tx, eventInput{
		kind:       mqcontracts.RoutingKeyChangesRequested,
		artifact:   artifact,
		stage:      &stage,
		actor:      &reviewer,
		notes:      notes,
		recipients: uniqueRecipients(artifact.CreatorID),
	}); err != nil {
		return nil, nil, nil, err
	}

	opened, err := s.openStage(ctx, tx, artifact, wf.Stages[0])
	if err != nil {
		return nil, nil, nil, err
	}
	if err := tx.UpdateArtifactState(ctx, artifact); err != nil {
		return nil, nil, nil, err
	}

	result := &DecisionResult{
		Reset:             true,
		NextStageName:     opened.stage.Name,
		ApprovalsReceived: 0,
		ApprovalsRequired: opened.required,
		Round:             artifact.Round,
	}
	if opened.warning != nil {
		result.Warnings = append(result.Warnings, *opened.warning)
	}
	return result, opened, []string{"reset", "opened"}, nil
}

// approve 计数；达到法定人数时只有 CAS 成功的一方推进到下一阶段
func (s *Service) approve(ctx context.Context, tx Tx, artifact *model.Artifact, wf *model.Workflow, stage model.Stage, reviewer Actor) (*DecisionResult, *openedStage, []string, error) {
	received, required, ok, err := tx.IncrementApprovals(ctx, artifact.ID, stage.Order)
	if err != nil {
		return nil, nil, nil, err
	}
	if !ok {
		return nil, nil, nil, stageError(ErrStageNotActive, artifact.ID, stage.Order, reviewer.ID)
	}

	result := &DecisionResult{
		ApprovalsReceived: received,
		ApprovalsRequired: required,
		Round:             artifact.Round,
	}
	if received < required {
		return result, nil, nil, nil
	}

	note := fmt.Sprintf("quorum reached (%d/%d)", received, required)
	won, err := tx.CompleteStage(ctx, artifact.ID, stage.Order, model.StageStatusApproved, reviewer.ID, note, s.now())
	if err != nil {
		return nil, nil, nil, err
	}
	result.StageComplete = true
	if !won {
		// 其他请求已完成推进
		return result, nil, nil, nil
	}

	transitions := []string{"approved"}
	if next, ok := wf.StageByOrder(stage.Order + 1); ok {
		opened, err := s.openStage(ctx, tx, artifact, next)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := tx.UpdateArtifactState(ctx, artifact); err != nil {
			return nil, nil, nil, err
		}
		result.Advanced = true
		result.NextStageName = next.Name
		if opened.warning != nil {
			result.Warnings = append(result.Warnings, *opened.warning)
		}
		return result, opened, append(transitions, "opened"), nil
	}

	// 最后一个阶段通过，等待项目负责人终审
	artifact.CurrentStage = nil
	artifact.Status = model.ArtifactStatusAwaitingFinalApproval
	if err := tx.UpdateArtifactState(ctx, artifact); err != nil {
		return nil, nil, nil, err
	}
	project, err := tx.GetProject(ctx, artifact.ProjectID)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := s.emit(ctx, tx, eventInput{
		kind:       mqcontracts.RoutingKeyAllStagesApproved,
		artifact:   artifact,
		stage:      &stage,
		actor:      &reviewer,
		recipients: uniqueRecipients(artifact.CreatorID, project.OwnerID),
	}); err != nil {
		return nil, nil, nil, err
	}
	result.AwaitingFinalApproval = true
	return result, nil, append(transitions, "all_approved"), nil
}
