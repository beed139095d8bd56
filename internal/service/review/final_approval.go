package review

import (
	"context"
	"strings"

	"go.uber.org/zap"

	mqcontracts "mockupreview/contracts/mq"
	"mockupreview/internal/model"
	"mockupreview/pkg/metrics"
	"mockupreview/pkg/otel"
)

// GrantFinalApproval 项目负责人终审
// 有工作流的稿件要求最后一个阶段已通过；没有工作流的稿件可直接终审
func (s *Service) GrantFinalApproval(ctx context.Context, artifactID int64, approver Actor, notes string) (*model.FinalApproval, error) {
	ctx, span := otel.StartSpan(ctx, "review.GrantFinalApproval")
	defer span.End()

	var approval *model.FinalApproval
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		artifact, err := tx.LockArtifact(ctx, artifactID)
		if err != nil {
			return err
		}
		project, err := tx.GetProject(ctx, artifact.ProjectID)
		if err != nil {
			return err
		}
		if project.OwnerID != approver.ID {
			return &Error{Kind: KindNotProjectOwner, Message: ErrNotProjectOwner.Message, ArtifactID: artifactID, ReviewerID: approver.ID}
		}

		existing, err := tx.FindFinalApproval(ctx, artifactID)
		if err != nil {
			return err
		}
		if existing != nil || artifact.Status == model.ArtifactStatusFinalized {
			return &Error{Kind: KindAlreadyFinalized, Message: ErrAlreadyFinalized.Message, ArtifactID: artifactID}
		}

		if artifact.WorkflowID != nil {
			wf, err := tx.GetWorkflow(ctx, *artifact.WorkflowID)
			if err != nil {
				return err
			}
			last, err := tx.GetProgress(ctx, artifactID, wf.LastStage())
			if err != nil && KindOf(err) != KindNotFound {
				return err
			}
			if last == nil || last.Status != model.StageStatusApproved {
				return &Error{Kind: KindNotAllStagesApproved, Message: ErrNotAllStagesApproved.Message, ArtifactID: artifactID, StageOrder: wf.LastStage()}
			}
		}

		approval = &model.FinalApproval{
			ArtifactID:   artifactID,
			ApproverID:   approver.ID,
			ApproverName: approver.Name,
			Notes:        strings.TrimSpace(notes),
			CreatedAt:    s.now(),
		}
		if err := tx.InsertFinalApproval(ctx, approval); err != nil {
			return err
		}

		artifact.CurrentStage = nil
		artifact.Status = model.ArtifactStatusFinalized
		if err := tx.UpdateArtifactState(ctx, artifact); err != nil {
			return err
		}

		return s.emit(ctx, tx, eventInput{
			kind:       mqcontracts.RoutingKeyFinalApprovalGranted,
			artifact:   artifact,
			actor:      &approver,
			notes:      approval.Notes,
			recipients: uniqueRecipients(artifact.CreatorID),
		})
	})
	if err != nil {
		if KindOf(err) == "" {
			otel.RecordError(span, err)
			s.log(ctx).Error("Failed to grant final approval", zap.Int64("artifact_id", artifactID), zap.Error(err))
		} else {
			s.log(ctx).Info("Final approval rejected",
				zap.Int64("artifact_id", artifactID),
				zap.String("kind", string(KindOf(err))),
			)
		}
		return nil, err
	}

	metrics.IncrementStageTransition("finalized")
	s.log(ctx).Info("Final approval granted",
		zap.Int64("artifact_id", artifactID),
		zap.String("approver_id", approver.ID),
	)
	return approval, nil
}
