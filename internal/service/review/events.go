package review

import (
	"context"
	"fmt"

	mqcontracts "mockupreview/contracts/mq"
	"mockupreview/internal/model"
	"mockupreview/pkg/trace"
)

const aggregateArtifact = "artifact"

// eventInput 一次事件的上下文
type eventInput struct {
	kind       string
	artifact   *model.Artifact
	stage      *model.Stage
	actor      *Actor
	notes      string
	recipients []mqcontracts.Recipient
}

// emit 把事件写入当前事务的 outbox，提交后由 Dispatcher 发布
func (s *Service) emit(ctx context.Context, tx Tx, in eventInput) error {
	payload := mqcontracts.ReviewEventPayload{
		EventID:       s.newEventID(),
		TraceID:       trace.FromContext(ctx),
		Kind:          in.kind,
		ArtifactID:    in.artifact.ID,
		ArtifactTitle: in.artifact.Title,
		ProjectID:     in.artifact.ProjectID,
		Round:         in.artifact.Round,
		Notes:         in.notes,
		Recipients:    in.recipients,
		OccurredAt:    s.now(),
	}
	if payload.Recipients == nil {
		payload.Recipients = []mqcontracts.Recipient{}
	}
	if in.stage != nil {
		payload.StageOrder = in.stage.Order
		payload.StageName = in.stage.Name
	}
	if in.actor != nil {
		payload.ActorID = in.actor.ID
		payload.ActorName = in.actor.Name
	}

	if err := tx.EnqueueEvent(ctx, aggregateArtifact, in.artifact.ID, in.kind, payload); err != nil {
		return fmt.Errorf("enqueue %s event: %w", in.kind, err)
	}
	return nil
}

// stageRecipients 某阶段当前登记的评审人
func stageRecipients(assignments []model.StageReviewerAssignment, stageOrder int) []mqcontracts.Recipient {
	var out []mqcontracts.Recipient
	for _, a := range assignments {
		if a.StageOrder == stageOrder {
			out = append(out, mqcontracts.Recipient{ID: a.ReviewerID, Name: a.ReviewerName})
		}
	}
	return out
}

// uniqueRecipients 按 id 去重，保持顺序
func uniqueRecipients(ids ...string) []mqcontracts.Recipient {
	seen := make(map[string]struct{}, len(ids))
	out := make([]mqcontracts.Recipient, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, mqcontracts.Recipient{ID: id})
	}
	return out
}
