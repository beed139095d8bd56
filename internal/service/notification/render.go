package notification

import (
	"fmt"

	mqcontracts "mockupreview/contracts/mq"
)

// Render 生成通知标题与正文
func Render(p mqcontracts.ReviewEventPayload) (subject, body string) {
	switch p.Kind {
	case mqcontracts.RoutingKeyStageOpened:
		subject = fmt.Sprintf("Review requested: %s", p.ArtifactTitle)
		body = fmt.Sprintf("Stage %q is ready for your review (round %d).", p.StageName, p.Round)
	case mqcontracts.RoutingKeyChangesRequested:
		subject = fmt.Sprintf("Changes requested: %s", p.ArtifactTitle)
		body = fmt.Sprintf("%s requested changes at stage %q: %s", actorName(p), p.StageName, p.Notes)
	case mqcontracts.RoutingKeyAllStagesApproved:
		subject = fmt.Sprintf("All stages approved: %s", p.ArtifactTitle)
		body = "Every review stage has been approved. The project owner can now grant final approval."
	case mqcontracts.RoutingKeyFinalApprovalGranted:
		subject = fmt.Sprintf("Final approval granted: %s", p.ArtifactTitle)
		body = fmt.Sprintf("%s granted final approval.", actorName(p))
		if p.Notes != "" {
			body += " " + p.Notes
		}
	default:
		subject = fmt.Sprintf("Review update: %s", p.ArtifactTitle)
		body = p.Kind
	}
	return subject, body
}

func actorName(p mqcontracts.ReviewEventPayload) string {
	if p.ActorName != "" {
		return p.ActorName
	}
	if p.ActorID != "" {
		return p.ActorID
	}
	return "A reviewer"
}
