package mq

import "time"

// 评审事件 routing key
const (
	RoutingKeyStageOpened          = "review.stage_opened"
	RoutingKeyChangesRequested     = "review.changes_requested"
	RoutingKeyAllStagesApproved    = "review.all_stages_approved"
	RoutingKeyFinalApprovalGranted = "review.final_approval_granted"
)

// ReviewRoutingKeys 全部评审事件，worker 按此列表为每类事件建队列
var ReviewRoutingKeys = []string{
	RoutingKeyStageOpened,
	RoutingKeyChangesRequested,
	RoutingKeyAllStagesApproved,
	RoutingKeyFinalApprovalGranted,
}

// Recipient 通知接收人
type Recipient struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// ReviewEventPayload 所有评审事件共用的 payload
type ReviewEventPayload struct {
	EventID       string      `json:"event_id"`
	TraceID       string      `json:"trace_id,omitempty"`
	Kind          string      `json:"kind"`
	ArtifactID    int64       `json:"artifact_id"`
	ArtifactTitle string      `json:"artifact_title"`
	ProjectID     int64       `json:"project_id"`
	Round         int         `json:"round"`
	StageOrder    int         `json:"stage_order,omitempty"`
	StageName     string      `json:"stage_name,omitempty"`
	ActorID       string      `json:"actor_id,omitempty"`
	ActorName     string      `json:"actor_name,omitempty"`
	Notes         string      `json:"notes,omitempty"`
	Recipients    []Recipient `json:"recipients"`
	OccurredAt    time.Time   `json:"occurred_at"`
}
