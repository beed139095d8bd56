package model

import "time"

const (
	StageStatusPending          = "pending"
	StageStatusInReview         = "in_review"
	StageStatusApproved         = "approved"
	StageStatusChangesRequested = "changes_requested"
)

// StageProgress 每个 (artifact, stage) 一行；同一稿件最多一行 in_review
type StageProgress struct {
	ArtifactID        int64      `json:"artifact_id"`
	StageOrder        int        `json:"stage_order"`
	StageName         string     `json:"stage_name,omitempty"`
	Status            string     `json:"status"`
	ApprovalsRequired int        `json:"approvals_required"`
	ApprovalsReceived int        `json:"approvals_received"`
	ReviewedBy        string     `json:"reviewed_by,omitempty"`
	ReviewedAt        *time.Time `json:"reviewed_at,omitempty"`
	Notes             string     `json:"notes,omitempty"`
	OpenedAt          *time.Time `json:"opened_at,omitempty"`
}

type Action string

const (
	ActionApprove        Action = "approve"
	ActionRequestChanges Action = "request_changes"
)

func (a Action) Valid() bool {
	return a == ActionApprove || a == ActionRequestChanges
}

// ApprovalRecord 只追加；(artifact, round, stage, reviewer) 唯一
type ApprovalRecord struct {
	ID           int64     `json:"id"`
	ArtifactID   int64     `json:"artifact_id"`
	Round        int       `json:"round"`
	StageOrder   int       `json:"stage_order"`
	ReviewerID   string    `json:"reviewer_id"`
	ReviewerName string    `json:"reviewer_name,omitempty"`
	Action       Action    `json:"action"`
	Notes        string    `json:"notes,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type FinalApproval struct {
	ArtifactID   int64     `json:"artifact_id"`
	ApproverID   string    `json:"approver_id"`
	ApproverName string    `json:"approver_name,omitempty"`
	Notes        string    `json:"notes,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// NotificationLog 通知投递记录，(event_id, recipient_id) 唯一
type NotificationLog struct {
	ID          int64     `json:"id"`
	EventID     string    `json:"event_id"`
	EventKind   string    `json:"event_kind"`
	RecipientID string    `json:"recipient_id"`
	Channel     string    `json:"channel"`
	Status      string    `json:"status"` // sent / failed
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
