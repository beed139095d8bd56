package model

import "time"

const (
	ArtifactStatusNoReview              = "no_review"
	ArtifactStatusInReview              = "in_review"
	ArtifactStatusAwaitingFinalApproval = "awaiting_final_approval"
	ArtifactStatusFinalized             = "finalized"
)

type Artifact struct {
	ID        int64  `json:"id"`
	ProjectID int64  `json:"project_id"`
	CreatorID string `json:"creator_id"`
	Title     string `json:"title"`
	// 提交时的工作流快照，之后项目换工作流不影响已提交的稿件
	WorkflowID *int64 `json:"workflow_id,omitempty"`
	// 当前 in_review 的阶段，没有时为 nil
	CurrentStage *int      `json:"current_stage,omitempty"`
	Round        int       `json:"round"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Clone 深拷贝
func (a *Artifact) Clone() *Artifact {
	c := *a
	if a.WorkflowID != nil {
		id := *a.WorkflowID
		c.WorkflowID = &id
	}
	if a.CurrentStage != nil {
		s := *a.CurrentStage
		c.CurrentStage = &s
	}
	return &c
}
