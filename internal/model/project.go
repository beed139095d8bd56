package model

import "time"

const (
	ProjectStatusActive   = "active"
	ProjectStatusArchived = "archived"
)

type Project struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	OwnerID    string    `json:"owner_id"`
	WorkflowID *int64    `json:"workflow_id,omitempty"` // nil 表示不走分阶段评审
	Status     string    `json:"status"`                // active / archived
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// StageReviewerAssignment (project, stage, reviewer) 唯一
type StageReviewerAssignment struct {
	ProjectID    int64     `json:"project_id"`
	StageOrder   int       `json:"stage_order"`
	ReviewerID   string    `json:"reviewer_id"`
	ReviewerName string    `json:"reviewer_name,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
