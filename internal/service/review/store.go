package review

import (
	"context"
	"time"

	"mockupreview/internal/model"
)

// Store 评审数据的事务性存储
// InTx 内的所有读写要么全部提交，要么全部回滚；fn 返回错误即回滚
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx 一个事务内可用的操作
// Get* 在记录不存在时返回 KindNotFound 错误，Find* 返回 nil, nil
type Tx interface {
	WorkflowTx
	ProjectTx
	ArtifactTx
	ProgressTx

	// EnqueueEvent 在同一事务内写入待发布事件（outbox）
	EnqueueEvent(ctx context.Context, aggregateType string, aggregateID int64, routingKey string, payload any) error
}

type WorkflowTx interface {
	InsertWorkflow(ctx context.Context, w *model.Workflow) error
	GetWorkflow(ctx context.Context, id int64) (*model.Workflow, error)
	// LatestWorkflow 返回该 key 下版本号最大的工作流
	LatestWorkflow(ctx context.Context, key string) (*model.Workflow, error)
}

type ProjectTx interface {
	InsertProject(ctx context.Context, p *model.Project) error
	GetProject(ctx context.Context, id int64) (*model.Project, error)
	SetProjectWorkflow(ctx context.Context, projectID int64, workflowID *int64) error

	// InsertAssignment 重复时返回 KindDuplicateAssignment
	InsertAssignment(ctx context.Context, a *model.StageReviewerAssignment) error
	DeleteAssignment(ctx context.Context, projectID int64, stageOrder int, reviewerID string) (bool, error)
	FindAssignment(ctx context.Context, projectID int64, stageOrder int, reviewerID string) (*model.StageReviewerAssignment, error)
	CountAssignments(ctx context.Context, projectID int64, stageOrder int) (int, error)
	ListAssignments(ctx context.Context, projectID int64) ([]model.StageReviewerAssignment, error)
}

type ArtifactTx interface {
	InsertArtifact(ctx context.Context, a *model.Artifact) error
	GetArtifact(ctx context.Context, id int64) (*model.Artifact, error)
	// ListLiveWorkflowIDs 项目中仍在评审中的稿件所用的工作流 id，去重并升序
	ListLiveWorkflowIDs(ctx context.Context, projectID int64) ([]int64, error)
	// LockArtifact 读取并锁住稿件行直到事务结束，保证同一稿件单写者
	LockArtifact(ctx context.Context, id int64) (*model.Artifact, error)
	// UpdateArtifactState 写回 current_stage / round / status
	UpdateArtifactState(ctx context.Context, a *model.Artifact) error

	// InsertFinalApproval 已存在时返回 KindAlreadyFinalized
	InsertFinalApproval(ctx context.Context, f *model.FinalApproval) error
	FindFinalApproval(ctx context.Context, artifactID int64) (*model.FinalApproval, error)
}

type ProgressTx interface {
	InsertProgress(ctx context.Context, p *model.StageProgress) error
	GetProgress(ctx context.Context, artifactID int64, stageOrder int) (*model.StageProgress, error)
	ListProgress(ctx context.Context, artifactID int64) ([]model.StageProgress, error)
	// IncrementApprovals 仅当阶段仍为 in_review 时加一，返回 (received, required)
	// ok 为 false 表示阶段已不在评审中
	IncrementApprovals(ctx context.Context, artifactID int64, stageOrder int) (received, required int, ok bool, err error)
	// CompleteStage in_review -> to 的 CAS，只有一个调用方会得到 true
	CompleteStage(ctx context.Context, artifactID int64, stageOrder int, to, reviewedBy, notes string, at time.Time) (bool, error)
	// DeleteProgress 清空稿件的所有阶段进度（重置）
	DeleteProgress(ctx context.Context, artifactID int64) error

	// InsertApproval 违反 (artifact, round, stage, reviewer) 唯一约束时返回 KindAlreadyDecided
	InsertApproval(ctx context.Context, r *model.ApprovalRecord) error
	HasApproval(ctx context.Context, artifactID int64, round, stageOrder int, reviewerID string) (bool, error)
	CountApprovals(ctx context.Context, artifactID int64, round, stageOrder int) (int, error)
	ListApprovals(ctx context.Context, artifactID int64) ([]model.ApprovalRecord, error)
}
