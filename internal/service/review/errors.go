package review

import (
	"errors"
	"fmt"
)

// Kind 评审流程的错误类别，调用方按 kind 分支处理
type Kind string

const (
	KindNotAReviewer            Kind = "NOT_A_REVIEWER"
	KindStageNotActive          Kind = "STAGE_NOT_ACTIVE"
	KindAlreadyDecided          Kind = "ALREADY_DECIDED"
	KindInvalidStage            Kind = "INVALID_STAGE"
	KindMissingNotesOnRejection Kind = "MISSING_NOTES_ON_REJECTION"
	KindAlreadyFinalized        Kind = "ALREADY_FINALIZED"
	KindNotAllStagesApproved    Kind = "NOT_ALL_STAGES_APPROVED"
	KindZeroQuorumStage         Kind = "ZERO_QUORUM_STAGE"
	KindDuplicateAssignment     Kind = "DUPLICATE_ASSIGNMENT"
	KindInvalidWorkflow         Kind = "INVALID_WORKFLOW"
	KindInvalidAction           Kind = "INVALID_ACTION"
	KindNotProjectOwner         Kind = "NOT_PROJECT_OWNER"
	KindNotFound                Kind = "NOT_FOUND"
)

// Benign 并发多人评审下的正常结果，展示给用户时不应当作失败
func (k Kind) Benign() bool {
	return k == KindAlreadyDecided || k == KindStageNotActive
}

// Error 评审流程的类型化错误
type Error struct {
	Kind    Kind
	Message string

	ArtifactID int64
	StageOrder int
	ReviewerID string
}

func (e *Error) Error() string {
	switch {
	case e.ArtifactID != 0 && e.StageOrder != 0:
		return fmt.Sprintf("%s: %s (artifact=%d, stage=%d)", e.Kind, e.Message, e.ArtifactID, e.StageOrder)
	case e.ArtifactID != 0:
		return fmt.Sprintf("%s: %s (artifact=%d)", e.Kind, e.Message, e.ArtifactID)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is 同 kind 即匹配，使 errors.Is(err, ErrAlreadyDecided) 对带上下文的错误也成立
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// 每个 kind 的哨兵值，用于 errors.Is
var (
	ErrNotAReviewer            = &Error{Kind: KindNotAReviewer, Message: "reviewer is not assigned to this stage"}
	ErrStageNotActive          = &Error{Kind: KindStageNotActive, Message: "stage is not in review"}
	ErrAlreadyDecided          = &Error{Kind: KindAlreadyDecided, Message: "decision already recorded"}
	ErrInvalidStage            = &Error{Kind: KindInvalidStage, Message: "stage is not part of the workflow"}
	ErrMissingNotesOnRejection = &Error{Kind: KindMissingNotesOnRejection, Message: "notes are required when requesting changes"}
	ErrAlreadyFinalized        = &Error{Kind: KindAlreadyFinalized, Message: "final approval already granted"}
	ErrNotAllStagesApproved    = &Error{Kind: KindNotAllStagesApproved, Message: "not all stages are approved"}
	ErrZeroQuorumStage         = &Error{Kind: KindZeroQuorumStage, Message: "stage has no assigned reviewers"}
	ErrDuplicateAssignment     = &Error{Kind: KindDuplicateAssignment, Message: "reviewer already assigned to this stage"}
	ErrInvalidWorkflow         = &Error{Kind: KindInvalidWorkflow, Message: "invalid workflow definition"}
	ErrInvalidAction           = &Error{Kind: KindInvalidAction, Message: "unknown review action"}
	ErrNotProjectOwner         = &Error{Kind: KindNotProjectOwner, Message: "only the project owner can grant final approval"}
	ErrNotFound                = &Error{Kind: KindNotFound, Message: "not found"}
)

// NewError 构造带消息的错误
func NewError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// stageError 构造带稿件与阶段上下文的错误
func stageError(sentinel *Error, artifactID int64, stageOrder int, reviewerID string) *Error {
	return &Error{
		Kind:       sentinel.Kind,
		Message:    sentinel.Message,
		ArtifactID: artifactID,
		StageOrder: stageOrder,
		ReviewerID: reviewerID,
	}
}

// KindOf 提取错误的 kind；非评审错误返回空串
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsBenign 是否为 AlreadyDecided / StageNotActive
func IsBenign(err error) bool {
	return KindOf(err).Benign()
}
