package repository

import (
	"context"
	"fmt"

	"mockupreview/internal/model"
	"mockupreview/internal/service/review"
	"mockupreview/pkg/util"
)

// InsertApproval 唯一约束 (artifact_id, round, stage_order, reviewer_id) 是防重复计数的最终保障
func (t *pgTx) InsertApproval(ctx context.Context, r *model.ApprovalRecord) error {
	query := `
		INSERT INTO approval_records (artifact_id, round, stage_order, reviewer_id, reviewer_name, action, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`
	err := t.tx.QueryRow(ctx, query,
		r.ArtifactID, r.Round, r.StageOrder, r.ReviewerID, r.ReviewerName, string(r.Action), r.Notes, r.CreatedAt,
	).Scan(&r.ID)
	if util.IsUniqueViolation(err) {
		return review.NewError(review.KindAlreadyDecided, "reviewer %s already decided on stage %d", r.ReviewerID, r.StageOrder)
	}
	if err != nil {
		return fmt.Errorf("failed to insert approval record: %w", err)
	}
	return nil
}

func (t *pgTx) HasApproval(ctx context.Context, artifactID int64, round, stageOrder int, reviewerID string) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM approval_records
			WHERE artifact_id = $1 AND round = $2 AND stage_order = $3 AND reviewer_id = $4
		)
	`, artifactID, round, stageOrder, reviewerID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check approval record: %w", err)
	}
	return exists, nil
}

func (t *pgTx) CountApprovals(ctx context.Context, artifactID int64, round, stageOrder int) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM approval_records
		WHERE artifact_id = $1 AND round = $2 AND stage_order = $3 AND action = 'approve'
	`, artifactID, round, stageOrder).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count approvals: %w", err)
	}
	return n, nil
}

func (t *pgTx) ListApprovals(ctx context.Context, artifactID int64) ([]model.ApprovalRecord, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id, artifact_id, round, stage_order, reviewer_id, reviewer_name, action, notes, created_at
		FROM approval_records
		WHERE artifact_id = $1
		ORDER BY id
	`, artifactID)
	if err != nil {
		return nil, fmt.Errorf("failed to list approval records: %w", err)
	}
	defer rows.Close()

	out := []model.ApprovalRecord{}
	for rows.Next() {
		var (
			r      model.ApprovalRecord
			action string
		)
		if err := rows.Scan(&r.ID, &r.ArtifactID, &r.Round, &r.StageOrder, &r.ReviewerID, &r.ReviewerName, &action, &r.Notes, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan approval record: %w", err)
		}
		r.Action = model.Action(action)
		out = append(out, r)
	}
	return out, rows.Err()
}
