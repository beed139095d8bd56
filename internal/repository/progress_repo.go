package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"mockupreview/internal/model"
	"mockupreview/internal/service/review"
	"mockupreview/pkg/util"
)

const progressColumns = `artifact_id, stage_order, status, approvals_required, approvals_received,
	reviewed_by, reviewed_at, notes, opened_at`

func scanProgress(row pgx.Row) (*model.StageProgress, error) {
	var p model.StageProgress
	err := row.Scan(
		&p.ArtifactID,
		&p.StageOrder,
		&p.Status,
		&p.ApprovalsRequired,
		&p.ApprovalsReceived,
		&p.ReviewedBy,
		&p.ReviewedAt,
		&p.Notes,
		&p.OpenedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (t *pgTx) InsertProgress(ctx context.Context, p *model.StageProgress) error {
	query := `
		INSERT INTO stage_progress (artifact_id, stage_order, status, approvals_required, approvals_received, opened_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := t.tx.Exec(ctx, query,
		p.ArtifactID, p.StageOrder, p.Status, p.ApprovalsRequired, p.ApprovalsReceived, p.OpenedAt,
	)
	if util.IsUniqueViolation(err) {
		return review.NewError(review.KindStageNotActive, "artifact %d already has an open stage", p.ArtifactID)
	}
	if err != nil {
		return fmt.Errorf("failed to insert stage progress: %w", err)
	}
	return nil
}

func (t *pgTx) GetProgress(ctx context.Context, artifactID int64, stageOrder int) (*model.StageProgress, error) {
	query := `SELECT ` + progressColumns + ` FROM stage_progress WHERE artifact_id = $1 AND stage_order = $2`
	p, err := scanProgress(t.tx.QueryRow(ctx, query, artifactID, stageOrder))
	if err != nil {
		return nil, notFoundOr(err, "stage progress", stageOrder)
	}
	return p, nil
}

func (t *pgTx) ListProgress(ctx context.Context, artifactID int64) ([]model.StageProgress, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT `+progressColumns+` FROM stage_progress WHERE artifact_id = $1 ORDER BY stage_order`,
		artifactID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list stage progress: %w", err)
	}
	defer rows.Close()

	out := []model.StageProgress{}
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stage progress: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// IncrementApprovals 条件更新 + RETURNING，阶段已离开 in_review 时不返回行
func (t *pgTx) IncrementApprovals(ctx context.Context, artifactID int64, stageOrder int) (int, int, bool, error) {
	query := `
		UPDATE stage_progress
		SET approvals_received = approvals_received + 1
		WHERE artifact_id = $1 AND stage_order = $2 AND status = 'in_review'
		RETURNING approvals_received, approvals_required
	`
	var received, required int
	err := t.tx.QueryRow(ctx, query, artifactID, stageOrder).Scan(&received, &required)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, 0, false, nil
	}
	if err != nil {
		return 0, 0, false, fmt.Errorf("failed to increment approvals: %w", err)
	}
	return received, required, true, nil
}

// CompleteStage in_review -> to；受影响行数为 0 说明别的请求已经完成了这次流转
func (t *pgTx) CompleteStage(ctx context.Context, artifactID int64, stageOrder int, to, reviewedBy, notes string, at time.Time) (bool, error) {
	query := `
		UPDATE stage_progress
		SET status = $3, reviewed_by = $4, notes = $5, reviewed_at = $6
		WHERE artifact_id = $1 AND stage_order = $2 AND status = 'in_review'
	`
	tag, err := t.tx.Exec(ctx, query, artifactID, stageOrder, to, reviewedBy, notes, at)
	if err != nil {
		return false, fmt.Errorf("failed to complete stage: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (t *pgTx) DeleteProgress(ctx context.Context, artifactID int64) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM stage_progress WHERE artifact_id = $1`, artifactID); err != nil {
		return fmt.Errorf("failed to reset stage progress: %w", err)
	}
	return nil
}
