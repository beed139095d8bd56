package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"mockupreview/internal/model"
	"mockupreview/internal/service/review"
	"mockupreview/pkg/util"
)

const artifactColumns = `id, project_id, creator_id, title, workflow_id, current_stage, round, status, created_at, updated_at`

func scanArtifact(row pgx.Row) (*model.Artifact, error) {
	var a model.Artifact
	err := row.Scan(
		&a.ID,
		&a.ProjectID,
		&a.CreatorID,
		&a.Title,
		&a.WorkflowID,
		&a.CurrentStage,
		&a.Round,
		&a.Status,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (t *pgTx) InsertArtifact(ctx context.Context, a *model.Artifact) error {
	query := `
		INSERT INTO artifacts (project_id, creator_id, title, workflow_id, current_stage, round, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`
	err := t.tx.QueryRow(ctx, query,
		a.ProjectID, a.CreatorID, a.Title, a.WorkflowID, a.CurrentStage, a.Round, a.Status,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert artifact: %w", err)
	}
	return nil
}

func (t *pgTx) GetArtifact(ctx context.Context, id int64) (*model.Artifact, error) {
	a, err := scanArtifact(t.tx.QueryRow(ctx, `SELECT `+artifactColumns+` FROM artifacts WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundOr(err, "artifact", id)
	}
	return a, nil
}

func (t *pgTx) ListLiveWorkflowIDs(ctx context.Context, projectID int64) ([]int64, error) {
	query := `
		SELECT DISTINCT workflow_id
		FROM artifacts
		WHERE project_id = $1 AND status = $2 AND workflow_id IS NOT NULL
		ORDER BY workflow_id
	`
	rows, err := t.tx.Query(ctx, query, projectID, model.ArtifactStatusInReview)
	if err != nil {
		return nil, fmt.Errorf("failed to list live workflows: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("failed to scan live workflows: %w", err)
	}
	return ids, nil
}

// LockArtifact SELECT ... FOR UPDATE，同一稿件的决定在此串行
func (t *pgTx) LockArtifact(ctx context.Context, id int64) (*model.Artifact, error) {
	a, err := scanArtifact(t.tx.QueryRow(ctx, `SELECT `+artifactColumns+` FROM artifacts WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, notFoundOr(err, "artifact", id)
	}
	return a, nil
}

func (t *pgTx) UpdateArtifactState(ctx context.Context, a *model.Artifact) error {
	query := `
		UPDATE artifacts
		SET current_stage = $2, round = $3, status = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	err := t.tx.QueryRow(ctx, query, a.ID, a.CurrentStage, a.Round, a.Status).Scan(&a.UpdatedAt)
	if err != nil {
		return notFoundOr(err, "artifact", a.ID)
	}
	return nil
}

func (t *pgTx) InsertFinalApproval(ctx context.Context, f *model.FinalApproval) error {
	query := `
		INSERT INTO final_approvals (artifact_id, approver_id, approver_name, notes)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`
	err := t.tx.QueryRow(ctx, query, f.ArtifactID, f.ApproverID, f.ApproverName, f.Notes).Scan(&f.CreatedAt)
	if util.IsUniqueViolation(err) {
		return review.NewError(review.KindAlreadyFinalized, "artifact %d already finalized", f.ArtifactID)
	}
	if err != nil {
		return fmt.Errorf("failed to insert final approval: %w", err)
	}
	return nil
}

func (t *pgTx) FindFinalApproval(ctx context.Context, artifactID int64) (*model.FinalApproval, error) {
	query := `
		SELECT artifact_id, approver_id, approver_name, notes, created_at
		FROM final_approvals
		WHERE artifact_id = $1
	`
	var f model.FinalApproval
	err := t.tx.QueryRow(ctx, query, artifactID).
		Scan(&f.ArtifactID, &f.ApproverID, &f.ApproverName, &f.Notes, &f.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find final approval: %w", err)
	}
	return &f, nil
}
