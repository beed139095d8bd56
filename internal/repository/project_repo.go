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

func (t *pgTx) InsertProject(ctx context.Context, p *model.Project) error {
	query := `
		INSERT INTO projects (name, owner_id, workflow_id, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`
	if err := t.tx.QueryRow(ctx, query, p.Name, p.OwnerID, p.WorkflowID, p.Status).
		Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return fmt.Errorf("failed to insert project: %w", err)
	}
	return nil
}

func (t *pgTx) GetProject(ctx context.Context, id int64) (*model.Project, error) {
	query := `
		SELECT id, name, owner_id, workflow_id, status, created_at, updated_at
		FROM projects
		WHERE id = $1
	`
	var p model.Project
	err := t.tx.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.Name, &p.OwnerID, &p.WorkflowID, &p.Status, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, notFoundOr(err, "project", id)
	}
	return &p, nil
}

func (t *pgTx) SetProjectWorkflow(ctx context.Context, projectID int64, workflowID *int64) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE projects SET workflow_id = $2, updated_at = NOW() WHERE id = $1`,
		projectID, workflowID,
	)
	if err != nil {
		return fmt.Errorf("failed to set project workflow: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return review.NewError(review.KindNotFound, "project %d not found", projectID)
	}
	return nil
}

func (t *pgTx) InsertAssignment(ctx context.Context, a *model.StageReviewerAssignment) error {
	query := `
		INSERT INTO stage_reviewer_assignments (project_id, stage_order, reviewer_id, reviewer_name)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`
	err := t.tx.QueryRow(ctx, query, a.ProjectID, a.StageOrder, a.ReviewerID, a.ReviewerName).Scan(&a.CreatedAt)
	if util.IsUniqueViolation(err) {
		return review.NewError(review.KindDuplicateAssignment, "reviewer %s already assigned to stage %d", a.ReviewerID, a.StageOrder)
	}
	if err != nil {
		return fmt.Errorf("failed to insert assignment: %w", err)
	}
	return nil
}

func (t *pgTx) DeleteAssignment(ctx context.Context, projectID int64, stageOrder int, reviewerID string) (bool, error) {
	tag, err := t.tx.Exec(ctx, `
		DELETE FROM stage_reviewer_assignments
		WHERE project_id = $1 AND stage_order = $2 AND reviewer_id = $3
	`, projectID, stageOrder, reviewerID)
	if err != nil {
		return false, fmt.Errorf("failed to delete assignment: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (t *pgTx) FindAssignment(ctx context.Context, projectID int64, stageOrder int, reviewerID string) (*model.StageReviewerAssignment, error) {
	query := `
		SELECT project_id, stage_order, reviewer_id, reviewer_name, created_at
		FROM stage_reviewer_assignments
		WHERE project_id = $1 AND stage_order = $2 AND reviewer_id = $3
	`
	var a model.StageReviewerAssignment
	err := t.tx.QueryRow(ctx, query, projectID, stageOrder, reviewerID).
		Scan(&a.ProjectID, &a.StageOrder, &a.ReviewerID, &a.ReviewerName, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find assignment: %w", err)
	}
	return &a, nil
}

func (t *pgTx) CountAssignments(ctx context.Context, projectID int64, stageOrder int) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM stage_reviewer_assignments
		WHERE project_id = $1 AND stage_order = $2
	`, projectID, stageOrder).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count assignments: %w", err)
	}
	return n, nil
}

func (t *pgTx) ListAssignments(ctx context.Context, projectID int64) ([]model.StageReviewerAssignment, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT project_id, stage_order, reviewer_id, reviewer_name, created_at
		FROM stage_reviewer_assignments
		WHERE project_id = $1
		ORDER BY stage_order, reviewer_id
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	defer rows.Close()

	out := []model.StageReviewerAssignment{}
	for rows.Next() {
		var a model.StageReviewerAssignment
		if err := rows.Scan(&a.ProjectID, &a.StageOrder, &a.ReviewerID, &a.ReviewerName, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
