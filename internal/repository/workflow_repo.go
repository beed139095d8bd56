package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"mockupreview/internal/model"
	"mockupreview/internal/service/review"
	"mockupreview/pkg/util"
)

const workflowColumns = `id, workflow_key, version, name, stages, created_at`

func (t *pgTx) InsertWorkflow(ctx context.Context, w *model.Workflow) error {
	stages, err := json.Marshal(w.Stages)
	if err != nil {
		return fmt.Errorf("failed to marshal stages: %w", err)
	}

	query := `
		INSERT INTO workflows (workflow_key, version, name, stages)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	err = t.tx.QueryRow(ctx, query, w.Key, w.Version, w.Name, stages).Scan(&w.ID, &w.CreatedAt)
	if util.IsUniqueViolation(err) {
		return review.NewError(review.KindInvalidWorkflow, "workflow %s version %d already exists", w.Key, w.Version)
	}
	if err != nil {
		return fmt.Errorf("failed to insert workflow: %w", err)
	}
	return nil
}

func scanWorkflow(row pgx.Row) (*model.Workflow, error) {
	var (
		w      model.Workflow
		stages []byte
	)
	if err := row.Scan(&w.ID, &w.Key, &w.Version, &w.Name, &stages, &w.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(stages, &w.Stages); err != nil {
		return nil, fmt.Errorf("failed to decode stages of workflow %d: %w", w.ID, err)
	}
	return &w, nil
}

func (t *pgTx) GetWorkflow(ctx context.Context, id int64) (*model.Workflow, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+workflowColumns+` FROM workflows WHERE id = $1`, id)
	w, err := scanWorkflow(row)
	if err != nil {
		return nil, notFoundOr(err, "workflow", id)
	}
	return w, nil
}

func (t *pgTx) LatestWorkflow(ctx context.Context, key string) (*model.Workflow, error) {
	query := `SELECT ` + workflowColumns + `
		FROM workflows
		WHERE workflow_key = $1
		ORDER BY version DESC
		LIMIT 1
	`
	w, err := scanWorkflow(t.tx.QueryRow(ctx, query, key))
	if err != nil {
		return nil, notFoundOr(err, "workflow", key)
	}
	return w, nil
}
