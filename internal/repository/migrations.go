package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"mockupreview/pkg/outbox"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS workflows (
		id           BIGSERIAL PRIMARY KEY,
		workflow_key UUID        NOT NULL,
		version      INT         NOT NULL,
		name         TEXT        NOT NULL,
		stages       JSONB       NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (workflow_key, version)
	);`,
	`CREATE TABLE IF NOT EXISTS projects (
		id          BIGSERIAL PRIMARY KEY,
		name        TEXT        NOT NULL,
		owner_id    TEXT        NOT NULL,
		workflow_id BIGINT REFERENCES workflows(id),
		status      TEXT        NOT NULL DEFAULT 'active',
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE TABLE IF NOT EXISTS stage_reviewer_assignments (
		project_id    BIGINT      NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		stage_order   INT         NOT NULL,
		reviewer_id   TEXT        NOT NULL,
		reviewer_name TEXT        NOT NULL DEFAULT '',
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (project_id, stage_order, reviewer_id)
	);`,
	`CREATE TABLE IF NOT EXISTS artifacts (
		id            BIGSERIAL PRIMARY KEY,
		project_id    BIGINT      NOT NULL REFERENCES projects(id),
		creator_id    TEXT        NOT NULL,
		title         TEXT        NOT NULL,
		workflow_id   BIGINT REFERENCES workflows(id),
		current_stage INT,
		round         INT         NOT NULL DEFAULT 1,
		status        TEXT        NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_artifacts_project_status
		ON artifacts (project_id, status);`,
	`CREATE TABLE IF NOT EXISTS stage_progress (
		artifact_id        BIGINT      NOT NULL REFERENCES artifacts(id) ON DELETE CASCADE,
		stage_order        INT         NOT NULL,
		status             TEXT        NOT NULL,
		approvals_required INT         NOT NULL,
		approvals_received INT         NOT NULL DEFAULT 0,
		reviewed_by        TEXT        NOT NULL DEFAULT '',
		reviewed_at        TIMESTAMPTZ,
		notes              TEXT        NOT NULL DEFAULT '',
		opened_at          TIMESTAMPTZ,
		PRIMARY KEY (artifact_id, stage_order)
	);`,
	// 同一稿件最多一个 in_review 阶段
	`CREATE UNIQUE INDEX IF NOT EXISTS uniq_stage_progress_in_review
		ON stage_progress (artifact_id) WHERE status = 'in_review';`,
	`CREATE TABLE IF NOT EXISTS approval_records (
		id            BIGSERIAL PRIMARY KEY,
		artifact_id   BIGINT      NOT NULL REFERENCES artifacts(id) ON DELETE CASCADE,
		round         INT         NOT NULL,
		stage_order   INT         NOT NULL,
		reviewer_id   TEXT        NOT NULL,
		reviewer_name TEXT        NOT NULL DEFAULT '',
		action        TEXT        NOT NULL CHECK (action IN ('approve', 'request_changes')),
		notes         TEXT        NOT NULL DEFAULT '',
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (artifact_id, round, stage_order, reviewer_id)
	);`,
	`CREATE TABLE IF NOT EXISTS final_approvals (
		artifact_id   BIGINT PRIMARY KEY REFERENCES artifacts(id) ON DELETE CASCADE,
		approver_id   TEXT        NOT NULL,
		approver_name TEXT        NOT NULL DEFAULT '',
		notes         TEXT        NOT NULL DEFAULT '',
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE TABLE IF NOT EXISTS notification_log (
		id           BIGSERIAL PRIMARY KEY,
		event_id     TEXT        NOT NULL,
		event_kind   TEXT        NOT NULL,
		recipient_id TEXT        NOT NULL,
		channel      TEXT        NOT NULL,
		status       TEXT        NOT NULL,
		error        TEXT        NOT NULL DEFAULT '',
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (event_id, recipient_id)
	);`,
	outbox.Schema,
}

// Migrate 建表，可重复执行
func Migrate(ctx context.Context, db *pgxpool.Pool, logger *zap.Logger) error {
	for i, stmt := range migrations {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}
	logger.Info("Database migrations applied", zap.Int("statements", len(migrations)))
	return nil
}
