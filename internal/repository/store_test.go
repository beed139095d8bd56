package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"mockupreview/internal/model"
	"mockupreview/internal/service/review"
	"mockupreview/pkg/outbox"
)

func newPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres container test skipped in -short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("review-test"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, Migrate(ctx, pool, zap.NewNop()))
	// 迁移可重复执行
	require.NoError(t, Migrate(ctx, pool, zap.NewNop()))
	return pool
}

func TestPostgresStore(t *testing.T) {
	pool := newPostgres(t)
	ctx := context.Background()

	outboxRepo := outbox.NewRepository(pool)
	store := NewStore(pool, outboxRepo, zap.NewNop()).WithLockTimeout(2 * time.Second)
	svc := review.NewService(store, zap.NewNop())

	alice := review.Actor{ID: "u-alice", Name: "Alice"}
	bob := review.Actor{ID: "u-bob", Name: "Bob"}
	carol := review.Actor{ID: "u-carol", Name: "Carol"}
	author := review.Actor{ID: "u-author", Name: "Arthur"}

	wf, err := svc.CreateWorkflow(ctx, "Brand review", []model.Stage{{Name: "Design"}, {Name: "Legal"}})
	require.NoError(t, err)
	project, err := svc.CreateProject(ctx, "Spring", "u-owner", &wf.ID)
	require.NoError(t, err)
	for _, a := range []struct {
		stage int
		who   review.Actor
	}{{1, alice}, {1, bob}, {2, carol}} {
		_, err := svc.Assign(ctx, project.ID, a.stage, a.who)
		require.NoError(t, err)
	}

	t.Run("duplicate assignment", func(t *testing.T) {
		_, err := svc.Assign(ctx, project.ID, 1, alice)
		assert.Equal(t, review.KindDuplicateAssignment, review.KindOf(err))
	})

	t.Run("workflow versions", func(t *testing.T) {
		v2, err := svc.ReviseWorkflow(ctx, wf.ID, "", []model.Stage{{Name: "Design"}})
		require.NoError(t, err)
		latest, err := svc.LatestWorkflow(ctx, wf.Key)
		require.NoError(t, err)
		assert.Equal(t, v2.ID, latest.ID)
		assert.Equal(t, 2, latest.Version)
	})

	t.Run("design legal scenario", func(t *testing.T) {
		sub, err := svc.SubmitArtifact(ctx, project.ID, author, "Hero")
		require.NoError(t, err)
		id := sub.Artifact.ID

		decide := func(stage int, who review.Actor, action model.Action, notes string) (*review.DecisionResult, error) {
			return svc.RecordDecision(ctx, review.DecisionRequest{ArtifactID: id, StageOrder: stage, Reviewer: who, Action: action, Notes: notes})
		}

		res, err := decide(1, alice, model.ActionApprove, "")
		require.NoError(t, err)
		assert.Equal(t, 1, res.ApprovalsReceived)

		_, err = decide(1, alice, model.ActionApprove, "")
		assert.Equal(t, review.KindAlreadyDecided, review.KindOf(err))

		res, err = decide(1, bob, model.ActionApprove, "")
		require.NoError(t, err)
		assert.True(t, res.Advanced)

		res, err = decide(2, carol, model.ActionRequestChanges, "fix logo contrast")
		require.NoError(t, err)
		assert.True(t, res.Reset)

		view, err := svc.GetProgress(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 2, view.Round)
		assert.Equal(t, model.StageStatusInReview, view.Stages[0].Status)
		assert.Equal(t, 0, view.Stages[0].ApprovalsReceived)
		assert.Equal(t, model.StageStatusPending, view.Stages[1].Status)

		records, err := svc.ListDecisions(ctx, id)
		require.NoError(t, err)
		assert.Len(t, records, 3)

		report, err := svc.Reconcile(ctx, id)
		require.NoError(t, err)
		assert.True(t, report.Consistent)
	})

	t.Run("stages of older version stay assignable", func(t *testing.T) {
		v2, err := svc.LatestWorkflow(ctx, wf.Key)
		require.NoError(t, err)
		require.Len(t, v2.Stages, 1)

		_, err = svc.SetProjectWorkflow(ctx, project.ID, &v2.ID)
		require.NoError(t, err)
		t.Cleanup(func() {
			_, err := svc.SetProjectWorkflow(ctx, project.ID, &wf.ID)
			require.NoError(t, err)
		})

		// 上一个子测试的稿件仍按 v1 评审
		dave := review.Actor{ID: "u-dave", Name: "Dave"}
		_, err = svc.Assign(ctx, project.ID, 2, dave)
		require.NoError(t, err)
		require.NoError(t, svc.Unassign(ctx, project.ID, 2, dave.ID))

		_, err = svc.Assign(ctx, project.ID, 3, dave)
		assert.Equal(t, review.KindInvalidStage, review.KindOf(err))
	})

	t.Run("concurrent approvals advance once", func(t *testing.T) {
		sub, err := svc.SubmitArtifact(ctx, project.ID, author, "Banner")
		require.NoError(t, err)

		var wg sync.WaitGroup
		results := make([]*review.DecisionResult, 2)
		errs := make([]error, 2)
		for i, who := range []review.Actor{alice, bob} {
			wg.Add(1)
			go func(i int, who review.Actor) {
				defer wg.Done()
				results[i], errs[i] = svc.RecordDecision(ctx, review.DecisionRequest{
					ArtifactID: sub.Artifact.ID, StageOrder: 1, Reviewer: who, Action: model.ActionApprove,
				})
			}(i, who)
		}
		wg.Wait()

		advanced := 0
		for i := range results {
			require.NoError(t, errs[i])
			if results[i].Advanced {
				advanced++
			}
		}
		assert.Equal(t, 1, advanced)

		view, err := svc.GetProgress(ctx, sub.Artifact.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, *view.CurrentStage)
	})

	t.Run("outbox holds committed events", func(t *testing.T) {
		pending, err := outboxRepo.GetPendingEvents(ctx, 100)
		require.NoError(t, err)
		require.NotEmpty(t, pending)
		require.NoError(t, outboxRepo.MarkAsSent(ctx, pending[0].ID))

		ev, err := outboxRepo.GetEventByID(ctx, pending[0].ID)
		require.NoError(t, err)
		assert.Equal(t, outbox.StatusSent, ev.Status)
	})
}

func TestNotificationLogRepository(t *testing.T) {
	pool := newPostgres(t)
	ctx := context.Background()
	repo := NewNotificationLogRepository(pool)

	entry := &model.NotificationLog{EventID: "evt-1", EventKind: "review.stage_opened", RecipientID: "u1", Channel: "log", Status: "failed", Error: "timeout"}
	require.NoError(t, repo.Upsert(ctx, entry))
	done, err := repo.Delivered(ctx, "evt-1", "u1")
	require.NoError(t, err)
	assert.False(t, done)

	entry.Status = "sent"
	entry.Error = ""
	require.NoError(t, repo.Upsert(ctx, entry))
	done, err = repo.Delivered(ctx, "evt-1", "u1")
	require.NoError(t, err)
	assert.True(t, done)
}
