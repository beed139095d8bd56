package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mockupreview/internal/model"
	"mockupreview/internal/service/review"
	"mockupreview/pkg/outbox"
)

type flakyPublisher struct {
	err  error
	keys []string
}

func (p *flakyPublisher) PublishWithContext(ctx context.Context, routingKey string, payload any) error {
	if p.err != nil {
		return p.err
	}
	p.keys = append(p.keys, routingKey)
	return nil
}

func enqueue(t *testing.T, s *Store, routingKey string) {
	t.Helper()
	err := s.InTx(context.Background(), func(ctx context.Context, tx review.Tx) error {
		return tx.EnqueueEvent(ctx, "artifact", 1, routingKey, map[string]string{"trace_id": "t-1"})
	})
	require.NoError(t, err)
}

func TestInTx_RollsBackOnError(t *testing.T) {
	s := NewStore()
	boom := errors.New("boom")

	err := s.InTx(context.Background(), func(ctx context.Context, tx review.Tx) error {
		require.NoError(t, tx.InsertProject(ctx, &model.Project{Name: "p", OwnerID: "o"}))
		require.NoError(t, tx.EnqueueEvent(ctx, "artifact", 1, "review.stage_opened", map[string]int{}))
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, s.Events())

	err = s.InTx(context.Background(), func(ctx context.Context, tx review.Tx) error {
		_, err := tx.GetProject(ctx, 1)
		return err
	})
	assert.Equal(t, review.KindNotFound, review.KindOf(err))
}

func TestInTx_RollbackRestoresTouchedRows(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	var projectID int64
	err := s.InTx(ctx, func(ctx context.Context, tx review.Tx) error {
		wf := &model.Workflow{Key: "k", Version: 1, Name: "wf", Stages: []model.Stage{{Order: 1, Name: "Design"}}}
		require.NoError(t, tx.InsertWorkflow(ctx, wf))
		p := &model.Project{Name: "p", OwnerID: "o", WorkflowID: &wf.ID}
		require.NoError(t, tx.InsertProject(ctx, p))
		projectID = p.ID
		require.NoError(t, tx.InsertAssignment(ctx, &model.StageReviewerAssignment{ProjectID: p.ID, StageOrder: 1, ReviewerID: "alice"}))
		require.NoError(t, tx.InsertProgress(ctx, &model.StageProgress{ArtifactID: 1, StageOrder: 1, Status: model.StageStatusInReview, ApprovalsRequired: 1}))
		return tx.EnqueueEvent(ctx, "artifact", 1, "review.stage_opened", map[string]int{})
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = s.InTx(ctx, func(ctx context.Context, tx review.Tx) error {
		require.NoError(t, tx.SetProjectWorkflow(ctx, projectID, nil))
		removed, err := tx.DeleteAssignment(ctx, projectID, 1, "alice")
		require.NoError(t, err)
		require.True(t, removed)
		_, _, ok, err := tx.IncrementApprovals(ctx, 1, 1)
		require.NoError(t, err)
		require.True(t, ok)
		require.NoError(t, tx.DeleteProgress(ctx, 1))
		require.NoError(t, tx.InsertProject(ctx, &model.Project{Name: "other", OwnerID: "o"}))
		require.NoError(t, tx.EnqueueEvent(ctx, "artifact", 1, "review.changes_requested", map[string]int{}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = s.InTx(ctx, func(ctx context.Context, tx review.Tx) error {
		p, err := tx.GetProject(ctx, projectID)
		require.NoError(t, err)
		assert.NotNil(t, p.WorkflowID)

		a, err := tx.FindAssignment(ctx, projectID, 1, "alice")
		require.NoError(t, err)
		assert.NotNil(t, a)

		progress, err := tx.GetProgress(ctx, 1, 1)
		require.NoError(t, err)
		assert.Equal(t, 0, progress.ApprovalsReceived)
		assert.Equal(t, model.StageStatusInReview, progress.Status)

		_, err = tx.GetProject(ctx, projectID+1)
		assert.Equal(t, review.KindNotFound, review.KindOf(err))

		// 回滚后序列号复用
		next := &model.Project{Name: "next", OwnerID: "o"}
		require.NoError(t, tx.InsertProject(ctx, next))
		assert.Equal(t, projectID+1, next.ID)
		return nil
	})
	require.NoError(t, err)

	events := s.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "review.stage_opened", events[0].RoutingKey)
}

func TestInTx_RollbackOnPanic(t *testing.T) {
	s := NewStore()
	assert.Panics(t, func() {
		_ = s.InTx(context.Background(), func(ctx context.Context, tx review.Tx) error {
			require.NoError(t, tx.InsertProject(ctx, &model.Project{Name: "p", OwnerID: "o"}))
			panic("boom")
		})
	})

	err := s.InTx(context.Background(), func(ctx context.Context, tx review.Tx) error {
		_, err := tx.GetProject(ctx, 1)
		return err
	})
	assert.Equal(t, review.KindNotFound, review.KindOf(err))
}

func TestInTx_SingleStageInReview(t *testing.T) {
	s := NewStore()
	err := s.InTx(context.Background(), func(ctx context.Context, tx review.Tx) error {
		require.NoError(t, tx.InsertProgress(ctx, &model.StageProgress{ArtifactID: 1, StageOrder: 1, Status: model.StageStatusInReview}))
		return tx.InsertProgress(ctx, &model.StageProgress{ArtifactID: 1, StageOrder: 2, Status: model.StageStatusInReview})
	})
	assert.Equal(t, review.KindStageNotActive, review.KindOf(err))
}

func TestDispatcher_PublishesAndMarksSent(t *testing.T) {
	s := NewStore()
	enqueue(t, s, "review.stage_opened")
	enqueue(t, s, "review.changes_requested")

	pub := &flakyPublisher{}
	d := outbox.NewDispatcher(s, pub, zap.NewNop())
	assert.Equal(t, 2, d.RunOnce(context.Background()))
	assert.Equal(t, []string{"review.stage_opened", "review.changes_requested"}, pub.keys)

	for _, e := range s.Events() {
		assert.Equal(t, outbox.StatusSent, e.Status)
	}
	assert.Equal(t, 0, d.RunOnce(context.Background()))
}

func TestDispatcher_BacksOffThenFails(t *testing.T) {
	s := NewStore()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	enqueue(t, s, "review.stage_opened")

	pub := &flakyPublisher{err: errors.New("connection refused")}
	d := outbox.NewDispatcher(s, pub, zap.NewNop()).WithMaxRetries(2)

	assert.Equal(t, 0, d.RunOnce(context.Background()))
	ev := s.Events()[0]
	assert.Equal(t, outbox.StatusPending, ev.Status)
	assert.Equal(t, 1, ev.RetryCount)
	require.NotNil(t, ev.NextRetryAt)

	// 退避期间不会再次取出
	pending, err := s.GetPendingEvents(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	now = now.Add(time.Minute)
	d.RunOnce(context.Background())
	assert.Equal(t, outbox.StatusFailed, s.Events()[0].Status)

	failed, err := s.GetFailedEvents(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, failed, 1)

	pub.err = nil
	replay := outbox.NewReplayService(s, pub, zap.NewNop())
	n, err := replay.ReplayFailedEvents(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, outbox.StatusSent, s.Events()[0].Status)
}

func TestReplay_UnknownEvent(t *testing.T) {
	s := NewStore()
	replay := outbox.NewReplayService(s, &flakyPublisher{}, zap.NewNop())
	err := replay.ReplayEvent(context.Background(), 12)
	assert.ErrorIs(t, err, outbox.ErrEventNotFound)
}

func TestNotificationLogStore(t *testing.T) {
	s := NewNotificationLogStore()
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, &model.NotificationLog{EventID: "e1", RecipientID: "u1", Status: "failed"}))
	done, err := s.Delivered(ctx, "e1", "u1")
	require.NoError(t, err)
	assert.False(t, done)

	require.NoError(t, s.Upsert(ctx, &model.NotificationLog{EventID: "e1", RecipientID: "u1", Status: "sent"}))
	done, err = s.Delivered(ctx, "e1", "u1")
	require.NoError(t, err)
	assert.True(t, done)
	assert.Len(t, s.All(), 1)
}
