package review_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	mqcontracts "mockupreview/contracts/mq"
	"mockupreview/internal/model"
	"mockupreview/internal/repository/memory"
	"mockupreview/internal/service/review"
)

var (
	alice  = review.Actor{ID: "u-alice", Name: "Alice"}
	bob    = review.Actor{ID: "u-bob", Name: "Bob"}
	carol  = review.Actor{ID: "u-carol", Name: "Carol"}
	owner  = review.Actor{ID: "u-owner", Name: "Olivia"}
	author = review.Actor{ID: "u-author", Name: "Arthur"}
)

type fixture struct {
	t        *testing.T
	ctx      context.Context
	store    *memory.Store
	svc      *review.Service
	workflow *model.Workflow
	project  *model.Project
}

// newFixture Design(alice, bob) -> Legal(carol)
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	svc := review.NewService(store, zap.NewNop())

	wf, err := svc.CreateWorkflow(ctx, "Brand review", []model.Stage{{Name: "Design"}, {Name: "Legal"}})
	require.NoError(t, err)
	project, err := svc.CreateProject(ctx, "Spring campaign", owner.ID, &wf.ID)
	require.NoError(t, err)

	f := &fixture{t: t, ctx: ctx, store: store, svc: svc, workflow: wf, project: project}
	f.assign(1, alice)
	f.assign(1, bob)
	f.assign(2, carol)
	return f
}

func (f *fixture) assign(stage int, who review.Actor) {
	f.t.Helper()
	_, err := f.svc.Assign(f.ctx, f.project.ID, stage, who)
	require.NoError(f.t, err)
}

func (f *fixture) submit() *model.Artifact {
	f.t.Helper()
	res, err := f.svc.SubmitArtifact(f.ctx, f.project.ID, author, "Homepage hero v1")
	require.NoError(f.t, err)
	return res.Artifact
}

func (f *fixture) decide(artifactID int64, stage int, who review.Actor, action model.Action, notes string) (*review.DecisionResult, error) {
	return f.svc.RecordDecision(f.ctx, review.DecisionRequest{
		ArtifactID: artifactID,
		StageOrder: stage,
		Reviewer:   who,
		Action:     action,
		Notes:      notes,
	})
}

func (f *fixture) approve(artifactID int64, stage int, who review.Actor) *review.DecisionResult {
	f.t.Helper()
	res, err := f.decide(artifactID, stage, who, model.ActionApprove, "")
	require.NoError(f.t, err)
	return res
}

func (f *fixture) stage(artifactID int64, order int) model.StageProgress {
	f.t.Helper()
	view, err := f.svc.GetProgress(f.ctx, artifactID)
	require.NoError(f.t, err)
	for _, s := range view.Stages {
		if s.StageOrder == order {
			return s
		}
	}
	f.t.Fatalf("stage %d missing from progress", order)
	return model.StageProgress{}
}

// events 按 routing key 过滤 outbox 中的事件
func (f *fixture) events(routingKey string) []mqcontracts.ReviewEventPayload {
	f.t.Helper()
	var out []mqcontracts.ReviewEventPayload
	for _, e := range f.store.Events() {
		if e.RoutingKey != routingKey {
			continue
		}
		var p mqcontracts.ReviewEventPayload
		require.NoError(f.t, json.Unmarshal(e.Payload, &p))
		out = append(out, p)
	}
	return out
}

func recipientIDs(p mqcontracts.ReviewEventPayload) []string {
	ids := make([]string, 0, len(p.Recipients))
	for _, r := range p.Recipients {
		ids = append(ids, r.ID)
	}
	return ids
}
