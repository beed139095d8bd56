package review_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mockupreview/internal/model"
	"mockupreview/internal/repository/memory"
	"mockupreview/internal/service/review"
)

func TestCreateWorkflow_Validation(t *testing.T) {
	svc := review.NewService(memory.NewStore(), zap.NewNop())
	ctx := context.Background()

	tests := []struct {
		name   string
		wfName string
		stages []model.Stage
	}{
		{"no name", " ", []model.Stage{{Name: "Design"}}},
		{"no stages", "Empty", nil},
		{"gap in orders", "Gappy", []model.Stage{{Order: 1, Name: "Design"}, {Order: 3, Name: "Legal"}}},
		{"duplicate orders", "Dup", []model.Stage{{Order: 1, Name: "Design"}, {Order: 1, Name: "Legal"}}},
		{"blank stage name", "Blank", []model.Stage{{Name: "Design"}, {Name: "  "}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateWorkflow(ctx, tt.wfName, tt.stages)
			assert.Equal(t, review.KindInvalidWorkflow, review.KindOf(err))
		})
	}
}

func TestCreateWorkflow_OrdersStages(t *testing.T) {
	svc := review.NewService(memory.NewStore(), zap.NewNop())
	wf, err := svc.CreateWorkflow(context.Background(), "Brand", []model.Stage{
		{Order: 2, Name: "Legal"},
		{Order: 1, Name: "Design"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, wf.Version)
	assert.NotEmpty(t, wf.Key)
	assert.Equal(t, "Design", wf.Stages[0].Name)
	assert.Equal(t, 2, wf.LastStage())
}

func TestReviseWorkflow_KeepsSubmittedArtifactsOnOldVersion(t *testing.T) {
	f := newFixture(t)
	art := f.submit()

	v2, err := f.svc.ReviseWorkflow(f.ctx, f.workflow.ID, "", []model.Stage{{Name: "Design"}, {Name: "Legal"}, {Name: "Exec"}})
	require.NoError(t, err)
	assert.Equal(t, 2, v2.Version)
	assert.Equal(t, f.workflow.Key, v2.Key)
	assert.Equal(t, f.workflow.Name, v2.Name)

	latest, err := f.svc.LatestWorkflow(f.ctx, f.workflow.Key)
	require.NoError(t, err)
	assert.Equal(t, v2.ID, latest.ID)

	_, err = f.svc.SetProjectWorkflow(f.ctx, f.project.ID, &v2.ID)
	require.NoError(t, err)

	view := mustProgress(t, f, art.ID)
	assert.Equal(t, 1, view.WorkflowVer)
	assert.Len(t, view.Stages, 2)

	// 旧稿件仍按 v1 走完两个阶段
	f.approve(art.ID, 1, alice)
	f.approve(art.ID, 1, bob)
	res := f.approve(art.ID, 2, carol)
	assert.True(t, res.AwaitingFinalApproval)

	next, err := f.svc.SubmitArtifact(f.ctx, f.project.ID, author, "Homepage hero v2")
	require.NoError(t, err)
	assert.Equal(t, v2.ID, *next.Artifact.WorkflowID)
	assert.Empty(t, next.Warnings)

	// Exec 阶段没有评审人
	warnings, err := f.svc.ZeroQuorumStages(f.ctx, f.project.ID)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Equal(t, "Exec", warnings[0].StageName)
}

func TestGetWorkflow_NotFound(t *testing.T) {
	svc := review.NewService(memory.NewStore(), zap.NewNop())
	_, err := svc.GetWorkflow(context.Background(), 42)
	assert.Equal(t, review.KindNotFound, review.KindOf(err))
}
