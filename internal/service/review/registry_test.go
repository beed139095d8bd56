package review_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mockupreview/internal/model"
	"mockupreview/internal/service/review"
)

func TestAssign(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Assign(f.ctx, f.project.ID, 1, alice)
	assert.Equal(t, review.KindDuplicateAssignment, review.KindOf(err))

	_, err = f.svc.Assign(f.ctx, f.project.ID, 5, alice)
	assert.Equal(t, review.KindInvalidStage, review.KindOf(err))

	_, err = f.svc.Assign(f.ctx, 404, 1, alice)
	assert.Equal(t, review.KindNotFound, review.KindOf(err))

	// 同一人可以登记到多个阶段
	a, err := f.svc.Assign(f.ctx, f.project.ID, 2, alice)
	require.NoError(t, err)
	assert.Equal(t, "Alice", a.ReviewerName)

	n, err := f.svc.QuorumFor(f.ctx, f.project.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestUnassign(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.svc.Unassign(f.ctx, f.project.ID, 1, bob.ID))
	err := f.svc.Unassign(f.ctx, f.project.ID, 1, bob.ID)
	assert.Equal(t, review.KindNotFound, review.KindOf(err))

	list, err := f.svc.ListAssignments(f.ctx, f.project.ID)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	n, err := f.svc.QuorumFor(f.ctx, f.project.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestUnassign_DoesNotChangeOpenStage(t *testing.T) {
	f := newFixture(t)
	art := f.submit()

	require.NoError(t, f.svc.Unassign(f.ctx, f.project.ID, 1, bob.ID))
	assert.Equal(t, 2, f.stage(art.ID, 1).ApprovalsRequired)

	_, err := f.decide(art.ID, 1, bob, "approve", "")
	assert.Equal(t, review.KindNotAReviewer, review.KindOf(err))
}

func TestSubmitArtifact_WarnsOnZeroQuorumFirstStage(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.svc.Unassign(f.ctx, f.project.ID, 1, alice.ID))
	require.NoError(t, f.svc.Unassign(f.ctx, f.project.ID, 1, bob.ID))

	res, err := f.svc.SubmitArtifact(f.ctx, f.project.ID, author, "Hero")
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, 1, res.Warnings[0].StageOrder)
}

func TestReconcile_ReportsCounters(t *testing.T) {
	f := newFixture(t)
	art := f.submit()
	f.approve(art.ID, 1, alice)

	report, err := f.svc.Reconcile(f.ctx, art.ID)
	require.NoError(t, err)
	assert.True(t, report.Consistent)
	require.Len(t, report.Stages, 1)
	assert.Equal(t, 1, report.Stages[0].Counter)
	assert.Equal(t, 1, report.Stages[0].Records)
}

var dave = review.Actor{ID: "u-dave", Name: "Dave"}

// switchToDesignOnly 把项目换到只有 Design 的新版本，并撤掉 Legal 的评审人
func switchToDesignOnly(t *testing.T, f *fixture) {
	t.Helper()
	v2, err := f.svc.ReviseWorkflow(f.ctx, f.workflow.ID, "", []model.Stage{{Name: "Design"}})
	require.NoError(t, err)
	_, err = f.svc.SetProjectWorkflow(f.ctx, f.project.ID, &v2.ID)
	require.NoError(t, err)
	require.NoError(t, f.svc.Unassign(f.ctx, f.project.ID, 2, carol.ID))
}

func TestAssign_StageOfOlderWorkflowStillInUse(t *testing.T) {
	f := newFixture(t)
	art := f.submit()
	switchToDesignOnly(t, f)

	warnings, err := f.svc.ZeroQuorumStages(f.ctx, f.project.ID)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Equal(t, 2, warnings[0].StageOrder)
	assert.Equal(t, "Legal", warnings[0].StageName)

	_, err = f.svc.Assign(f.ctx, f.project.ID, 2, dave)
	require.NoError(t, err)

	f.approve(art.ID, 1, alice)
	res := f.approve(art.ID, 1, bob)
	assert.True(t, res.Advanced)
	assert.Equal(t, "Legal", res.NextStageName)
	assert.Empty(t, res.Warnings)
	assert.Equal(t, 1, f.stage(art.ID, 2).ApprovalsRequired)

	res = f.approve(art.ID, 2, dave)
	assert.True(t, res.AwaitingFinalApproval)

	// 没有稿件再用 v1 之后，Legal 不再可登记
	_, err = f.svc.Assign(f.ctx, f.project.ID, 2, carol)
	assert.Equal(t, review.KindInvalidStage, review.KindOf(err))
}

func TestZeroQuorumStage_StaffedLaterCanBeReset(t *testing.T) {
	f := newFixture(t)
	art := f.submit()
	switchToDesignOnly(t, f)

	f.approve(art.ID, 1, alice)
	res := f.approve(art.ID, 1, bob)
	require.True(t, res.Advanced)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, review.KindZeroQuorumStage, res.Warnings[0].Kind)
	assert.Equal(t, 0, f.stage(art.ID, 2).ApprovalsRequired)

	_, err := f.svc.Assign(f.ctx, f.project.ID, 2, dave)
	require.NoError(t, err)

	// 已打开阶段的 approvals_required 不变，只能退回重来
	_, err = f.decide(art.ID, 2, dave, model.ActionApprove, "")
	assert.Equal(t, review.KindZeroQuorumStage, review.KindOf(err))

	res, err = f.decide(art.ID, 2, dave, model.ActionRequestChanges, "legal reviewer now assigned")
	require.NoError(t, err)
	assert.True(t, res.Reset)
	assert.Equal(t, 2, res.Round)

	f.approve(art.ID, 1, alice)
	f.approve(art.ID, 1, bob)
	assert.Equal(t, 1, f.stage(art.ID, 2).ApprovalsRequired)
	res = f.approve(art.ID, 2, dave)
	assert.True(t, res.AwaitingFinalApproval)
}

func TestSetProjectWorkflow_RejectsRenamingStageInUse(t *testing.T) {
	f := newFixture(t)
	reordered, err := f.svc.ReviseWorkflow(f.ctx, f.workflow.ID, "", []model.Stage{{Name: "Legal"}, {Name: "Design"}})
	require.NoError(t, err)

	// 当前工作流的阶段登记了评审人
	_, err = f.svc.SetProjectWorkflow(f.ctx, f.project.ID, &reordered.ID)
	assert.Equal(t, review.KindInvalidWorkflow, review.KindOf(err))

	art := f.submit()
	assert.Equal(t, f.workflow.ID, *art.WorkflowID)

	for _, a := range []struct {
		stage int
		who   review.Actor
	}{{1, alice}, {1, bob}, {2, carol}} {
		require.NoError(t, f.svc.Unassign(f.ctx, f.project.ID, a.stage, a.who.ID))
	}

	// 评审中的稿件仍在用 v1
	_, err = f.svc.SetProjectWorkflow(f.ctx, f.project.ID, &reordered.ID)
	assert.Equal(t, review.KindInvalidWorkflow, review.KindOf(err))
}

func TestSetProjectWorkflow_ReorderAllowedWhenNothingInUse(t *testing.T) {
	f := newFixture(t)
	for _, a := range []struct {
		stage int
		who   review.Actor
	}{{1, alice}, {1, bob}, {2, carol}} {
		require.NoError(t, f.svc.Unassign(f.ctx, f.project.ID, a.stage, a.who.ID))
	}

	reordered, err := f.svc.ReviseWorkflow(f.ctx, f.workflow.ID, "", []model.Stage{{Name: "Legal"}, {Name: "Design"}})
	require.NoError(t, err)
	project, err := f.svc.SetProjectWorkflow(f.ctx, f.project.ID, &reordered.ID)
	require.NoError(t, err)
	assert.Equal(t, reordered.ID, *project.WorkflowID)

	f.assign(1, carol)
	res, err := f.svc.SubmitArtifact(f.ctx, f.project.ID, author, "Terms page")
	require.NoError(t, err)
	assert.Equal(t, "Legal", f.stage(res.Artifact.ID, 1).StageName)
}
