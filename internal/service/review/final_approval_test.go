package review_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mqcontracts "mockupreview/contracts/mq"
	"mockupreview/internal/model"
	"mockupreview/internal/service/review"
)

func TestGrantFinalApproval(t *testing.T) {
	f := newFixture(t)
	art := f.submit()

	_, err := f.svc.GrantFinalApproval(f.ctx, art.ID, owner, "")
	assert.Equal(t, review.KindNotAllStagesApproved, review.KindOf(err))

	f.approve(art.ID, 1, alice)
	f.approve(art.ID, 1, bob)
	f.approve(art.ID, 2, carol)

	_, err = f.svc.GrantFinalApproval(f.ctx, art.ID, alice, "")
	assert.Equal(t, review.KindNotProjectOwner, review.KindOf(err))

	approval, err := f.svc.GrantFinalApproval(f.ctx, art.ID, owner, " ship it ")
	require.NoError(t, err)
	assert.Equal(t, owner.ID, approval.ApproverID)
	assert.Equal(t, "ship it", approval.Notes)

	view := mustProgress(t, f, art.ID)
	assert.Equal(t, model.ArtifactStatusFinalized, view.Artifact.Status)
	require.NotNil(t, view.FinalApproval)

	_, err = f.svc.GrantFinalApproval(f.ctx, art.ID, owner, "")
	assert.Equal(t, review.KindAlreadyFinalized, review.KindOf(err))

	granted := f.events(mqcontracts.RoutingKeyFinalApprovalGranted)
	require.Len(t, granted, 1)
	assert.Equal(t, []string{author.ID}, recipientIDs(granted[0]))
}

func TestGrantFinalApproval_NoWorkflow(t *testing.T) {
	f := newFixture(t)
	bare, err := f.svc.CreateProject(f.ctx, "Quick fixes", owner.ID, nil)
	require.NoError(t, err)
	res, err := f.svc.SubmitArtifact(f.ctx, bare.ID, author, "Favicon")
	require.NoError(t, err)
	assert.Equal(t, model.ArtifactStatusNoReview, res.Artifact.Status)
	assert.Nil(t, res.Artifact.CurrentStage)

	view, err := f.svc.GetProgress(f.ctx, res.Artifact.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ArtifactStatusNoReview, view.Artifact.Status)
	assert.Empty(t, view.Stages)

	_, err = f.svc.GrantFinalApproval(f.ctx, res.Artifact.ID, owner, "")
	require.NoError(t, err)

	view, err = f.svc.GetProgress(f.ctx, res.Artifact.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ArtifactStatusFinalized, view.Artifact.Status)
}

func TestGrantFinalApproval_AfterResetRequiresNewRound(t *testing.T) {
	f := newFixture(t)
	art := f.submit()
	f.approve(art.ID, 1, alice)
	f.approve(art.ID, 1, bob)
	_, err := f.decide(art.ID, 2, carol, model.ActionRequestChanges, "fix logo contrast")
	require.NoError(t, err)

	_, err = f.svc.GrantFinalApproval(f.ctx, art.ID, owner, "")
	assert.Equal(t, review.KindNotAllStagesApproved, review.KindOf(err))
}
