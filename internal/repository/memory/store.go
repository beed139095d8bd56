// Package memory 评审存储的内存实现，用于测试与 store.driver=memory 的本地运行
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"mockupreview/internal/model"
	"mockupreview/internal/service/review"
	"mockupreview/pkg/outbox"
)

type assignmentKey struct {
	projectID  int64
	stageOrder int
	reviewerID string
}

type progressKey struct {
	artifactID int64
	stageOrder int
}

type approvalKey struct {
	artifactID int64
	round      int
	stageOrder int
	reviewerID string
}

type state struct {
	workflowSeq, projectSeq, artifactSeq, approvalSeq, eventSeq int64

	workflows   map[int64]*model.Workflow
	projects    map[int64]*model.Project
	assignments map[assignmentKey]model.StageReviewerAssignment
	artifacts   map[int64]*model.Artifact
	progress    map[progressKey]model.StageProgress
	approvals   map[approvalKey]model.ApprovalRecord
	finals      map[int64]model.FinalApproval
	events      []*outbox.Event
}

func newState() *state {
	return &state{
		workflows:   make(map[int64]*model.Workflow),
		projects:    make(map[int64]*model.Project),
		assignments: make(map[assignmentKey]model.StageReviewerAssignment),
		artifacts:   make(map[int64]*model.Artifact),
		progress:    make(map[progressKey]model.StageProgress),
		approvals:   make(map[approvalKey]model.ApprovalRecord),
		finals:      make(map[int64]model.FinalApproval),
	}
}

// seqs 事务开始时的自增序列与事件数，回滚时恢复
type seqs struct {
	workflow, project, artifact, approval, event int64
	events                                       int
}

func (s *state) mark() seqs {
	return seqs{s.workflowSeq, s.projectSeq, s.artifactSeq, s.approvalSeq, s.eventSeq, len(s.events)}
}

func (s *state) restore(m seqs) {
	s.workflowSeq, s.projectSeq, s.artifactSeq, s.approvalSeq, s.eventSeq = m.workflow, m.project, m.artifact, m.approval, m.event
	s.events = s.events[:m.events]
}

// remember 记录 m[k] 修改前的值，回滚时写回或删除
// 指针类型的值必须整体替换，不能原地修改
func remember[K comparable, V any](t *tx, m map[K]V, k K) {
	old, ok := m[k]
	t.undo = append(t.undo, func() {
		if ok {
			m[k] = old
		} else {
			delete(m, k)
		}
	})
}

// Store 内存存储；事务之间完全串行，相当于整库的行锁
// 事务直接修改共享 state 并记录 undo 日志，开销只与本事务改动的行数有关
type Store struct {
	mu    sync.Mutex
	state *state
	now   func() time.Time
}

func NewStore() *Store {
	return &Store{
		state: newState(),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

var _ review.Store = (*Store)(nil)

// InTx fn 返回错误时丢弃所有修改
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx review.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t := &tx{st: s.state, now: s.now, start: s.state.mark()}
	committed := false
	defer func() {
		if !committed {
			t.rollback()
		}
	}()

	if err := fn(ctx, t); err != nil {
		return err
	}
	committed = true
	return nil
}

// Events 返回 outbox 中的全部事件（测试用）
func (s *Store) Events() []outbox.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]outbox.Event, len(s.state.events))
	for i, e := range s.state.events {
		out[i] = *e
	}
	return out
}

func (s *Store) findEvent(eventID int64) *outbox.Event {
	for _, e := range s.state.events {
		if e.ID == eventID {
			return e
		}
	}
	return nil
}

// GetPendingEvents 实现 outbox.EventStore
func (s *Store) GetPendingEvents(ctx context.Context, limit int) ([]*outbox.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var out []*outbox.Event
	for _, e := range s.state.events {
		if len(out) >= limit {
			break
		}
		if e.Status != outbox.StatusPending || (e.NextRetryAt != nil && e.NextRetryAt.After(now)) {
			continue
		}
		ev := *e
		out = append(out, &ev)
	}
	return out, nil
}

func (s *Store) MarkAsSent(ctx context.Context, eventID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.findEvent(eventID)
	if e == nil {
		return outbox.ErrEventNotFound
	}
	e.Status = outbox.StatusSent
	e.NextRetryAt = nil
	e.UpdatedAt = s.now()
	return nil
}

// MarkAsFailed 与 postgres 实现一致：线性退避，达到上限后置为 failed
func (s *Store) MarkAsFailed(ctx context.Context, eventID int64, maxRetries int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.findEvent(eventID)
	if e == nil {
		return outbox.ErrEventNotFound
	}
	e.RetryCount++
	e.UpdatedAt = s.now()
	if e.RetryCount >= maxRetries {
		e.Status = outbox.StatusFailed
		e.NextRetryAt = nil
		return nil
	}
	next := s.now().Add(time.Duration(e.RetryCount) * 5 * time.Second)
	e.NextRetryAt = &next
	return nil
}

// GetEventByID 实现 outbox.ReplayStore
func (s *Store) GetEventByID(ctx context.Context, eventID int64) (*outbox.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.findEvent(eventID)
	if e == nil {
		return nil, outbox.ErrEventNotFound
	}
	ev := *e
	return &ev, nil
}

func (s *Store) GetFailedEvents(ctx context.Context, limit int) ([]*outbox.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*outbox.Event
	for i := len(s.state.events) - 1; i >= 0 && len(out) < limit; i-- {
		if e := s.state.events[i]; e.Status == outbox.StatusFailed {
			ev := *e
			out = append(out, &ev)
		}
	}
	return out, nil
}

// tx 直接修改 state，失败时按 undo 日志逆序撤销
type tx struct {
	st    *state
	now   func() time.Time
	start seqs
	undo  []func()
}

func (t *tx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
	t.st.restore(t.start)
}

func notFound(what string, id any) error {
	return review.NewError(review.KindNotFound, "%s %v not found", what, id)
}

func (t *tx) EnqueueEvent(ctx context.Context, aggregateType string, aggregateID int64, routingKey string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	t.st.eventSeq++
	id := aggregateID
	now := t.now()
	t.st.events = append(t.st.events, &outbox.Event{
		ID:            t.st.eventSeq,
		AggregateType: aggregateType,
		AggregateID:   &id,
		RoutingKey:    routingKey,
		Payload:       data,
		Status:        outbox.StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	return nil
}

func (t *tx) InsertWorkflow(ctx context.Context, w *model.Workflow) error {
	for _, existing := range t.st.workflows {
		if existing.Key == w.Key && existing.Version == w.Version {
			return review.NewError(review.KindInvalidWorkflow, "workflow %s version %d already exists", w.Key, w.Version)
		}
	}
	t.st.workflowSeq++
	w.ID = t.st.workflowSeq
	w.CreatedAt = t.now()
	remember(t, t.st.workflows, w.ID)
	t.st.workflows[w.ID] = w.Clone()
	return nil
}

func (t *tx) GetWorkflow(ctx context.Context, id int64) (*model.Workflow, error) {
	w, ok := t.st.workflows[id]
	if !ok {
		return nil, notFound("workflow", id)
	}
	return w.Clone(), nil
}

func (t *tx) LatestWorkflow(ctx context.Context, key string) (*model.Workflow, error) {
	var latest *model.Workflow
	for _, w := range t.st.workflows {
		if w.Key == key && (latest == nil || w.Version > latest.Version) {
			latest = w
		}
	}
	if latest == nil {
		return nil, notFound("workflow", key)
	}
	return latest.Clone(), nil
}

func (t *tx) InsertProject(ctx context.Context, p *model.Project) error {
	t.st.projectSeq++
	p.ID = t.st.projectSeq
	p.CreatedAt = t.now()
	p.UpdatedAt = p.CreatedAt
	c := *p
	remember(t, t.st.projects, p.ID)
	t.st.projects[p.ID] = &c
	return nil
}

func (t *tx) GetProject(ctx context.Context, id int64) (*model.Project, error) {
	p, ok := t.st.projects[id]
	if !ok {
		return nil, notFound("project", id)
	}
	c := *p
	return &c, nil
}

func (t *tx) SetProjectWorkflow(ctx context.Context, projectID int64, workflowID *int64) error {
	existing, ok := t.st.projects[projectID]
	if !ok {
		return notFound("project", projectID)
	}
	p := *existing
	if workflowID != nil {
		id := *workflowID
		p.WorkflowID = &id
	} else {
		p.WorkflowID = nil
	}
	p.UpdatedAt = t.now()
	remember(t, t.st.projects, projectID)
	t.st.projects[projectID] = &p
	return nil
}

func (t *tx) InsertAssignment(ctx context.Context, a *model.StageReviewerAssignment) error {
	key := assignmentKey{a.ProjectID, a.StageOrder, a.ReviewerID}
	if _, ok := t.st.assignments[key]; ok {
		return review.NewError(review.KindDuplicateAssignment, "reviewer %s already assigned to stage %d", a.ReviewerID, a.StageOrder)
	}
	remember(t, t.st.assignments, key)
	t.st.assignments[key] = *a
	return nil
}

func (t *tx) DeleteAssignment(ctx context.Context, projectID int64, stageOrder int, reviewerID string) (bool, error) {
	key := assignmentKey{projectID, stageOrder, reviewerID}
	if _, ok := t.st.assignments[key]; !ok {
		return false, nil
	}
	remember(t, t.st.assignments, key)
	delete(t.st.assignments, key)
	return true, nil
}

func (t *tx) FindAssignment(ctx context.Context, projectID int64, stageOrder int, reviewerID string) (*model.StageReviewerAssignment, error) {
	a, ok := t.st.assignments[assignmentKey{projectID, stageOrder, reviewerID}]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (t *tx) CountAssignments(ctx context.Context, projectID int64, stageOrder int) (int, error) {
	n := 0
	for k := range t.st.assignments {
		if k.projectID == projectID && k.stageOrder == stageOrder {
			n++
		}
	}
	return n, nil
}

func (t *tx) ListAssignments(ctx context.Context, projectID int64) ([]model.StageReviewerAssignment, error) {
	out := []model.StageReviewerAssignment{}
	for k, a := range t.st.assignments {
		if k.projectID == projectID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StageOrder != out[j].StageOrder {
			return out[i].StageOrder < out[j].StageOrder
		}
		return out[i].ReviewerID < out[j].ReviewerID
	})
	return out, nil
}

func (t *tx) InsertArtifact(ctx context.Context, a *model.Artifact) error {
	t.st.artifactSeq++
	a.ID = t.st.artifactSeq
	a.CreatedAt = t.now()
	a.UpdatedAt = a.CreatedAt
	remember(t, t.st.artifacts, a.ID)
	t.st.artifacts[a.ID] = a.Clone()
	return nil
}

func (t *tx) GetArtifact(ctx context.Context, id int64) (*model.Artifact, error) {
	a, ok := t.st.artifacts[id]
	if !ok {
		return nil, notFound("artifact", id)
	}
	return a.Clone(), nil
}

func (t *tx) ListLiveWorkflowIDs(ctx context.Context, projectID int64) ([]int64, error) {
	seen := make(map[int64]bool)
	out := []int64{}
	for _, a := range t.st.artifacts {
		if a.ProjectID != projectID || a.Status != model.ArtifactStatusInReview || a.WorkflowID == nil {
			continue
		}
		if !seen[*a.WorkflowID] {
			seen[*a.WorkflowID] = true
			out = append(out, *a.WorkflowID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// LockArtifact 整个事务已持有 Store 的互斥锁
func (t *tx) LockArtifact(ctx context.Context, id int64) (*model.Artifact, error) {
	return t.GetArtifact(ctx, id)
}

func (t *tx) UpdateArtifactState(ctx context.Context, a *model.Artifact) error {
	existing, ok := t.st.artifacts[a.ID]
	if !ok {
		return notFound("artifact", a.ID)
	}
	c := a.Clone()
	c.CreatedAt = existing.CreatedAt
	c.UpdatedAt = t.now()
	remember(t, t.st.artifacts, a.ID)
	t.st.artifacts[a.ID] = c
	return nil
}

func (t *tx) InsertFinalApproval(ctx context.Context, f *model.FinalApproval) error {
	if _, ok := t.st.finals[f.ArtifactID]; ok {
		return review.NewError(review.KindAlreadyFinalized, "artifact %d already finalized", f.ArtifactID)
	}
	remember(t, t.st.finals, f.ArtifactID)
	t.st.finals[f.ArtifactID] = *f
	return nil
}

func (t *tx) FindFinalApproval(ctx context.Context, artifactID int64) (*model.FinalApproval, error) {
	f, ok := t.st.finals[artifactID]
	if !ok {
		return nil, nil
	}
	return &f, nil
}

func (t *tx) InsertProgress(ctx context.Context, p *model.StageProgress) error {
	key := progressKey{p.ArtifactID, p.StageOrder}
	if _, ok := t.st.progress[key]; ok {
		return review.NewError(review.KindStageNotActive, "stage %d already opened for artifact %d", p.StageOrder, p.ArtifactID)
	}
	for k, existing := range t.st.progress {
		if k.artifactID == p.ArtifactID && existing.Status == model.StageStatusInReview && p.Status == model.StageStatusInReview {
			return review.NewError(review.KindStageNotActive, "artifact %d already has stage %d in review", p.ArtifactID, k.stageOrder)
		}
	}
	remember(t, t.st.progress, key)
	t.st.progress[key] = *p
	return nil
}

func (t *tx) GetProgress(ctx context.Context, artifactID int64, stageOrder int) (*model.StageProgress, error) {
	p, ok := t.st.progress[progressKey{artifactID, stageOrder}]
	if !ok {
		return nil, notFound("stage progress", stageOrder)
	}
	return &p, nil
}

func (t *tx) ListProgress(ctx context.Context, artifactID int64) ([]model.StageProgress, error) {
	out := []model.StageProgress{}
	for k, p := range t.st.progress {
		if k.artifactID == artifactID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StageOrder < out[j].StageOrder })
	return out, nil
}

func (t *tx) IncrementApprovals(ctx context.Context, artifactID int64, stageOrder int) (int, int, bool, error) {
	key := progressKey{artifactID, stageOrder}
	p, ok := t.st.progress[key]
	if !ok || p.Status != model.StageStatusInReview {
		return 0, 0, false, nil
	}
	p.ApprovalsReceived++
	remember(t, t.st.progress, key)
	t.st.progress[key] = p
	return p.ApprovalsReceived, p.ApprovalsRequired, true, nil
}

func (t *tx) CompleteStage(ctx context.Context, artifactID int64, stageOrder int, to, reviewedBy, notes string, at time.Time) (bool, error) {
	key := progressKey{artifactID, stageOrder}
	p, ok := t.st.progress[key]
	if !ok || p.Status != model.StageStatusInReview {
		return false, nil
	}
	p.Status = to
	p.ReviewedBy = reviewedBy
	p.Notes = notes
	p.ReviewedAt = &at
	remember(t, t.st.progress, key)
	t.st.progress[key] = p
	return true, nil
}

func (t *tx) DeleteProgress(ctx context.Context, artifactID int64) error {
	for k := range t.st.progress {
		if k.artifactID == artifactID {
			remember(t, t.st.progress, k)
			delete(t.st.progress, k)
		}
	}
	return nil
}

func (t *tx) InsertApproval(ctx context.Context, r *model.ApprovalRecord) error {
	key := approvalKey{r.ArtifactID, r.Round, r.StageOrder, r.ReviewerID}
	if _, ok := t.st.approvals[key]; ok {
		return review.NewError(review.KindAlreadyDecided, "reviewer %s already decided on stage %d", r.ReviewerID, r.StageOrder)
	}
	t.st.approvalSeq++
	r.ID = t.st.approvalSeq
	remember(t, t.st.approvals, key)
	t.st.approvals[key] = *r
	return nil
}

func (t *tx) HasApproval(ctx context.Context, artifactID int64, round, stageOrder int, reviewerID string) (bool, error) {
	_, ok := t.st.approvals[approvalKey{artifactID, round, stageOrder, reviewerID}]
	return ok, nil
}

func (t *tx) CountApprovals(ctx context.Context, artifactID int64, round, stageOrder int) (int, error) {
	n := 0
	for k, r := range t.st.approvals {
		if k.artifactID == artifactID && k.round == round && k.stageOrder == stageOrder && r.Action == model.ActionApprove {
			n++
		}
	}
	return n, nil
}

func (t *tx) ListApprovals(ctx context.Context, artifactID int64) ([]model.ApprovalRecord, error) {
	out := []model.ApprovalRecord{}
	for k, r := range t.st.approvals {
		if k.artifactID == artifactID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
