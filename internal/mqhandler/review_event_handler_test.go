package mqhandler

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	mqcontracts "mockupreview/contracts/mq"
	"mockupreview/pkg/circuitbreaker"
	"mockupreview/pkg/util"
)

type fakeDeliverer struct {
	calls int
	errs  []error
}

func (d *fakeDeliverer) Deliver(ctx context.Context, p mqcontracts.ReviewEventPayload) error {
	d.calls++
	if len(d.errs) == 0 {
		return nil
	}
	err := d.errs[0]
	d.errs = d.errs[1:]
	return err
}

type dlqMessage struct {
	routingKey string
	reason     string
}

type fakeDLQ struct {
	messages []dlqMessage
}

func (q *fakeDLQ) PublishToDLQ(ctx context.Context, routingKey string, payload []byte, originalError string) error {
	q.messages = append(q.messages, dlqMessage{routingKey: routingKey, reason: originalError})
	return nil
}

func newHandler(t *testing.T, d Deliverer, maxRetries int) (*ReviewEventHandler, *fakeDLQ) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	dlq := &fakeDLQ{}
	h := NewReviewEventHandler(
		d,
		util.NewDeduper(rdb, time.Hour, zap.NewNop()),
		util.NewRetryCounter(rdb, time.Hour),
		dlq,
		maxRetries,
		zap.NewNop(),
	)
	return h, dlq
}

func eventBody(t *testing.T, id string) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(mqcontracts.ReviewEventPayload{
		EventID:    id,
		Kind:       mqcontracts.RoutingKeyStageOpened,
		ArtifactID: 7,
		Recipients: []mqcontracts.Recipient{{ID: "u-alice"}},
	})
	require.NoError(t, err)
	return b
}

func TestReviewEventHandler_DeliversOnce(t *testing.T) {
	d := &fakeDeliverer{}
	h, dlq := newHandler(t, d, 3)
	handle := h.For(mqcontracts.RoutingKeyStageOpened)

	require.NoError(t, handle(context.Background(), eventBody(t, "evt-1")))
	require.NoError(t, handle(context.Background(), eventBody(t, "evt-1")))

	assert.Equal(t, 1, d.calls)
	assert.Empty(t, dlq.messages)
}

func TestReviewEventHandler_MalformedGoesToDLQ(t *testing.T) {
	d := &fakeDeliverer{}
	h, dlq := newHandler(t, d, 3)
	handle := h.For(mqcontracts.RoutingKeyChangesRequested)

	require.NoError(t, handle(context.Background(), json.RawMessage(`{not json`)))
	require.NoError(t, handle(context.Background(), json.RawMessage(`{"kind":"review.changes_requested"}`)))

	assert.Equal(t, 0, d.calls)
	require.Len(t, dlq.messages, 2)
	assert.Equal(t, mqcontracts.RoutingKeyChangesRequested, dlq.messages[0].routingKey)
	assert.Equal(t, "missing event_id", dlq.messages[1].reason)
}

func TestReviewEventHandler_RetryableErrorIsRedelivered(t *testing.T) {
	d := &fakeDeliverer{errs: []error{circuitbreaker.ErrCircuitBreakerOpen}}
	h, dlq := newHandler(t, d, 3)
	handle := h.For(mqcontracts.RoutingKeyStageOpened)

	err := handle(context.Background(), eventBody(t, "evt-2"))
	require.Error(t, err)

	// 去重锁已释放，重投的消息会再次处理
	require.NoError(t, handle(context.Background(), eventBody(t, "evt-2")))
	assert.Equal(t, 2, d.calls)
	assert.Empty(t, dlq.messages)
}

func TestReviewEventHandler_GivesUpAfterMaxRetries(t *testing.T) {
	open := circuitbreaker.ErrCircuitBreakerOpen
	d := &fakeDeliverer{errs: []error{open, open, open}}
	h, dlq := newHandler(t, d, 2)
	handle := h.For(mqcontracts.RoutingKeyStageOpened)

	assert.Error(t, handle(context.Background(), eventBody(t, "evt-3")))
	assert.Error(t, handle(context.Background(), eventBody(t, "evt-3")))
	assert.NoError(t, handle(context.Background(), eventBody(t, "evt-3")))

	assert.Equal(t, 3, d.calls)
	require.Len(t, dlq.messages, 1)
}

func TestReviewEventHandler_NonRetryableGoesToDLQ(t *testing.T) {
	d := &fakeDeliverer{errs: []error{errors.New("webhook returned status 400")}}
	h, dlq := newHandler(t, d, 5)

	require.NoError(t, h.For(mqcontracts.RoutingKeyAllStagesApproved)(context.Background(), eventBody(t, "evt-4")))
	require.Len(t, dlq.messages, 1)
	assert.Equal(t, "webhook returned status 400", dlq.messages[0].reason)
}
