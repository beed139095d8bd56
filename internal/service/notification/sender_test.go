package notification

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	mqcontracts "mockupreview/contracts/mq"
	"mockupreview/internal/repository/memory"
	"mockupreview/pkg/circuitbreaker"
)

// webhookRecorder 记录收到的消息，failFor 中的接收人返回 500
type webhookRecorder struct {
	mu       sync.Mutex
	received []Message
	failFor  map[string]bool
}

func (w *webhookRecorder) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	var msg Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		rw.WriteHeader(http.StatusBadRequest)
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.received = append(w.received, msg)
	if w.failFor[msg.Recipient.ID] {
		rw.WriteHeader(http.StatusInternalServerError)
		return
	}
	rw.WriteHeader(http.StatusNoContent)
}

func (w *webhookRecorder) messages() []Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Message(nil), w.received...)
}

func changesRequested() mqcontracts.ReviewEventPayload {
	return mqcontracts.ReviewEventPayload{
		EventID:       "evt-1",
		Kind:          mqcontracts.RoutingKeyChangesRequested,
		ArtifactID:    7,
		ArtifactTitle: "Homepage hero",
		StageName:     "Legal",
		ActorName:     "Carol",
		Notes:         "fix logo contrast",
		Recipients:    []mqcontracts.Recipient{{ID: "u-author"}, {ID: "u-owner"}},
	}
}

func TestSender_WebhookDelivery(t *testing.T) {
	hook := &webhookRecorder{}
	srv := httptest.NewServer(hook)
	defer srv.Close()

	logs := memory.NewNotificationLogStore()
	sender := NewSender(NewWebhookChannel(srv.URL, time.Second, nil), logs, zap.NewNop())

	require.NoError(t, sender.Deliver(context.Background(), changesRequested()))

	received := hook.messages()
	require.Len(t, received, 2)
	assert.Equal(t, "Changes requested: Homepage hero", received[0].Subject)
	assert.Contains(t, received[0].Body, "fix logo contrast")
	assert.Len(t, logs.All(), 2)
	for _, l := range logs.All() {
		assert.Equal(t, StatusSent, l.Status)
		assert.Equal(t, ChannelWebhook, l.Channel)
	}
}

func TestSender_RedeliverySkipsSentRecipients(t *testing.T) {
	hook := &webhookRecorder{failFor: map[string]bool{"u-owner": true}}
	srv := httptest.NewServer(hook)
	defer srv.Close()

	logs := memory.NewNotificationLogStore()
	sender := NewSender(NewWebhookChannel(srv.URL, time.Second, nil), logs, zap.NewNop())

	err := sender.Deliver(context.Background(), changesRequested())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "webhook returned status 500")

	hook.mu.Lock()
	hook.failFor = nil
	hook.mu.Unlock()
	require.NoError(t, sender.Deliver(context.Background(), changesRequested()))

	// u-author 只收到一次
	received := hook.messages()
	require.Len(t, received, 3)
	assert.Equal(t, "u-owner", received[2].Recipient.ID)
	for _, l := range logs.All() {
		assert.Equal(t, StatusSent, l.Status)
	}
}

func TestWebhookChannel_BreakerOpens(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		rw.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	cfg := circuitbreaker.DefaultConfig()
	cfg.FailureThreshold = 2
	cfg.Timeout = time.Hour
	ch := NewWebhookChannel(srv.URL, time.Second, circuitbreaker.NewCircuitBreaker(cfg))

	msg := Message{EventID: "evt-9", Recipient: mqcontracts.Recipient{ID: "u1"}}
	assert.Error(t, ch.Send(context.Background(), msg))
	assert.Error(t, ch.Send(context.Background(), msg))
	err := ch.Send(context.Background(), msg)
	assert.True(t, errors.Is(err, circuitbreaker.ErrCircuitBreakerOpen))
	assert.Equal(t, int32(2), calls.Load())
}

func TestInlinePublisher(t *testing.T) {
	logs := memory.NewNotificationLogStore()
	pub := NewInlinePublisher(NewSender(NewLogChannel(zap.NewNop()), logs, zap.NewNop()))

	raw, err := json.Marshal(changesRequested())
	require.NoError(t, err)
	require.NoError(t, pub.PublishWithContext(context.Background(), mqcontracts.RoutingKeyChangesRequested, json.RawMessage(raw)))
	assert.Len(t, logs.All(), 2)

	err = pub.PublishWithContext(context.Background(), mqcontracts.RoutingKeyStageOpened, json.RawMessage(`[1,2]`))
	assert.Error(t, err)
}

func TestRender(t *testing.T) {
	subject, body := Render(mqcontracts.ReviewEventPayload{
		Kind:          mqcontracts.RoutingKeyStageOpened,
		ArtifactTitle: "Hero",
		StageName:     "Design",
		Round:         2,
	})
	assert.Equal(t, "Review requested: Hero", subject)
	assert.Equal(t, `Stage "Design" is ready for your review (round 2).`, body)

	_, body = Render(mqcontracts.ReviewEventPayload{Kind: mqcontracts.RoutingKeyFinalApprovalGranted, ActorID: "u-owner"})
	assert.Equal(t, "u-owner granted final approval.", body)
}
