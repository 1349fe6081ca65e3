package delivery

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lumivid/messaging/internal/config"
	"github.com/lumivid/messaging/internal/domain"
	"github.com/lumivid/messaging/internal/hub"
	"github.com/lumivid/messaging/pkg/pubsub"
)

// fakePubSub captures published events and lets tests feed the
// subscription stream by hand.
type fakePubSub struct {
	mu        sync.Mutex
	published []*pubsub.Event
	stream    chan *pubsub.Event
}

func newFakePubSub() *fakePubSub {
	return &fakePubSub{stream: make(chan *pubsub.Event, 16)}
}

func (f *fakePubSub) Publish(_ context.Context, _ string, event *pubsub.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, event)
	return nil
}

func (f *fakePubSub) Subscribe(context.Context, string) (<-chan *pubsub.Event, error) {
	return f.stream, nil
}

func (f *fakePubSub) SubscribePattern(context.Context, string) (<-chan *pubsub.Event, error) {
	return f.stream, nil
}

func (f *fakePubSub) Unsubscribe(context.Context, string) error { return nil }
func (f *fakePubSub) Close() error                              { return nil }

func (f *fakePubSub) lastPublished(t *testing.T) *pubsub.Event {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.published)
	return f.published[len(f.published)-1]
}

type recordingRecorder struct {
	mu  sync.Mutex
	ids []string
}

func (r *recordingRecorder) Record(_ context.Context, msg *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, msg.ID)
	return nil
}

func newTestSetup(t *testing.T) (*Bus, *hub.Hub, *fakePubSub, *recordingRecorder) {
	t.Helper()
	h := hub.NewHub(config.WebSocketConfig{})
	go h.Run()
	remote := newFakePubSub()
	recorder := &recordingRecorder{}
	return NewBus(h, remote, recorder), h, remote, recorder
}

func subscriber(t *testing.T, h *hub.Hub, sessionID, channel string) *hub.Client {
	t.Helper()
	cl := hub.NewClient(sessionID, "", h, nil, config.WebSocketConfig{})
	h.Register(cl)
	h.Subscribe(cl, channel)
	return cl
}

func waitMessage(t *testing.T, cl *hub.Client) []byte {
	t.Helper()
	select {
	case data := <-cl.Send:
		return data
	case <-time.After(time.Second):
		t.Fatal("no message received")
		return nil
	}
}

func TestDeliverMessageFansOutLocallyAndRemotely(t *testing.T) {
	bus, h, remote, recorder := newTestSetup(t)

	msg := &domain.Message{
		ID:             "m1",
		ConversationID: "c1",
		SenderID:       "alice",
		Type:           domain.MessageText,
		Content:        "hello",
		CreatedAt:      time.Now(),
	}
	cl := subscriber(t, h, "s1", pubsub.ConversationChannel("c1"))

	bus.DeliverMessage(context.Background(), msg)

	require.Contains(t, string(waitMessage(t, cl)), `"id":"m1"`)

	event := remote.lastPublished(t)
	require.Equal(t, pubsub.EventMessageSent, event.Type)
	require.Equal(t, "conversation/c1", event.Channel)

	var envelope messageEnvelope
	require.NoError(t, event.UnmarshalPayload(&envelope))
	require.NotEmpty(t, envelope.Origin)
	require.Equal(t, "m1", envelope.Message.ID)

	require.Eventually(t, func() bool {
		recorder.mu.Lock()
		defer recorder.mu.Unlock()
		return len(recorder.ids) == 1 && recorder.ids[0] == "m1"
	}, time.Second, 10*time.Millisecond)
}

func TestRunSkipsOwnEvents(t *testing.T) {
	bus, h, remote, _ := newTestSetup(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go bus.Run(ctx)

	cl := subscriber(t, h, "s1", pubsub.ConversationChannel("c1"))

	msg := &domain.Message{ID: "m1", ConversationID: "c1", SenderID: "alice", Type: domain.MessageText, Content: "x", CreatedAt: time.Now()}
	bus.DeliverMessage(context.Background(), msg)

	// Feed the bus its own published event back, as redis would.
	remote.stream <- remote.lastPublished(t)

	// Exactly one delivery: the local fan-out on the write path.
	waitMessage(t, cl)
	select {
	case data := <-cl.Send:
		t.Fatalf("duplicate delivery: %s", data)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRunBridgesForeignEvents(t *testing.T) {
	bus, h, remote, _ := newTestSetup(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go bus.Run(ctx)

	cl := subscriber(t, h, "s1", pubsub.ConversationChannel("c1"))

	envelope := messageEnvelope{
		Origin: "another-instance",
		Message: domain.MessageNotification{
			Type:           domain.MsgTypeMessage,
			ID:             "m-remote",
			ConversationID: "c1",
			SenderID:       "bob",
			MessageType:    string(domain.MessageText),
			Content:        "from afar",
		},
	}
	event, err := pubsub.NewEvent(pubsub.EventMessageSent, "conversation/c1", envelope)
	require.NoError(t, err)
	remote.stream <- event

	require.Contains(t, string(waitMessage(t, cl)), `"id":"m-remote"`)
}

func TestDeliverControlPublishesEnvelope(t *testing.T) {
	bus, h, remote, _ := newTestSetup(t)

	cl := subscriber(t, h, "s1", pubsub.ConversationChannel("c1"))

	bus.DeliverControl(context.Background(), pubsub.EventMessageRecalled, "c1", "m1", "alice")

	require.Contains(t, string(waitMessage(t, cl)), pubsub.EventMessageRecalled)

	event := remote.lastPublished(t)
	require.Equal(t, pubsub.EventMessageRecalled, event.Type)

	var envelope controlEnvelope
	require.NoError(t, event.UnmarshalPayload(&envelope))
	require.Equal(t, "m1", envelope.Control.MessageID)
	require.Equal(t, "alice", envelope.Control.ActorID)
}

func TestPresenceBroadcastsReachAllClients(t *testing.T) {
	bus, h, _, _ := newTestSetup(t)

	cl := hub.NewClient("s1", "", h, nil, config.WebSocketConfig{})
	h.Register(cl)

	bus.BroadcastOnlineCount(7)
	require.Contains(t, string(waitMessage(t, cl)), `"count":7`)

	bus.BroadcastUserStatus("alice", true)
	payload := string(waitMessage(t, cl))
	require.Contains(t, payload, `"user_id":"alice"`)
	require.Contains(t, payload, pubsub.EventUserStatusChanged)
}
