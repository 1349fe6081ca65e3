package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lumivid/messaging/internal/config"
	"github.com/lumivid/messaging/internal/domain"
	"github.com/lumivid/messaging/internal/events"
	"github.com/lumivid/messaging/internal/repository"
	"github.com/lumivid/messaging/pkg/database"
	"github.com/lumivid/messaging/pkg/pubsub"
)

type recordingDeliverer struct {
	mu       sync.Mutex
	messages []string
	controls []string
}

func (d *recordingDeliverer) DeliverMessage(_ context.Context, msg *domain.Message) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.messages = append(d.messages, msg.ID)
}

func (d *recordingDeliverer) DeliverControl(_ context.Context, eventType, _, _, _ string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.controls = append(d.controls, eventType)
}

type fixture struct {
	chat      ChatService
	deliverer *recordingDeliverer
	bus       *events.Bus
}

func newFixture(t *testing.T, recallWindow time.Duration) *fixture {
	t.Helper()

	db, err := database.New(&database.Config{
		Driver:   "sqlite",
		FilePath: filepath.Join(t.TempDir(), "test.db"),
	})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db,
		&domain.ConversationModel{},
		&domain.ParticipantModel{},
		&domain.MessageModel{},
	))

	deliverer := &recordingDeliverer{}
	bus := events.NewBus()
	chat := NewChatService(
		repository.NewGormConversationStore(db),
		repository.NewGormMessageStore(db),
		deliverer,
		bus,
		config.ChatConfig{
			RecallWindow:      recallWindow,
			MaxPageSize:       100,
			MaxAttachmentSize: 1 << 20,
		},
	)
	return &fixture{chat: chat, deliverer: deliverer, bus: bus}
}

func (f *fixture) privateConv(t *testing.T, userA, userB string) *domain.Conversation {
	t.Helper()
	conv, err := f.chat.GetOrCreatePrivateConversation(context.Background(), userA, userB)
	require.NoError(t, err)
	return conv
}

func textMessage(content string) *domain.SendMessageRequest {
	return &domain.SendMessageRequest{Type: domain.MessageText, Content: content}
}

func TestSelfConversationRejected(t *testing.T) {
	f := newFixture(t, 2*time.Minute)

	_, err := f.chat.GetOrCreatePrivateConversation(context.Background(), "alice", "alice")
	require.ErrorIs(t, err, domain.ErrSelfConversation)
}

func TestSendMessageDeliversAndPublishes(t *testing.T) {
	f := newFixture(t, 2*time.Minute)
	ctx := context.Background()
	conv := f.privateConv(t, "alice", "bob")

	var published []string
	f.bus.Subscribe(events.MessageSent{}.Name(), func(e events.Event) {
		published = append(published, e.(events.MessageSent).MessageID)
	})

	msg, err := f.chat.SendMessage(ctx, "alice", conv.ID, textMessage("hello"))
	require.NoError(t, err)
	require.NotEmpty(t, msg.ID)
	require.Equal(t, []string{msg.ID}, published)
	require.Equal(t, []string{msg.ID}, f.deliverer.messages)

	// Conversation activity follows the send.
	got, err := f.chat.GetConversation(ctx, "alice", conv.ID)
	require.NoError(t, err)
	require.WithinDuration(t, msg.CreatedAt, got.LastMessageAt, time.Second)
}

func TestSendMessageRequiresParticipancy(t *testing.T) {
	f := newFixture(t, 2*time.Minute)
	conv := f.privateConv(t, "alice", "bob")

	_, err := f.chat.SendMessage(context.Background(), "mallory", conv.ID, textMessage("hi"))
	require.ErrorIs(t, err, domain.ErrNotParticipant)
	require.Empty(t, f.deliverer.messages)
}

func TestSendMessageValidation(t *testing.T) {
	f := newFixture(t, 2*time.Minute)
	ctx := context.Background()
	conv := f.privateConv(t, "alice", "bob")

	_, err := f.chat.SendMessage(ctx, "alice", conv.ID, &domain.SendMessageRequest{Type: "BOGUS"})
	require.ErrorIs(t, err, domain.ErrInvalidMessageType)

	_, err = f.chat.SendMessage(ctx, "alice", conv.ID, textMessage(""))
	require.ErrorIs(t, err, domain.ErrEmptyMessage)

	_, err = f.chat.SendMessage(ctx, "alice", conv.ID, &domain.SendMessageRequest{Type: domain.MessageImage})
	require.ErrorIs(t, err, domain.ErrEmptyMessage)

	_, err = f.chat.SendMessage(ctx, "alice", conv.ID, &domain.SendMessageRequest{
		Type:     domain.MessageFile,
		FileURL:  "http://example.com/big",
		FileSize: 2 << 20,
	})
	require.ErrorIs(t, err, domain.ErrAttachmentTooLarge)
}

func TestReplyMustTargetSameConversation(t *testing.T) {
	f := newFixture(t, 2*time.Minute)
	ctx := context.Background()
	conv := f.privateConv(t, "alice", "bob")
	other := f.privateConv(t, "alice", "carol")

	parent, err := f.chat.SendMessage(ctx, "alice", other.ID, textMessage("elsewhere"))
	require.NoError(t, err)

	req := textMessage("reply")
	req.ReplyToID = parent.ID
	_, err = f.chat.SendMessage(ctx, "alice", conv.ID, req)
	require.ErrorIs(t, err, domain.ErrMessageNotFound)

	req.ReplyToID = "no-such-message"
	_, err = f.chat.SendMessage(ctx, "alice", conv.ID, req)
	require.ErrorIs(t, err, domain.ErrMessageNotFound)
}

func TestRecallWithinWindow(t *testing.T) {
	f := newFixture(t, 2*time.Minute)
	ctx := context.Background()
	conv := f.privateConv(t, "alice", "bob")

	msg, err := f.chat.SendMessage(ctx, "alice", conv.ID, textMessage("oops"))
	require.NoError(t, err)

	require.NoError(t, f.chat.RecallMessage(ctx, "alice", msg.ID))
	require.Contains(t, f.deliverer.controls, pubsub.EventMessageRecalled)

	page, err := f.chat.GetConversationMessages(ctx, "bob", conv.ID, 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	require.True(t, page.Messages[0].IsRecalled)
	require.Empty(t, page.Messages[0].Content)
}

func TestRecallWindowExpired(t *testing.T) {
	f := newFixture(t, 50*time.Millisecond)
	ctx := context.Background()
	conv := f.privateConv(t, "alice", "bob")

	msg, err := f.chat.SendMessage(ctx, "alice", conv.ID, textMessage("late"))
	require.NoError(t, err)

	time.Sleep(80 * time.Millisecond)
	require.ErrorIs(t, f.chat.RecallMessage(ctx, "alice", msg.ID), domain.ErrRecallWindowExpired)
}

func TestRecallSenderOnly(t *testing.T) {
	f := newFixture(t, 2*time.Minute)
	ctx := context.Background()
	conv := f.privateConv(t, "alice", "bob")

	msg, err := f.chat.SendMessage(ctx, "alice", conv.ID, textMessage("mine"))
	require.NoError(t, err)

	require.ErrorIs(t, f.chat.RecallMessage(ctx, "bob", msg.ID), domain.ErrNotAuthorized)
}

func TestRecallIsIdempotentlyRejected(t *testing.T) {
	f := newFixture(t, 2*time.Minute)
	ctx := context.Background()
	conv := f.privateConv(t, "alice", "bob")

	msg, err := f.chat.SendMessage(ctx, "alice", conv.ID, textMessage("once"))
	require.NoError(t, err)

	require.NoError(t, f.chat.RecallMessage(ctx, "alice", msg.ID))
	require.ErrorIs(t, f.chat.RecallMessage(ctx, "alice", msg.ID), domain.ErrMessageNotFound)
}

func TestDeleteMessageSenderOnly(t *testing.T) {
	f := newFixture(t, 2*time.Minute)
	ctx := context.Background()
	conv := f.privateConv(t, "alice", "bob")

	msg, err := f.chat.SendMessage(ctx, "alice", conv.ID, textMessage("gone"))
	require.NoError(t, err)

	require.ErrorIs(t, f.chat.DeleteMessage(ctx, "bob", msg.ID), domain.ErrNotAuthorized)
	require.NoError(t, f.chat.DeleteMessage(ctx, "alice", msg.ID))

	page, err := f.chat.GetConversationMessages(ctx, "alice", conv.ID, 1, 10)
	require.NoError(t, err)
	require.Empty(t, page.Messages)
}

func TestClearConversationMessages(t *testing.T) {
	f := newFixture(t, 2*time.Minute)
	ctx := context.Background()
	conv := f.privateConv(t, "alice", "bob")

	for i := 0; i < 3; i++ {
		_, err := f.chat.SendMessage(ctx, "alice", conv.ID, textMessage("m"))
		require.NoError(t, err)
	}

	cleared, err := f.chat.ClearConversationMessages(ctx, "bob", conv.ID)
	require.NoError(t, err)
	require.EqualValues(t, 3, cleared)
	require.Contains(t, f.deliverer.controls, pubsub.EventMessagesCleared)

	_, err = f.chat.ClearConversationMessages(ctx, "mallory", conv.ID)
	require.ErrorIs(t, err, domain.ErrNotParticipant)
}

func TestGetMessagesRequiresParticipancy(t *testing.T) {
	f := newFixture(t, 2*time.Minute)
	conv := f.privateConv(t, "alice", "bob")

	_, err := f.chat.GetConversationMessages(context.Background(), "mallory", conv.ID, 1, 10)
	require.ErrorIs(t, err, domain.ErrNotParticipant)
}

func TestGroupMembershipAdminOnly(t *testing.T) {
	f := newFixture(t, 2*time.Minute)
	ctx := context.Background()

	conv, err := f.chat.CreateGroupConversation(ctx, "alice", "team", []string{"bob"})
	require.NoError(t, err)

	require.ErrorIs(t, f.chat.AddMember(ctx, "bob", conv.ID, "carol"), domain.ErrNotAuthorized)
	require.NoError(t, f.chat.AddMember(ctx, "alice", conv.ID, "carol"))
	require.Contains(t, f.deliverer.controls, pubsub.EventMemberJoined)

	require.ErrorIs(t, f.chat.RemoveMember(ctx, "carol", conv.ID, "bob"), domain.ErrNotAuthorized)
	require.NoError(t, f.chat.RemoveMember(ctx, "alice", conv.ID, "carol"))

	// Membership operations target groups only.
	private := f.privateConv(t, "alice", "bob")
	require.ErrorIs(t, f.chat.AddMember(ctx, "alice", private.ID, "carol"), domain.ErrNotAuthorized)
}

func TestGetPeer(t *testing.T) {
	f := newFixture(t, 2*time.Minute)
	ctx := context.Background()
	conv := f.privateConv(t, "alice", "bob")

	peer, err := f.chat.GetPeer(ctx, "alice", conv.ID)
	require.NoError(t, err)
	require.Equal(t, "bob", peer)

	_, err = f.chat.GetPeer(ctx, "mallory", conv.ID)
	require.ErrorIs(t, err, domain.ErrNotParticipant)

	group, err := f.chat.CreateGroupConversation(ctx, "alice", "team", []string{"bob"})
	require.NoError(t, err)
	_, err = f.chat.GetPeer(ctx, "alice", group.ID)
	require.ErrorIs(t, err, domain.ErrConversationNotFound)
}

func TestLeaveConversationEmitsControl(t *testing.T) {
	f := newFixture(t, 2*time.Minute)
	ctx := context.Background()
	conv := f.privateConv(t, "alice", "bob")

	require.NoError(t, f.chat.LeaveConversation(ctx, "alice", conv.ID))
	require.Contains(t, f.deliverer.controls, pubsub.EventMemberLeft)

	_, err := f.chat.SendMessage(ctx, "alice", conv.ID, textMessage("too late"))
	require.ErrorIs(t, err, domain.ErrNotParticipant)
}

func TestRecalledParentStillReferenceable(t *testing.T) {
	f := newFixture(t, 2*time.Minute)
	ctx := context.Background()
	conv := f.privateConv(t, "alice", "bob")

	parent, err := f.chat.SendMessage(ctx, "alice", conv.ID, textMessage("original"))
	require.NoError(t, err)
	require.NoError(t, f.chat.RecallMessage(ctx, "alice", parent.ID))

	// A recalled message keeps its row, so replies to it remain valid.
	req := textMessage("reply to tombstone")
	req.ReplyToID = parent.ID
	_, err = f.chat.SendMessage(ctx, "bob", conv.ID, req)
	require.NoError(t, err)
}
