package delivery

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/lumivid/messaging/internal/domain"
	"github.com/lumivid/messaging/internal/hub"
	"github.com/lumivid/messaging/pkg/log"
	"github.com/lumivid/messaging/pkg/pubsub"
)

// NotificationRecorder records message activity on a durable side
// channel for downstream consumers. Recording is fire-and-forget.
type NotificationRecorder interface {
	Record(ctx context.Context, msg *domain.Message) error
}

// Bus fans persisted messages and control events out to live
// subscribers: local clients through the hub, remote instances through
// redis pubsub. It also carries the presence broadcasts. Delivery never
// fails the write path; failures are logged and dropped.
type Bus struct {
	hub        *hub.Hub
	remote     pubsub.PubSub
	recorder   NotificationRecorder
	instanceID string
}

// messageEnvelope wraps a message notification with its origin instance
// so the redis loop can skip events this process already delivered.
type messageEnvelope struct {
	Origin  string                     `json:"origin"`
	Message domain.MessageNotification `json:"message"`
}

type controlEnvelope struct {
	Origin  string                     `json:"origin"`
	Control domain.ControlNotification `json:"control"`
}

// NewBus creates a delivery bus. recorder may be nil when no durable
// notification channel is configured.
func NewBus(h *hub.Hub, remote pubsub.PubSub, recorder NotificationRecorder) *Bus {
	return &Bus{
		hub:        h,
		remote:     remote,
		recorder:   recorder,
		instanceID: uuid.New().String(),
	}
}

// DeliverMessage pushes a persisted message to local subscribers and
// publishes it for remote instances.
func (b *Bus) DeliverMessage(ctx context.Context, msg *domain.Message) {
	l := log.Ctx(ctx)
	channel := pubsub.ConversationChannel(msg.ConversationID)
	notification := domain.NewMessageNotification(msg)

	if err := b.hub.BroadcastToChannel(channel, notification, ""); err != nil {
		l.Warn().Err(err).Str(log.FieldChannel, channel).Msg("local fan-out failed")
	}

	envelope := messageEnvelope{Origin: b.instanceID, Message: *notification}
	event, err := pubsub.NewEvent(pubsub.EventMessageSent, channel, envelope)
	if err == nil {
		err = b.remote.Publish(ctx, channel, event)
	}
	if err != nil {
		l.Warn().Err(err).Str(log.FieldChannel, channel).Msg("remote publish failed")
	}

	if b.recorder != nil {
		go func(m domain.Message) {
			recordCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := b.recorder.Record(recordCtx, &m); err != nil {
				l := log.L()
				l.Warn().Err(err).Str(log.FieldMessageID, m.ID).Msg("notification record failed")
			}
		}(*msg)
	}
}

// DeliverControl pushes a recall/clear/membership event to subscribers.
func (b *Bus) DeliverControl(ctx context.Context, eventType, conversationID, messageID, actorID string) {
	l := log.Ctx(ctx)
	channel := pubsub.ConversationChannel(conversationID)
	notification := domain.ControlNotification{
		Type:           eventType,
		ConversationID: conversationID,
		MessageID:      messageID,
		ActorID:        actorID,
		Timestamp:      time.Now(),
	}

	if err := b.hub.BroadcastToChannel(channel, notification, ""); err != nil {
		l.Warn().Err(err).Str(log.FieldChannel, channel).Msg("local fan-out failed")
	}

	envelope := controlEnvelope{Origin: b.instanceID, Control: notification}
	event, err := pubsub.NewEvent(eventType, channel, envelope)
	if err == nil {
		err = b.remote.Publish(ctx, channel, event)
	}
	if err != nil {
		l.Warn().Err(err).Str(log.FieldChannel, channel).Msg("remote publish failed")
	}
}

// BroadcastOnlineCount pushes the aggregate online count to every
// connected client.
func (b *Bus) BroadcastOnlineCount(count int) {
	payload := struct {
		Type string `json:"type"`
		pubsub.OnlineCountPayload
	}{
		Type:               pubsub.EventOnlineCount,
		OnlineCountPayload: pubsub.OnlineCountPayload{Count: count},
	}
	if err := b.hub.BroadcastGlobal(payload); err != nil {
		l := log.L()
		l.Warn().Err(err).Msg("online count broadcast failed")
	}
}

// BroadcastUserStatus pushes a user's online/offline transition to every
// connected client.
func (b *Bus) BroadcastUserStatus(userID string, online bool) {
	payload := struct {
		Type string `json:"type"`
		pubsub.UserStatusPayload
	}{
		Type:              pubsub.EventUserStatusChanged,
		UserStatusPayload: pubsub.UserStatusPayload{UserID: userID, Online: online},
	}
	if err := b.hub.BroadcastGlobal(payload); err != nil {
		l := log.L()
		l.Warn().Err(err).Msg("user status broadcast failed")
	}
}

// Run bridges remote conversation events into the local hub until ctx
// is cancelled. Events originated by this instance are skipped; their
// local fan-out already happened on the write path.
func (b *Bus) Run(ctx context.Context) error {
	events, err := b.remote.SubscribePattern(ctx, "conversation/*")
	if err != nil {
		return err
	}

	l := log.L()
	l.Info().Msg("delivery bus bridging remote events")

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-events:
			if !ok {
				return nil
			}
			b.dispatchRemote(event)
		}
	}
}

func (b *Bus) dispatchRemote(event *pubsub.Event) {
	l := log.L()

	if event.Type == pubsub.EventMessageSent {
		var envelope messageEnvelope
		if err := event.UnmarshalPayload(&envelope); err != nil {
			l.Warn().Err(err).Str(log.FieldChannel, event.Channel).Msg("bad remote message payload")
			return
		}
		if envelope.Origin == b.instanceID {
			return
		}
		if err := b.hub.BroadcastToChannel(event.Channel, envelope.Message, ""); err != nil {
			l.Warn().Err(err).Str(log.FieldChannel, event.Channel).Msg("remote message fan-out failed")
		}
		return
	}

	var envelope controlEnvelope
	if err := event.UnmarshalPayload(&envelope); err != nil {
		l.Warn().Err(err).Str(log.FieldChannel, event.Channel).Msg("bad remote control payload")
		return
	}
	if envelope.Origin == b.instanceID {
		return
	}
	if err := b.hub.BroadcastToChannel(event.Channel, envelope.Control, ""); err != nil {
		l.Warn().Err(err).Str(log.FieldChannel, event.Channel).Msg("remote control fan-out failed")
	}
}
