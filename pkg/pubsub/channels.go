package pubsub

import "fmt"

// Channel naming conventions for the messaging system.
const (
	// Per-conversation real-time channel.
	ChannelConversation = "conversation/%s"

	// Global channel carrying aggregate presence broadcasts.
	ChannelGlobal = "global"
)

// Event types published on conversation channels.
const (
	EventMessageSent     = "message_sent"
	EventMessageRecalled = "message_recalled"
	EventMessageDeleted  = "message_deleted"
	EventMessagesCleared = "messages_cleared"
	EventMemberJoined    = "member_joined"
	EventMemberLeft      = "member_left"
)

// Event types published on the global channel.
const (
	EventOnlineCount       = "online_count"
	EventUserStatusChanged = "user_status_changed"
)

// ConversationChannel returns the channel name for a conversation.
func ConversationChannel(conversationID string) string {
	return fmt.Sprintf(ChannelConversation, conversationID)
}

// OnlineCountPayload is broadcast periodically on the global channel.
type OnlineCountPayload struct {
	Count int `json:"count"`
}

// UserStatusPayload is broadcast when a user transitions online or offline.
type UserStatusPayload struct {
	UserID string `json:"user_id"`
	Online bool   `json:"online"`
}

// ControlPayload carries control events on a conversation channel.
// Control events have no message body, only a reference to the affected rows.
type ControlPayload struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id,omitempty"`
	ActorID        string `json:"actor_id,omitempty"`
}
