package domain

import "time"

// WebSocket message types from client.
const (
	MsgTypeAuth        = "auth"
	MsgTypeSubscribe   = "subscribe"
	MsgTypeUnsubscribe = "unsubscribe"
	MsgTypeHeartbeat   = "heartbeat"
	MsgTypePing        = "ping"
)

// WebSocket message types to client.
const (
	MsgTypeConnected    = "connected"
	MsgTypeAuthResult   = "auth_result"
	MsgTypeSubscribed   = "subscribed"
	MsgTypeUnsubscribed = "unsubscribed"
	MsgTypeError        = "error"
	MsgTypePong         = "pong"
	MsgTypeMessage      = "message"
)

// Error codes used on the WS wire.
const (
	WSErrCodeUnauthorized = "UNAUTHORIZED"
	WSErrCodeBadRequest   = "BAD_REQUEST"
	WSErrCodeNotMember    = "NOT_PARTICIPANT"
)

// BaseMessage is the base structure for all WebSocket messages.
type BaseMessage struct {
	Type string `json:"type"`
}

// Client -> Server messages

type AuthMessage struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

type SubscribeMessage struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id"`
}

// Server -> Client messages

type ConnectedMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

type AuthResultMessage struct {
	Type    string `json:"type"`
	Success bool   `json:"success"`
	UserID  string `json:"user_id,omitempty"`
	Message string `json:"message,omitempty"`
}

type SubscribedMessage struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewErrorMessage(code, message string) *ErrorMessage {
	return &ErrorMessage{
		Type:    MsgTypeError,
		Code:    code,
		Message: message,
	}
}

// MessageNotification is the payload pushed on a conversation channel
// when a message is created. Control events (message_recalled,
// messages_cleared, membership changes) use the type discriminator and
// omit the message body.
type MessageNotification struct {
	Type           string    `json:"type"`
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	MessageType    string    `json:"message_type"`
	Content        string    `json:"content,omitempty"`
	FileURL        string    `json:"file_url,omitempty"`
	FileName       string    `json:"file_name,omitempty"`
	ReplyTo        string    `json:"reply_to,omitempty"`
	MentionedUsers []string  `json:"mentioned_users,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	IsRecalled     bool      `json:"is_recalled"`
}

// NewMessageNotification builds the push payload for a persisted message.
func NewMessageNotification(m *Message) *MessageNotification {
	return &MessageNotification{
		Type:           MsgTypeMessage,
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		MessageType:    string(m.Type),
		Content:        m.Content,
		FileURL:        m.FileURL,
		FileName:       m.FileName,
		ReplyTo:        m.ReplyToID,
		MentionedUsers: m.MentionedUsers,
		Timestamp:      m.CreatedAt,
		IsRecalled:     m.IsRecalled,
	}
}

// ControlNotification is pushed for recall/clear/membership events.
type ControlNotification struct {
	Type           string    `json:"type"`
	ConversationID string    `json:"conversation_id"`
	MessageID      string    `json:"message_id,omitempty"`
	ActorID        string    `json:"actor_id,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}
