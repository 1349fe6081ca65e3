package domain

import (
	"strings"
	"time"
)

// MessageType tags the payload variant a message carries.
type MessageType string

const (
	MessageText  MessageType = "TEXT"
	MessageImage MessageType = "IMAGE"
	MessageVideo MessageType = "VIDEO"
	MessageVoice MessageType = "VOICE"
	MessageFile  MessageType = "FILE"
)

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	switch t {
	case MessageText, MessageImage, MessageVideo, MessageVoice, MessageFile:
		return true
	}
	return false
}

// HasAttachment reports whether this type carries an attachment reference.
func (t MessageType) HasAttachment() bool {
	return t != MessageText && t.Valid()
}

// Message represents a persisted conversation message.
//
// Lifecycle: CREATED → at most one of RECALLED or DELETED; both are
// terminal. Recalled messages remain visible as tombstones, deleted
// messages are filtered from page queries.
type Message struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"conversation_id"`
	SenderID       string      `json:"sender_id"`
	Type           MessageType `json:"type"`
	Content        string      `json:"content,omitempty"`
	FileURL        string      `json:"file_url,omitempty"`
	FileName       string      `json:"file_name,omitempty"`
	FileSize       int64       `json:"file_size,omitempty"`
	ThumbnailURL   string      `json:"thumbnail_url,omitempty"`
	Duration       int         `json:"duration,omitempty"`
	ReplyToID      string      `json:"reply_to_id,omitempty"`
	MentionedUsers []string    `json:"mentioned_users,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	IsRecalled     bool        `json:"is_recalled"`
	IsDeleted      bool        `json:"is_deleted"`
}

// Tombstone returns a copy with the original content suppressed, used
// when rendering recalled messages in page results.
func (m Message) Tombstone() Message {
	m.Content = ""
	m.FileURL = ""
	m.FileName = ""
	m.FileSize = 0
	m.ThumbnailURL = ""
	m.Duration = 0
	return m
}

// MessageModel is the GORM persistence model for Message.
type MessageModel struct {
	ID             string    `gorm:"primaryKey;size:36"`
	ConversationID string    `gorm:"size:36;not null;index:idx_message_conv_created"`
	SenderID       string    `gorm:"size:36;not null;index"`
	Type           string    `gorm:"size:16;not null"`
	Content        string    `gorm:"type:text"`
	FileURL        string    `gorm:"size:512"`
	FileName       string    `gorm:"size:255"`
	FileSize       int64
	ThumbnailURL   string `gorm:"size:512"`
	Duration       int
	ReplyToID      *string `gorm:"size:36"`
	MentionedUsers string  `gorm:"size:1024"`
	CreatedAt      time.Time `gorm:"autoCreateTime;index:idx_message_conv_created"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime"`
	IsRecalled     bool      `gorm:"not null;default:false"`
	RecalledAt     *time.Time
	IsDeleted      bool `gorm:"not null;default:false;index"`
	DeletedAt      *time.Time
}

// TableName overrides the GORM table name.
func (MessageModel) TableName() string {
	return "messages"
}

// ToDomain converts the persistence model to the domain object.
func (m *MessageModel) ToDomain() *Message {
	msg := &Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Type:           MessageType(m.Type),
		Content:        m.Content,
		FileURL:        m.FileURL,
		FileName:       m.FileName,
		FileSize:       m.FileSize,
		ThumbnailURL:   m.ThumbnailURL,
		Duration:       m.Duration,
		CreatedAt:      m.CreatedAt,
		IsRecalled:     m.IsRecalled,
		IsDeleted:      m.IsDeleted,
	}
	if m.ReplyToID != nil {
		msg.ReplyToID = *m.ReplyToID
	}
	if m.MentionedUsers != "" {
		msg.MentionedUsers = strings.Split(m.MentionedUsers, ",")
	}
	return msg
}

// JoinMentions serializes mentioned user ids for storage.
func JoinMentions(userIDs []string) string {
	return strings.Join(userIDs, ",")
}

// MessagePage is a paginated message listing, newest first.
type MessagePage struct {
	Messages []Message `json:"messages"`
	Total    int       `json:"total"`
	Page     int       `json:"page"`
	PageSize int       `json:"page_size"`
}

// SendMessageRequest is the REST payload for sending a message.
type SendMessageRequest struct {
	Type           MessageType `json:"type" binding:"required"`
	Content        string      `json:"content"`
	FileURL        string      `json:"file_url"`
	FileName       string      `json:"file_name"`
	FileSize       int64       `json:"file_size"`
	ThumbnailURL   string      `json:"thumbnail_url"`
	Duration       int         `json:"duration"`
	ReplyToID      string      `json:"reply_to_id"`
	MentionedUsers []string    `json:"mentioned_users"`
}

// CreatePrivateConversationRequest is the REST payload for get-or-create.
type CreatePrivateConversationRequest struct {
	TargetUserID string `json:"target_user_id" binding:"required"`
}

// CreateGroupConversationRequest is the REST payload for group creation.
type CreateGroupConversationRequest struct {
	Title     string   `json:"title" binding:"required,min=1,max=200"`
	MemberIDs []string `json:"member_ids" binding:"required,min=1"`
}
