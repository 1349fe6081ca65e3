package domain

import (
	"fmt"
	"strings"
	"time"
)

// ConversationType represents the kind of conversation.
type ConversationType string

const (
	ConversationPrivate ConversationType = "PRIVATE"
	ConversationGroup   ConversationType = "GROUP"
)

// ParticipantRole represents a participant's role in a conversation.
type ParticipantRole string

const (
	RoleMember ParticipantRole = "MEMBER"
	RoleAdmin  ParticipantRole = "ADMIN"
)

// Conversation represents a private or group conversation.
type Conversation struct {
	ID            string           `json:"id"`
	Type          ConversationType `json:"type"`
	Title         string           `json:"title,omitempty"`
	CreatedBy     string           `json:"created_by"`
	CreatedAt     time.Time        `json:"created_at"`
	LastMessageAt time.Time        `json:"last_message_at"`
	IsActive      bool             `json:"is_active"`
}

// Participant represents a user's membership in a conversation.
// Leaving deactivates the row; rejoining reactivates it.
type Participant struct {
	ConversationID string          `json:"conversation_id"`
	UserID         string          `json:"user_id"`
	Role           ParticipantRole `json:"role"`
	JoinedAt       time.Time       `json:"joined_at"`
	IsActive       bool            `json:"is_active"`
}

// PairKey returns the normalized unordered-pair key for a private
// conversation between two users. The unique index on this key is what
// guarantees at most one active private conversation per pair.
func PairKey(userA, userB string) string {
	if strings.Compare(userA, userB) > 0 {
		userA, userB = userB, userA
	}
	return fmt.Sprintf("%s:%s", userA, userB)
}

// ConversationModel is the GORM persistence model for Conversation.
type ConversationModel struct {
	ID            string     `gorm:"primaryKey;size:36"`
	Type          string     `gorm:"size:16;not null;index"`
	Title         string     `gorm:"size:200"`
	PairKey       *string    `gorm:"uniqueIndex;size:80"`
	CreatedBy     string     `gorm:"size:36;not null;index"`
	CreatedAt     time.Time  `gorm:"autoCreateTime"`
	LastMessageAt time.Time  `gorm:"index"`
	IsActive      bool       `gorm:"not null;default:true"`
	DeactivatedAt *time.Time
}

// TableName overrides the GORM table name.
func (ConversationModel) TableName() string {
	return "conversations"
}

// ToDomain converts the persistence model to the domain object.
func (m *ConversationModel) ToDomain() *Conversation {
	return &Conversation{
		ID:            m.ID,
		Type:          ConversationType(m.Type),
		Title:         m.Title,
		CreatedBy:     m.CreatedBy,
		CreatedAt:     m.CreatedAt,
		LastMessageAt: m.LastMessageAt,
		IsActive:      m.IsActive,
	}
}

// ParticipantModel is the GORM persistence model for Participant.
type ParticipantModel struct {
	ID             uint      `gorm:"primaryKey;autoIncrement"`
	ConversationID string    `gorm:"size:36;not null;index:idx_participant_conv_user,unique,composite:conv_user"`
	UserID         string    `gorm:"size:36;not null;index:idx_participant_conv_user,unique,composite:conv_user;index"`
	Role           string    `gorm:"size:16;not null"`
	JoinedAt       time.Time `gorm:"autoCreateTime"`
	IsActive       bool      `gorm:"not null;default:true"`
	LeftAt         *time.Time
}

// TableName overrides the GORM table name.
func (ParticipantModel) TableName() string {
	return "conversation_participants"
}

// ToDomain converts the persistence model to the domain object.
func (m *ParticipantModel) ToDomain() *Participant {
	return &Participant{
		ConversationID: m.ConversationID,
		UserID:         m.UserID,
		Role:           ParticipantRole(m.Role),
		JoinedAt:       m.JoinedAt,
		IsActive:       m.IsActive,
	}
}

// ConversationPage is a paginated conversation listing.
type ConversationPage struct {
	Conversations []Conversation `json:"conversations"`
	Total         int            `json:"total"`
	Page          int            `json:"page"`
	PageSize      int            `json:"page_size"`
}
