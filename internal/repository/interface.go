package repository

import (
	"context"
	"time"

	"github.com/lumivid/messaging/internal/domain"
)

// ConversationStore owns conversation and participant records and
// guarantees the private-conversation uniqueness invariant.
type ConversationStore interface {
	// GetOrCreatePrivateConversation returns the active private
	// conversation between the two users, creating it if absent.
	// Concurrent calls for the same pair converge on one conversation.
	GetOrCreatePrivateConversation(ctx context.Context, userA, userB string) (*domain.Conversation, error)

	// CreateGroupConversation creates a group conversation; the creator
	// joins as ADMIN, members as MEMBER.
	CreateGroupConversation(ctx context.Context, creatorID, title string, memberIDs []string) (*domain.Conversation, error)

	GetByID(ctx context.Context, id string) (*domain.Conversation, error)

	// ListUserConversations returns conversations where the user has an
	// active participant row, most recent message first.
	ListUserConversations(ctx context.Context, userID string, page, pageSize int) (*domain.ConversationPage, error)

	GetParticipants(ctx context.Context, conversationID string) ([]domain.Participant, error)
	IsParticipant(ctx context.Context, conversationID, userID string) (bool, error)

	// AddParticipant activates membership; a user who left earlier is
	// reactivated rather than duplicated.
	AddParticipant(ctx context.Context, conversationID, userID string, role domain.ParticipantRole) error

	// RemoveParticipant soft-deactivates membership.
	RemoveParticipant(ctx context.Context, conversationID, userID string) error

	// GetOtherParticipant returns the other active user id in a private
	// conversation.
	GetOtherParticipant(ctx context.Context, conversationID, userID string) (string, error)

	// TouchLastMessageAt records the latest message time, called by the
	// message store after every successful send.
	TouchLastMessageAt(ctx context.Context, conversationID string, ts time.Time) error

	// LeaveConversation deactivates the caller's participant row and
	// deactivates the conversation itself once nobody is left.
	LeaveConversation(ctx context.Context, conversationID, userID string) error
}

// MessageStore owns message rows. Participancy and authorization
// preconditions are enforced by the chat service before every write and
// page query.
type MessageStore interface {
	Create(ctx context.Context, msg *domain.Message) error
	GetByID(ctx context.Context, id string) (*domain.Message, error)

	// MarkRecalled flips is_recalled on a live message. Returns
	// ErrMessageNotFound when the message is already recalled/deleted.
	MarkRecalled(ctx context.Context, id string, at time.Time) error

	// MarkDeleted flips is_deleted on a live message.
	MarkDeleted(ctx context.Context, id string, at time.Time) error

	// SoftDeleteByConversation soft-deletes every live message in a
	// conversation and returns the affected count.
	SoftDeleteByConversation(ctx context.Context, conversationID string, at time.Time) (int64, error)

	// ListByConversation returns a page ordered created_at DESC, id DESC.
	// Deleted rows are omitted; recalled rows surface as tombstones.
	ListByConversation(ctx context.Context, conversationID string, page, pageSize int) (*domain.MessagePage, error)
}
