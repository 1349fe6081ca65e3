package service

import (
	"context"

	"github.com/lumivid/messaging/internal/domain"
)

// ChatService is the conversational messaging core: conversation
// lifecycle, message lifecycle, and the authorization checks in front
// of both.
type ChatService interface {
	// GetOrCreatePrivateConversation returns the single active private
	// conversation between the caller and the target user.
	GetOrCreatePrivateConversation(ctx context.Context, userID, targetUserID string) (*domain.Conversation, error)

	// CreateGroupConversation creates a group conversation owned by the
	// caller.
	CreateGroupConversation(ctx context.Context, creatorID, title string, memberIDs []string) (*domain.Conversation, error)

	// GetConversation returns a conversation the caller participates in.
	GetConversation(ctx context.Context, userID, conversationID string) (*domain.Conversation, error)

	// ListConversations pages through the caller's active conversations.
	ListConversations(ctx context.Context, userID string, page, pageSize int) (*domain.ConversationPage, error)

	// GetParticipants lists active participants of a conversation the
	// caller belongs to.
	GetParticipants(ctx context.Context, userID, conversationID string) ([]domain.Participant, error)

	// AddMember adds a user to a group conversation. Admin only.
	AddMember(ctx context.Context, actorID, conversationID, userID string) error

	// RemoveMember removes a user from a group conversation. Admin only.
	RemoveMember(ctx context.Context, actorID, conversationID, userID string) error

	// LeaveConversation removes the caller from a conversation.
	LeaveConversation(ctx context.Context, userID, conversationID string) error

	// GetPeer returns the other user in a private conversation the
	// caller belongs to.
	GetPeer(ctx context.Context, userID, conversationID string) (string, error)

	// SendMessage validates, persists, and fans out a new message.
	SendMessage(ctx context.Context, senderID, conversationID string, req *domain.SendMessageRequest) (*domain.Message, error)

	// RecallMessage marks the caller's own recent message as recalled.
	RecallMessage(ctx context.Context, userID, messageID string) error

	// DeleteMessage soft-deletes the caller's own message.
	DeleteMessage(ctx context.Context, userID, messageID string) error

	// ClearConversationMessages soft-deletes every message in a
	// conversation the caller belongs to and returns the cleared count.
	ClearConversationMessages(ctx context.Context, userID, conversationID string) (int64, error)

	// GetConversationMessages pages through a conversation's history,
	// newest first, recalled messages tombstoned.
	GetConversationMessages(ctx context.Context, userID, conversationID string, page, pageSize int) (*domain.MessagePage, error)
}

// Deliverer fans persisted messages and control events out to live
// subscribers. Delivery is best-effort and never fails the write path.
type Deliverer interface {
	DeliverMessage(ctx context.Context, msg *domain.Message)
	DeliverControl(ctx context.Context, eventType, conversationID, messageID, actorID string)
}
