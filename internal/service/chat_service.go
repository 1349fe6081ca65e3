package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/lumivid/messaging/internal/config"
	"github.com/lumivid/messaging/internal/domain"
	"github.com/lumivid/messaging/internal/events"
	"github.com/lumivid/messaging/internal/repository"
	"github.com/lumivid/messaging/pkg/log"
	"github.com/lumivid/messaging/pkg/pubsub"
)

type chatService struct {
	conversations repository.ConversationStore
	messages      repository.MessageStore
	deliverer     Deliverer
	bus           *events.Bus
	cfg           config.ChatConfig
}

// NewChatService creates the messaging core service.
func NewChatService(
	conversations repository.ConversationStore,
	messages repository.MessageStore,
	deliverer Deliverer,
	bus *events.Bus,
	cfg config.ChatConfig,
) ChatService {
	return &chatService{
		conversations: conversations,
		messages:      messages,
		deliverer:     deliverer,
		bus:           bus,
		cfg:           cfg,
	}
}

func (s *chatService) GetOrCreatePrivateConversation(ctx context.Context, userID, targetUserID string) (*domain.Conversation, error) {
	if userID == targetUserID {
		return nil, domain.ErrSelfConversation
	}
	return s.conversations.GetOrCreatePrivateConversation(ctx, userID, targetUserID)
}

func (s *chatService) CreateGroupConversation(ctx context.Context, creatorID, title string, memberIDs []string) (*domain.Conversation, error) {
	return s.conversations.CreateGroupConversation(ctx, creatorID, title, memberIDs)
}

func (s *chatService) GetConversation(ctx context.Context, userID, conversationID string) (*domain.Conversation, error) {
	if err := s.requireParticipant(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	return s.conversations.GetByID(ctx, conversationID)
}

func (s *chatService) ListConversations(ctx context.Context, userID string, page, pageSize int) (*domain.ConversationPage, error) {
	return s.conversations.ListUserConversations(ctx, userID, page, s.clampPageSize(pageSize))
}

func (s *chatService) GetParticipants(ctx context.Context, userID, conversationID string) ([]domain.Participant, error) {
	if err := s.requireParticipant(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	return s.conversations.GetParticipants(ctx, conversationID)
}

func (s *chatService) AddMember(ctx context.Context, actorID, conversationID, userID string) error {
	if err := s.requireGroupAdmin(ctx, conversationID, actorID); err != nil {
		return err
	}
	if err := s.conversations.AddParticipant(ctx, conversationID, userID, domain.RoleMember); err != nil {
		return err
	}
	s.deliverer.DeliverControl(ctx, pubsub.EventMemberJoined, conversationID, "", userID)
	return nil
}

func (s *chatService) RemoveMember(ctx context.Context, actorID, conversationID, userID string) error {
	if err := s.requireGroupAdmin(ctx, conversationID, actorID); err != nil {
		return err
	}
	if err := s.conversations.RemoveParticipant(ctx, conversationID, userID); err != nil {
		return err
	}
	s.deliverer.DeliverControl(ctx, pubsub.EventMemberLeft, conversationID, "", userID)
	return nil
}

func (s *chatService) LeaveConversation(ctx context.Context, userID, conversationID string) error {
	if err := s.conversations.LeaveConversation(ctx, conversationID, userID); err != nil {
		return err
	}
	s.deliverer.DeliverControl(ctx, pubsub.EventMemberLeft, conversationID, "", userID)
	return nil
}

func (s *chatService) GetPeer(ctx context.Context, userID, conversationID string) (string, error) {
	if err := s.requireParticipant(ctx, conversationID, userID); err != nil {
		return "", err
	}
	conv, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		return "", err
	}
	if conv.Type != domain.ConversationPrivate {
		return "", domain.ErrConversationNotFound
	}
	return s.conversations.GetOtherParticipant(ctx, conversationID, userID)
}

// SendMessage persists a message after participancy, payload, and reply
// validation, then hands it to the deliverer. Delivery failures never
// surface to the sender; persistence is the success criterion.
func (s *chatService) SendMessage(ctx context.Context, senderID, conversationID string, req *domain.SendMessageRequest) (*domain.Message, error) {
	l := log.Ctx(ctx)

	if err := s.requireParticipant(ctx, conversationID, senderID); err != nil {
		return nil, err
	}
	if err := s.validatePayload(req); err != nil {
		return nil, err
	}

	if req.ReplyToID != "" {
		parent, err := s.messages.GetByID(ctx, req.ReplyToID)
		if err != nil {
			return nil, err
		}
		if parent.ConversationID != conversationID || parent.IsDeleted {
			return nil, domain.ErrMessageNotFound
		}
	}

	now := time.Now()
	msg := &domain.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Type:           req.Type,
		Content:        req.Content,
		FileURL:        req.FileURL,
		FileName:       req.FileName,
		FileSize:       req.FileSize,
		ThumbnailURL:   req.ThumbnailURL,
		Duration:       req.Duration,
		ReplyToID:      req.ReplyToID,
		MentionedUsers: req.MentionedUsers,
		CreatedAt:      now,
	}

	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, err
	}
	if err := s.conversations.TouchLastMessageAt(ctx, conversationID, msg.CreatedAt); err != nil {
		l.Warn().Err(err).Str(log.FieldConversationID, conversationID).Msg("failed to touch last_message_at")
	}

	l.Info().
		Str(log.FieldMessageID, msg.ID).
		Str(log.FieldConversationID, conversationID).
		Str("message_type", string(msg.Type)).
		Msg("message sent")

	s.bus.Publish(events.MessageSent{
		MessageID:      msg.ID,
		ConversationID: conversationID,
		SenderID:       senderID,
		At:             msg.CreatedAt,
	})
	s.deliverer.DeliverMessage(ctx, msg)

	return msg, nil
}

// RecallMessage applies the sender-only, time-boxed recall. The window
// is measured against the message's persisted creation time.
func (s *chatService) RecallMessage(ctx context.Context, userID, messageID string) error {
	l := log.Ctx(ctx)

	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.IsDeleted {
		return domain.ErrMessageNotFound
	}
	if msg.SenderID != userID {
		return domain.ErrNotAuthorized
	}
	if time.Since(msg.CreatedAt) > s.cfg.RecallWindow {
		return domain.ErrRecallWindowExpired
	}

	if err := s.messages.MarkRecalled(ctx, messageID, time.Now()); err != nil {
		return err
	}

	l.Info().Str(log.FieldMessageID, messageID).Msg("message recalled")

	s.bus.Publish(events.MessageRecalled{
		MessageID:      messageID,
		ConversationID: msg.ConversationID,
		SenderID:       userID,
		At:             time.Now(),
	})
	s.deliverer.DeliverControl(ctx, pubsub.EventMessageRecalled, msg.ConversationID, messageID, userID)

	return nil
}

func (s *chatService) DeleteMessage(ctx context.Context, userID, messageID string) error {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.IsDeleted {
		return domain.ErrMessageNotFound
	}
	if msg.SenderID != userID {
		return domain.ErrNotAuthorized
	}

	if err := s.messages.MarkDeleted(ctx, messageID, time.Now()); err != nil {
		return err
	}
	s.deliverer.DeliverControl(ctx, pubsub.EventMessageDeleted, msg.ConversationID, messageID, userID)
	return nil
}

func (s *chatService) ClearConversationMessages(ctx context.Context, userID, conversationID string) (int64, error) {
	if err := s.requireParticipant(ctx, conversationID, userID); err != nil {
		return 0, err
	}
	cleared, err := s.messages.SoftDeleteByConversation(ctx, conversationID, time.Now())
	if err != nil {
		return 0, err
	}
	if cleared > 0 {
		s.deliverer.DeliverControl(ctx, pubsub.EventMessagesCleared, conversationID, "", userID)
	}
	return cleared, nil
}

func (s *chatService) GetConversationMessages(ctx context.Context, userID, conversationID string, page, pageSize int) (*domain.MessagePage, error) {
	if err := s.requireParticipant(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	return s.messages.ListByConversation(ctx, conversationID, page, s.clampPageSize(pageSize))
}

func (s *chatService) requireParticipant(ctx context.Context, conversationID, userID string) error {
	ok, err := s.conversations.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrNotParticipant
	}
	return nil
}

func (s *chatService) requireGroupAdmin(ctx context.Context, conversationID, actorID string) error {
	conv, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		return err
	}
	if conv.Type != domain.ConversationGroup {
		return domain.ErrNotAuthorized
	}
	participants, err := s.conversations.GetParticipants(ctx, conversationID)
	if err != nil {
		return err
	}
	for _, p := range participants {
		if p.UserID == actorID {
			if p.Role != domain.RoleAdmin {
				return domain.ErrNotAuthorized
			}
			return nil
		}
	}
	return domain.ErrNotParticipant
}

func (s *chatService) validatePayload(req *domain.SendMessageRequest) error {
	if !req.Type.Valid() {
		return domain.ErrInvalidMessageType
	}
	if req.Type == domain.MessageText && req.Content == "" {
		return domain.ErrEmptyMessage
	}
	if req.Type.HasAttachment() && req.FileURL == "" {
		return domain.ErrEmptyMessage
	}
	if req.FileSize > s.cfg.MaxAttachmentSize {
		return domain.ErrAttachmentTooLarge
	}
	return nil
}

func (s *chatService) clampPageSize(pageSize int) int {
	if pageSize > s.cfg.MaxPageSize {
		return s.cfg.MaxPageSize
	}
	return pageSize
}
