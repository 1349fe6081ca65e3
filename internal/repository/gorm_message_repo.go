package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/lumivid/messaging/internal/domain"
	"github.com/lumivid/messaging/pkg/log"
)

// GormMessageStore implements MessageStore using GORM.
type GormMessageStore struct {
	db *gorm.DB
}

// NewGormMessageStore creates a GORM-based message store.
func NewGormMessageStore(db *gorm.DB) *GormMessageStore {
	return &GormMessageStore{db: db}
}

// Create persists a new message row.
func (r *GormMessageStore) Create(ctx context.Context, msg *domain.Message) error {
	model := &domain.MessageModel{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		Type:           string(msg.Type),
		Content:        msg.Content,
		FileURL:        msg.FileURL,
		FileName:       msg.FileName,
		FileSize:       msg.FileSize,
		ThumbnailURL:   msg.ThumbnailURL,
		Duration:       msg.Duration,
		MentionedUsers: domain.JoinMentions(msg.MentionedUsers),
		CreatedAt:      msg.CreatedAt,
	}
	if msg.ReplyToID != "" {
		model.ReplyToID = &msg.ReplyToID
	}

	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldConversationID, msg.ConversationID).Msg("failed to persist message")
		return err
	}
	msg.CreatedAt = model.CreatedAt
	return nil
}

// GetByID retrieves a message regardless of lifecycle state. Callers
// that must not see terminal rows check IsRecalled/IsDeleted themselves.
func (r *GormMessageStore) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	var model domain.MessageModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrMessageNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// MarkRecalled flips is_recalled on a live message. The guarded update
// makes the transition atomic: a message already recalled or deleted is
// reported as not found rather than transitioned twice.
func (r *GormMessageStore) MarkRecalled(ctx context.Context, id string, at time.Time) error {
	result := r.db.WithContext(ctx).Model(&domain.MessageModel{}).
		Where("id = ? AND is_recalled = ? AND is_deleted = ?", id, false, false).
		Updates(map[string]interface{}{
			"is_recalled": true,
			"recalled_at": at,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrMessageNotFound
	}
	return nil
}

// MarkDeleted flips is_deleted on a live message with the same guard as
// MarkRecalled.
func (r *GormMessageStore) MarkDeleted(ctx context.Context, id string, at time.Time) error {
	result := r.db.WithContext(ctx).Model(&domain.MessageModel{}).
		Where("id = ? AND is_recalled = ? AND is_deleted = ?", id, false, false).
		Updates(map[string]interface{}{
			"is_deleted": true,
			"deleted_at": at,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrMessageNotFound
	}
	return nil
}

// SoftDeleteByConversation soft-deletes every live message in a
// conversation and returns the affected count.
func (r *GormMessageStore) SoftDeleteByConversation(ctx context.Context, conversationID string, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&domain.MessageModel{}).
		Where("conversation_id = ? AND is_deleted = ?", conversationID, false).
		Updates(map[string]interface{}{
			"is_deleted": true,
			"deleted_at": at,
		})
	if result.Error != nil {
		return 0, result.Error
	}
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldConversationID, conversationID).
		Int64("cleared", result.RowsAffected).
		Msg("conversation messages cleared")
	return result.RowsAffected, nil
}

// ListByConversation returns one page of messages ordered created_at
// DESC, id DESC. Deleted rows are omitted from both the page and the
// total; recalled rows surface as tombstones with content suppressed.
func (r *GormMessageStore) ListByConversation(ctx context.Context, conversationID string, page, pageSize int) (*domain.MessagePage, error) {
	l := log.Ctx(ctx)

	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	query := r.db.WithContext(ctx).Model(&domain.MessageModel{}).
		Where("conversation_id = ? AND is_deleted = ?", conversationID, false)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		l.Error().Err(err).Str(log.FieldConversationID, conversationID).Msg("failed to count messages")
		return nil, err
	}

	var models []domain.MessageModel
	if err := query.Order("created_at DESC, id DESC").Offset(offset).Limit(pageSize).Find(&models).Error; err != nil {
		l.Error().Err(err).Str(log.FieldConversationID, conversationID).Msg("failed to list messages")
		return nil, err
	}

	messages := make([]domain.Message, len(models))
	for i, model := range models {
		msg := *model.ToDomain()
		if msg.IsRecalled {
			msg = msg.Tombstone()
		}
		messages[i] = msg
	}

	return &domain.MessagePage{
		Messages: messages,
		Total:    int(total),
		Page:     page,
		PageSize: pageSize,
	}, nil
}
