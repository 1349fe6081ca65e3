package repository

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lumivid/messaging/internal/domain"
	"github.com/lumivid/messaging/pkg/log"
)

// GormConversationStore implements ConversationStore using GORM.
type GormConversationStore struct {
	db *gorm.DB

	// Per-pair serialization for get-or-create. The unique index on
	// pair_key is the actual guarantee; the lock just avoids duplicate-
	// key churn under local contention.
	pairLocks sync.Map // pair key -> *sync.Mutex
}

// NewGormConversationStore creates a GORM-based conversation store.
func NewGormConversationStore(db *gorm.DB) *GormConversationStore {
	return &GormConversationStore{db: db}
}

func (r *GormConversationStore) lockPair(key string) func() {
	v, _ := r.pairLocks.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// GetOrCreatePrivateConversation finds or creates the single active
// private conversation for an unordered user pair. A lookup miss is
// followed by a transactional insert of the conversation plus both
// participant rows; a duplicate-key failure means another caller won
// the race, so the lookup is retried.
func (r *GormConversationStore) GetOrCreatePrivateConversation(ctx context.Context, userA, userB string) (*domain.Conversation, error) {
	l := log.Ctx(ctx)
	pairKey := domain.PairKey(userA, userB)

	unlock := r.lockPair(pairKey)
	defer unlock()

	if conv, err := r.findActivePrivate(ctx, pairKey); err == nil {
		return conv, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	now := time.Now()
	model := &domain.ConversationModel{
		ID:            uuid.New().String(),
		Type:          string(domain.ConversationPrivate),
		PairKey:       &pairKey,
		CreatedBy:     userA,
		LastMessageAt: now,
		IsActive:      true,
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(model).Error; err != nil {
			return err
		}
		participants := []domain.ParticipantModel{
			{ConversationID: model.ID, UserID: userA, Role: string(domain.RoleMember), IsActive: true},
			{ConversationID: model.ID, UserID: userB, Role: string(domain.RoleMember), IsActive: true},
		}
		return tx.Create(&participants).Error
	})
	if err != nil {
		if isDuplicateKey(err) {
			// Lost the race against a concurrent creator on another
			// instance; the winner's row is now visible.
			l.Debug().Str("pair_key", pairKey).Msg("private conversation create conflicted, retrying lookup")
			return r.findActivePrivate(ctx, pairKey)
		}
		l.Error().Err(err).Str("pair_key", pairKey).Msg("failed to create private conversation")
		return nil, err
	}

	l.Info().Str(log.FieldConversationID, model.ID).Str("pair_key", pairKey).Msg("private conversation created")
	return model.ToDomain(), nil
}

func (r *GormConversationStore) findActivePrivate(ctx context.Context, pairKey string) (*domain.Conversation, error) {
	var model domain.ConversationModel
	err := r.db.WithContext(ctx).
		Where("pair_key = ? AND is_active = ?", pairKey, true).
		First(&model).Error
	if err != nil {
		return nil, err
	}
	return model.ToDomain(), nil
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "Duplicate entry") ||
		strings.Contains(msg, "duplicate key value")
}

// CreateGroupConversation creates a group conversation with the creator
// as ADMIN and the given members as MEMBER.
func (r *GormConversationStore) CreateGroupConversation(ctx context.Context, creatorID, title string, memberIDs []string) (*domain.Conversation, error) {
	l := log.Ctx(ctx)

	now := time.Now()
	model := &domain.ConversationModel{
		ID:            uuid.New().String(),
		Type:          string(domain.ConversationGroup),
		Title:         title,
		CreatedBy:     creatorID,
		LastMessageAt: now,
		IsActive:      true,
	}

	participants := []domain.ParticipantModel{
		{ConversationID: model.ID, UserID: creatorID, Role: string(domain.RoleAdmin), IsActive: true},
	}
	for _, memberID := range memberIDs {
		if memberID == creatorID {
			continue
		}
		participants = append(participants, domain.ParticipantModel{
			ConversationID: model.ID,
			UserID:         memberID,
			Role:           string(domain.RoleMember),
			IsActive:       true,
		})
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(model).Error; err != nil {
			return err
		}
		return tx.Create(&participants).Error
	})
	if err != nil {
		l.Error().Err(err).Msg("failed to create group conversation")
		return nil, err
	}

	l.Info().Str(log.FieldConversationID, model.ID).Int("members", len(participants)).Msg("group conversation created")
	return model.ToDomain(), nil
}

// GetByID retrieves a conversation by id.
func (r *GormConversationStore) GetByID(ctx context.Context, id string) (*domain.Conversation, error) {
	var model domain.ConversationModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrConversationNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// ListUserConversations lists active conversations the user belongs to,
// ordered by last_message_at descending.
func (r *GormConversationStore) ListUserConversations(ctx context.Context, userID string, page, pageSize int) (*domain.ConversationPage, error) {
	l := log.Ctx(ctx)

	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	query := r.db.WithContext(ctx).Model(&domain.ConversationModel{}).
		Joins("JOIN conversation_participants p ON p.conversation_id = conversations.id").
		Where("p.user_id = ? AND p.is_active = ? AND conversations.is_active = ?", userID, true, true)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		l.Error().Err(err).Msg("failed to count conversations")
		return nil, err
	}

	var models []domain.ConversationModel
	if err := query.Order("conversations.last_message_at DESC").Offset(offset).Limit(pageSize).Find(&models).Error; err != nil {
		l.Error().Err(err).Msg("failed to list conversations")
		return nil, err
	}

	conversations := make([]domain.Conversation, len(models))
	for i, model := range models {
		conversations[i] = *model.ToDomain()
	}

	return &domain.ConversationPage{
		Conversations: conversations,
		Total:         int(total),
		Page:          page,
		PageSize:      pageSize,
	}, nil
}

// GetParticipants returns active participants ordered by join time.
func (r *GormConversationStore) GetParticipants(ctx context.Context, conversationID string) ([]domain.Participant, error) {
	var models []domain.ParticipantModel
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND is_active = ?", conversationID, true).
		Order("joined_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	participants := make([]domain.Participant, len(models))
	for i, model := range models {
		participants[i] = *model.ToDomain()
	}
	return participants, nil
}

// IsParticipant reports whether the user has an active participant row.
func (r *GormConversationStore) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.ParticipantModel{}).
		Where("conversation_id = ? AND user_id = ? AND is_active = ?", conversationID, userID, true).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// AddParticipant activates membership, reactivating a previous row when
// the user had left earlier.
func (r *GormConversationStore) AddParticipant(ctx context.Context, conversationID, userID string, role domain.ParticipantRole) error {
	l := log.Ctx(ctx)

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing domain.ParticipantModel
		err := tx.Where("conversation_id = ? AND user_id = ?", conversationID, userID).
			First(&existing).Error
		switch {
		case err == nil:
			if existing.IsActive {
				return nil
			}
			return tx.Model(&existing).Updates(map[string]interface{}{
				"is_active": true,
				"role":      string(role),
				"joined_at": time.Now(),
				"left_at":   nil,
			}).Error
		case errors.Is(err, gorm.ErrRecordNotFound):
			model := domain.ParticipantModel{
				ConversationID: conversationID,
				UserID:         userID,
				Role:           string(role),
				IsActive:       true,
			}
			if err := tx.Create(&model).Error; err != nil {
				return err
			}
			l.Info().Str(log.FieldConversationID, conversationID).Str(log.FieldUserID, userID).Msg("participant added")
			return nil
		default:
			return err
		}
	})
}

// RemoveParticipant soft-deactivates membership, never deleting the row.
func (r *GormConversationStore) RemoveParticipant(ctx context.Context, conversationID, userID string) error {
	now := time.Now()
	result := r.db.WithContext(ctx).Model(&domain.ParticipantModel{}).
		Where("conversation_id = ? AND user_id = ? AND is_active = ?", conversationID, userID, true).
		Updates(map[string]interface{}{
			"is_active": false,
			"left_at":   now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotParticipant
	}
	return nil
}

// GetOtherParticipant returns the other active user in a private conversation.
func (r *GormConversationStore) GetOtherParticipant(ctx context.Context, conversationID, userID string) (string, error) {
	var model domain.ParticipantModel
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND user_id <> ? AND is_active = ?", conversationID, userID, true).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", domain.ErrConversationNotFound
		}
		return "", err
	}
	return model.UserID, nil
}

// TouchLastMessageAt records the latest message time on the conversation.
func (r *GormConversationStore) TouchLastMessageAt(ctx context.Context, conversationID string, ts time.Time) error {
	return r.db.WithContext(ctx).Model(&domain.ConversationModel{}).
		Where("id = ?", conversationID).
		Update("last_message_at", ts).Error
}

// LeaveConversation deactivates the caller's participant row. When no
// active participants remain the conversation itself is deactivated and
// its pair key is freed so the pair can start over later.
func (r *GormConversationStore) LeaveConversation(ctx context.Context, conversationID, userID string) error {
	l := log.Ctx(ctx)

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		result := tx.Model(&domain.ParticipantModel{}).
			Where("conversation_id = ? AND user_id = ? AND is_active = ?", conversationID, userID, true).
			Updates(map[string]interface{}{
				"is_active": false,
				"left_at":   now,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return domain.ErrNotParticipant
		}

		var remaining int64
		if err := tx.Model(&domain.ParticipantModel{}).
			Where("conversation_id = ? AND is_active = ?", conversationID, true).
			Count(&remaining).Error; err != nil {
			return err
		}
		if remaining > 0 {
			return nil
		}

		l.Info().Str(log.FieldConversationID, conversationID).Msg("conversation deactivated, no participants left")
		return tx.Model(&domain.ConversationModel{}).
			Where("id = ?", conversationID).
			Updates(map[string]interface{}{
				"is_active":      false,
				"deactivated_at": now,
				"pair_key":       nil,
			}).Error
	})
}
