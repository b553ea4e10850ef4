package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/tutorlink-api/internal/models"
)

// ParticipantStore answers conversation membership questions.
type ParticipantStore interface {
	IsParticipant(ctx context.Context, conversationID, userID uint) (bool, error)
	ListParticipants(ctx context.Context, conversationID uint) ([]uint, error)
}

// ConversationRepository persists conversations and their membership.
type ConversationRepository interface {
	ParticipantStore
	Create(ctx context.Context, conversation *models.Conversation, participantIDs []uint) error
	FindByID(ctx context.Context, id uint) (models.Conversation, error)
	FindDirectBetween(ctx context.Context, userA, userB uint) (models.Conversation, error)
}

type conversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository constructs a conversation repository backed by GORM.
func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &conversationRepository{db: db}
}

func (r *conversationRepository) Create(ctx context.Context, conversation *models.Conversation, participantIDs []uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Participants").Create(conversation).Error; err != nil {
			return err
		}

		now := time.Now().UTC()
		seen := make(map[uint]struct{}, len(participantIDs))
		participants := make([]models.ConversationParticipant, 0, len(participantIDs))
		for _, userID := range participantIDs {
			if _, dup := seen[userID]; dup {
				continue
			}
			seen[userID] = struct{}{}
			participants = append(participants, models.ConversationParticipant{
				ConversationID: conversation.ID,
				UserID:         userID,
				JoinedAt:       now,
			})
		}
		if len(participants) == 0 {
			return nil
		}
		if err := tx.Create(&participants).Error; err != nil {
			return err
		}
		conversation.Participants = participants
		return nil
	})
}

func (r *conversationRepository) FindByID(ctx context.Context, id uint) (models.Conversation, error) {
	var conversation models.Conversation
	err := r.db.WithContext(ctx).Preload("Participants").First(&conversation, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Conversation{}, ErrNotFound
		}
		return models.Conversation{}, err
	}
	return conversation, nil
}

func (r *conversationRepository) FindDirectBetween(ctx context.Context, userA, userB uint) (models.Conversation, error) {
	pairs := r.db.WithContext(ctx).
		Model(&models.ConversationParticipant{}).
		Select("conversation_id").
		Where("user_id IN ?", []uint{userA, userB}).
		Group("conversation_id").
		Having("COUNT(DISTINCT user_id) = 2")

	var conversation models.Conversation
	err := r.db.WithContext(ctx).
		Preload("Participants").
		Where("type = ?", models.ConversationTypeDirect).
		Where("id IN (?)", pairs).
		Order("id ASC").
		First(&conversation).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Conversation{}, ErrNotFound
		}
		return models.Conversation{}, err
	}
	return conversation, nil
}

func (r *conversationRepository) IsParticipant(ctx context.Context, conversationID, userID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.ConversationParticipant{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *conversationRepository) ListParticipants(ctx context.Context, conversationID uint) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).
		Model(&models.ConversationParticipant{}).
		Where("conversation_id = ?", conversationID).
		Order("user_id ASC").
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}
