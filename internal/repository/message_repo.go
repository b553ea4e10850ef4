package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/tutorlink-api/internal/models"
)

// MessageRepository persists conversation messages and read receipts.
type MessageRepository interface {
	Create(ctx context.Context, message *models.Message) error
	FindByID(ctx context.Context, id uint) (models.Message, error)
	ListByConversation(ctx context.Context, conversationID uint, before time.Time, limit int) ([]models.Message, error)
	UpdateContent(ctx context.Context, message *models.Message, content string, editedAt time.Time) error
	Delete(ctx context.Context, id uint) error
	MarkRead(ctx context.Context, messageID, userID uint, readAt time.Time) (models.MessageRead, error)
}

type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository constructs a message repository backed by GORM.
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) Create(ctx context.Context, message *models.Message) error {
	return r.db.WithContext(ctx).Create(message).Error
}

func (r *messageRepository) FindByID(ctx context.Context, id uint) (models.Message, error) {
	var message models.Message
	if err := r.db.WithContext(ctx).First(&message, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Message{}, ErrNotFound
		}
		return models.Message{}, err
	}
	return message, nil
}

func (r *messageRepository) ListByConversation(ctx context.Context, conversationID uint, before time.Time, limit int) ([]models.Message, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	query := r.db.WithContext(ctx).Where("conversation_id = ?", conversationID)
	if !before.IsZero() {
		query = query.Where("created_at < ?", before)
	}

	var messages []models.Message
	if err := query.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&messages).Error; err != nil {
		return nil, err
	}

	// Reverse to chronological order ascending for clients.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

func (r *messageRepository) UpdateContent(ctx context.Context, message *models.Message, content string, editedAt time.Time) error {
	err := r.db.WithContext(ctx).Model(message).Updates(map[string]interface{}{
		"content":   content,
		"edited_at": editedAt,
	}).Error
	if err != nil {
		return err
	}
	message.Content = content
	message.EditedAt = &editedAt
	return nil
}

func (r *messageRepository) Delete(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&models.Message{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *messageRepository) MarkRead(ctx context.Context, messageID, userID uint, readAt time.Time) (models.MessageRead, error) {
	receipt := models.MessageRead{MessageID: messageID, UserID: userID, ReadAt: readAt}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&receipt).Error
	if err != nil {
		return models.MessageRead{}, err
	}

	var stored models.MessageRead
	err = r.db.WithContext(ctx).
		Where("message_id = ? AND user_id = ?", messageID, userID).
		First(&stored).Error
	if err != nil {
		return models.MessageRead{}, err
	}
	return stored, nil
}
