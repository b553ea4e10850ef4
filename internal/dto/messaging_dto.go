package dto

import (
	"time"

	"github.com/noah-isme/tutorlink-api/internal/models"
)

// CreateConversationRequest opens a direct conversation with another user.
type CreateConversationRequest struct {
	RecipientID uint   `json:"recipient_id" validate:"required,gt=0"`
	Title       string `json:"title" validate:"omitempty,max=255"`
}

// SendMessageRequest posts a message into a conversation.
type SendMessageRequest struct {
	Content string `json:"content" validate:"required,min=1,max=5000"`
}

// UpdateMessageRequest replaces the content of an existing message.
type UpdateMessageRequest struct {
	Content string `json:"content" validate:"required,min=1,max=5000"`
}

// MessageListQuery paginates conversation history.
type MessageListQuery struct {
	Before *time.Time `validate:"omitempty"`
	Limit  int        `validate:"omitempty,min=1,max=100"`
}

// ConversationResponse serializes a conversation with its membership.
type ConversationResponse struct {
	ID             uint      `json:"id"`
	Type           string    `json:"type"`
	Title          string    `json:"title"`
	CreatedBy      uint      `json:"created_by"`
	ParticipantIDs []uint    `json:"participant_ids"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// MessageResponse serializes a conversation message.
type MessageResponse struct {
	ID             uint       `json:"id"`
	ConversationID uint       `json:"conversation_id"`
	SenderID       uint       `json:"sender_id"`
	Content        string     `json:"content"`
	EditedAt       *time.Time `json:"edited_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// MessageReadResponse acknowledges a read receipt.
type MessageReadResponse struct {
	MessageID uint      `json:"message_id"`
	UserID    uint      `json:"user_id"`
	ReadAt    time.Time `json:"read_at"`
}

// NewConversationResponse converts a conversation model into a DTO.
func NewConversationResponse(conversation models.Conversation) ConversationResponse {
	return ConversationResponse{
		ID:             conversation.ID,
		Type:           conversation.Type,
		Title:          conversation.Title,
		CreatedBy:      conversation.CreatedBy,
		ParticipantIDs: conversation.ParticipantIDs(),
		CreatedAt:      conversation.CreatedAt,
		UpdatedAt:      conversation.UpdatedAt,
	}
}

// NewMessageResponse converts a message model into a DTO.
func NewMessageResponse(message models.Message) MessageResponse {
	return MessageResponse{
		ID:             message.ID,
		ConversationID: message.ConversationID,
		SenderID:       message.SenderID,
		Content:        message.Content,
		EditedAt:       message.EditedAt,
		CreatedAt:      message.CreatedAt,
		UpdatedAt:      message.UpdatedAt,
	}
}

// NewMessageResponseSlice converts multiple messages into DTOs.
func NewMessageResponseSlice(messages []models.Message) []MessageResponse {
	responses := make([]MessageResponse, 0, len(messages))
	for _, message := range messages {
		responses = append(responses, NewMessageResponse(message))
	}
	return responses
}

// NewMessageReadResponse converts a read receipt into a DTO.
func NewMessageReadResponse(receipt models.MessageRead) MessageReadResponse {
	return MessageReadResponse{
		MessageID: receipt.MessageID,
		UserID:    receipt.UserID,
		ReadAt:    receipt.ReadAt,
	}
}
