package models

import (
	"time"

	"gorm.io/gorm"
)

// Conversation types.
const (
	ConversationTypeDirect = "direct"
	ConversationTypeGroup  = "group"
)

// Conversation groups participants exchanging messages.
type Conversation struct {
	ID           uint                      `gorm:"primaryKey" json:"id"`
	Type         string                    `gorm:"size:16;not null;default:direct;index" json:"type"`
	Title        string                    `gorm:"size:255" json:"title"`
	CreatedBy    uint                      `gorm:"index" json:"created_by"`
	Participants []ConversationParticipant `json:"participants,omitempty"`
	CreatedAt    time.Time                 `json:"created_at"`
	UpdatedAt    time.Time                 `json:"updated_at"`
}

// ParticipantIDs returns the user ids attached to the conversation.
func (c Conversation) ParticipantIDs() []uint {
	ids := make([]uint, 0, len(c.Participants))
	for _, participant := range c.Participants {
		ids = append(ids, participant.UserID)
	}
	return ids
}

// ConversationParticipant attaches a user to a conversation's membership set.
type ConversationParticipant struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	ConversationID uint      `gorm:"not null;uniqueIndex:idx_conversation_participant" json:"conversation_id"`
	UserID         uint      `gorm:"not null;uniqueIndex:idx_conversation_participant;index" json:"user_id"`
	JoinedAt       time.Time `json:"joined_at"`
}

// Message is a single entry posted into a conversation.
type Message struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	ConversationID uint           `gorm:"not null;index" json:"conversation_id"`
	SenderID       uint           `gorm:"not null;index" json:"sender_id"`
	Content        string         `gorm:"type:text" json:"content"`
	EditedAt       *time.Time     `json:"edited_at"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}

// MessageRead records that a recipient has read a message.
type MessageRead struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	MessageID uint      `gorm:"not null;uniqueIndex:idx_message_reader" json:"message_id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_message_reader" json:"user_id"`
	ReadAt    time.Time `json:"read_at"`
}
