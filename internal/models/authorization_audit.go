package models

import (
	"time"

	"gorm.io/datatypes"
)

// Audit actions recorded by the messaging authorization subsystem.
const (
	AuditActionViewConversation   = "view_conversation"
	AuditActionCreateConversation = "create_conversation"
	AuditActionSendMessage        = "send_message"
	AuditActionUpdateMessage      = "update_message"
	AuditActionDeleteMessage      = "delete_message"
	AuditActionMarkRead           = "mark_read"
	AuditActionSuspicious         = "suspicious_activity"
)

// Audited resource types.
const (
	ResourceConversation = "Conversation"
	ResourceMessage      = "Message"
	ResourceUser         = "User"
)

// AuthorizationAuditLog is an append-only record of a single authorization decision.
type AuthorizationAuditLog struct {
	ID           uint              `gorm:"primaryKey" json:"id"`
	UserID       uint              `gorm:"not null;index:idx_audit_user_window,priority:1" json:"user_id"`
	Action       string            `gorm:"size:64;not null;index" json:"action"`
	ResourceType string            `gorm:"size:64;not null" json:"resource_type"`
	ResourceID   *uint             `json:"resource_id"`
	Granted      bool              `gorm:"not null;index:idx_audit_user_window,priority:2" json:"granted"`
	Reason       *string           `gorm:"size:64" json:"reason"`
	Metadata     datatypes.JSONMap `gorm:"type:json" json:"metadata"`
	IPAddress    string            `gorm:"size:64" json:"ip_address"`
	UserAgent    string            `gorm:"size:512" json:"user_agent"`
	CreatedAt    time.Time         `gorm:"index:idx_audit_user_window,priority:3" json:"created_at"`
}

// TableName pins the audit table name.
func (AuthorizationAuditLog) TableName() string {
	return "authorization_audit_logs"
}
