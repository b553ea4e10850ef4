package dto

import (
	"time"

	"github.com/noah-isme/tutorlink-api/internal/models"
)

// PaginationMeta captures pagination metadata for list responses.
type PaginationMeta struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalItems int64 `json:"total_items"`
	TotalPages int   `json:"total_pages"`
}

// AuthorizationAuditListRequest defines filters for listing audit rows.
type AuthorizationAuditListRequest struct {
	Page         int
	PageSize     int
	UserID       uint
	Action       string
	ResourceType string
	Granted      *bool
	Reason       string
	Since        *time.Time
	Until        *time.Time
}

// AuthorizationAuditResponse serializes an audit row for admin clients.
type AuthorizationAuditResponse struct {
	ID           uint                   `json:"id"`
	UserID       uint                   `json:"user_id"`
	Action       string                 `json:"action"`
	ResourceType string                 `json:"resource_type"`
	ResourceID   *uint                  `json:"resource_id"`
	Granted      bool                   `json:"granted"`
	Reason       *string                `json:"reason"`
	Metadata     map[string]interface{} `json:"metadata"`
	IPAddress    string                 `json:"ip_address"`
	UserAgent    string                 `json:"user_agent"`
	CreatedAt    time.Time              `json:"created_at"`
}

// AuthorizationAuditListResponse wraps a paginated audit response.
type AuthorizationAuditListResponse struct {
	Items      []AuthorizationAuditResponse `json:"items"`
	Pagination PaginationMeta               `json:"pagination"`
}

// NewAuthorizationAuditResponse converts an audit model into a DTO.
func NewAuthorizationAuditResponse(entry models.AuthorizationAuditLog) AuthorizationAuditResponse {
	metadata := map[string]interface{}{}
	for key, value := range entry.Metadata {
		metadata[key] = value
	}

	return AuthorizationAuditResponse{
		ID:           entry.ID,
		UserID:       entry.UserID,
		Action:       entry.Action,
		ResourceType: entry.ResourceType,
		ResourceID:   entry.ResourceID,
		Granted:      entry.Granted,
		Reason:       entry.Reason,
		Metadata:     metadata,
		IPAddress:    entry.IPAddress,
		UserAgent:    entry.UserAgent,
		CreatedAt:    entry.CreatedAt,
	}
}
