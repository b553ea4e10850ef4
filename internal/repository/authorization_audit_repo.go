package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/tutorlink-api/internal/models"
)

// AuditLogFilter narrows authorization audit log queries.
type AuditLogFilter struct {
	Page         int
	PageSize     int
	UserID       *uint
	Action       string
	ResourceType string
	Granted      *bool
	Reason       string
	Since        *time.Time
	Until        *time.Time
}

// AuditLogRepository is the append-only store for authorization decisions.
type AuditLogRepository interface {
	Create(ctx context.Context, entry *models.AuthorizationAuditLog) error
	// CountDeniedSince counts denied decisions, excluding suspicious activity flags.
	CountDeniedSince(ctx context.Context, userID uint, since time.Time) (int64, error)
	List(ctx context.Context, filter AuditLogFilter) ([]models.AuthorizationAuditLog, int64, error)
	// DeniedCountsSince groups denials per user, keeping users with at least minimum denials.
	DeniedCountsSince(ctx context.Context, since time.Time, minimum int64) ([]DenialCount, error)
}

type auditLogRepository struct {
	db *gorm.DB
}

// NewAuditLogRepository constructs the authorization audit repository.
func NewAuditLogRepository(db *gorm.DB) AuditLogRepository {
	return &auditLogRepository{db: db}
}

func (r *auditLogRepository) Create(ctx context.Context, entry *models.AuthorizationAuditLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *auditLogRepository) CountDeniedSince(ctx context.Context, userID uint, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.AuthorizationAuditLog{}).
		Where("user_id = ? AND granted = ? AND created_at >= ?", userID, false, since).
		Where("action <> ?", models.AuditActionSuspicious).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *auditLogRepository) List(ctx context.Context, filter AuditLogFilter) ([]models.AuthorizationAuditLog, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.AuthorizationAuditLog{})

	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}

	if filter.Action != "" {
		query = query.Where("action = ?", filter.Action)
	}

	if filter.ResourceType != "" {
		query = query.Where("resource_type = ?", filter.ResourceType)
	}

	if filter.Granted != nil {
		query = query.Where("granted = ?", *filter.Granted)
	}

	if filter.Reason != "" {
		query = query.Where("reason = ?", filter.Reason)
	}

	if filter.Since != nil {
		query = query.Where("created_at >= ?", *filter.Since)
	}

	if filter.Until != nil {
		query = query.Where("created_at < ?", *filter.Until)
	}

	countQuery := query.Session(&gorm.Session{})
	var total int64
	if err := countQuery.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filter.PageSize > 0 {
		page := filter.Page
		if page <= 0 {
			page = 1
		}
		offset := (page - 1) * filter.PageSize
		query = query.Offset(offset).Limit(filter.PageSize)
	}

	var entries []models.AuthorizationAuditLog
	if err := query.Order("created_at DESC").Order("id DESC").Find(&entries).Error; err != nil {
		return nil, 0, err
	}

	return entries, total, nil
}

// DenialCount aggregates denied decisions for one user.
type DenialCount struct {
	UserID  uint  `json:"user_id"`
	Denials int64 `json:"denials"`
}

func (r *auditLogRepository) DeniedCountsSince(ctx context.Context, since time.Time, minimum int64) ([]DenialCount, error) {
	var counts []DenialCount
	err := r.db.WithContext(ctx).
		Model(&models.AuthorizationAuditLog{}).
		Select("user_id, COUNT(*) AS denials").
		Where("granted = ? AND created_at >= ?", false, since).
		Where("action <> ?", models.AuditActionSuspicious).
		Group("user_id").
		Having("COUNT(*) >= ?", minimum).
		Order("denials DESC").
		Order("user_id ASC").
		Scan(&counts).Error
	if err != nil {
		return nil, err
	}
	return counts, nil
}
