package service

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/tutorlink-api/internal/dto"
	"github.com/noah-isme/tutorlink-api/internal/middleware"
	"github.com/noah-isme/tutorlink-api/internal/models"
	"github.com/noah-isme/tutorlink-api/internal/observability"
	"github.com/noah-isme/tutorlink-api/internal/repository"
)

// Default anomaly detection policy.
const (
	DefaultSuspiciousThreshold = 5
	DefaultSuspiciousWindow    = 10 * time.Minute
)

// ErrAuditUnavailable indicates an authorization decision could not be recorded.
var ErrAuditUnavailable = errors.New("authorization audit unavailable")

// AuditAttempt describes a generic authorization decision to record.
type AuditAttempt struct {
	Actor        Actor
	Action       string
	ResourceType string
	ResourceID   *uint
	Granted      bool
	Reason       string
	Metadata     map[string]interface{}
}

// AuthorizationAuditService writes and queries the authorization audit trail.
type AuthorizationAuditService interface {
	LogAuthorizationAttempt(ctx context.Context, attempt AuditAttempt) (models.AuthorizationAuditLog, error)
	LogRoleViolation(ctx context.Context, sender, recipient Actor, action, resourceType string, resourceID *uint, reason string, extra map[string]interface{}) (models.AuthorizationAuditLog, error)
	LogAdminOverride(ctx context.Context, admin Actor, action, resourceType string, resourceID *uint, justification string) (models.AuthorizationAuditLog, error)
	CheckForSuspiciousPattern(ctx context.Context, actor Actor, threshold int, window time.Duration) (bool, error)
	List(ctx context.Context, req dto.AuthorizationAuditListRequest) (dto.AuthorizationAuditListResponse, error)
}

type authorizationAuditService struct {
	repo      repository.AuditLogRepository
	publisher SecurityAlertPublisher
	logger    zerolog.Logger
	now       func() time.Time
}

// NewAuthorizationAuditService constructs the audit service. publisher may be nil.
func NewAuthorizationAuditService(repo repository.AuditLogRepository, publisher SecurityAlertPublisher, logger zerolog.Logger) AuthorizationAuditService {
	return &authorizationAuditService{
		repo:      repo,
		publisher: publisher,
		logger:    logger.With().Str("component", "authorization_audit_service").Logger(),
		now:       time.Now,
	}
}

func (s *authorizationAuditService) LogAuthorizationAttempt(ctx context.Context, attempt AuditAttempt) (models.AuthorizationAuditLog, error) {
	return s.insert(ctx, attempt)
}

func (s *authorizationAuditService) LogRoleViolation(ctx context.Context, sender, recipient Actor, action, resourceType string, resourceID *uint, reason string, extra map[string]interface{}) (models.AuthorizationAuditLog, error) {
	if strings.TrimSpace(action) == "" {
		action = models.AuditActionCreateConversation
	}
	if strings.TrimSpace(resourceType) == "" {
		resourceType = models.ResourceConversation
	}

	metadata := map[string]interface{}{}
	for key, value := range extra {
		metadata[key] = value
	}
	metadata["sender_role"] = models.NormalizeRole(sender.Role)
	metadata["recipient_role"] = models.NormalizeRole(recipient.Role)
	metadata["recipient_id"] = recipient.ID
	metadata["violation_type"] = ViolationRoleRestriction

	return s.insert(ctx, AuditAttempt{
		Actor:        sender,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Granted:      false,
		Reason:       reason,
		Metadata:     metadata,
	})
}

func (s *authorizationAuditService) LogAdminOverride(ctx context.Context, admin Actor, action, resourceType string, resourceID *uint, justification string) (models.AuthorizationAuditLog, error) {
	return s.insert(ctx, AuditAttempt{
		Actor:        admin,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Granted:      true,
		Reason:       ReasonAdminOverride,
		Metadata: map[string]interface{}{
			"override":      true,
			"admin_role":    models.NormalizeRole(admin.Role),
			"justification": justification,
		},
	})
}

// CheckForSuspiciousPattern flags the actor when its denials within window reach threshold.
// The count is a snapshot read; concurrent denials may land on either side of it.
func (s *authorizationAuditService) CheckForSuspiciousPattern(ctx context.Context, actor Actor, threshold int, window time.Duration) (bool, error) {
	if threshold <= 0 {
		threshold = DefaultSuspiciousThreshold
	}
	if window <= 0 {
		window = DefaultSuspiciousWindow
	}

	now := s.now().UTC()
	denials, err := s.repo.CountDeniedSince(ctx, actor.ID, now.Add(-window))
	if err != nil {
		return false, err
	}
	if denials < int64(threshold) {
		return false, nil
	}

	windowMinutes := int(math.Ceil(window.Minutes()))
	entry, err := s.insert(ctx, AuditAttempt{
		Actor:        actor,
		Action:       models.AuditActionSuspicious,
		ResourceType: models.ResourceUser,
		ResourceID:   &actor.ID,
		Granted:      false,
		Reason:       ReasonSuspiciousPattern,
		Metadata: map[string]interface{}{
			"flagged":        true,
			"denied_count":   denials,
			"threshold":      threshold,
			"window_minutes": windowMinutes,
		},
	})
	if err != nil {
		return false, err
	}

	observability.AuthzSuspicious().Inc()
	s.logger.Warn().
		Uint("user_id", actor.ID).
		Str("user_role", actor.Role).
		Int64("denied_count", denials).
		Uint("audit_id", entry.ID).
		Msg("suspicious authorization pattern flagged")

	if s.publisher != nil {
		alert := SecurityAlert{
			UserID:        actor.ID,
			UserRole:      models.NormalizeRole(actor.Role),
			Denials:       denials,
			Threshold:     threshold,
			WindowMinutes: windowMinutes,
			FlaggedAt:     entry.CreatedAt,
			CorrelationID: middleware.CorrelationIDFromContext(ctx),
		}
		if _, err := s.publisher.Publish(ctx, alert, window); err != nil {
			s.logger.Warn().Err(err).Uint("user_id", actor.ID).Msg("failed to publish security alert")
		}
	}

	return true, nil
}

func (s *authorizationAuditService) List(ctx context.Context, req dto.AuthorizationAuditListRequest) (dto.AuthorizationAuditListResponse, error) {
	filter := repository.AuditLogFilter{
		Page:         req.Page,
		PageSize:     req.PageSize,
		Action:       strings.TrimSpace(req.Action),
		ResourceType: strings.TrimSpace(req.ResourceType),
		Granted:      req.Granted,
		Reason:       strings.TrimSpace(req.Reason),
		Since:        req.Since,
		Until:        req.Until,
	}
	if req.UserID > 0 {
		filter.UserID = &req.UserID
	}

	entries, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return dto.AuthorizationAuditListResponse{}, err
	}

	items := make([]dto.AuthorizationAuditResponse, 0, len(entries))
	for _, entry := range entries {
		items = append(items, dto.NewAuthorizationAuditResponse(entry))
	}

	pagination := dto.PaginationMeta{
		Page:       maxInt(req.Page, 1),
		PageSize:   req.PageSize,
		TotalItems: total,
	}
	if req.PageSize > 0 {
		pagination.TotalPages = int(math.Ceil(float64(total) / float64(req.PageSize)))
	} else {
		pagination.TotalPages = 1
	}

	return dto.AuthorizationAuditListResponse{Items: items, Pagination: pagination}, nil
}

func (s *authorizationAuditService) insert(ctx context.Context, attempt AuditAttempt) (models.AuthorizationAuditLog, error) {
	action := strings.ToLower(strings.TrimSpace(attempt.Action))
	if action == "" {
		return models.AuthorizationAuditLog{}, errors.New("audit action is required")
	}

	reason := strings.TrimSpace(attempt.Reason)
	if !attempt.Granted && reason == "" {
		reason = ReasonNotAuthorized
	}

	metadata := sanitizeMetadata(attempt.Metadata)
	metadata["user_role"] = models.NormalizeRole(attempt.Actor.Role)
	if correlation := middleware.CorrelationIDFromContext(ctx); correlation != "" {
		metadata["correlation_id"] = correlation
	}

	info := middleware.RequestInfoFromContext(ctx)
	entry := models.AuthorizationAuditLog{
		UserID:       attempt.Actor.ID,
		Action:       action,
		ResourceType: attempt.ResourceType,
		ResourceID:   attempt.ResourceID,
		Granted:      attempt.Granted,
		Metadata:     metadata,
		IPAddress:    info.IPAddress,
		UserAgent:    truncate(info.UserAgent, 512),
		CreatedAt:    s.now().UTC(),
	}
	if reason != "" {
		entry.Reason = &reason
	}

	if err := s.repo.Create(ctx, &entry); err != nil {
		s.logger.Error().Err(err).Str("action", action).Uint("user_id", entry.UserID).Msg("failed to persist authorization audit log")
		return models.AuthorizationAuditLog{}, err
	}

	return entry, nil
}
