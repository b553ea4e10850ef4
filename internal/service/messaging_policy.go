package service

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/tutorlink-api/internal/models"
	"github.com/noah-isme/tutorlink-api/internal/observability"
	"github.com/noah-isme/tutorlink-api/internal/repository"
)

// DecisionKind tells callers which family of rule produced a decision.
type DecisionKind string

const (
	// DecisionKindMembership covers participant and ownership checks.
	DecisionKindMembership DecisionKind = "membership"
	// DecisionKindRole covers the cross-role messaging matrix.
	DecisionKindRole DecisionKind = "role"
)

const adminDeleteJustification = "administrative message removal"

// Decision is the audited outcome of a single messaging authorization check.
type Decision struct {
	Allowed         bool
	Reason          string
	Kind            DecisionKind
	Override        bool
	ActorRole       string
	CounterpartRole string
	ResourceType    string
	ResourceID      uint
}

// MessagingPolicy decides conversation and message operations. Every call writes
// exactly one audit row before returning; when that write fails the decision is
// a denial and the error wraps ErrAuditUnavailable.
type MessagingPolicy interface {
	CanViewConversation(ctx context.Context, actor Actor, conversation models.Conversation) (Decision, error)
	CanCreateConversation(ctx context.Context, actor, recipient Actor) (Decision, error)
	CanSendMessage(ctx context.Context, actor Actor, conversation models.Conversation) (Decision, error)
	CanUpdateMessage(ctx context.Context, actor Actor, message models.Message) (Decision, error)
	CanDeleteMessage(ctx context.Context, actor Actor, message models.Message) (Decision, error)
	CanMarkRead(ctx context.Context, actor Actor, message models.Message) (Decision, error)
}

type messagingPolicy struct {
	participants repository.ParticipantStore
	users        repository.UserRepository
	resolver     *RoleRuleResolver
	audit        AuthorizationAuditService
	logger       zerolog.Logger
	tracer       trace.Tracer
}

// NewMessagingPolicy constructs the messaging decision engine.
func NewMessagingPolicy(participants repository.ParticipantStore, users repository.UserRepository, resolver *RoleRuleResolver, audit AuthorizationAuditService, logger zerolog.Logger) MessagingPolicy {
	return &messagingPolicy{
		participants: participants,
		users:        users,
		resolver:     resolver,
		audit:        audit,
		logger:       logger.With().Str("component", "messaging_policy").Logger(),
		tracer:       otel.Tracer("github.com/noah-isme/tutorlink-api/internal/service/messaging_policy"),
	}
}

func (p *messagingPolicy) CanViewConversation(ctx context.Context, actor Actor, conversation models.Conversation) (Decision, error) {
	ctx, span := p.start(ctx, models.AuditActionViewConversation, actor, models.ResourceConversation, conversation.ID)
	defer span.End()

	decision := p.membership(ctx, actor, conversation.ID, models.ResourceConversation, conversation.ID)
	return p.record(ctx, span, models.AuditActionViewConversation, actor, decision, nil)
}

func (p *messagingPolicy) CanCreateConversation(ctx context.Context, actor, recipient Actor) (Decision, error) {
	ctx, span := p.start(ctx, models.AuditActionCreateConversation, actor, models.ResourceConversation, 0)
	defer span.End()
	span.SetAttributes(attribute.Int64("authz.recipient_id", int64(recipient.ID)))

	decision := p.roleCheck(ctx, actor, recipient)
	decision.ResourceType = models.ResourceConversation

	metadata := map[string]interface{}{
		"recipient_id": recipient.ID,
	}
	if !decision.Allowed {
		return p.recordRoleViolation(ctx, span, models.AuditActionCreateConversation, actor, recipient, nil, decision)
	}
	metadata["sender_role"] = decision.ActorRole
	metadata["recipient_role"] = decision.CounterpartRole
	return p.record(ctx, span, models.AuditActionCreateConversation, actor, decision, metadata)
}

func (p *messagingPolicy) CanSendMessage(ctx context.Context, actor Actor, conversation models.Conversation) (Decision, error) {
	ctx, span := p.start(ctx, models.AuditActionSendMessage, actor, models.ResourceConversation, conversation.ID)
	defer span.End()

	decision := p.membership(ctx, actor, conversation.ID, models.ResourceConversation, conversation.ID)
	if !decision.Allowed || conversation.Type != models.ConversationTypeDirect {
		return p.record(ctx, span, models.AuditActionSendMessage, actor, decision, map[string]interface{}{
			"conversation_type": conversation.Type,
		})
	}

	participants, err := p.participants.ListParticipants(ctx, conversation.ID)
	if err != nil {
		return p.recordLookupError(ctx, span, models.AuditActionSendMessage, actor, models.ResourceConversation, conversation.ID, err)
	}
	if len(participants) != 2 {
		return p.record(ctx, span, models.AuditActionSendMessage, actor, decision, map[string]interface{}{
			"conversation_type": conversation.Type,
			"participant_count": len(participants),
		})
	}

	otherID := participants[0]
	if otherID == actor.ID {
		otherID = participants[1]
	}
	other, err := p.users.FindByID(ctx, otherID)
	if err != nil {
		return p.recordLookupError(ctx, span, models.AuditActionSendMessage, actor, models.ResourceConversation, conversation.ID, err)
	}
	recipient := NewActor(other.ID, other.Role)

	// Existing conversations do not grandfather eligibility; the matrix is re-run on every send.
	roleDecision := p.roleCheck(ctx, actor, recipient)
	roleDecision.ResourceType = models.ResourceConversation
	roleDecision.ResourceID = conversation.ID
	resourceID := conversation.ID
	if !roleDecision.Allowed {
		return p.recordRoleViolation(ctx, span, models.AuditActionSendMessage, actor, recipient, &resourceID, roleDecision)
	}

	return p.record(ctx, span, models.AuditActionSendMessage, actor, roleDecision, map[string]interface{}{
		"conversation_type": conversation.Type,
		"sender_role":       roleDecision.ActorRole,
		"recipient_role":    roleDecision.CounterpartRole,
		"recipient_id":      recipient.ID,
	})
}

func (p *messagingPolicy) CanUpdateMessage(ctx context.Context, actor Actor, message models.Message) (Decision, error) {
	ctx, span := p.start(ctx, models.AuditActionUpdateMessage, actor, models.ResourceMessage, message.ID)
	defer span.End()

	decision := Decision{
		Allowed:      actor.ID == message.SenderID,
		Kind:         DecisionKindMembership,
		ActorRole:    actor.Role,
		ResourceType: models.ResourceMessage,
		ResourceID:   message.ID,
	}
	if !decision.Allowed {
		decision.Reason = ReasonNotSender
	}
	return p.record(ctx, span, models.AuditActionUpdateMessage, actor, decision, map[string]interface{}{
		"conversation_id": message.ConversationID,
	})
}

func (p *messagingPolicy) CanDeleteMessage(ctx context.Context, actor Actor, message models.Message) (Decision, error) {
	ctx, span := p.start(ctx, models.AuditActionDeleteMessage, actor, models.ResourceMessage, message.ID)
	defer span.End()

	decision := Decision{
		Kind:         DecisionKindMembership,
		ActorRole:    actor.Role,
		ResourceType: models.ResourceMessage,
		ResourceID:   message.ID,
	}

	switch {
	case actor.ID == message.SenderID:
		decision.Allowed = true
	case actor.IsAdmin():
		decision.Allowed = true
		decision.Override = true
		decision.Reason = ReasonAdminOverride
		resourceID := message.ID
		_, err := p.audit.LogAdminOverride(ctx, actor, models.AuditActionDeleteMessage, models.ResourceMessage, &resourceID, adminDeleteJustification)
		return p.finish(ctx, span, models.AuditActionDeleteMessage, actor, decision, err)
	default:
		decision.Reason = ReasonNotSender
	}

	return p.record(ctx, span, models.AuditActionDeleteMessage, actor, decision, map[string]interface{}{
		"conversation_id": message.ConversationID,
	})
}

func (p *messagingPolicy) CanMarkRead(ctx context.Context, actor Actor, message models.Message) (Decision, error) {
	ctx, span := p.start(ctx, models.AuditActionMarkRead, actor, models.ResourceMessage, message.ID)
	defer span.End()

	decision := p.membership(ctx, actor, message.ConversationID, models.ResourceMessage, message.ID)
	if decision.Allowed && actor.ID == message.SenderID {
		decision.Allowed = false
		decision.Reason = ReasonNotRecipient
	}
	return p.record(ctx, span, models.AuditActionMarkRead, actor, decision, map[string]interface{}{
		"conversation_id": message.ConversationID,
	})
}

func (p *messagingPolicy) membership(ctx context.Context, actor Actor, conversationID uint, resourceType string, resourceID uint) Decision {
	decision := Decision{
		Kind:         DecisionKindMembership,
		ActorRole:    actor.Role,
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}

	member, err := p.participants.IsParticipant(ctx, conversationID, actor.ID)
	if err != nil {
		p.logger.Warn().Err(err).Uint("conversation_id", conversationID).Uint("user_id", actor.ID).Msg("participant lookup failed")
		decision.Reason = ReasonLookupError
		return decision
	}
	if !member {
		decision.Reason = ReasonNotParticipant
		return decision
	}

	decision.Allowed = true
	return decision
}

func (p *messagingPolicy) roleCheck(ctx context.Context, actor, recipient Actor) Decision {
	verdict := p.resolver.Resolve(ctx, actor, recipient)
	if verdict.Err != nil {
		p.logger.Warn().Err(verdict.Err).Uint("user_id", actor.ID).Uint("recipient_id", recipient.ID).Msg("relationship lookup failed")
	}

	return Decision{
		Allowed:         verdict.Allowed,
		Reason:          verdict.Reason,
		Kind:            DecisionKindRole,
		ActorRole:       models.NormalizeRole(actor.Role),
		CounterpartRole: models.NormalizeRole(recipient.Role),
	}
}

func (p *messagingPolicy) record(ctx context.Context, span trace.Span, action string, actor Actor, decision Decision, metadata map[string]interface{}) (Decision, error) {
	var resourceID *uint
	if decision.ResourceID > 0 {
		id := decision.ResourceID
		resourceID = &id
	}

	_, err := p.audit.LogAuthorizationAttempt(ctx, AuditAttempt{
		Actor:        actor,
		Action:       action,
		ResourceType: decision.ResourceType,
		ResourceID:   resourceID,
		Granted:      decision.Allowed,
		Reason:       decision.Reason,
		Metadata:     metadata,
	})
	return p.finish(ctx, span, action, actor, decision, err)
}

func (p *messagingPolicy) recordRoleViolation(ctx context.Context, span trace.Span, action string, actor, recipient Actor, resourceID *uint, decision Decision) (Decision, error) {
	var extra map[string]interface{}
	if decision.Reason == ReasonLookupError {
		extra = map[string]interface{}{"lookup_failed": true}
	}

	_, err := p.audit.LogRoleViolation(ctx, actor, recipient, action, models.ResourceConversation, resourceID, decision.Reason, extra)
	return p.finish(ctx, span, action, actor, decision, err)
}

func (p *messagingPolicy) recordLookupError(ctx context.Context, span trace.Span, action string, actor Actor, resourceType string, resourceID uint, lookupErr error) (Decision, error) {
	p.logger.Warn().Err(lookupErr).Str("action", action).Uint("user_id", actor.ID).Msg("authorization lookup failed")
	span.RecordError(lookupErr)

	decision := Decision{
		Reason:       ReasonLookupError,
		Kind:         DecisionKindMembership,
		ActorRole:    actor.Role,
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
	return p.record(ctx, span, action, actor, decision, map[string]interface{}{
		"lookup_failed": true,
	})
}

func (p *messagingPolicy) finish(ctx context.Context, span trace.Span, action string, actor Actor, decision Decision, auditErr error) (Decision, error) {
	if auditErr != nil {
		observability.AuthzAuditFailures().WithLabelValues(action).Inc()
		span.RecordError(auditErr)
		span.SetStatus(codes.Error, "audit write failed")
		p.logger.Error().Err(auditErr).Str("action", action).Uint("user_id", actor.ID).Msg("authorization audit write failed, denying")

		closed := decision
		closed.Allowed = false
		closed.Override = false
		if closed.Reason == "" || closed.Reason == ReasonAdminOverride {
			closed.Reason = ReasonNotAuthorized
		}
		return closed, fmt.Errorf("%w: %w", ErrAuditUnavailable, auditErr)
	}

	reasonLabel := decision.Reason
	if reasonLabel == "" {
		reasonLabel = "none"
	}
	observability.AuthzDecisions().WithLabelValues(action, strconv.FormatBool(decision.Allowed), reasonLabel).Inc()
	span.SetAttributes(
		attribute.Bool("authz.granted", decision.Allowed),
		attribute.String("authz.reason", decision.Reason),
	)

	if !decision.Allowed {
		p.logger.Info().
			Str("action", action).
			Uint("user_id", actor.ID).
			Str("user_role", actor.Role).
			Str("reason", decision.Reason).
			Msg("authorization denied")
	}

	return decision, nil
}

func (p *messagingPolicy) start(ctx context.Context, action string, actor Actor, resourceType string, resourceID uint) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.String("authz.action", action),
		attribute.Int64("authz.user_id", int64(actor.ID)),
		attribute.String("authz.user_role", actor.Role),
		attribute.String("authz.resource_type", resourceType),
	}
	if resourceID > 0 {
		attrs = append(attrs, attribute.Int64("authz.resource_id", int64(resourceID)))
	}
	return p.tracer.Start(ctx, "authz."+action, trace.WithAttributes(attrs...))
}
