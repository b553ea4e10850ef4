package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"

	"github.com/noah-isme/tutorlink-api/internal/dto"
	"github.com/noah-isme/tutorlink-api/internal/models"
	"github.com/noah-isme/tutorlink-api/internal/repository"
)

var (
	// ErrConversationNotFound indicates the conversation does not exist.
	ErrConversationNotFound = errors.New("conversation not found")
	// ErrMessageNotFound indicates the message does not exist.
	ErrMessageNotFound = errors.New("message not found")
	// ErrUserNotFound indicates the addressed user does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrSelfConversation rejects a direct conversation with oneself.
	ErrSelfConversation = errors.New("cannot open a conversation with yourself")
	// ErrEmptyContent rejects messages that are empty after sanitization.
	ErrEmptyContent = errors.New("message content empty after sanitization")
)

// DeniedError is returned when the messaging policy denies an operation.
type DeniedError struct {
	Decision Decision
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("authorization denied: %s", e.Decision.Reason)
}

// AnomalyPolicy configures the advisory suspicious pattern check run after denials.
type AnomalyPolicy struct {
	Threshold int
	Window    time.Duration
}

// ConversationService performs conversation and message operations behind the messaging policy.
type ConversationService interface {
	Create(ctx context.Context, actor Actor, req dto.CreateConversationRequest) (dto.ConversationResponse, bool, error)
	Get(ctx context.Context, actor Actor, conversationID uint) (dto.ConversationResponse, error)
	ListMessages(ctx context.Context, actor Actor, conversationID uint, query dto.MessageListQuery) ([]dto.MessageResponse, error)
	SendMessage(ctx context.Context, actor Actor, conversationID uint, req dto.SendMessageRequest) (dto.MessageResponse, error)
	UpdateMessage(ctx context.Context, actor Actor, messageID uint, req dto.UpdateMessageRequest) (dto.MessageResponse, error)
	DeleteMessage(ctx context.Context, actor Actor, messageID uint) error
	MarkRead(ctx context.Context, actor Actor, messageID uint) (dto.MessageReadResponse, error)
}

type conversationService struct {
	conversations repository.ConversationRepository
	messages      repository.MessageRepository
	users         repository.UserRepository
	policy        MessagingPolicy
	audit         AuthorizationAuditService
	anomaly       AnomalyPolicy
	validator     *validator.Validate
	sanitizer     *bluemonday.Policy
	logger        zerolog.Logger
	now           func() time.Time
}

// NewConversationService constructs the conversation service.
func NewConversationService(
	conversations repository.ConversationRepository,
	messages repository.MessageRepository,
	users repository.UserRepository,
	policy MessagingPolicy,
	audit AuthorizationAuditService,
	anomaly AnomalyPolicy,
	validate *validator.Validate,
	logger zerolog.Logger,
) ConversationService {
	sanitizer := bluemonday.UGCPolicy()
	sanitizer.AllowElements("br")

	if anomaly.Threshold <= 0 {
		anomaly.Threshold = DefaultSuspiciousThreshold
	}
	if anomaly.Window <= 0 {
		anomaly.Window = DefaultSuspiciousWindow
	}

	return &conversationService{
		conversations: conversations,
		messages:      messages,
		users:         users,
		policy:        policy,
		audit:         audit,
		anomaly:       anomaly,
		validator:     validate,
		sanitizer:     sanitizer,
		logger:        logger.With().Str("component", "conversation_service").Logger(),
		now:           time.Now,
	}
}

func (s *conversationService) Create(ctx context.Context, actor Actor, req dto.CreateConversationRequest) (dto.ConversationResponse, bool, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.ConversationResponse{}, false, err
	}
	if req.RecipientID == actor.ID {
		return dto.ConversationResponse{}, false, ErrSelfConversation
	}

	recipientUser, err := s.users.FindByID(ctx, req.RecipientID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return dto.ConversationResponse{}, false, ErrUserNotFound
		}
		return dto.ConversationResponse{}, false, err
	}
	recipient := NewActor(recipientUser.ID, recipientUser.Role)

	decision, err := s.policy.CanCreateConversation(ctx, actor, recipient)
	if gateErr := s.gate(ctx, actor, decision, err); gateErr != nil {
		return dto.ConversationResponse{}, false, gateErr
	}

	existing, err := s.conversations.FindDirectBetween(ctx, actor.ID, recipient.ID)
	if err == nil {
		return dto.NewConversationResponse(existing), false, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return dto.ConversationResponse{}, false, err
	}

	conversation := models.Conversation{
		Type:      models.ConversationTypeDirect,
		Title:     strings.TrimSpace(req.Title),
		CreatedBy: actor.ID,
	}
	if err := s.conversations.Create(ctx, &conversation, []uint{actor.ID, recipient.ID}); err != nil {
		return dto.ConversationResponse{}, false, err
	}

	s.logger.Info().Uint("conversation_id", conversation.ID).Uint("user_id", actor.ID).Uint("recipient_id", recipient.ID).Msg("direct conversation created")
	return dto.NewConversationResponse(conversation), true, nil
}

func (s *conversationService) Get(ctx context.Context, actor Actor, conversationID uint) (dto.ConversationResponse, error) {
	conversation, err := s.loadConversation(ctx, conversationID)
	if err != nil {
		return dto.ConversationResponse{}, err
	}

	decision, err := s.policy.CanViewConversation(ctx, actor, conversation)
	if gateErr := s.gate(ctx, actor, decision, err); gateErr != nil {
		return dto.ConversationResponse{}, gateErr
	}

	return dto.NewConversationResponse(conversation), nil
}

func (s *conversationService) ListMessages(ctx context.Context, actor Actor, conversationID uint, query dto.MessageListQuery) ([]dto.MessageResponse, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, err
	}

	conversation, err := s.loadConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	decision, err := s.policy.CanViewConversation(ctx, actor, conversation)
	if gateErr := s.gate(ctx, actor, decision, err); gateErr != nil {
		return nil, gateErr
	}

	before := time.Time{}
	if query.Before != nil {
		before = *query.Before
	}

	messages, err := s.messages.ListByConversation(ctx, conversation.ID, before, query.Limit)
	if err != nil {
		return nil, err
	}
	return dto.NewMessageResponseSlice(messages), nil
}

func (s *conversationService) SendMessage(ctx context.Context, actor Actor, conversationID uint, req dto.SendMessageRequest) (dto.MessageResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.MessageResponse{}, err
	}

	conversation, err := s.loadConversation(ctx, conversationID)
	if err != nil {
		return dto.MessageResponse{}, err
	}

	decision, err := s.policy.CanSendMessage(ctx, actor, conversation)
	if gateErr := s.gate(ctx, actor, decision, err); gateErr != nil {
		return dto.MessageResponse{}, gateErr
	}

	content, err := s.clean(req.Content)
	if err != nil {
		return dto.MessageResponse{}, err
	}

	message := models.Message{
		ConversationID: conversation.ID,
		SenderID:       actor.ID,
		Content:        content,
	}
	if err := s.messages.Create(ctx, &message); err != nil {
		return dto.MessageResponse{}, err
	}

	return dto.NewMessageResponse(message), nil
}

func (s *conversationService) UpdateMessage(ctx context.Context, actor Actor, messageID uint, req dto.UpdateMessageRequest) (dto.MessageResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.MessageResponse{}, err
	}

	message, err := s.loadMessage(ctx, messageID)
	if err != nil {
		return dto.MessageResponse{}, err
	}

	decision, err := s.policy.CanUpdateMessage(ctx, actor, message)
	if gateErr := s.gate(ctx, actor, decision, err); gateErr != nil {
		return dto.MessageResponse{}, gateErr
	}

	content, err := s.clean(req.Content)
	if err != nil {
		return dto.MessageResponse{}, err
	}

	if err := s.messages.UpdateContent(ctx, &message, content, s.now().UTC()); err != nil {
		return dto.MessageResponse{}, err
	}

	return dto.NewMessageResponse(message), nil
}

func (s *conversationService) DeleteMessage(ctx context.Context, actor Actor, messageID uint) error {
	message, err := s.loadMessage(ctx, messageID)
	if err != nil {
		return err
	}

	decision, err := s.policy.CanDeleteMessage(ctx, actor, message)
	if gateErr := s.gate(ctx, actor, decision, err); gateErr != nil {
		return gateErr
	}

	if err := s.messages.Delete(ctx, message.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrMessageNotFound
		}
		return err
	}

	if decision.Override {
		s.logger.Info().Uint("message_id", message.ID).Uint("user_id", actor.ID).Uint("sender_id", message.SenderID).Msg("message removed by admin override")
	}
	return nil
}

func (s *conversationService) MarkRead(ctx context.Context, actor Actor, messageID uint) (dto.MessageReadResponse, error) {
	message, err := s.loadMessage(ctx, messageID)
	if err != nil {
		return dto.MessageReadResponse{}, err
	}

	decision, err := s.policy.CanMarkRead(ctx, actor, message)
	if gateErr := s.gate(ctx, actor, decision, err); gateErr != nil {
		return dto.MessageReadResponse{}, gateErr
	}

	receipt, err := s.messages.MarkRead(ctx, message.ID, actor.ID, s.now().UTC())
	if err != nil {
		return dto.MessageReadResponse{}, err
	}
	return dto.NewMessageReadResponse(receipt), nil
}

// gate turns a policy outcome into an error. Denials also run the advisory
// suspicious pattern check, which never changes the outcome.
func (s *conversationService) gate(ctx context.Context, actor Actor, decision Decision, err error) error {
	if err != nil {
		return err
	}
	if decision.Allowed {
		return nil
	}

	if _, checkErr := s.audit.CheckForSuspiciousPattern(ctx, actor, s.anomaly.Threshold, s.anomaly.Window); checkErr != nil {
		s.logger.Warn().Err(checkErr).Uint("user_id", actor.ID).Msg("suspicious pattern check failed")
	}

	return &DeniedError{Decision: decision}
}

func (s *conversationService) loadConversation(ctx context.Context, id uint) (models.Conversation, error) {
	conversation, err := s.conversations.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return models.Conversation{}, ErrConversationNotFound
		}
		return models.Conversation{}, err
	}
	return conversation, nil
}

func (s *conversationService) loadMessage(ctx context.Context, id uint) (models.Message, error) {
	message, err := s.messages.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return models.Message{}, ErrMessageNotFound
		}
		return models.Message{}, err
	}
	return message, nil
}

func (s *conversationService) clean(content string) (string, error) {
	clean := strings.TrimSpace(s.sanitizer.Sanitize(content))
	if clean == "" {
		return "", ErrEmptyContent
	}
	return clean, nil
}
