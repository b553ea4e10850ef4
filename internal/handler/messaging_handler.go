package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/tutorlink-api/internal/dto"
	"github.com/noah-isme/tutorlink-api/internal/service"
	"github.com/noah-isme/tutorlink-api/internal/utils"
)

var denialMessages = map[string]string{
	service.ReasonNotParticipant: "You are not a participant in this conversation",
	service.ReasonNotSender:      "Only the sender can modify this message",
	service.ReasonNotRecipient:   "Only recipients can mark this message as read",
	service.ReasonLookupError:    "Authorization could not be verified",
}

// MessagingHandler exposes conversation and message endpoints.
type MessagingHandler struct {
	service service.ConversationService
	logger  zerolog.Logger
}

// NewMessagingHandler constructs the messaging handler.
func NewMessagingHandler(service service.ConversationService, logger zerolog.Logger) *MessagingHandler {
	return &MessagingHandler{
		service: service,
		logger:  logger.With().Str("component", "messaging_handler").Logger(),
	}
}

// RegisterConversations attaches conversation routes to the router group.
func (h *MessagingHandler) RegisterConversations(router fiber.Router, sendLimiter fiber.Handler) {
	if sendLimiter == nil {
		sendLimiter = func(c *fiber.Ctx) error { return c.Next() }
	}

	router.Post("", h.createConversation)
	router.Get("/:id", h.getConversation)
	router.Get("/:id/messages", h.listMessages)
	router.Post("/:id/messages", sendLimiter, h.sendMessage)
}

// RegisterMessages attaches message routes to the router group.
func (h *MessagingHandler) RegisterMessages(router fiber.Router) {
	router.Patch("/:id", h.updateMessage)
	router.Delete("/:id", h.deleteMessage)
	router.Post("/:id/read", h.markRead)
}

func (h *MessagingHandler) createConversation(c *fiber.Ctx) error {
	var payload dto.CreateConversationRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	conversation, created, err := h.service.Create(requestContext(c), actorFromContext(c), payload)
	if err != nil {
		return h.respondError(c, err, "failed to create conversation")
	}

	if created {
		return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "conversation created", conversation)
	}
	return utils.SendSuccess(c, "conversation exists", conversation)
}

func (h *MessagingHandler) getConversation(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid conversation id")
	}

	conversation, err := h.service.Get(requestContext(c), actorFromContext(c), id)
	if err != nil {
		return h.respondError(c, err, "failed to load conversation")
	}

	return utils.SendSuccess(c, "conversation", conversation)
}

func (h *MessagingHandler) listMessages(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid conversation id")
	}

	before, err := parseQueryTime(c, "before")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid before timestamp")
	}

	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}

	messages, err := h.service.ListMessages(requestContext(c), actorFromContext(c), id, dto.MessageListQuery{Before: before, Limit: limit})
	if err != nil {
		return h.respondError(c, err, "failed to list messages")
	}

	return utils.SendSuccess(c, "messages", messages)
}

func (h *MessagingHandler) sendMessage(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid conversation id")
	}

	var payload dto.SendMessageRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	message, err := h.service.SendMessage(requestContext(c), actorFromContext(c), id, payload)
	if err != nil {
		return h.respondError(c, err, "failed to send message")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "message sent", message)
}

func (h *MessagingHandler) updateMessage(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid message id")
	}

	var payload dto.UpdateMessageRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	message, err := h.service.UpdateMessage(requestContext(c), actorFromContext(c), id, payload)
	if err != nil {
		return h.respondError(c, err, "failed to update message")
	}

	return utils.SendSuccess(c, "message updated", message)
}

func (h *MessagingHandler) deleteMessage(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid message id")
	}

	if err := h.service.DeleteMessage(requestContext(c), actorFromContext(c), id); err != nil {
		return h.respondError(c, err, "failed to delete message")
	}

	return utils.SendSuccess(c, "message deleted", nil)
}

func (h *MessagingHandler) markRead(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid message id")
	}

	receipt, err := h.service.MarkRead(requestContext(c), actorFromContext(c), id)
	if err != nil {
		return h.respondError(c, err, "failed to mark message as read")
	}

	return utils.SendSuccess(c, "message read", receipt)
}

func (h *MessagingHandler) respondError(c *fiber.Ctx, err error, fallback string) error {
	var denied *service.DeniedError
	switch {
	case errors.As(err, &denied):
		return respondDenied(c, denied.Decision)
	case isValidationError(err):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrSelfConversation), errors.Is(err, service.ErrEmptyContent):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrConversationNotFound), errors.Is(err, service.ErrMessageNotFound), errors.Is(err, service.ErrUserNotFound):
		return utils.SendError(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrAuditUnavailable):
		requestLogger(h.logger, c).Error().Err(err).Msg("authorization audit unavailable")
		return utils.SendError(c, fiber.StatusServiceUnavailable, "authorization temporarily unavailable")
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg(fallback)
		return utils.SendError(c, fiber.StatusInternalServerError, fallback)
	}
}

func respondDenied(c *fiber.Ctx, decision service.Decision) error {
	if decision.Kind == service.DecisionKindRole && decision.Reason != service.ReasonLookupError {
		return utils.RoleRestriction(c, utils.RoleRestrictionDetails{
			Reason:        decision.Reason,
			YourRole:      decision.ActorRole,
			RecipientRole: decision.CounterpartRole,
		})
	}

	return utils.AuthorizationFailed(c, denialMessages[decision.Reason], utils.AuthorizationFailedDetails{
		Reason:       decision.Reason,
		ResourceType: decision.ResourceType,
		ResourceID:   decision.ResourceID,
	})
}
