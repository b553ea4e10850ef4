package handler

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/tutorlink-api/internal/dto"
	"github.com/noah-isme/tutorlink-api/internal/service"
	"github.com/noah-isme/tutorlink-api/internal/utils"
)

// AuthorizationAuditHandler exposes the authorization audit trail to admins.
type AuthorizationAuditHandler struct {
	service service.AuthorizationAuditService
	logger  zerolog.Logger
}

// NewAuthorizationAuditHandler constructs the handler.
func NewAuthorizationAuditHandler(service service.AuthorizationAuditService, logger zerolog.Logger) *AuthorizationAuditHandler {
	return &AuthorizationAuditHandler{
		service: service,
		logger:  logger.With().Str("component", "authorization_audit_handler").Logger(),
	}
}

// Register attaches audit routes to the router group.
func (h *AuthorizationAuditHandler) Register(router fiber.Router) {
	router.Get("", h.list)
}

func (h *AuthorizationAuditHandler) list(c *fiber.Ctx) error {
	page, err := parseQueryInt(c, "page")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid page")
	}
	if page <= 0 {
		page = 1
	}

	pageSize, err := parseQueryInt(c, "page_size")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid page size")
	}
	if pageSize <= 0 {
		pageSize = 25
	} else if pageSize > 200 {
		pageSize = 200
	}

	userID, err := parseQueryInt(c, "user_id")
	if err != nil || userID < 0 {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid user id")
	}

	since, err := parseQueryTime(c, "since")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid since timestamp")
	}
	until, err := parseQueryTime(c, "until")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid until timestamp")
	}

	req := dto.AuthorizationAuditListRequest{
		Page:         page,
		PageSize:     pageSize,
		UserID:       uint(userID),
		Action:       strings.ToLower(c.Query("action")),
		ResourceType: c.Query("resource_type"),
		Reason:       c.Query("reason"),
		Since:        since,
		Until:        until,
	}

	if raw := strings.TrimSpace(c.Query("granted")); raw != "" {
		granted, err := strconv.ParseBool(raw)
		if err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid granted flag")
		}
		req.Granted = &granted
	}

	response, err := h.service.List(requestContext(c), req)
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to list authorization audit logs")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to list authorization audit logs")
	}

	return utils.OK(c, response.Items, "authorization audit logs", response.Pagination)
}
