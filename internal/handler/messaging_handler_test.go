package handler_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/tutorlink-api/internal/handler"
	"github.com/noah-isme/tutorlink-api/internal/middleware"
	"github.com/noah-isme/tutorlink-api/internal/models"
	"github.com/noah-isme/tutorlink-api/internal/repository"
	"github.com/noah-isme/tutorlink-api/internal/service"
)

type messagingStack struct {
	app *fiber.App
	db  *gorm.DB
}

func newMessagingStack(t *testing.T) *messagingStack {
	t.Helper()

	dsn := fmt.Sprintf("file:handler_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Conversation{},
		&models.ConversationParticipant{},
		&models.Message{},
		&models.MessageRead{},
		&models.Booking{},
		&models.GuardianChild{},
		&models.AuthorizationAuditLog{},
	))

	logger := zerolog.Nop()
	users := repository.NewUserRepository(db)
	conversations := repository.NewConversationRepository(db)
	messages := repository.NewMessageRepository(db)
	facts := service.NewRelationshipFacts(repository.NewBookingRepository(db), repository.NewGuardianChildRepository(db))
	audit := service.NewAuthorizationAuditService(repository.NewAuditLogRepository(db), nil, logger)
	policy := service.NewMessagingPolicy(conversations, users, service.NewRoleRuleResolver(facts), audit, logger)
	svc := service.NewConversationService(conversations, messages, users, policy, audit, service.AnomalyPolicy{}, validator.New(validator.WithRequiredStructEnabled()), logger)
	h := handler.NewMessagingHandler(svc, logger)

	app := fiber.New()
	app.Use(middleware.ClientInfo())
	app.Use(func(c *fiber.Ctx) error {
		if raw := c.Get("X-Test-User"); raw != "" {
			id, _ := strconv.Atoi(raw)
			c.Locals("user_id", uint(id))
			c.Locals("user_role", models.NormalizeRole(c.Get("X-Test-Role")))
		}
		return c.Next()
	})
	h.RegisterConversations(app.Group("/conversations"), nil)
	h.RegisterMessages(app.Group("/messages"))

	return &messagingStack{app: app, db: db}
}

func (s *messagingStack) user(t *testing.T, role string) models.User {
	t.Helper()
	var count int64
	require.NoError(t, s.db.Model(&models.User{}).Count(&count).Error)
	user := models.User{Name: role, Email: fmt.Sprintf("%s-%d@example.com", role, count+1), Role: role}
	require.NoError(t, s.db.Create(&user).Error)
	return user
}

func (s *messagingStack) do(t *testing.T, method, path string, actor models.User, body interface{}) (int, map[string]interface{}) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "handler-test")
	if actor.ID > 0 {
		req.Header.Set("X-Test-User", strconv.FormatUint(uint64(actor.ID), 10))
		req.Header.Set("X-Test-Role", actor.Role)
	}

	resp, err := s.app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	payload := map[string]interface{}{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &payload))
	}
	return resp.StatusCode, payload
}

func dataID(t *testing.T, payload map[string]interface{}) uint {
	t.Helper()
	data, ok := payload["data"].(map[string]interface{})
	require.True(t, ok, "expected data object in %v", payload)
	return uint(data["id"].(float64))
}

func TestMessagingHandlerStudentTeacherFlow(t *testing.T) {
	stack := newMessagingStack(t)
	student := stack.user(t, models.RoleStudent)
	teacher := stack.user(t, models.RoleTeacher)

	status, payload := stack.do(t, http.MethodPost, "/conversations", student, map[string]interface{}{"recipient_id": teacher.ID})
	require.Equal(t, http.StatusForbidden, status)
	require.Equal(t, "ROLE_RESTRICTION", payload["code"])
	details := payload["details"].(map[string]interface{})
	require.Equal(t, "no_active_booking", details["reason"])
	require.Equal(t, "student", details["your_role"])
	require.Equal(t, "teacher", details["recipient_role"])

	booking := models.Booking{StudentID: student.ID, TeacherID: teacher.ID, Status: models.BookingStatusApproved}
	require.NoError(t, stack.db.Create(&booking).Error)

	status, payload = stack.do(t, http.MethodPost, "/conversations", student, map[string]interface{}{"recipient_id": teacher.ID})
	require.Equal(t, http.StatusCreated, status)
	conversationID := dataID(t, payload)

	status, _ = stack.do(t, http.MethodPost, "/conversations", teacher, map[string]interface{}{"recipient_id": student.ID})
	require.Equal(t, http.StatusOK, status)

	status, payload = stack.do(t, http.MethodPost, fmt.Sprintf("/conversations/%d/messages", conversationID), student, map[string]interface{}{"content": "hello"})
	require.Equal(t, http.StatusCreated, status)
	messageID := dataID(t, payload)

	var entry models.AuthorizationAuditLog
	require.NoError(t, stack.db.Order("id DESC").First(&entry).Error)
	require.Equal(t, models.AuditActionSendMessage, entry.Action)
	require.True(t, entry.Granted)
	require.Equal(t, "handler-test", entry.UserAgent)
	require.NotEmpty(t, entry.IPAddress)

	status, _ = stack.do(t, http.MethodPost, fmt.Sprintf("/messages/%d/read", messageID), teacher, nil)
	require.Equal(t, http.StatusOK, status)

	require.NoError(t, stack.db.Model(&booking).Update("status", models.BookingStatusCancelled).Error)

	status, payload = stack.do(t, http.MethodPost, fmt.Sprintf("/conversations/%d/messages", conversationID), teacher, map[string]interface{}{"content": "still there?"})
	require.Equal(t, http.StatusForbidden, status)
	require.Equal(t, "ROLE_RESTRICTION", payload["code"])

	status, payload = stack.do(t, http.MethodGet, fmt.Sprintf("/conversations/%d/messages", conversationID), teacher, nil)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, payload["data"], 1)
}

func TestMessagingHandlerMembershipDenials(t *testing.T) {
	stack := newMessagingStack(t)
	student := stack.user(t, models.RoleStudent)
	teacher := stack.user(t, models.RoleTeacher)
	outsider := stack.user(t, models.RoleGuardian)
	admin := stack.user(t, models.RoleAdmin)
	require.NoError(t, stack.db.Create(&models.Booking{StudentID: student.ID, TeacherID: teacher.ID, Status: models.BookingStatusCompleted}).Error)

	_, payload := stack.do(t, http.MethodPost, "/conversations", student, map[string]interface{}{"recipient_id": teacher.ID})
	conversationID := dataID(t, payload)
	_, payload = stack.do(t, http.MethodPost, fmt.Sprintf("/conversations/%d/messages", conversationID), student, map[string]interface{}{"content": "hi"})
	messageID := dataID(t, payload)

	status, payload := stack.do(t, http.MethodPost, fmt.Sprintf("/messages/%d/read", messageID), outsider, nil)
	require.Equal(t, http.StatusForbidden, status)
	require.Equal(t, "AUTHORIZATION_FAILED", payload["code"])
	require.Equal(t, "Forbidden", payload["error"])
	details := payload["details"].(map[string]interface{})
	require.Equal(t, "not_participant", details["reason"])
	require.Equal(t, "Message", details["resource_type"])
	require.EqualValues(t, messageID, details["resource_id"])

	status, payload = stack.do(t, http.MethodGet, fmt.Sprintf("/conversations/%d", conversationID), outsider, nil)
	require.Equal(t, http.StatusForbidden, status)
	require.Equal(t, "AUTHORIZATION_FAILED", payload["code"])

	status, payload = stack.do(t, http.MethodPatch, fmt.Sprintf("/messages/%d", messageID), teacher, map[string]interface{}{"content": "edit"})
	require.Equal(t, http.StatusForbidden, status)
	require.Equal(t, "not_sender", payload["details"].(map[string]interface{})["reason"])

	status, _ = stack.do(t, http.MethodDelete, fmt.Sprintf("/messages/%d", messageID), admin, nil)
	require.Equal(t, http.StatusOK, status)

	var entry models.AuthorizationAuditLog
	require.NoError(t, stack.db.Order("id DESC").First(&entry).Error)
	require.NotNil(t, entry.Reason)
	require.Equal(t, "admin_override", *entry.Reason)
}

func TestMessagingHandlerRequestErrors(t *testing.T) {
	stack := newMessagingStack(t)
	student := stack.user(t, models.RoleStudent)

	status, _ := stack.do(t, http.MethodGet, "/conversations/abc", student, nil)
	require.Equal(t, http.StatusBadRequest, status)

	status, _ = stack.do(t, http.MethodGet, "/conversations/999", student, nil)
	require.Equal(t, http.StatusNotFound, status)

	status, _ = stack.do(t, http.MethodPost, "/conversations", student, map[string]interface{}{"recipient_id": student.ID})
	require.Equal(t, http.StatusBadRequest, status)

	status, _ = stack.do(t, http.MethodPost, "/conversations", student, map[string]interface{}{})
	require.Equal(t, http.StatusBadRequest, status)

	status, _ = stack.do(t, http.MethodPost, "/conversations", student, map[string]interface{}{"recipient_id": 4242})
	require.Equal(t, http.StatusNotFound, status)

	status, _ = stack.do(t, http.MethodGet, "/conversations/1/messages?before=yesterday", student, nil)
	require.Equal(t, http.StatusBadRequest, status)
}
