package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/tutorlink-api/internal/models"
	"github.com/noah-isme/tutorlink-api/internal/repository"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func setupMessagingDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:messaging_%d?mode=memory&cache=shared", time.Now().UnixNano())
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
	return db
}

type messagingFixture struct {
	db            *gorm.DB
	users         repository.UserRepository
	conversations repository.ConversationRepository
	messages      repository.MessageRepository
	auditRepo     repository.AuditLogRepository
	audit         AuthorizationAuditService
	policy        MessagingPolicy
	service       ConversationService
	seq           int
}

func newMessagingFixture(t *testing.T) *messagingFixture {
	t.Helper()

	db := setupMessagingDB(t)
	logger := testLogger()

	users := repository.NewUserRepository(db)
	conversations := repository.NewConversationRepository(db)
	messages := repository.NewMessageRepository(db)
	auditRepo := repository.NewAuditLogRepository(db)
	facts := NewRelationshipFacts(repository.NewBookingRepository(db), repository.NewGuardianChildRepository(db))

	audit := NewAuthorizationAuditService(auditRepo, nil, logger)
	policy := NewMessagingPolicy(conversations, users, NewRoleRuleResolver(facts), audit, logger)
	svc := NewConversationService(conversations, messages, users, policy, audit, AnomalyPolicy{}, validator.New(validator.WithRequiredStructEnabled()), logger)

	return &messagingFixture{
		db:            db,
		users:         users,
		conversations: conversations,
		messages:      messages,
		auditRepo:     auditRepo,
		audit:         audit,
		policy:        policy,
		service:       svc,
	}
}

func (f *messagingFixture) user(t *testing.T, role string) Actor {
	t.Helper()
	f.seq++
	user := models.User{Name: role + " user", Email: fmt.Sprintf("%s-%d@example.com", role, f.seq), Role: role}
	require.NoError(t, f.db.Create(&user).Error)
	return NewActor(user.ID, user.Role)
}

func (f *messagingFixture) booking(t *testing.T, student, teacher Actor, status string) models.Booking {
	t.Helper()
	booking := models.Booking{StudentID: student.ID, TeacherID: teacher.ID, Status: status}
	require.NoError(t, f.db.Create(&booking).Error)
	return booking
}

func (f *messagingFixture) setBookingStatus(t *testing.T, booking models.Booking, status string) {
	t.Helper()
	require.NoError(t, f.db.Model(&booking).Update("status", status).Error)
}

func (f *messagingFixture) guardianOf(t *testing.T, guardian, child Actor) {
	t.Helper()
	require.NoError(t, f.db.Create(&models.GuardianChild{GuardianID: guardian.ID, ChildID: child.ID}).Error)
}

func (f *messagingFixture) conversation(t *testing.T, kind string, members ...Actor) models.Conversation {
	t.Helper()
	ids := make([]uint, 0, len(members))
	for _, member := range members {
		ids = append(ids, member.ID)
	}
	conversation := models.Conversation{Type: kind}
	require.NoError(t, f.conversations.Create(context.Background(), &conversation, ids))
	stored, err := f.conversations.FindByID(context.Background(), conversation.ID)
	require.NoError(t, err)
	return stored
}

func (f *messagingFixture) message(t *testing.T, conversation models.Conversation, sender Actor) models.Message {
	t.Helper()
	message := models.Message{ConversationID: conversation.ID, SenderID: sender.ID, Content: "hello"}
	require.NoError(t, f.messages.Create(context.Background(), &message))
	return message
}

func (f *messagingFixture) auditCount(t *testing.T) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.db.Model(&models.AuthorizationAuditLog{}).Count(&count).Error)
	return count
}

func (f *messagingFixture) lastAudit(t *testing.T) models.AuthorizationAuditLog {
	t.Helper()
	var entry models.AuthorizationAuditLog
	require.NoError(t, f.db.Order("id DESC").First(&entry).Error)
	return entry
}

func reasonOf(entry models.AuthorizationAuditLog) string {
	if entry.Reason == nil {
		return ""
	}
	return *entry.Reason
}

// metadataInt reads a numeric metadata value as stored JSON hands it back.
func metadataInt(t *testing.T, entry models.AuthorizationAuditLog, key string) int64 {
	t.Helper()

	switch value := entry.Metadata[key].(type) {
	case json.Number:
		parsed, err := value.Int64()
		require.NoError(t, err)
		return parsed
	case float64:
		return int64(value)
	case int64:
		return value
	case int:
		return int64(value)
	case uint:
		return int64(value)
	default:
		t.Fatalf("metadata %q is %T, want a number", key, value)
		return 0
	}
}

type fakeFacts struct {
	active      map[[2]uint]bool
	teaches     map[[2]uint]bool
	err         error
	bookingHits int
}

func (f *fakeFacts) HasActiveBooking(_ context.Context, studentID, teacherID uint) (bool, error) {
	f.bookingHits++
	if f.err != nil {
		return false, f.err
	}
	return f.active[[2]uint{studentID, teacherID}], nil
}

func (f *fakeFacts) TeachesChildOf(_ context.Context, teacherID, guardianID uint) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.teaches[[2]uint{teacherID, guardianID}], nil
}

type failingAuditRepo struct {
	err error
}

func (r failingAuditRepo) Create(context.Context, *models.AuthorizationAuditLog) error {
	return r.err
}

func (r failingAuditRepo) CountDeniedSince(context.Context, uint, time.Time) (int64, error) {
	return 0, r.err
}

func (r failingAuditRepo) DeniedCountsSince(context.Context, time.Time, int64) ([]repository.DenialCount, error) {
	return nil, r.err
}

func (r failingAuditRepo) List(context.Context, repository.AuditLogFilter) ([]models.AuthorizationAuditLog, int64, error) {
	return nil, 0, r.err
}

func repositoryBookings(f *messagingFixture) repository.BookingLookup {
	return repository.NewBookingRepository(f.db)
}

func repositoryGuardians(f *messagingFixture) repository.GuardianChildLookup {
	return repository.NewGuardianChildRepository(f.db)
}
