package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutorlink-api/internal/models"
	"github.com/noah-isme/tutorlink-api/internal/repository"
)

func TestCanViewConversationMembership(t *testing.T) {
	f := newMessagingFixture(t)
	ctx := context.Background()

	student := f.user(t, models.RoleStudent)
	teacher := f.user(t, models.RoleTeacher)
	outsider := f.user(t, models.RoleStudent)
	admin := f.user(t, models.RoleAdmin)
	conversation := f.conversation(t, models.ConversationTypeDirect, student, teacher)

	cases := []struct {
		actor   Actor
		allowed bool
	}{
		{student, true},
		{teacher, true},
		{outsider, false},
		{admin, false},
	}

	for i, tc := range cases {
		decision, err := f.policy.CanViewConversation(ctx, tc.actor, conversation)
		require.NoError(t, err)
		require.Equal(t, tc.allowed, decision.Allowed)
		require.EqualValues(t, i+1, f.auditCount(t))

		entry := f.lastAudit(t)
		require.Equal(t, tc.actor.ID, entry.UserID)
		require.Equal(t, models.AuditActionViewConversation, entry.Action)
		require.Equal(t, tc.allowed, entry.Granted)
		require.NotNil(t, entry.ResourceID)
		require.Equal(t, conversation.ID, *entry.ResourceID)
		if !tc.allowed {
			require.Equal(t, ReasonNotParticipant, reasonOf(entry))
			require.Equal(t, DecisionKindMembership, decision.Kind)
		}
	}
}

func TestBookingStatusGatesCreateAndSend(t *testing.T) {
	statuses := map[string]bool{
		models.BookingStatusPending:   false,
		models.BookingStatusApproved:  true,
		models.BookingStatusCompleted: true,
		models.BookingStatusCancelled: false,
	}

	for status, allowed := range statuses {
		status, allowed := status, allowed
		t.Run(status, func(t *testing.T) {
			f := newMessagingFixture(t)
			ctx := context.Background()

			student := f.user(t, models.RoleStudent)
			teacher := f.user(t, models.RoleTeacher)
			f.booking(t, student, teacher, status)
			conversation := f.conversation(t, models.ConversationTypeDirect, student, teacher)

			create, err := f.policy.CanCreateConversation(ctx, student, teacher)
			require.NoError(t, err)
			require.Equal(t, allowed, create.Allowed)

			reverse, err := f.policy.CanCreateConversation(ctx, teacher, student)
			require.NoError(t, err)
			require.Equal(t, allowed, reverse.Allowed)

			send, err := f.policy.CanSendMessage(ctx, student, conversation)
			require.NoError(t, err)
			require.Equal(t, allowed, send.Allowed)

			entry := f.lastAudit(t)
			require.Equal(t, models.AuditActionSendMessage, entry.Action)
			require.Equal(t, allowed, entry.Granted)
			if !allowed {
				require.Equal(t, ReasonNoActiveBooking, create.Reason)
				require.Equal(t, ReasonNoActiveBooking, send.Reason)
				require.Equal(t, DecisionKindRole, send.Kind)
				require.Equal(t, ReasonNoActiveBooking, reasonOf(entry))
				require.Equal(t, ViolationRoleRestriction, entry.Metadata["violation_type"])
			}
			require.EqualValues(t, 3, f.auditCount(t))
		})
	}
}

func TestSendMessageWithoutBookingIsRoleRestricted(t *testing.T) {
	f := newMessagingFixture(t)

	student := f.user(t, models.RoleStudent)
	teacher := f.user(t, models.RoleTeacher)
	conversation := f.conversation(t, models.ConversationTypeDirect, student, teacher)

	decision, err := f.policy.CanSendMessage(context.Background(), student, conversation)
	require.NoError(t, err)
	require.False(t, decision.Allowed)
	require.Equal(t, ReasonNoActiveBooking, decision.Reason)
	require.Equal(t, DecisionKindRole, decision.Kind)
	require.Equal(t, models.RoleStudent, decision.ActorRole)
	require.Equal(t, models.RoleTeacher, decision.CounterpartRole)

	entry := f.lastAudit(t)
	require.Equal(t, models.RoleStudent, entry.Metadata["sender_role"])
	require.Equal(t, models.RoleTeacher, entry.Metadata["recipient_role"])
	require.Equal(t, models.RoleStudent, entry.Metadata["user_role"])
}

func TestCancelledBookingRevokesFurtherSends(t *testing.T) {
	f := newMessagingFixture(t)
	ctx := context.Background()

	student := f.user(t, models.RoleStudent)
	teacher := f.user(t, models.RoleTeacher)
	booking := f.booking(t, student, teacher, models.BookingStatusApproved)
	conversation := f.conversation(t, models.ConversationTypeDirect, student, teacher)

	for _, sender := range []Actor{student, teacher} {
		decision, err := f.policy.CanSendMessage(ctx, sender, conversation)
		require.NoError(t, err)
		require.True(t, decision.Allowed)
		f.message(t, conversation, sender)
	}

	f.setBookingStatus(t, booking, models.BookingStatusCancelled)

	decision, err := f.policy.CanSendMessage(ctx, student, conversation)
	require.NoError(t, err)
	require.False(t, decision.Allowed)
	require.Equal(t, ReasonNoActiveBooking, decision.Reason)

	var messages int64
	require.NoError(t, f.db.Model(&models.Message{}).Count(&messages).Error)
	require.EqualValues(t, 2, messages)
}

func TestSendMessageNonParticipantFailsFirstStage(t *testing.T) {
	f := newMessagingFixture(t)

	student := f.user(t, models.RoleStudent)
	teacher := f.user(t, models.RoleTeacher)
	outsider := f.user(t, models.RoleTeacher)
	f.booking(t, student, outsider, models.BookingStatusApproved)
	conversation := f.conversation(t, models.ConversationTypeDirect, student, teacher)

	decision, err := f.policy.CanSendMessage(context.Background(), outsider, conversation)
	require.NoError(t, err)
	require.False(t, decision.Allowed)
	require.Equal(t, ReasonNotParticipant, decision.Reason)
	require.Equal(t, DecisionKindMembership, decision.Kind)
	require.EqualValues(t, 1, f.auditCount(t))
}

func TestGroupConversationSkipsRoleMatrix(t *testing.T) {
	f := newMessagingFixture(t)

	studentA := f.user(t, models.RoleStudent)
	studentB := f.user(t, models.RoleStudent)
	guardian := f.user(t, models.RoleGuardian)
	group := f.conversation(t, models.ConversationTypeGroup, studentA, studentB, guardian)

	decision, err := f.policy.CanSendMessage(context.Background(), studentA, group)
	require.NoError(t, err)
	require.True(t, decision.Allowed)

	entry := f.lastAudit(t)
	require.True(t, entry.Granted)
	require.Equal(t, models.ConversationTypeGroup, entry.Metadata["conversation_type"])
}

func TestGuardianMessagesTeacherOfChild(t *testing.T) {
	f := newMessagingFixture(t)
	ctx := context.Background()

	guardian := f.user(t, models.RoleGuardian)
	child := f.user(t, models.RoleStudent)
	teacher := f.user(t, models.RoleTeacher)
	otherTeacher := f.user(t, models.RoleTeacher)
	f.guardianOf(t, guardian, child)
	f.booking(t, child, teacher, models.BookingStatusApproved)

	decision, err := f.policy.CanCreateConversation(ctx, guardian, teacher)
	require.NoError(t, err)
	require.True(t, decision.Allowed)

	decision, err = f.policy.CanCreateConversation(ctx, teacher, guardian)
	require.NoError(t, err)
	require.True(t, decision.Allowed)

	decision, err = f.policy.CanCreateConversation(ctx, guardian, otherTeacher)
	require.NoError(t, err)
	require.False(t, decision.Allowed)
	require.Equal(t, ReasonTeacherNotTeachingChild, decision.Reason)
}

func TestDisallowedRolePairsRecordViolation(t *testing.T) {
	pairs := [][2]string{
		{models.RoleStudent, models.RoleStudent},
		{models.RoleStudent, models.RoleGuardian},
		{models.RoleTeacher, models.RoleTeacher},
		{models.RoleTeacher, models.RoleGuardian},
		{models.RoleGuardian, models.RoleGuardian},
		{models.RoleGuardian, models.RoleStudent},
	}

	for _, pair := range pairs {
		pair := pair
		t.Run(pair[0]+"_"+pair[1], func(t *testing.T) {
			f := newMessagingFixture(t)
			sender := f.user(t, pair[0])
			recipient := f.user(t, pair[1])

			decision, err := f.policy.CanCreateConversation(context.Background(), sender, recipient)
			require.NoError(t, err)
			require.False(t, decision.Allowed)
			require.Equal(t, DecisionKindRole, decision.Kind)

			entry := f.lastAudit(t)
			require.False(t, entry.Granted)
			require.NotEmpty(t, reasonOf(entry))
			require.Equal(t, ViolationRoleRestriction, entry.Metadata["violation_type"])
			require.Equal(t, pair[0], entry.Metadata["sender_role"])
			require.Equal(t, pair[1], entry.Metadata["recipient_role"])
		})
	}
}

func TestAdminMessagesAnyRole(t *testing.T) {
	f := newMessagingFixture(t)
	ctx := context.Background()

	for _, adminRole := range []string{models.RoleAdmin, models.RoleSuperAdmin} {
		admin := f.user(t, adminRole)
		for _, role := range []string{models.RoleStudent, models.RoleTeacher, models.RoleGuardian, models.RoleAdmin, models.RoleUnassigned} {
			other := f.user(t, role)

			decision, err := f.policy.CanCreateConversation(ctx, admin, other)
			require.NoError(t, err)
			require.True(t, decision.Allowed, "%s -> %s", adminRole, role)

			entry := f.lastAudit(t)
			require.True(t, entry.Granted)
			require.Nil(t, entry.Metadata["violation_type"])

			reverse, err := f.policy.CanCreateConversation(ctx, other, admin)
			require.NoError(t, err)
			require.True(t, reverse.Allowed, "%s -> %s", role, adminRole)
		}
	}
}

func TestMessageMutationOwnership(t *testing.T) {
	f := newMessagingFixture(t)
	ctx := context.Background()

	student := f.user(t, models.RoleStudent)
	teacher := f.user(t, models.RoleTeacher)
	admin := f.user(t, models.RoleSuperAdmin)
	conversation := f.conversation(t, models.ConversationTypeDirect, student, teacher)
	message := f.message(t, conversation, student)

	update, err := f.policy.CanUpdateMessage(ctx, student, message)
	require.NoError(t, err)
	require.True(t, update.Allowed)

	update, err = f.policy.CanUpdateMessage(ctx, teacher, message)
	require.NoError(t, err)
	require.False(t, update.Allowed)
	require.Equal(t, ReasonNotSender, update.Reason)

	update, err = f.policy.CanUpdateMessage(ctx, admin, message)
	require.NoError(t, err)
	require.False(t, update.Allowed, "admins cannot edit other users' messages")

	remove, err := f.policy.CanDeleteMessage(ctx, student, message)
	require.NoError(t, err)
	require.True(t, remove.Allowed)
	require.False(t, remove.Override)
	require.Nil(t, f.lastAudit(t).Reason)

	remove, err = f.policy.CanDeleteMessage(ctx, teacher, message)
	require.NoError(t, err)
	require.False(t, remove.Allowed)
	require.Equal(t, ReasonNotSender, remove.Reason)

	require.EqualValues(t, 5, f.auditCount(t))
}

func TestAdminDeleteIsRecordedAsOverride(t *testing.T) {
	f := newMessagingFixture(t)

	student := f.user(t, models.RoleStudent)
	teacher := f.user(t, models.RoleTeacher)
	admin := f.user(t, models.RoleAdmin)
	conversation := f.conversation(t, models.ConversationTypeDirect, student, teacher)
	message := f.message(t, conversation, student)

	decision, err := f.policy.CanDeleteMessage(context.Background(), admin, message)
	require.NoError(t, err)
	require.True(t, decision.Allowed)
	require.True(t, decision.Override)

	entry := f.lastAudit(t)
	require.Equal(t, admin.ID, entry.UserID)
	require.Equal(t, models.AuditActionDeleteMessage, entry.Action)
	require.Equal(t, models.ResourceMessage, entry.ResourceType)
	require.True(t, entry.Granted)
	require.Equal(t, ReasonAdminOverride, reasonOf(entry))
	require.Equal(t, true, entry.Metadata["override"])
	require.Equal(t, models.RoleAdmin, entry.Metadata["admin_role"])
	require.EqualValues(t, 1, f.auditCount(t))
}

func TestCanMarkRead(t *testing.T) {
	f := newMessagingFixture(t)
	ctx := context.Background()

	student := f.user(t, models.RoleStudent)
	teacher := f.user(t, models.RoleTeacher)
	outsider := f.user(t, models.RoleGuardian)
	conversation := f.conversation(t, models.ConversationTypeDirect, student, teacher)
	message := f.message(t, conversation, student)

	decision, err := f.policy.CanMarkRead(ctx, teacher, message)
	require.NoError(t, err)
	require.True(t, decision.Allowed)

	decision, err = f.policy.CanMarkRead(ctx, student, message)
	require.NoError(t, err)
	require.False(t, decision.Allowed)
	require.Equal(t, ReasonNotRecipient, decision.Reason)

	decision, err = f.policy.CanMarkRead(ctx, outsider, message)
	require.NoError(t, err)
	require.False(t, decision.Allowed)
	require.Equal(t, ReasonNotParticipant, decision.Reason)
	require.Equal(t, DecisionKindMembership, decision.Kind)
	require.Equal(t, models.ResourceMessage, decision.ResourceType)
	require.Equal(t, message.ID, decision.ResourceID)
}

func TestEveryDecisionWritesOneRow(t *testing.T) {
	f := newMessagingFixture(t)
	ctx := context.Background()

	student := f.user(t, models.RoleStudent)
	teacher := f.user(t, models.RoleTeacher)
	admin := f.user(t, models.RoleAdmin)
	outsider := f.user(t, models.RoleStudent)
	f.booking(t, student, teacher, models.BookingStatusApproved)
	conversation := f.conversation(t, models.ConversationTypeDirect, student, teacher)
	message := f.message(t, conversation, teacher)

	calls := []func() (Decision, error){
		func() (Decision, error) { return f.policy.CanViewConversation(ctx, outsider, conversation) },
		func() (Decision, error) { return f.policy.CanViewConversation(ctx, student, conversation) },
		func() (Decision, error) { return f.policy.CanCreateConversation(ctx, student, outsider) },
		func() (Decision, error) { return f.policy.CanCreateConversation(ctx, admin, outsider) },
		func() (Decision, error) { return f.policy.CanSendMessage(ctx, student, conversation) },
		func() (Decision, error) { return f.policy.CanSendMessage(ctx, outsider, conversation) },
		func() (Decision, error) { return f.policy.CanUpdateMessage(ctx, student, message) },
		func() (Decision, error) { return f.policy.CanDeleteMessage(ctx, admin, message) },
		func() (Decision, error) { return f.policy.CanDeleteMessage(ctx, outsider, message) },
		func() (Decision, error) { return f.policy.CanMarkRead(ctx, student, message) },
		func() (Decision, error) { return f.policy.CanMarkRead(ctx, teacher, message) },
	}

	for _, call := range calls {
		_, err := call()
		require.NoError(t, err)
	}

	var entries []models.AuthorizationAuditLog
	require.NoError(t, f.db.Find(&entries).Error)
	require.Len(t, entries, len(calls))
	for _, entry := range entries {
		if !entry.Granted {
			require.NotNil(t, entry.Reason, "denied row %d must carry a reason", entry.ID)
			require.NotEmpty(t, *entry.Reason)
		}
		require.NotEmpty(t, entry.Metadata["user_role"])
	}
}

type failingParticipants struct {
	err error
}

func (p failingParticipants) IsParticipant(context.Context, uint, uint) (bool, error) {
	return false, p.err
}

func (p failingParticipants) ListParticipants(context.Context, uint) ([]uint, error) {
	return nil, p.err
}

func TestLookupFailuresDenyAndAudit(t *testing.T) {
	f := newMessagingFixture(t)
	ctx := context.Background()

	resolver := NewRoleRuleResolver(&fakeFacts{err: errors.New("bookings offline")})
	policy := NewMessagingPolicy(failingParticipants{err: errors.New("participants offline")}, f.users, resolver, f.audit, testLogger())

	student := f.user(t, models.RoleStudent)
	teacher := f.user(t, models.RoleTeacher)
	conversation := models.Conversation{ID: 77, Type: models.ConversationTypeDirect}

	decision, err := policy.CanViewConversation(ctx, student, conversation)
	require.NoError(t, err)
	require.False(t, decision.Allowed)
	require.Equal(t, ReasonLookupError, decision.Reason)
	require.Equal(t, ReasonLookupError, reasonOf(f.lastAudit(t)))

	decision, err = policy.CanCreateConversation(ctx, student, teacher)
	require.NoError(t, err)
	require.False(t, decision.Allowed)
	require.Equal(t, ReasonLookupError, decision.Reason)

	entry := f.lastAudit(t)
	require.Equal(t, ReasonLookupError, reasonOf(entry))
	require.Equal(t, true, entry.Metadata["lookup_failed"])
	require.EqualValues(t, 2, f.auditCount(t))
}

func TestSendMessageUserLookupFailureDenies(t *testing.T) {
	f := newMessagingFixture(t)

	student := f.user(t, models.RoleStudent)
	teacher := f.user(t, models.RoleTeacher)
	conversation := f.conversation(t, models.ConversationTypeDirect, student, teacher)
	require.NoError(t, f.db.Delete(&models.User{}, teacher.ID).Error)

	decision, err := f.policy.CanSendMessage(context.Background(), student, conversation)
	require.NoError(t, err)
	require.False(t, decision.Allowed)
	require.Equal(t, ReasonLookupError, decision.Reason)
	require.EqualValues(t, 1, f.auditCount(t))
}

func TestAuditFailureFailsClosed(t *testing.T) {
	f := newMessagingFixture(t)
	ctx := context.Background()

	boom := errors.New("audit table locked")
	audit := NewAuthorizationAuditService(failingAuditRepo{err: boom}, nil, testLogger())
	facts := NewRelationshipFacts(repository.NewBookingRepository(f.db), repository.NewGuardianChildRepository(f.db))
	policy := NewMessagingPolicy(f.conversations, f.users, NewRoleRuleResolver(facts), audit, testLogger())

	student := f.user(t, models.RoleStudent)
	teacher := f.user(t, models.RoleTeacher)
	admin := f.user(t, models.RoleAdmin)
	conversation := f.conversation(t, models.ConversationTypeDirect, student, teacher)
	message := f.message(t, conversation, student)

	decision, err := policy.CanViewConversation(ctx, student, conversation)
	require.ErrorIs(t, err, ErrAuditUnavailable)
	require.ErrorIs(t, err, boom)
	require.False(t, decision.Allowed)
	require.Equal(t, ReasonNotAuthorized, decision.Reason)

	decision, err = policy.CanDeleteMessage(ctx, admin, message)
	require.ErrorIs(t, err, ErrAuditUnavailable)
	require.False(t, decision.Allowed)
	require.False(t, decision.Override)
	require.Equal(t, ReasonNotAuthorized, decision.Reason)

	decision, err = policy.CanCreateConversation(ctx, student, teacher)
	require.ErrorIs(t, err, ErrAuditUnavailable)
	require.False(t, decision.Allowed)
	require.Equal(t, ReasonNoActiveBooking, decision.Reason)
}
