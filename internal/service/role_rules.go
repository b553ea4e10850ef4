package service

import (
	"context"

	"github.com/noah-isme/tutorlink-api/internal/models"
	"github.com/noah-isme/tutorlink-api/internal/repository"
)

// Reason codes attached to messaging authorization decisions.
const (
	ReasonNotParticipant          = "not_participant"
	ReasonNotSender               = "not_sender"
	ReasonNotRecipient            = "not_recipient"
	ReasonNoActiveBooking         = "no_active_booking"
	ReasonTeacherNotTeachingChild = "teacher_not_teaching_child"
	ReasonRoleMismatch            = "role_mismatch"
	ReasonAdminOverride           = "admin_override"
	ReasonLookupError             = "lookup_error"
	ReasonNotAuthorized           = "not_authorized"
	ReasonSuspiciousPattern       = "suspicious_pattern"
)

// ViolationRoleRestriction tags audit rows produced by cross-role denials.
const ViolationRoleRestriction = "role_restriction"

// Actor is the authenticated user a decision is made for.
type Actor struct {
	ID   uint
	Role string
}

// NewActor builds an actor with a normalised role.
func NewActor(id uint, role string) Actor {
	return Actor{ID: id, Role: models.NormalizeRole(role)}
}

// IsAdmin reports whether the actor holds admin or super-admin rights.
func (a Actor) IsAdmin() bool {
	return models.IsAdminRole(a.Role)
}

// Verdict is the outcome of a cross-role messaging rule evaluation.
type Verdict struct {
	Allowed bool
	Reason  string
	// Err carries the gateway failure behind a lookup_error verdict.
	Err error
}

func allowed() Verdict {
	return Verdict{Allowed: true}
}

func denied(reason string) Verdict {
	return Verdict{Reason: reason}
}

func lookupFailed(err error) Verdict {
	return Verdict{Reason: ReasonLookupError, Err: err}
}

// RelationshipFacts exposes the relationship reads the role rules depend on.
type RelationshipFacts interface {
	HasActiveBooking(ctx context.Context, studentID, teacherID uint) (bool, error)
	TeachesChildOf(ctx context.Context, teacherID, guardianID uint) (bool, error)
}

type relationshipFacts struct {
	bookings  repository.BookingLookup
	guardians repository.GuardianChildLookup
}

// NewRelationshipFacts adapts the booking and guardian gateways into RelationshipFacts.
func NewRelationshipFacts(bookings repository.BookingLookup, guardians repository.GuardianChildLookup) RelationshipFacts {
	return &relationshipFacts{bookings: bookings, guardians: guardians}
}

func (f *relationshipFacts) HasActiveBooking(ctx context.Context, studentID, teacherID uint) (bool, error) {
	return f.bookings.HasActive(ctx, studentID, teacherID)
}

func (f *relationshipFacts) TeachesChildOf(ctx context.Context, teacherID, guardianID uint) (bool, error) {
	children, err := f.guardians.ChildrenOf(ctx, guardianID)
	if err != nil {
		return false, err
	}
	for _, childID := range children {
		active, err := f.bookings.HasActive(ctx, childID, teacherID)
		if err != nil {
			return false, err
		}
		if active {
			return true, nil
		}
	}
	return false, nil
}

// RoleRuleResolver evaluates the role-pair matrix for direct messaging.
type RoleRuleResolver struct {
	facts RelationshipFacts
}

// NewRoleRuleResolver constructs a resolver over the supplied relationship facts.
func NewRoleRuleResolver(facts RelationshipFacts) *RoleRuleResolver {
	return &RoleRuleResolver{facts: facts}
}

// Resolve decides whether sender may message recipient. Relationship facts are read
// only for the pairs that need them and are never cached between calls.
func (r *RoleRuleResolver) Resolve(ctx context.Context, sender, recipient Actor) Verdict {
	senderRole := models.NormalizeRole(sender.Role)
	recipientRole := models.NormalizeRole(recipient.Role)

	if models.IsAdminRole(senderRole) || models.IsAdminRole(recipientRole) {
		return allowed()
	}

	switch {
	case senderRole == models.RoleStudent && recipientRole == models.RoleTeacher:
		return r.bookingVerdict(ctx, sender.ID, recipient.ID)
	case senderRole == models.RoleTeacher && recipientRole == models.RoleStudent:
		return r.bookingVerdict(ctx, recipient.ID, sender.ID)
	case senderRole == models.RoleGuardian && recipientRole == models.RoleTeacher:
		return r.guardianVerdict(ctx, recipient.ID, sender.ID)
	case senderRole == models.RoleTeacher && recipientRole == models.RoleGuardian:
		return r.guardianVerdict(ctx, sender.ID, recipient.ID)
	default:
		return denied(ReasonRoleMismatch)
	}
}

func (r *RoleRuleResolver) bookingVerdict(ctx context.Context, studentID, teacherID uint) Verdict {
	active, err := r.facts.HasActiveBooking(ctx, studentID, teacherID)
	if err != nil {
		return lookupFailed(err)
	}
	if !active {
		return denied(ReasonNoActiveBooking)
	}
	return allowed()
}

func (r *RoleRuleResolver) guardianVerdict(ctx context.Context, teacherID, guardianID uint) Verdict {
	teaches, err := r.facts.TeachesChildOf(ctx, teacherID, guardianID)
	if err != nil {
		return lookupFailed(err)
	}
	if !teaches {
		return denied(ReasonTeacherNotTeachingChild)
	}
	return allowed()
}
