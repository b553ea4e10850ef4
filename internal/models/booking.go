package models

import "time"

// Booking statuses owned by the booking lifecycle.
const (
	BookingStatusPending   = "pending"
	BookingStatusApproved  = "approved"
	BookingStatusCompleted = "completed"
	BookingStatusCancelled = "cancelled"
	BookingStatusRejected  = "rejected"
)

// ActiveBookingStatuses lists the statuses that make a booking count for messaging eligibility.
var ActiveBookingStatuses = []string{BookingStatusApproved, BookingStatusCompleted}

// Booking is a lesson booking between a student and a teacher.
type Booking struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	StudentID uint      `gorm:"not null;index:idx_booking_pair" json:"student_id"`
	TeacherID uint      `gorm:"not null;index:idx_booking_pair" json:"teacher_id"`
	Status    string    `gorm:"size:32;not null;default:pending" json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GuardianChild links a guardian account to a child (student) account.
type GuardianChild struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	GuardianID uint      `gorm:"not null;uniqueIndex:idx_guardian_child" json:"guardian_id"`
	ChildID    uint      `gorm:"not null;uniqueIndex:idx_guardian_child;index" json:"child_id"`
	CreatedAt  time.Time `json:"created_at"`
}
