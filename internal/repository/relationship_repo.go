package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/tutorlink-api/internal/models"
)

// BookingLookup answers whether an active booking links a student and a teacher.
type BookingLookup interface {
	HasActive(ctx context.Context, studentID, teacherID uint) (bool, error)
}

// GuardianChildLookup answers guardian to child relationship questions.
type GuardianChildLookup interface {
	ChildrenOf(ctx context.Context, guardianID uint) ([]uint, error)
}

type bookingRepository struct {
	db *gorm.DB
}

// NewBookingRepository constructs a read-only booking lookup backed by GORM.
func NewBookingRepository(db *gorm.DB) BookingLookup {
	return &bookingRepository{db: db}
}

// HasActive is a fresh read on every call; booking status changes take effect immediately.
func (r *bookingRepository) HasActive(ctx context.Context, studentID, teacherID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Booking{}).
		Where("student_id = ? AND teacher_id = ?", studentID, teacherID).
		Where("status IN ?", models.ActiveBookingStatuses).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

type guardianChildRepository struct {
	db *gorm.DB
}

// NewGuardianChildRepository constructs a read-only guardian link lookup backed by GORM.
func NewGuardianChildRepository(db *gorm.DB) GuardianChildLookup {
	return &guardianChildRepository{db: db}
}

func (r *guardianChildRepository) ChildrenOf(ctx context.Context, guardianID uint) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).
		Model(&models.GuardianChild{}).
		Where("guardian_id = ?", guardianID).
		Order("child_id ASC").
		Pluck("child_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}
