package models

import (
	"strings"
	"time"
)

// Role identifiers recognised by the messaging authorization rules.
const (
	RoleStudent    = "student"
	RoleTeacher    = "teacher"
	RoleGuardian   = "guardian"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "super-admin"
	RoleUnassigned = "unassigned"
)

// User represents a platform account acting as a student, teacher, guardian or admin.
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	Email     string    `gorm:"size:255;uniqueIndex" json:"email"`
	Role      string    `gorm:"size:32;not null;default:unassigned;index" json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NormalizeRole maps free-form role strings onto the canonical role identifiers.
func NormalizeRole(role string) string {
	r := strings.ToLower(strings.TrimSpace(role))
	switch r {
	case "":
		return RoleUnassigned
	case "super_admin", "superadmin", "super admin":
		return RoleSuperAdmin
	}
	return r
}

// IsAdminRole reports whether the role carries administrative override rights.
func IsAdminRole(role string) bool {
	switch NormalizeRole(role) {
	case RoleAdmin, RoleSuperAdmin:
		return true
	default:
		return false
	}
}
