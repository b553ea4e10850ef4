package utils

import "github.com/gofiber/fiber/v2"

// Error codes returned with forbidden responses.
const (
	CodeAuthorizationFailed = "AUTHORIZATION_FAILED"
	CodeRoleRestriction     = "ROLE_RESTRICTION"
)

// APIResponse describes the common structure for API responses.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message"`
	Meta    interface{} `json:"meta,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

// ForbiddenResponse is the envelope returned when an authenticated user is denied.
type ForbiddenResponse struct {
	Success bool        `json:"success"`
	Error   string      `json:"error"`
	Message string      `json:"message"`
	Code    string      `json:"code"`
	Details interface{} `json:"details"`
}

// AuthorizationFailedDetails describes a membership or ownership denial.
type AuthorizationFailedDetails struct {
	Reason       string `json:"reason"`
	ResourceType string `json:"resource_type"`
	ResourceID   uint   `json:"resource_id"`
}

// RoleRestrictionDetails describes a cross-role messaging denial.
type RoleRestrictionDetails struct {
	Reason        string `json:"reason"`
	YourRole      string `json:"your_role"`
	RecipientRole string `json:"recipient_role"`
}

// SendSuccess sends a successful JSON response with a message.
func SendSuccess(c *fiber.Ctx, message string, data interface{}) error {
	if message == "" {
		message = "success"
	}

	return SendSuccessWithStatus(c, fiber.StatusOK, message, data)
}

// SendSuccessWithStatus sends a success payload using the provided HTTP status code.
func SendSuccessWithStatus(c *fiber.Ctx, status int, message string, data interface{}) error {
	if message == "" {
		message = "success"
	}
	if status == 0 {
		status = fiber.StatusOK
	}

	return c.Status(status).JSON(APIResponse{
		Success: true,
		Data:    data,
		Message: message,
	})
}

// OK sends a 200 success payload with optional pagination metadata.
func OK(c *fiber.Ctx, data interface{}, message string, meta interface{}) error {
	if message == "" {
		message = "success"
	}

	return c.Status(fiber.StatusOK).JSON(APIResponse{
		Success: true,
		Data:    data,
		Message: message,
		Meta:    meta,
	})
}

// SendError sends an error JSON response with the given status code.
func SendError(c *fiber.Ctx, status int, message string) error {
	return Fail(c, status, message, nil)
}

// Fail sends an error JSON response carrying optional details.
func Fail(c *fiber.Ctx, status int, message string, details interface{}) error {
	if message == "" {
		message = "error"
	}

	return c.Status(status).JSON(APIResponse{
		Success: false,
		Message: message,
		Details: details,
	})
}

// Unauthenticated sends the 401 payload for requests without a valid identity.
func Unauthenticated(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "Unauthenticated."})
}

// AuthorizationFailed sends the 403 payload for participant or ownership denials.
func AuthorizationFailed(c *fiber.Ctx, message string, details AuthorizationFailedDetails) error {
	if message == "" {
		message = "You are not authorized to perform this action"
	}

	return c.Status(fiber.StatusForbidden).JSON(ForbiddenResponse{
		Success: false,
		Error:   "Forbidden",
		Message: message,
		Code:    CodeAuthorizationFailed,
		Details: details,
	})
}

// RoleRestriction sends the 403 payload for cross-role messaging denials.
func RoleRestriction(c *fiber.Ctx, details RoleRestrictionDetails) error {
	return c.Status(fiber.StatusForbidden).JSON(ForbiddenResponse{
		Success: false,
		Error:   "Forbidden",
		Message: "You cannot message this user",
		Code:    CodeRoleRestriction,
		Details: details,
	})
}
