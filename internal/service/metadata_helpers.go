package service

import (
	"strings"

	"gorm.io/datatypes"
)

// sanitizeMetadata masks credential-like keys before they reach the audit table.
func sanitizeMetadata(metadata map[string]interface{}) datatypes.JSONMap {
	sanitized := datatypes.JSONMap{}
	for key, value := range metadata {
		lower := strings.ToLower(key)
		switch {
		case strings.Contains(lower, "token"), strings.Contains(lower, "password"), strings.Contains(lower, "secret"):
			sanitized[key] = "***"
		case strings.Contains(lower, "email"):
			if email, ok := value.(string); ok {
				sanitized[key] = maskEmailAddress(email)
			} else {
				sanitized[key] = "***"
			}
		default:
			sanitized[key] = value
		}
	}
	return sanitized
}

func maskEmailAddress(email string) string {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return ""
	}
	parts := strings.Split(email, "@")
	if len(parts) != 2 || parts[0] == "" {
		return "***"
	}
	local := parts[0]
	domain := parts[1]
	if len(local) <= 2 {
		local = local[:1] + "***"
	} else {
		local = local[:1] + "***" + local[len(local)-1:]
	}
	return local + "@" + domain
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit]
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
