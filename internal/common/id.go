package common

import (
	"strings"

	"github.com/google/uuid"
)

// NewCorrelationID generates a correlation ID for request tracing.
func NewCorrelationID() string {
	return uuid.New().String()
}

// NewRunID generates a unique pipeline run ID with the "run_" prefix.
func NewRunID() string {
	return "run_" + uuid.New().String()
}

// SanitizeIdentifier strips every character outside [A-Za-z0-9_] from a
// SQL identifier derived from user input. Callers must refuse an empty result.
func SanitizeIdentifier(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
