package app

import (
	"regexp"
	"strings"

	"github.com/google/uuid"

	"quiz-attempt-service/internal/domain"
)

var accessCodePattern = regexp.MustCompile(`^[A-Z0-9]{4,12}$`)

// NormalizeAccessCode trims and upper-cases a human-entered code and checks its shape.
func NormalizeAccessCode(raw string) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(raw))
	if !accessCodePattern.MatchString(code) {
		return "", domain.ErrAccessCodeFormat
	}
	return code, nil
}

// GenerateAccessCode returns a six character code drawn from a random UUID.
func GenerateAccessCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
}
