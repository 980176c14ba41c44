package service

import (
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/spec-kit/auth-service/internal/auth"
	"github.com/spec-kit/auth-service/internal/domain"
	apperrors "github.com/spec-kit/auth-service/pkg/util/errorutil"
)

const (
	minFirstNameLen = 3
	maxFirstNameLen = 20
	minPasswordLen  = 8
)

// RegisterInput carries the fields accepted at registration.
type RegisterInput struct {
	FirstName string
	Email     string
	Password  string
}

// normalize trims the name and canonicalizes the email in place.
func (in *RegisterInput) normalize() {
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.Email = domain.NormalizeEmail(in.Email)
}

func (in RegisterInput) validate() error {
	if in.FirstName == "" || in.Email == "" || in.Password == "" {
		return apperrors.NewValidationError("firstName, emailId and password are required", nil)
	}
	if n := utf8.RuneCountInString(in.FirstName); n < minFirstNameLen || n > maxFirstNameLen {
		return apperrors.NewValidationError("firstName must be between 3 and 20 characters", map[string]any{"field": "firstName"})
	}
	if !validEmail(in.Email) {
		return apperrors.NewValidationError("invalid email", map[string]any{"field": "emailId"})
	}
	if len(in.Password) < minPasswordLen {
		return apperrors.NewValidationError("password must be at least 8 characters", map[string]any{"field": "password"})
	}
	if len(in.Password) > auth.MaxPasswordBytes {
		return apperrors.NewValidationError("password must be at most 72 bytes", map[string]any{"field": "password"})
	}
	return nil
}

// validEmail accepts a bare addr-spec with a dotted domain.
func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return false
	}
	at := strings.LastIndex(email, "@")
	return at > 0 && strings.Contains(email[at+1:], ".")
}
