package domain

import "time"

// Session describes an issued session token. It is immutable once issued.
type Session struct {
	SubjectID string
	Email     string
	Role      Role
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Lifetime returns the span between issue and expiry.
func (s Session) Lifetime() time.Duration {
	return s.ExpiresAt.Sub(s.IssuedAt)
}
