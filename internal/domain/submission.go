package domain

import "time"

// Submission is a record owned by a user that must not outlive it.
// Only the fields needed for ownership are modelled here.
type Submission struct {
	ID        string
	UserID    string
	ProblemID string
	CreatedAt time.Time
}
