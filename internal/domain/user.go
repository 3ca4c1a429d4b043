package domain

import "time"

// User is the domain model for registered accounts. Emails are stored
// lowercased; uniqueness is enforced case-insensitively.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
