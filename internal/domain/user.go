package domain

import "time"

// User represents a registered account. Email and username are unique
// across the whole store.
type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}
