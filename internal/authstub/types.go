// Package authstub is a small local implementation of the remote auth
// service. It backs cmd/authstub and the end-to-end tests of the session
// manager; production deployments talk to the real service instead.
package authstub

import "time"

type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"password_hash"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Email        string    `json:"email,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Session struct {
	ID        string
	Token     string
	Username  string
	CreatedAt time.Time
	ExpiresAt time.Time
}
