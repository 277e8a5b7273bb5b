// Package model defines core domain entities.
package model

import "time"

// User represents a registered account.
// PasswordHash is never serialized into API responses.
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	FirstName    *string   `json:"first_name,omitempty"`
	LastName     *string   `json:"last_name,omitempty"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ProfileUpdate carries the mutable profile fields.
// Nil fields are left untouched.
type ProfileUpdate struct {
	FirstName *string
	LastName  *string
}
