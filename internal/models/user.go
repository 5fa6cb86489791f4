package models

import (
	"time"

	"github.com/google/uuid"
)

// User represents a registered participant in the user directory.
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Identity returns the relay-facing identity of the user.
func (u *User) Identity() Identity {
	return Identity{ID: u.ID.String(), DisplayName: u.Name}
}

// Identity is the authenticated identity attached to a connection at handshake.
type Identity struct {
	ID          string `json:"id"`
	DisplayName string `json:"name"`
}
