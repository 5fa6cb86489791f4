package crypto

import (
	"github.com/google/uuid"
)

// NewUserID generates a time-ordered UUID v7 for a directory entry.
// Stores that cannot generate IDs themselves (SQLite) call this on insert.
func NewUserID() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}
