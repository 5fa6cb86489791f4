package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/eldtechnologies/chatrelay/internal/models"
)

var (
	ErrDuplicateEmail  = errors.New("email already registered")
	ErrSessionNotFound = errors.New("session not found")
)

// SessionTTL is how long a login stays valid.
const SessionTTL = 7 * 24 * time.Hour

// DataStore defines the interface for the user directory and asset records.
// Both PostgresStore and SQLiteStore implement this interface.
// Lookups return (nil, nil) when the row does not exist.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// User operations
	CreateUser(ctx context.Context, email, name, passwordHash string) (*models.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	CountUsers(ctx context.Context) (int64, error)

	// Asset operations
	RecordAsset(ctx context.Context, asset *models.Asset) error
	CountAssets(ctx context.Context) (int64, error)
}

// SessionStore maps opaque login tokens to identities.
// RedisStore and MemorySessionStore implement this interface.
type SessionStore interface {
	CreateSession(ctx context.Context, identity models.Identity, ttl time.Duration) (string, error)
	GetSession(ctx context.Context, token string) (*models.Identity, error)
	DeleteSession(ctx context.Context, token string) error
}
