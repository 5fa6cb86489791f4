package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/eldtechnologies/chatrelay/internal/crypto"
	"github.com/eldtechnologies/chatrelay/internal/models"
)

// SQLiteStore handles SQLite database operations.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/chatrelay.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/chatrelay.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	store := &SQLiteStore{db: db}

	// Initialize schema
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT UNIQUE NOT NULL,
		name TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS assets (
		name TEXT PRIMARY KEY,
		url TEXT NOT NULL,
		size INTEGER NOT NULL,
		uploader_id TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_users_name ON users(name);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateUser creates a new directory entry.
func (s *SQLiteStore) CreateUser(ctx context.Context, email, name, passwordHash string) (*models.User, error) {
	defer observe(time.Now())

	id := crypto.NewUserID()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, name, password_hash, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, id.String(), email, name, passwordHash, now)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return nil, ErrDuplicateEmail
		}
		return nil, err
	}

	return &models.User{
		ID:           id,
		Email:        email,
		Name:         name,
		PasswordHash: passwordHash,
		CreatedAt:    now,
	}, nil
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return s.getUser(ctx, `
		SELECT id, email, name, password_hash, created_at
		FROM users WHERE id = ?
	`, id.String())
}

// GetUserByEmail retrieves a user by email.
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getUser(ctx, `
		SELECT id, email, name, password_hash, created_at
		FROM users WHERE email = ?
	`, email)
}

func (s *SQLiteStore) getUser(ctx context.Context, query string, arg any) (*models.User, error) {
	defer observe(time.Now())

	user := &models.User{}
	var idStr string
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&idStr,
		&user.Email,
		&user.Name,
		&user.PasswordHash,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	user.ID, err = uuid.Parse(idStr)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// ListUsers returns every directory entry ordered by name.
func (s *SQLiteStore) ListUsers(ctx context.Context) ([]models.User, error) {
	defer observe(time.Now())

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, email, name, created_at
		FROM users
		ORDER BY name, created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var user models.User
		var idStr string
		if err := rows.Scan(&idStr, &user.Email, &user.Name, &user.CreatedAt); err != nil {
			return nil, err
		}
		if user.ID, err = uuid.Parse(idStr); err != nil {
			return nil, err
		}
		users = append(users, user)
	}

	return users, rows.Err()
}

// CountUsers returns the total number of registered users.
func (s *SQLiteStore) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	return count, err
}

// RecordAsset stores metadata for an uploaded asset.
func (s *SQLiteStore) RecordAsset(ctx context.Context, asset *models.Asset) error {
	defer observe(time.Now())

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO assets (name, url, size, uploader_id, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, asset.Name, asset.URL, asset.Size, asset.UploaderID, asset.CreatedAt.UTC())
	return err
}

// CountAssets returns the number of stored assets.
func (s *SQLiteStore) CountAssets(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM assets`).Scan(&count)
	return count, err
}
