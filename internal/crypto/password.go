package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrPasswordTooShort   = errors.New("password too short")
	ErrPasswordTooLong    = errors.New("password too long")
)

// MinPasswordLength is the shortest password accepted at registration.
const MinPasswordLength = 6

// HashPassword returns a salted bcrypt hash of the password.
func HashPassword(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", fmt.Errorf("%w: must be at least %d characters", ErrPasswordTooShort, MinPasswordLength)
	}
	// bcrypt ignores everything past 72 bytes
	if len(password) > 72 {
		return "", fmt.Errorf("%w: must be at most 72 bytes", ErrPasswordTooLong)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword compares a password against a stored hash.
func CheckPassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

var (
	dummyHashOnce sync.Once
	dummyHash     []byte
)

// RejectPassword spends the same bcrypt work as CheckPassword for a login
// whose account does not exist, then fails. Response timing then does not
// reveal which emails are registered.
func RejectPassword(password string) error {
	dummyHashOnce.Do(func() {
		dummyHash, _ = bcrypt.GenerateFromPassword([]byte("chatrelay-no-such-user"), bcrypt.DefaultCost)
	})
	bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
	return ErrInvalidCredentials
}

// NewSessionToken generates a cryptographically secure session token.
func NewSessionToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
