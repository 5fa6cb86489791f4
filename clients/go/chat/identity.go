package chat

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/eldtechnologies/chatrelay/internal/models"
)

const identityFile = "identity.json"

// Credentials are what the server returns on register or login.
type Credentials struct {
	User  models.Identity `json:"user"`
	Token string          `json:"token"`
}

// SaveCredentials caches credentials in dir so later commands can reuse
// the session.
func SaveCredentials(dir string, creds *Credentials) error {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, identityFile), data, 0600)
}

// LoadCredentials reads credentials cached by SaveCredentials.
func LoadCredentials(dir string) (*Credentials, error) {
	data, err := os.ReadFile(filepath.Join(dir, identityFile))
	if err != nil {
		return nil, err
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, err
	}
	return &creds, nil
}

// ClearCredentials removes the cached credentials, if any.
func ClearCredentials(dir string) error {
	err := os.Remove(filepath.Join(dir, identityFile))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
