package media

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/eldtechnologies/chatrelay/internal/models"
)

const maxNameLength = 64

// ErrInvalidPayload is returned when an upload body is not valid base64.
var ErrInvalidPayload = errors.New("invalid image payload")

// Storage writes uploaded images to a directory. Every saved file gets a
// name no other Save call has produced, including concurrent calls with
// the same suggested name.
type Storage struct {
	dir       string
	urlPrefix string

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewStorage creates the upload directory if needed.
func NewStorage(dir, urlPrefix string) (*Storage, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating upload dir: %w", err)
	}
	return &Storage{
		dir:       dir,
		urlPrefix: strings.TrimRight(urlPrefix, "/"),
		entropy:   ulid.Monotonic(rand.Reader, 0),
	}, nil
}

// Dir returns the directory files are written to.
func (s *Storage) Dir() string {
	return s.dir
}

// Save writes data under a unique name derived from the suggested one and
// returns the stored asset. The file only appears under its final name once
// fully written.
func (s *Storage) Save(ctx context.Context, uploaderID, suggested string, data []byte) (*models.Asset, error) {
	if len(data) == 0 {
		return nil, ErrEmptyPayload
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	id, err := s.nextID()
	if err != nil {
		return nil, err
	}
	name := id + "-" + sanitizeName(suggested, data)

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return nil, err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return nil, err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return nil, err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, err
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		os.Remove(tmpPath)
		return nil, err
	}
	if err := os.Rename(tmpPath, filepath.Join(s.dir, name)); err != nil {
		os.Remove(tmpPath)
		return nil, err
	}

	return &models.Asset{
		Name:       name,
		URL:        s.urlPrefix + "/" + name,
		Size:       int64(len(data)),
		UploaderID: uploaderID,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

func (s *Storage) nextID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := ulid.New(ulid.Timestamp(time.Now()), s.entropy)
	if err != nil {
		return "", fmt.Errorf("generating asset id: %w", err)
	}
	return strings.ToLower(id.String()), nil
}

// sanitizeName reduces a client supplied name to a safe base name.
// An extension matching the sniffed content type is added when missing.
func sanitizeName(name string, data []byte) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))

	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	clean := strings.Trim(b.String(), "._")
	if clean == "" {
		clean = "image"
	}
	if len(clean) > maxNameLength {
		clean = clean[len(clean)-maxNameLength:]
	}

	if filepath.Ext(clean) == "" {
		clean += extensionFor(http.DetectContentType(data))
	}
	return clean
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}

// DecodePayload decodes a base64 image body. A leading data URL prefix
// such as "data:image/jpeg;base64," is stripped first.
func DecodePayload(payload string) ([]byte, error) {
	payload = strings.TrimSpace(payload)
	if strings.HasPrefix(payload, "data:") {
		i := strings.Index(payload, ",")
		if i < 0 || !strings.HasSuffix(payload[:i], ";base64") {
			return nil, ErrInvalidPayload
		}
		payload = payload[i+1:]
	}
	if payload == "" {
		return nil, ErrEmptyPayload
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return data, nil
}
