package store

import (
	"context"
	"sync"
	"time"

	"github.com/eldtechnologies/chatrelay/internal/crypto"
	"github.com/eldtechnologies/chatrelay/internal/models"
)

type memorySession struct {
	identity  models.Identity
	expiresAt time.Time
}

// MemorySessionStore keeps sessions in process memory.
// Used when no Redis is configured; sessions do not survive restarts.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]memorySession
	done     chan struct{}
	once     sync.Once
}

// NewMemorySessionStore creates a session store and starts its cleanup loop.
func NewMemorySessionStore() *MemorySessionStore {
	s := &MemorySessionStore{
		sessions: make(map[string]memorySession),
		done:     make(chan struct{}),
	}
	go s.cleanup(time.Hour)
	return s
}

// Close stops the cleanup loop.
func (s *MemorySessionStore) Close() {
	s.once.Do(func() { close(s.done) })
}

// CreateSession stores the identity under a fresh token.
func (s *MemorySessionStore) CreateSession(ctx context.Context, identity models.Identity, ttl time.Duration) (string, error) {
	token, err := crypto.NewSessionToken()
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.sessions[token] = memorySession{identity: identity, expiresAt: time.Now().Add(ttl)}
	s.mu.Unlock()

	return token, nil
}

// GetSession resolves a token to its identity.
func (s *MemorySessionStore) GetSession(ctx context.Context, token string) (*models.Identity, error) {
	s.mu.RLock()
	sess, ok := s.sessions[token]
	s.mu.RUnlock()

	if !ok || time.Now().After(sess.expiresAt) {
		return nil, ErrSessionNotFound
	}
	identity := sess.identity
	return &identity, nil
}

// DeleteSession removes a session.
func (s *MemorySessionStore) DeleteSession(ctx context.Context, token string) error {
	s.mu.Lock()
	delete(s.sessions, token)
	s.mu.Unlock()
	return nil
}

// cleanup removes expired sessions.
func (s *MemorySessionStore) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			now := time.Now()
			s.mu.Lock()
			for token, sess := range s.sessions {
				if now.After(sess.expiresAt) {
					delete(s.sessions, token)
				}
			}
			s.mu.Unlock()
		}
	}
}
