package store

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/eldtechnologies/chatrelay/internal/models"
)

func TestRedisSessions(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}

	ctx := context.Background()
	s, err := NewRedisStore(ctx, url)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	token, err := s.CreateSession(ctx, models.Identity{ID: "u1", DisplayName: "Alice"}, time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	identity, err := s.GetSession(ctx, token)
	if err != nil {
		t.Fatal(err)
	}
	if identity.ID != "u1" {
		t.Fatalf("expected u1, got %s", identity.ID)
	}

	if err := s.DeleteSession(ctx, token); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetSession(ctx, token); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}
