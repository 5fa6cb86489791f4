package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("SEND_QUEUE_SIZE", "")
	t.Setenv("UPLOAD_URL_PREFIX", "")
	t.Setenv("UPLOAD_BUDGET_MB", "")

	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port 8080, got %s", cfg.Port)
	}
	if !cfg.IsDevelopment() {
		t.Fatal("expected development env by default")
	}
	if cfg.SendQueueSize != 256 {
		t.Fatalf("expected queue size 256, got %d", cfg.SendQueueSize)
	}
	if cfg.UploadURLPrefix != "/uploads" {
		t.Fatalf("expected /uploads, got %s", cfg.UploadURLPrefix)
	}
	if cfg.UploadBudget != 200<<20 {
		t.Fatalf("expected 200 MiB upload budget, got %d", cfg.UploadBudget)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SEND_QUEUE_SIZE", "16")
	t.Setenv("UPLOAD_URL_PREFIX", "/media/")
	t.Setenv("RATE_LIMIT_WHITELIST", "10.0.0.1, 192.168.0.0/16,")
	t.Setenv("ALLOWED_ORIGINS", "https://chat.example.com")

	cfg := Load()
	if cfg.SendQueueSize != 16 {
		t.Fatalf("expected 16, got %d", cfg.SendQueueSize)
	}
	if cfg.UploadURLPrefix != "/media" {
		t.Fatalf("expected trailing slash trimmed, got %s", cfg.UploadURLPrefix)
	}
	if len(cfg.RateLimitWhitelist) != 2 {
		t.Fatalf("expected 2 whitelist entries, got %v", cfg.RateLimitWhitelist)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "https://chat.example.com" {
		t.Fatalf("unexpected origins %v", cfg.AllowedOrigins)
	}
}

func TestInvalidQueueSizeFallsBack(t *testing.T) {
	t.Setenv("SEND_QUEUE_SIZE", "-3")
	if got := Load().SendQueueSize; got != 256 {
		t.Fatalf("expected fallback 256, got %d", got)
	}
}

func TestProductionRequiresDatabase(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("DATABASE_URL", "")

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic without DATABASE_URL in production")
		}
	}()
	Load()
}
