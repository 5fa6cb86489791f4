package cmd

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/chatrelay/clients/go/chat"
	"github.com/eldtechnologies/chatrelay/internal/api"
	"github.com/eldtechnologies/chatrelay/internal/handlers"
	"github.com/eldtechnologies/chatrelay/internal/media"
	"github.com/eldtechnologies/chatrelay/internal/relay"
	"github.com/eldtechnologies/chatrelay/internal/store"
)

func startServer(t *testing.T) *httptest.Server {
	t.Helper()
	dir := t.TempDir()

	db, err := store.NewSQLiteStore(context.Background(), filepath.Join(dir, "chat.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(db.Close)

	sessions := store.NewMemorySessionStore()
	t.Cleanup(sessions.Close)

	storage, err := media.NewStorage(filepath.Join(dir, "uploads"), "/uploads")
	if err != nil {
		t.Fatal(err)
	}

	hub := relay.NewHub(zerolog.Nop(), relay.Options{})
	router := api.NewRouter(zerolog.Nop(), handlers.Deps{
		Store:    db,
		Sessions: sessions,
		Hub:      hub,
		Media:    storage,
		Logger:   zerolog.Nop(),
	}, api.Options{UploadURLPrefix: "/uploads"})

	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		hub.CloseAll()
		srv.Close()
	})
	return srv
}

// run executes the root command with args and returns its standard output.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func writePNG(t *testing.T, path string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 20))
	for x := 0; x < 40; x++ {
		img.Set(x, 10, color.RGBA{R: 200, A: 255})
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func TestCommands(t *testing.T) {
	srv := startServer(t)
	configHome := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", configHome)
	credsDir := filepath.Join(configHome, "chatrelay")

	if _, err := run(t, "--server", srv.URL, "users"); err == nil || !strings.Contains(err.Error(), "not signed in") {
		t.Fatalf("expected not signed in error, got %v", err)
	}

	if _, err := chat.NewAPIClient(srv.URL).Register("Bob", "bob@example.com", "secret-pass"); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, "--server", srv.URL, "register", "Alice", "--email", "alice@example.com", "--password", "secret-pass")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if !strings.Contains(out, "Registered as Alice") {
		t.Fatalf("unexpected register output %q", out)
	}
	creds, err := chat.LoadCredentials(credsDir)
	if err != nil || creds.User.DisplayName != "Alice" {
		t.Fatalf("credentials not cached: %+v %v", creds, err)
	}

	out, err = run(t, "--server", srv.URL, "whoami")
	if err != nil || !strings.Contains(out, creds.User.ID) || !strings.Contains(out, "Alice") {
		t.Fatalf("whoami: %q %v", out, err)
	}

	out, err = run(t, "--server", srv.URL, "users")
	if err != nil {
		t.Fatalf("users: %v", err)
	}
	if !strings.Contains(out, "Bob") || strings.Contains(out, "Alice") {
		t.Fatalf("directory should list Bob only, got %q", out)
	}

	imgPath := filepath.Join(t.TempDir(), "wide.png")
	writePNG(t, imgPath)
	out, err = run(t, "--server", srv.URL, "upload", imgPath)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	url := strings.TrimSpace(out)
	if !strings.HasPrefix(url, "/uploads/") || !strings.HasSuffix(url, "-wide.jpg") {
		t.Fatalf("unexpected upload url %q", url)
	}
	resp, err := http.Get(srv.URL + url)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("uploaded image not served: %d", resp.StatusCode)
	}

	textPath := filepath.Join(t.TempDir(), "notes.txt")
	os.WriteFile(textPath, []byte("not an image"), 0644)
	if _, err := run(t, "--server", srv.URL, "upload", textPath); err == nil {
		t.Fatal("expected non-image upload to fail")
	}

	if _, err := run(t, "--server", srv.URL, "logout"); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := chat.LoadCredentials(credsDir); err == nil {
		t.Fatal("credentials should be cleared after logout")
	}

	if _, err := run(t, "--server", srv.URL, "login", "--email", "alice@example.com", "--password", "wrong-pass"); err == nil {
		t.Fatal("expected login with wrong password to fail")
	}

	out, err = run(t, "--server", srv.URL, "login", "--email", "alice@example.com", "--password", "secret-pass")
	if err != nil || !strings.Contains(out, "Signed in as Alice") {
		t.Fatalf("login: %q %v", out, err)
	}
}
