package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func TestLoggerLevels(t *testing.T) {
	tests := []struct {
		path   string
		status int
		level  string
	}{
		{"/api/users", http.StatusOK, "info"},
		{"/api/login", http.StatusUnauthorized, "warn"},
		{"/api/upload", http.StatusInternalServerError, "error"},
		{"/health", http.StatusOK, "debug"},
	}

	for _, tt := range tests {
		var buf bytes.Buffer
		logger := zerolog.New(&buf)

		h := Logger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tt.path, nil))

		var entry map[string]any
		if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
			t.Fatalf("%s: invalid log line %q: %v", tt.path, buf.String(), err)
		}
		if entry["level"] != tt.level {
			t.Errorf("%s: expected level %s, got %v", tt.path, tt.level, entry["level"])
		}
		if entry["path"] != tt.path {
			t.Errorf("%s: path not logged: %v", tt.path, entry)
		}
	}
}
