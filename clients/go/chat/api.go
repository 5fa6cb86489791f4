package chat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/eldtechnologies/chatrelay/internal/media"
	"github.com/eldtechnologies/chatrelay/internal/models"
)

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("chatrelay error %d: %s", e.StatusCode, e.Message)
}

// APIClient calls the account, directory and upload endpoints.
type APIClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// NewAPIClient creates a client for the server at baseURL.
func NewAPIClient(baseURL string) *APIClient {
	return &APIClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// doRequest performs an HTTP request and decodes a JSON response into out.
func (c *APIClient) doRequest(method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.BaseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		json.Unmarshal(respBody, &errResp)
		return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	return json.Unmarshal(respBody, out)
}

// Register creates an account and adopts its session token.
func (c *APIClient) Register(name, email, password string) (*Credentials, error) {
	var creds Credentials
	err := c.doRequest(http.MethodPost, "/api/register", map[string]string{
		"name":     name,
		"email":    email,
		"password": password,
	}, &creds)
	if err != nil {
		return nil, err
	}
	c.Token = creds.Token
	return &creds, nil
}

// Login signs in and adopts the session token.
func (c *APIClient) Login(email, password string) (*Credentials, error) {
	var creds Credentials
	err := c.doRequest(http.MethodPost, "/api/login", map[string]string{
		"email":    email,
		"password": password,
	}, &creds)
	if err != nil {
		return nil, err
	}
	c.Token = creds.Token
	return &creds, nil
}

// Logout ends the current session on the server.
func (c *APIClient) Logout() error {
	if err := c.doRequest(http.MethodPost, "/api/logout", nil, nil); err != nil {
		return err
	}
	c.Token = ""
	return nil
}

// Me returns the identity of the current session.
func (c *APIClient) Me() (*models.Identity, error) {
	var identity models.Identity
	if err := c.doRequest(http.MethodGet, "/api/me", nil, &identity); err != nil {
		return nil, err
	}
	return &identity, nil
}

// Users lists every registered participant except the caller.
func (c *APIClient) Users() ([]models.Identity, error) {
	var users []models.Identity
	if err := c.doRequest(http.MethodGet, "/api/users", nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// Upload transforms the image at path and uploads it, returning the
// relative URL to send in an image message. Files that fail validation
// are rejected before any request is made.
func (c *APIClient) Upload(path string) (string, error) {
	data, err := media.PrepareFile(path, media.DefaultParams())
	if err != nil {
		return "", err
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)) + ".jpg"

	var resp struct {
		URL string `json:"url"`
	}
	err = c.doRequest(http.MethodPost, "/api/upload", map[string]string{
		"image": media.EncodeDataURL(data),
		"name":  name,
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.URL, nil
}

// WebSocketURL returns the relay endpoint for the server.
func (c *APIClient) WebSocketURL() (string, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("unsupported server scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}
