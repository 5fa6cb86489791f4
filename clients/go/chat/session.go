// Package chat is the participant side of the relay: a session that stays
// connected for as long as it runs, plus an HTTP client for the account
// and upload endpoints.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/chatrelay/internal/models"
)

// DefaultReconnectInterval is the fixed wait between connection attempts.
const DefaultReconnectInterval = 3 * time.Second

const writeWait = 10 * time.Second

// ErrNotConnected is returned by sends while the session is not open.
var ErrNotConnected = errors.New("not connected")

// State is the connection state of a session.
type State int

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Renderer displays messages to the participant.
type Renderer interface {
	Render(msg *models.Message)
}

// Config configures a Session.
type Config struct {
	URL               string // WebSocket endpoint, e.g. ws://localhost:8080/ws
	Token             string
	Identity          models.Identity
	ReconnectInterval time.Duration
	ClockFormat       string
	Renderer          Renderer
	Logger            zerolog.Logger
	Dialer            *websocket.Dialer
	OnState           func(State)
}

// Session keeps one participant connected to the relay. It reconnects
// after every close at a fixed interval until its context is cancelled.
type Session struct {
	cfg Config

	mu    sync.Mutex
	conn  *websocket.Conn
	state State

	writeMu sync.Mutex
}

// NewSession creates a session. Run starts it.
func NewSession(cfg Config) *Session {
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = DefaultReconnectInterval
	}
	if cfg.ClockFormat == "" {
		cfg.ClockFormat = "15:04:05"
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	return &Session{cfg: cfg, state: StateClosed}
}

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(state State, conn *websocket.Conn) {
	s.mu.Lock()
	s.state = state
	s.conn = conn
	s.mu.Unlock()

	if s.cfg.OnState != nil {
		s.cfg.OnState(state)
	}
}

// Run connects and keeps reconnecting until ctx is cancelled.
// It always returns ctx.Err().
func (s *Session) Run(ctx context.Context) error {
	for {
		s.setState(StateConnecting, nil)
		err := s.connectAndServe(ctx)
		s.setState(StateClosed, nil)

		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.cfg.Logger.Warn().
			Err(err).
			Dur("retry_in", s.cfg.ReconnectInterval).
			Msg("connection closed")

		timer := time.NewTimer(s.cfg.ReconnectInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (s *Session) connectAndServe(ctx context.Context) error {
	header := http.Header{}
	if s.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+s.cfg.Token)
	}

	conn, resp, err := s.cfg.Dialer.DialContext(ctx, s.cfg.URL, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial: %w (status %d)", err, resp.StatusCode)
		}
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	s.setState(StateOpen, conn)
	s.cfg.Logger.Info().Str("url", s.cfg.URL).Msg("connected")

	join := &models.Message{
		Kind:       models.KindSystem,
		SenderID:   s.cfg.Identity.ID,
		SenderName: models.SystemSender,
		Body:       s.cfg.Identity.DisplayName + " joined the chat.",
	}
	if err := s.write(join); err != nil {
		return err
	}

	// Unblock the read loop when the session is stopped.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		s.receive(data)
	}
}

// receive renders one inbound record. The relay echoes our own messages
// back; those were already rendered locally at send time, so only system
// notices from ourselves are shown.
func (s *Session) receive(data []byte) {
	msg, err := models.DecodeMessage(data)
	if err != nil {
		s.cfg.Logger.Debug().Err(err).Msg("skipping undecodable message")
		return
	}
	if msg.SenderID == s.cfg.Identity.ID && !msg.IsSystem() {
		return
	}
	s.render(msg)
}

// SendText sends a text message and renders it locally.
// targetID is optional and carried without routing effect.
func (s *Session) SendText(text, targetID string) error {
	return s.send(&models.Message{
		Kind:     models.KindText,
		Body:     text,
		TargetID: targetID,
	})
}

// SendImage sends a message referencing an uploaded image URL.
func (s *Session) SendImage(url, targetID string) error {
	return s.send(&models.Message{
		Kind:     models.KindImage,
		Body:     url,
		TargetID: targetID,
	})
}

func (s *Session) send(msg *models.Message) error {
	msg.SenderID = s.cfg.Identity.ID
	msg.SenderName = s.cfg.Identity.DisplayName
	if err := msg.Validate(); err != nil {
		return err
	}

	if err := s.write(msg); err != nil {
		return err
	}

	echo := *msg
	echo.Timestamp = time.Now().Format(s.cfg.ClockFormat)
	s.render(&echo)
	return nil
}

// write encodes msg and writes it on the open connection.
func (s *Session) write(msg *models.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	s.mu.Lock()
	conn, state := s.conn, s.state
	s.mu.Unlock()
	if state != StateOpen || conn == nil {
		return ErrNotConnected
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("sending message: %w", err)
	}
	return nil
}

func (s *Session) render(msg *models.Message) {
	if s.cfg.Renderer != nil {
		s.cfg.Renderer.Render(msg)
	}
}
