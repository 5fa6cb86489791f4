package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"unicode"
)

var (
	ErrMalformed     = errors.New("malformed message")
	ErrUnknownKind   = errors.New("unknown message type")
	ErrMissingSender = errors.New("message has no sender")
	ErrEmptyBody     = errors.New("message has no text or content")
	ErrImageURL      = errors.New("image content is not a relative URL")
)

// SystemSender is the display name carried by system notices.
const SystemSender = "System"

// Kind tags the variant of a Message.
type Kind int

const (
	KindText Kind = iota
	KindImage
	KindSystem
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindImage:
		return "image"
	case KindSystem:
		return "system"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Message is the unit of exchange between participants.
// Body holds UTF-8 text for Text and System messages and a relative
// content URL for Image messages. TargetID is carried but not used for routing.
type Message struct {
	Kind       Kind
	SenderID   string
	SenderName string
	Body       string
	TargetID   string
	Timestamp  string
}

// wireMessage is the JSON record exchanged over the socket.
type wireMessage struct {
	Sender    string `json:"sender,omitempty"`
	SenderID  string `json:"senderId,omitempty"`
	Text      string `json:"text,omitempty"`
	Content   string `json:"content,omitempty"`
	Type      string `json:"type,omitempty"`
	TargetID  string `json:"targetId,omitempty"`
	System    bool   `json:"system,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// DecodeMessage parses a wire record into a Message.
// A missing type means text; any other unknown type is rejected.
func DecodeMessage(data []byte) (*Message, error) {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	msg := &Message{
		SenderID:   w.SenderID,
		SenderName: w.Sender,
		TargetID:   w.TargetID,
		Timestamp:  w.Timestamp,
	}

	if w.System {
		msg.Kind = KindSystem
		msg.Body = w.Text
		return msg, nil
	}

	switch w.Type {
	case "", "text":
		msg.Kind = KindText
		msg.Body = w.Text
	case "image":
		msg.Kind = KindImage
		msg.Body = w.Content
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, w.Type)
	}
	return msg, nil
}

// MarshalJSON encodes the message as a wire record.
func (m Message) MarshalJSON() ([]byte, error) {
	w := wireMessage{
		Sender:    m.SenderName,
		SenderID:  m.SenderID,
		TargetID:  m.TargetID,
		Timestamp: m.Timestamp,
	}

	switch m.Kind {
	case KindText:
		w.Type = "text"
		w.Text = m.Body
	case KindImage:
		w.Type = "image"
		w.Content = m.Body
	case KindSystem:
		w.Type = "text"
		w.System = true
		w.Text = m.Body
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, m.Kind)
	}

	return json.Marshal(w)
}

// UnmarshalJSON decodes a wire record into the message.
func (m *Message) UnmarshalJSON(data []byte) error {
	decoded, err := DecodeMessage(data)
	if err != nil {
		return err
	}
	*m = *decoded
	return nil
}

// Validate checks the minimum a message needs before it can be relayed.
func (m *Message) Validate() error {
	if m.SenderID == "" {
		return ErrMissingSender
	}
	if strings.TrimSpace(m.Body) == "" {
		return ErrEmptyBody
	}
	if m.Kind == KindImage && !IsRelativeURL(m.Body) {
		return ErrImageURL
	}
	return nil
}

// IsRelativeURL reports whether s is a path on the serving origin: a single
// leading slash, no scheme or host, and no backslashes, spaces or control
// characters that browsers would reinterpret.
func IsRelativeURL(s string) bool {
	if !strings.HasPrefix(s, "/") || strings.HasPrefix(s, "//") {
		return false
	}
	if strings.ContainsAny(s, "\\ ") || strings.IndexFunc(s, unicode.IsControl) >= 0 {
		return false
	}
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return u.Scheme == "" && u.Host == "" && u.Opaque == ""
}

// IsSystem reports whether the message is a system notice.
func (m *Message) IsSystem() bool {
	return m.Kind == KindSystem
}
