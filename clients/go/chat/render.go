package chat

import (
	"fmt"
	"io"
	"sync"

	"github.com/eldtechnologies/chatrelay/internal/models"
)

// TextRenderer writes one line per message.
type TextRenderer struct {
	mu sync.Mutex
	w  io.Writer

	// BaseURL is prepended to relative image URLs.
	BaseURL string
}

// NewTextRenderer creates a renderer writing to w.
func NewTextRenderer(w io.Writer, baseURL string) *TextRenderer {
	return &TextRenderer{w: w, BaseURL: baseURL}
}

func (r *TextRenderer) Render(msg *models.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.w, r.formatMessage(msg))
}

func (r *TextRenderer) formatMessage(msg *models.Message) string {
	switch msg.Kind {
	case models.KindSystem:
		return fmt.Sprintf("*** [%s] %s", msg.Timestamp, msg.Body)
	case models.KindImage:
		return fmt.Sprintf("[%s] %s: [image] %s%s", msg.Timestamp, msg.SenderName, r.BaseURL, msg.Body)
	default:
		return fmt.Sprintf("[%s] %s: %s", msg.Timestamp, msg.SenderName, msg.Body)
	}
}
