// Package relay accepts participant connections and fans every valid
// inbound message out to all live connections.
package relay

import (
	"encoding/json"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/chatrelay/internal/metrics"
	"github.com/eldtechnologies/chatrelay/internal/models"
)

const (
	DefaultWelcomeText = "Welcome to the chat!"
	DefaultClockFormat = "15:04:05"
	DefaultMediaPrefix = "/uploads"
)

// Bus carries stamped messages between relay instances. Every instance,
// the publisher included, receives each published message once.
type Bus interface {
	Publish(data []byte) error
	Subscribe(handler func(data []byte)) error
	Close()
}

// Options configures a Hub. Zero values select defaults.
type Options struct {
	WelcomeText    string
	ClockFormat    string
	QueueSize      int
	AllowedOrigins []string
	// MediaPrefix is the URL path image messages must point under.
	MediaPrefix string
	Bus         Bus
	Now            func() time.Time
}

// Hub owns the registry and applies the relay rules to inbound messages.
type Hub struct {
	registry *Registry
	logger   zerolog.Logger
	bus      Bus

	welcome     string
	clockFormat string
	queueSize   int
	mediaPrefix string
	now         func() time.Time
	upgrader    websocket.Upgrader
}

// NewHub creates a hub with an empty registry.
func NewHub(logger zerolog.Logger, opts Options) *Hub {
	h := &Hub{
		registry:    NewRegistry(),
		logger:      logger.With().Str("component", "relay").Logger(),
		bus:         opts.Bus,
		welcome:     opts.WelcomeText,
		clockFormat: opts.ClockFormat,
		queueSize:   opts.QueueSize,
		mediaPrefix: strings.TrimRight(opts.MediaPrefix, "/"),
		now:         opts.Now,
	}
	if h.welcome == "" {
		h.welcome = DefaultWelcomeText
	}
	if h.clockFormat == "" {
		h.clockFormat = DefaultClockFormat
	}
	if h.mediaPrefix == "" {
		h.mediaPrefix = DefaultMediaPrefix
	}
	if h.queueSize <= 0 {
		h.queueSize = DefaultQueueSize
	}
	if h.now == nil {
		h.now = time.Now
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(opts.AllowedOrigins),
	}
	return h
}

// Start subscribes to the bus, if any. Without a bus fan-out is local.
func (h *Hub) Start() error {
	if h.bus == nil {
		return nil
	}
	return h.bus.Subscribe(h.fanOut)
}

// Registry returns the hub's connection registry.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Len returns the number of live connections on this instance.
func (h *Hub) Len() int {
	return h.registry.Len()
}

// NewConn creates a connection sized for this hub.
func (h *Hub) NewConn(identity models.Identity) *Conn {
	return NewConn(identity, h.queueSize)
}

// Accept greets a new connection and registers it. The welcome notice is
// queued before registration so it is the first message the peer sees.
func (h *Hub) Accept(c *Conn) {
	welcome := models.Message{
		Kind:       models.KindSystem,
		SenderName: models.SystemSender,
		Body:       h.welcome,
		Timestamp:  h.stamp(),
	}
	if data, err := json.Marshal(welcome); err == nil {
		c.Send(data)
	}

	h.registry.Add(c)
	metrics.ConnectionsTotal.Inc()

	id := c.Identity()
	h.logger.Info().
		Str("user_id", id.ID).
		Str("name", id.DisplayName).
		Int("connections", h.registry.Len()).
		Msg("connection opened")
}

// Leave unregisters a connection. Departures are not announced.
func (h *Hub) Leave(c *Conn) {
	if !h.registry.Remove(c) {
		return
	}
	h.logger.Info().
		Str("user_id", c.Identity().ID).
		Int("connections", h.registry.Len()).
		Msg("connection closed")
}

// HandleInbound applies the relay rules to one raw inbound record from c.
// Records that fail to parse or validate are dropped without a reply.
func (h *Hub) HandleInbound(c *Conn, raw []byte) {
	msg, err := models.DecodeMessage(raw)
	if err != nil {
		metrics.MessagesDropped.WithLabelValues("parse").Inc()
		h.logger.Debug().Err(err).Str("user_id", c.Identity().ID).Msg("dropping unparseable message")
		return
	}

	// Sender fields come from the handshake identity, never the payload.
	id := c.Identity()
	msg.SenderID = id.ID
	if msg.IsSystem() {
		msg.SenderName = models.SystemSender
	} else {
		msg.SenderName = id.DisplayName
	}

	if err := msg.Validate(); err != nil {
		metrics.MessagesDropped.WithLabelValues("invalid").Inc()
		h.logger.Debug().Err(err).Str("user_id", id.ID).Msg("dropping invalid message")
		return
	}
	if msg.Kind == models.KindImage && !h.isMediaURL(msg.Body) {
		metrics.MessagesDropped.WithLabelValues("invalid").Inc()
		h.logger.Debug().Str("user_id", id.ID).Msg("dropping image outside media prefix")
		return
	}

	msg.Timestamp = h.stamp()
	h.broadcast(msg)
}

// BroadcastSystem sends a relay notice to every connection on this instance.
func (h *Hub) BroadcastSystem(text string) {
	msg := &models.Message{
		Kind:       models.KindSystem,
		SenderName: models.SystemSender,
		Body:       text,
		Timestamp:  h.stamp(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Msg("encoding system notice")
		return
	}
	metrics.MessagesRelayed.WithLabelValues(msg.Kind.String()).Inc()
	h.fanOut(data)
}

// CloseAll removes and closes every connection.
func (h *Hub) CloseAll() {
	for _, c := range h.registry.snapshot() {
		h.registry.Remove(c)
	}
}

func (h *Hub) broadcast(msg *models.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Msg("encoding message")
		return
	}
	metrics.MessagesRelayed.WithLabelValues(msg.Kind.String()).Inc()

	if h.bus != nil {
		err := h.bus.Publish(data)
		if err == nil {
			return
		}
		h.logger.Warn().Err(err).Msg("bus publish failed, delivering locally")
	}
	h.fanOut(data)
}

// fanOut enqueues data on every live connection, the origin included.
func (h *Hub) fanOut(data []byte) {
	h.registry.ForEach(func(c *Conn) {
		c.Send(data)
	})
}

// isMediaURL reports whether u names a file under the media prefix once
// dot segments are resolved.
func (h *Hub) isMediaURL(u string) bool {
	p := u
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	return strings.HasPrefix(path.Clean(p), h.mediaPrefix+"/")
}

func (h *Hub) stamp() string {
	return h.now().Format(h.clockFormat)
}

// originChecker allows any origin when none are configured.
func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(r *http.Request) bool { return true }
	}
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}
