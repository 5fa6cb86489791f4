package relay

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// DefaultSubject is the NATS subject relay instances share.
const DefaultSubject = "chatrelay.broadcast"

// NATSBus is a Bus over core NATS pub/sub. Messages are not persisted.
type NATSBus struct {
	nc      *nats.Conn
	subject string
	sub     *nats.Subscription
	logger  zerolog.Logger
}

// NewNATSBus connects to NATS. The connection reconnects indefinitely.
func NewNATSBus(url, subject string, logger zerolog.Logger) (*NATSBus, error) {
	if subject == "" {
		subject = DefaultSubject
	}
	logger = logger.With().Str("component", "nats").Logger()

	nc, err := nats.Connect(url,
		nats.Name("chatrelay"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn().Err(err).Msg("disconnected from nats")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("reconnected to nats")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSBus{nc: nc, subject: subject, logger: logger}, nil
}

// Publish sends data to every subscribed instance.
func (b *NATSBus) Publish(data []byte) error {
	if err := b.nc.Publish(b.subject, data); err != nil {
		return fmt.Errorf("failed to publish to %q: %w", b.subject, err)
	}
	return nil
}

// Subscribe delivers every message on the subject to handler.
func (b *NATSBus) Subscribe(handler func(data []byte)) error {
	sub, err := b.nc.Subscribe(b.subject, func(m *nats.Msg) {
		handler(m.Data)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %q: %w", b.subject, err)
	}
	b.sub = sub
	b.logger.Info().Str("subject", b.subject).Msg("subscribed")
	return nil
}

// Connected reports whether the NATS connection is currently up.
func (b *NATSBus) Connected() bool {
	return b.nc.IsConnected()
}

// Close unsubscribes and closes the connection.
func (b *NATSBus) Close() {
	if b.sub != nil {
		b.sub.Unsubscribe()
	}
	b.nc.Close()
}
