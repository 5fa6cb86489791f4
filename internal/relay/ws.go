package relay

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/eldtechnologies/chatrelay/internal/models"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Images travel as URLs.
	maxMessageSize = 64 << 10
)

// ServeWS upgrades the request and runs the connection until either side
// closes it. identity must already be authenticated.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, identity models.Identity) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Str("user_id", identity.ID).Msg("websocket upgrade failed")
		return
	}

	c := h.NewConn(identity)
	c.ws = ws
	h.Accept(c)

	go h.writePump(c)
	go h.readPump(c)
}

// readPump feeds inbound records to the hub until the socket fails.
func (h *Hub) readPump(c *Conn) {
	defer func() {
		h.Leave(c)
		c.ws.Close()
	}()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Debug().Err(err).Str("user_id", c.Identity().ID).Msg("websocket read error")
			}
			return
		}
		h.HandleInbound(c, data)
	}
}

// writePump drains the outbound queue, one record per frame.
func (h *Hub) writePump(c *Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case data, ok := <-c.Outbound():
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The registry closed the queue.
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				h.Leave(c)
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.Leave(c)
				return
			}
		}
	}
}
