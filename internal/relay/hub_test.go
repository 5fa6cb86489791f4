package relay

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/chatrelay/internal/models"
)

var fixedNow = time.Date(2024, 5, 1, 14, 3, 9, 0, time.UTC)

func newTestHub(bus Bus) *Hub {
	return NewHub(zerolog.Nop(), Options{
		Bus: bus,
		Now: func() time.Time { return fixedNow },
	})
}

func decodeAll(t *testing.T, c *Conn) []*models.Message {
	t.Helper()
	var msgs []*models.Message
	for _, raw := range drain(c) {
		msg, err := models.DecodeMessage([]byte(raw))
		if err != nil {
			t.Fatalf("relay emitted undecodable record %s: %v", raw, err)
		}
		msgs = append(msgs, msg)
	}
	return msgs
}

func TestAcceptSendsWelcomeFirst(t *testing.T) {
	h := newTestHub(nil)
	c := h.NewConn(models.Identity{ID: "a", DisplayName: "Alice"})
	h.Accept(c)

	if !h.Registry().Contains(c) {
		t.Fatal("accepted connection not registered")
	}
	msgs := decodeAll(t, c)
	if len(msgs) != 1 {
		t.Fatalf("expected only the welcome, got %d messages", len(msgs))
	}
	w := msgs[0]
	if !w.IsSystem() || w.Body != DefaultWelcomeText || w.SenderName != models.SystemSender {
		t.Fatalf("unexpected welcome %+v", w)
	}
	if w.Timestamp != "14:03:09" {
		t.Fatalf("expected relay timestamp, got %q", w.Timestamp)
	}
}

func TestHandleInboundFansOutToEveryone(t *testing.T) {
	h := newTestHub(nil)
	a := h.NewConn(models.Identity{ID: "a", DisplayName: "Alice"})
	b := h.NewConn(models.Identity{ID: "b", DisplayName: "Bob"})
	h.Accept(a)
	h.Accept(b)
	drain(a)
	drain(b)

	h.HandleInbound(a, []byte(`{"sender":"Mallory","senderId":"b","text":"hi","timestamp":"00:00:00","targetId":"b"}`))

	for _, c := range []*Conn{a, b} {
		msgs := decodeAll(t, c)
		if len(msgs) != 1 {
			t.Fatalf("expected one message for %s, got %d", c.Identity().ID, len(msgs))
		}
		m := msgs[0]
		if m.Kind != models.KindText || m.Body != "hi" {
			t.Fatalf("unexpected message %+v", m)
		}
		if m.SenderID != "a" || m.SenderName != "Alice" {
			t.Fatalf("sender not taken from identity: %+v", m)
		}
		if m.Timestamp != "14:03:09" {
			t.Fatalf("client timestamp not overwritten: %q", m.Timestamp)
		}
		if m.TargetID != "b" {
			t.Fatalf("targetId not preserved: %q", m.TargetID)
		}
	}
}

func TestHandleInboundDropsInvalid(t *testing.T) {
	h := newTestHub(nil)
	a := h.NewConn(models.Identity{ID: "a", DisplayName: "Alice"})
	h.Accept(a)
	drain(a)

	for _, raw := range []string{
		`{"text":""}`,
		`{"text":"   "}`,
		`{"type":"image"}`,
		`{"type":"video","content":"x"}`,
		`not json`,
	} {
		h.HandleInbound(a, []byte(raw))
	}

	if got := drain(a); len(got) != 0 {
		t.Fatalf("expected nothing relayed, got %v", got)
	}
}

func TestHandleInboundSystemMessage(t *testing.T) {
	h := newTestHub(nil)
	a := h.NewConn(models.Identity{ID: "a", DisplayName: "Alice"})
	h.Accept(a)
	drain(a)

	h.HandleInbound(a, []byte(`{"system":true,"sender":"Admin","text":"Alice joined the chat."}`))

	msgs := decodeAll(t, a)
	if len(msgs) != 1 {
		t.Fatalf("expected one message, got %d", len(msgs))
	}
	if !msgs[0].IsSystem() || msgs[0].SenderName != models.SystemSender || msgs[0].SenderID != "a" {
		t.Fatalf("unexpected system message %+v", msgs[0])
	}
}

func TestHandleInboundImage(t *testing.T) {
	h := newTestHub(nil)
	a := h.NewConn(models.Identity{ID: "a", DisplayName: "Alice"})
	h.Accept(a)
	drain(a)

	h.HandleInbound(a, []byte(`{"type":"image","content":"/uploads/x.jpg"}`))

	msgs := decodeAll(t, a)
	if len(msgs) != 1 || msgs[0].Kind != models.KindImage || msgs[0].Body != "/uploads/x.jpg" {
		t.Fatalf("unexpected relay of image: %+v", msgs)
	}
}

func TestHandleInboundDropsForeignImages(t *testing.T) {
	h := newTestHub(nil)
	a := h.NewConn(models.Identity{ID: "a", DisplayName: "Alice"})
	b := h.NewConn(models.Identity{ID: "b", DisplayName: "Bob"})
	h.Accept(a)
	h.Accept(b)
	drain(a)
	drain(b)

	for _, content := range []string{
		"javascript:alert(1)",
		"https://evil.example/x.jpg",
		"//evil.example/x.jpg",
		"/api/users",
		"/uploads/../api/users",
		"/uploadsx/a.jpg",
	} {
		raw, _ := json.Marshal(map[string]string{"type": "image", "content": content})
		h.HandleInbound(a, raw)
	}

	if got := drain(b); len(got) != 0 {
		t.Fatalf("foreign image urls were relayed: %v", got)
	}
	if got := drain(a); len(got) != 0 {
		t.Fatalf("origin received foreign image urls: %v", got)
	}
}

func TestMediaPrefixOption(t *testing.T) {
	h := NewHub(zerolog.Nop(), Options{MediaPrefix: "/media/"})
	a := h.NewConn(models.Identity{ID: "a", DisplayName: "Alice"})
	h.Accept(a)
	drain(a)

	h.HandleInbound(a, []byte(`{"type":"image","content":"/uploads/x.jpg"}`))
	h.HandleInbound(a, []byte(`{"type":"image","content":"/media/x.jpg"}`))

	msgs := decodeAll(t, a)
	if len(msgs) != 1 || msgs[0].Body != "/media/x.jpg" {
		t.Fatalf("expected only the /media image, got %+v", msgs)
	}
}

func TestLeaveStopsDeliveryWithoutNotice(t *testing.T) {
	h := newTestHub(nil)
	a := h.NewConn(models.Identity{ID: "a", DisplayName: "Alice"})
	b := h.NewConn(models.Identity{ID: "b", DisplayName: "Bob"})
	h.Accept(a)
	h.Accept(b)
	drain(a)
	drain(b)

	h.Leave(b)
	if h.Len() != 1 {
		t.Fatalf("expected 1 connection, got %d", h.Len())
	}
	if got := drain(a); len(got) != 0 {
		t.Fatalf("departure should not be announced, got %v", got)
	}

	h.HandleInbound(a, []byte(`{"text":"anyone?"}`))
	if got := drain(b); len(got) != 0 {
		t.Fatalf("removed connection received %v", got)
	}
}

func TestBroadcastSystemAndCloseAll(t *testing.T) {
	h := newTestHub(nil)
	a := h.NewConn(models.Identity{ID: "a"})
	h.Accept(a)
	drain(a)

	h.BroadcastSystem("server is restarting")
	msgs := decodeAll(t, a)
	if len(msgs) != 1 || msgs[0].Body != "server is restarting" || !msgs[0].IsSystem() {
		t.Fatalf("unexpected notice %+v", msgs)
	}

	h.CloseAll()
	if h.Len() != 0 || !a.Closed() {
		t.Fatal("expected all connections closed")
	}
}

type loopbackBus struct {
	handler   func([]byte)
	published int
	fail      bool
}

func (b *loopbackBus) Publish(data []byte) error {
	if b.fail {
		return errors.New("bus down")
	}
	b.published++
	b.handler(data)
	return nil
}

func (b *loopbackBus) Subscribe(handler func([]byte)) error {
	b.handler = handler
	return nil
}

func (b *loopbackBus) Close() {}

func TestBusCarriesBroadcast(t *testing.T) {
	bus := &loopbackBus{}
	h := newTestHub(bus)
	if err := h.Start(); err != nil {
		t.Fatal(err)
	}
	a := h.NewConn(models.Identity{ID: "a", DisplayName: "Alice"})
	h.Accept(a)
	drain(a)

	h.HandleInbound(a, []byte(`{"text":"via bus"}`))
	if bus.published != 1 {
		t.Fatalf("expected one publish, got %d", bus.published)
	}
	if got := drain(a); len(got) != 1 {
		t.Fatalf("expected exactly one delivery, got %v", got)
	}

	bus.fail = true
	h.HandleInbound(a, []byte(`{"text":"local"}`))
	msgs := decodeAll(t, a)
	if len(msgs) != 1 || msgs[0].Body != "local" {
		t.Fatalf("expected local fallback delivery, got %+v", msgs)
	}
}

func TestClockFormatOption(t *testing.T) {
	h := NewHub(zerolog.Nop(), Options{
		ClockFormat: time.RFC3339,
		WelcomeText: "hello",
		Now:         func() time.Time { return fixedNow },
	})
	a := h.NewConn(models.Identity{ID: "a"})
	h.Accept(a)

	var w struct {
		Text      string `json:"text"`
		Timestamp string `json:"timestamp"`
		System    bool   `json:"system"`
	}
	if err := json.Unmarshal([]byte(drain(a)[0]), &w); err != nil {
		t.Fatal(err)
	}
	if w.Text != "hello" || !w.System || w.Timestamp != "2024-05-01T14:03:09Z" {
		t.Fatalf("unexpected welcome %+v", w)
	}
}
