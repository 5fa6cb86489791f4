package models

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestDecodeMessageKinds(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		kind Kind
		body string
	}{
		{"implicit text", `{"sender":"A","senderId":"u1","text":"hi"}`, KindText, "hi"},
		{"explicit text", `{"sender":"A","senderId":"u1","type":"text","text":"hi"}`, KindText, "hi"},
		{"image", `{"sender":"A","senderId":"u1","type":"image","content":"/uploads/x.jpg"}`, KindImage, "/uploads/x.jpg"},
		{"system", `{"system":true,"sender":"System","text":"A joined the chat.","senderId":"u1"}`, KindSystem, "A joined the chat."},
		{"null target", `{"senderId":"u1","text":"hi","targetId":null}`, KindText, "hi"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := DecodeMessage([]byte(tt.raw))
			if err != nil {
				t.Fatal(err)
			}
			if msg.Kind != tt.kind {
				t.Fatalf("expected kind %s, got %s", tt.kind, msg.Kind)
			}
			if msg.Body != tt.body {
				t.Fatalf("expected body %q, got %q", tt.body, msg.Body)
			}
		})
	}
}

func TestDecodeMessageRejectsUnknownType(t *testing.T) {
	_, err := DecodeMessage([]byte(`{"senderId":"u1","type":"video","content":"x"}`))
	if !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
}

func TestDecodeMessageRejectsGarbage(t *testing.T) {
	_, err := DecodeMessage([]byte(`not json`))
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestImageBodyIgnoresText(t *testing.T) {
	msg, err := DecodeMessage([]byte(`{"senderId":"u1","type":"image","text":"caption"}`))
	if err != nil {
		t.Fatal(err)
	}
	if err := msg.Validate(); !errors.Is(err, ErrEmptyBody) {
		t.Fatalf("image without content should be invalid, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	if err := (&Message{Kind: KindText, Body: "hi"}).Validate(); !errors.Is(err, ErrMissingSender) {
		t.Fatalf("expected ErrMissingSender, got %v", err)
	}
	if err := (&Message{Kind: KindText, SenderID: "u1", Body: "  "}).Validate(); !errors.Is(err, ErrEmptyBody) {
		t.Fatalf("expected ErrEmptyBody, got %v", err)
	}
	if err := (&Message{Kind: KindText, SenderID: "u1", Body: "hi"}).Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestMarshalWireShape(t *testing.T) {
	data, err := json.Marshal(Message{Kind: KindImage, SenderID: "u1", SenderName: "A", Body: "/uploads/a.jpg", Timestamp: "10:00:00"})
	if err != nil {
		t.Fatal(err)
	}
	s := string(data)
	for _, want := range []string{`"type":"image"`, `"content":"/uploads/a.jpg"`, `"senderId":"u1"`, `"timestamp":"10:00:00"`} {
		if !strings.Contains(s, want) {
			t.Fatalf("expected %s in %s", want, s)
		}
	}
	if strings.Contains(s, `"system"`) {
		t.Fatalf("non-system message should omit system flag: %s", s)
	}

	data, err = json.Marshal(Message{Kind: KindSystem, SenderName: SystemSender, Body: "welcome"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"system":true`) {
		t.Fatalf("system flag missing: %s", data)
	}
}

func TestValidateImageURL(t *testing.T) {
	tests := []struct {
		body string
		ok   bool
	}{
		{"/uploads/01hx-cat.jpg", true},
		{"/uploads/a.png?v=1", true},
		{"javascript:alert(1)", false},
		{"https://evil.example/x.jpg", false},
		{"//evil.example/x.jpg", false},
		{"/\\evil.example/x.jpg", false},
		{"uploads/x.jpg", false},
		{"data:image/png;base64,AAAA", false},
		{"/uploads/x.jpg\n", false},
		{"/uploads/my cat.jpg", false},
	}

	for _, tt := range tests {
		err := (&Message{Kind: KindImage, SenderID: "u1", Body: tt.body}).Validate()
		if tt.ok && err != nil {
			t.Errorf("%q: unexpected error %v", tt.body, err)
		}
		if !tt.ok && !errors.Is(err, ErrImageURL) {
			t.Errorf("%q: expected ErrImageURL, got %v", tt.body, err)
		}
	}

	// Text bodies are free-form.
	if err := (&Message{Kind: KindText, SenderID: "u1", Body: "javascript:alert(1)"}).Validate(); err != nil {
		t.Fatalf("text body should not be URL checked: %v", err)
	}
}
