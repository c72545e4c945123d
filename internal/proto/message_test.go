package proto

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/vovakirdan/teamchat-server/internal/store"
)

func TestParseInbound(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Inbound
		wantErr error
	}{
		{name: "subscribe", raw: `{"type":"subscribe","roomId":"r1"}`, want: Inbound{Type: "subscribe", RoomID: "r1"}},
		{name: "extra fields ignored", raw: `{"type":"subscribe","roomId":"r1","x":1}`, want: Inbound{Type: "subscribe", RoomID: "r1"}},
		{name: "not json", raw: `{oops`, wantErr: ErrMalformed},
		{name: "empty", raw: ``, wantErr: ErrMalformed},
		{name: "array", raw: `[1,2]`, wantErr: ErrUnsupported},
		{name: "null", raw: `null`, wantErr: ErrUnsupported},
		{name: "other type", raw: `{"type":"unsubscribe","roomId":"r1"}`, wantErr: ErrUnsupported},
		{name: "missing type", raw: `{"roomId":"r1"}`, wantErr: ErrUnsupported},
		{name: "missing room", raw: `{"type":"subscribe"}`, wantErr: ErrUnsupported},
		{name: "empty room", raw: `{"type":"subscribe","roomId":""}`, wantErr: ErrUnsupported},
		{name: "numeric room", raw: `{"type":"subscribe","roomId":42}`, wantErr: ErrUnsupported},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseInbound([]byte(tt.raw))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestMessageFrameShape(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 30, 0, 123_000_000, time.FixedZone("X", 3600))
	frame := MessageNewFrame{
		Type: OutboundTypeMessageNew,
		Message: MessageFromStore(&store.Message{
			ID:         "m1",
			RoomID:     "r1",
			SenderID:   "u1",
			SenderName: "Unknown",
			Type:       store.MessageTypeCode,
			Content:    "x := 1",
			CreatedAt:  created,
		}),
	}

	data, err := json.Marshal(frame)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(data)
	for _, want := range []string{
		`"type":"message:new"`,
		`"senderAvatarUrl":null`,
		`"type":"CODE"`,
		`"createdAt":"2026-03-01T11:30:00.123Z"`,
	} {
		if !strings.Contains(s, want) {
			t.Fatalf("frame %s missing %s", s, want)
		}
	}
}
