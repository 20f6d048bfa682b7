package storage

import (
	"encoding/json"
	"testing"

	"github.com/huykn/live-sync/types"
)

func TestGetSerializer(t *testing.T) {
	tests := []struct {
		format  string
		wantErr bool
	}{
		{"", false},
		{"json", false},
		{"msgpack", false},
		{"gob", true},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			s, err := GetSerializer(tt.format)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected error")
				}
				return
			}
			if err != nil || s == nil {
				t.Fatalf("Expected serializer, got %v", err)
			}
		})
	}
}

func TestSerializersCarryDeliveries(t *testing.T) {
	delivery := types.Delivery{
		UserID: "u1",
		Sender: "node-a",
		Frame: types.Frame{
			Event: types.EventMessage,
			Data:  json.RawMessage(`{"chat":{"documentId":"c1"}}`),
		},
	}

	for _, format := range []string{"json", "msgpack"} {
		t.Run(format, func(t *testing.T) {
			s, err := GetSerializer(format)
			if err != nil {
				t.Fatalf("GetSerializer failed: %v", err)
			}

			data, err := s.Marshal(delivery)
			if err != nil {
				t.Fatalf("Failed to marshal: %v", err)
			}

			var got types.Delivery
			if err := s.Unmarshal(data, &got); err != nil {
				t.Fatalf("Failed to unmarshal: %v", err)
			}

			if got.UserID != "u1" || got.Sender != "node-a" || got.Frame.Event != types.EventMessage {
				t.Fatalf("Unexpected delivery: %+v", got)
			}
			var payload types.MessagePayload
			if err := json.Unmarshal(got.Frame.Data, &payload); err != nil {
				t.Fatalf("Frame data should stay valid JSON: %v", err)
			}
			if payload.Chat.DocumentID != "c1" {
				t.Fatalf("Expected chat c1, got %q", payload.Chat.DocumentID)
			}
		})
	}
}

func TestMsgpackIsSmallerThanJSON(t *testing.T) {
	v := map[string]any{"userId": "u1", "sender": "node-a", "count": 42}

	j, _ := NewJSONSerializer().Marshal(v)
	m, _ := NewMsgpackSerializer().Marshal(v)
	if len(m) >= len(j) {
		t.Fatalf("Expected msgpack (%d bytes) to be smaller than json (%d bytes)", len(m), len(j))
	}
}
