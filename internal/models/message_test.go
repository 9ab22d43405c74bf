package models

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
)

func TestProbeRoom(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantRoom string
		wantUser string
		wantErr  bool
	}{
		{"explicit room", `{"type":"hello","room":"demo","user":{"id":"u1","name":"Ann"}}`, "demo", "u1", false},
		{"absent room", `{"type":"hello"}`, "default", "", false},
		{"null room", `{"room":null}`, "default", "", false},
		{"non-string room", `{"room":42}`, "default", "", false},
		{"empty room is kept", `{"room":""}`, "", "", false},
		{"malformed user keeps room", `{"room":"r","user":"nope"}`, "r", "", false},
		{"not json", `hello`, "", "", true},
		{"not an object", `[1,2]`, "", "", true},
		{"json null", `null`, "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			room, user, err := ProbeRoom([]byte(tt.raw), DefaultRoom)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.wantRoom, room)
			require.Equal(t, tt.wantUser, user.ID)
		})
	}
}

func TestEnvelope_OmitsAbsentFields(t *testing.T) {
	raw, err := json.Marshal(Envelope{
		Type: MessageTypeFeatureRemove,
		Room: "demo",
		User: &UserInfo{ID: "u1", Name: "Ann", Color: "#123456"},
		ID:   "f1",
	})
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	require.Equal(t, "feature:remove", fields["type"])
	require.Equal(t, "f1", fields["id"])
	require.NotContains(t, fields, "feature")
	require.NotContains(t, fields, "latlng")
	require.NotContains(t, fields, "zoom")
}
