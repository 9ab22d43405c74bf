package models

import (
	"errors"

	"github.com/goccy/go-json"
)

// MessageType names one kind of envelope on the wire
type MessageType string

const (
	MessageTypeHello         MessageType = "hello"
	MessageTypePresence      MessageType = "presence"
	MessageTypeCursor        MessageType = "cursor"
	MessageTypeView          MessageType = "view"
	MessageTypeFeatureAdd    MessageType = "feature:add"
	MessageTypeFeatureEdit   MessageType = "feature:edit"
	MessageTypeFeatureRemove MessageType = "feature:remove"
)

// DefaultRoom is used when a message carries no room field
const DefaultRoom = "default"

// UserInfo is the participant identity carried by every message
type UserInfo struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// Envelope is the common message shape: {type, room, user, ...type-specific fields}.
// Type-specific fields are optional pointers so an envelope round-trips without
// inventing zero values.
type Envelope struct {
	Type MessageType `json:"type"`
	Room string      `json:"room"`
	User *UserInfo   `json:"user,omitempty"`

	// cursor
	LatLng *[2]float64 `json:"latlng,omitempty"`
	// view
	Center *[2]float64 `json:"center,omitempty"`
	Zoom   *float64    `json:"zoom,omitempty"`
	// feature:add / feature:edit
	Feature json.RawMessage `json:"feature,omitempty"`
	// feature:remove
	ID string `json:"id,omitempty"`
}

// ProbeRoom extracts the room and the optional sender identity from a raw
// message without decoding the rest of it. An absent, null or non-string room
// falls back to defaultRoom; only a payload that is not a JSON object is an error.
func ProbeRoom(raw []byte, defaultRoom string) (room string, user UserInfo, err error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return "", UserInfo{}, err
	}
	if fields == nil {
		return "", UserInfo{}, errNotObject
	}

	room = defaultRoom
	if v, ok := fields["room"]; ok {
		var s string
		if json.Unmarshal(v, &s) == nil && string(v) != "null" {
			room = s
		}
	}
	if v, ok := fields["user"]; ok {
		// a malformed user block only loses the audit identity
		_ = json.Unmarshal(v, &user)
	}
	return room, user, nil
}

var errNotObject = errors.New("message is not a JSON object")
