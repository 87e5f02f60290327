package models

import (
	"github.com/goccy/go-json"
)

// EventType names a websocket frame.
type EventType string

// Client -> server events.
const (
	EventDeclareName    EventType = "declare-name"
	EventStartBroadcast EventType = "start-broadcast"
	EventListBroadcasts EventType = "list-broadcasts"
	EventWatch          EventType = "watch"
	EventChat           EventType = "chat"
	EventMediaState     EventType = "media-state"
	EventModeChange     EventType = "mode-change"
	EventEndBroadcast   EventType = "end-broadcast"
	EventDetachViewer   EventType = "detach-viewer"
	EventPing           EventType = "ping"
)

// Negotiation events are relayed verbatim in both directions.
const (
	EventOffer     EventType = "negotiation-offer"
	EventAnswer    EventType = "negotiation-answer"
	EventCandidate EventType = "network-candidate"
)

// Server -> client events.
const (
	EventWelcome       EventType = "welcome"
	EventBroadcastList EventType = "broadcast-list"
	EventViewerCount   EventType = "viewer-count"
	EventModeUpdate    EventType = "mode-update"
	EventStreamEnded   EventType = "stream-ended"
	EventNewViewer     EventType = "new-viewer"
	EventPeerGone      EventType = "peer-gone"
	EventPong          EventType = "pong"
	EventError         EventType = "error"
)

// IsNegotiation reports whether t is relayed between peers untouched.
func (t EventType) IsNegotiation() bool {
	switch t {
	case EventOffer, EventAnswer, EventCandidate:
		return true
	}
	return false
}

// Inbound is the envelope every client frame is decoded into. Which fields
// are meaningful depends on Type.
type Inbound struct {
	Type         EventType       `json:"type"`
	To           string          `json:"to,omitempty"`
	BroadcastID  string          `json:"broadcastId,omitempty"`
	Name         string          `json:"name,omitempty"`
	Title        string          `json:"title,omitempty"`
	OwnerName    string          `json:"ownerName,omitempty"`
	Message      string          `json:"message,omitempty"`
	Mode         string          `json:"mode,omitempty"`
	VideoEnabled *bool           `json:"videoEnabled,omitempty"`
	AudioEnabled *bool           `json:"audioEnabled,omitempty"`
	Payload      json.RawMessage `json:"payload,omitempty"`
}

// Message is the envelope for every server frame.
type Message struct {
	Type        EventType   `json:"type"`
	From        string      `json:"from,omitempty"`
	BroadcastID string      `json:"broadcastId,omitempty"`
	Payload     interface{} `json:"payload,omitempty"`
}

// DecodeInbound parses a client frame. A frame without a type is rejected.
func DecodeInbound(data []byte) (*Inbound, error) {
	var msg Inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Type == "" {
		return nil, ErrMissingType
	}
	return &msg, nil
}

// Encode serialises a server frame.
func Encode(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}
