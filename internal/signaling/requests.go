package signaling

import "github.com/goccy/go-json"

// Validated views of models.Inbound, one per event type.

type declareNameRequest struct {
	Name string `validate:"max=64"`
}

type startBroadcastRequest struct {
	Title     string `validate:"max=120"`
	OwnerName string `validate:"max=64"`
}

type watchRequest struct {
	BroadcastID string `validate:"required,max=128"`
}

type relayRequest struct {
	To      string          `validate:"required,max=128"`
	Payload json.RawMessage `validate:"required,min=1"`
}

type chatRequest struct {
	BroadcastID string `validate:"required,max=128"`
	Message     string `validate:"required,max=2000"`
}

type mediaStateRequest struct {
	BroadcastID  string `validate:"required,max=128"`
	VideoEnabled *bool  `validate:"required"`
	AudioEnabled *bool  `validate:"required"`
}

type modeChangeRequest struct {
	BroadcastID string `validate:"required,max=128"`
	Mode        string `validate:"required,max=32"`
}
