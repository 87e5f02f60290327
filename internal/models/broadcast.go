package models

import (
	"errors"
	"time"
)

var ErrMissingType = errors.New("message type is required")

// Broadcast describes one live broadcaster. ID is the broadcaster's
// connection identity.
type Broadcast struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	OwnerName string    `json:"ownerName"`
	CreatedAt time.Time `json:"createdAt"`
}

// BroadcastDetail is a Broadcast with its current audience size.
type BroadcastDetail struct {
	Broadcast
	ViewerCount int `json:"viewerCount"`
}

type Welcome struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

type ViewerCount struct {
	Count int `json:"count"`
}

type NewViewer struct {
	ViewerID    string `json:"viewerId"`
	DisplayName string `json:"displayName"`
}

type ChatMessage struct {
	ID          string    `json:"id"`
	SenderID    string    `json:"senderId"`
	SenderName  string    `json:"senderName"`
	Message     string    `json:"message"`
	BroadcastID string    `json:"broadcastId"`
	SentAt      time.Time `json:"sentAt"`
}

type MediaState struct {
	VideoEnabled bool `json:"videoEnabled"`
	AudioEnabled bool `json:"audioEnabled"`
}

type ModeUpdate struct {
	Mode string `json:"mode"`
}

type PeerGone struct {
	ID string `json:"id"`
}

// Error codes carried by EventError frames.
const (
	ErrCodeBadRequest  = "BAD_REQUEST"
	ErrCodeUnknownType = "UNKNOWN_TYPE"
	ErrCodeRateLimited = "RATE_LIMITED"
)

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewErrorMessage builds an error frame for the sender of a rejected event.
func NewErrorMessage(code, message string) Message {
	return Message{
		Type:    EventError,
		Payload: ErrorPayload{Code: code, Message: message},
	}
}
