package ws

import "ekh_mining/internal/domain"

const (
	TypeReady   = "ready"
	TypeProfile = "profile"
	TypeRefresh = "refresh"
	TypePing    = "ping"
	TypePong    = "pong"
	TypeError   = "error"
)

// Message is the envelope of every frame on the profile stream.
type Message struct {
	Type    string              `json:"type"`
	Profile *domain.UserProfile `json:"profile,omitempty"`
	Error   string              `json:"error,omitempty"`
}
