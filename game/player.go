// File: game/player.go
package game

import (
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/websocket"
)

// PlayerStatus tracks whether a player currently has a live stream bound.
type PlayerStatus string

const (
	StatusConnected    PlayerStatus = "CONNECTED"
	StatusDisconnected PlayerStatus = "DISCONNECTED"
)

// Player is the durable identity within a room. The websocket connection is
// a transient capability: it may be absent (grace period) while the Player,
// their score and their hand live on.
type Player struct {
	ID                 string
	Name               string
	IsHost             bool
	Status             PlayerStatus
	Score              int
	Hand               *Card
	PenaltyUntil       time.Time
	Conn               *websocket.Conn
	DisconnectDeadline time.Time
}

// NewPlayer creates a connected player bound to the given stream.
func NewPlayer(name string, conn *websocket.Conn) *Player {
	return &Player{
		ID:     uuid.NewString(),
		Name:   name,
		Status: StatusConnected,
		Conn:   conn,
	}
}

// Connected reports whether the player has a live stream bound.
func (p *Player) Connected() bool {
	return p.Status == StatusConnected && p.Conn != nil
}
