// File: game/room_actor_broadcast.go
package game

import (
	"sort"

	"golang.org/x/net/websocket"
)

// All outbound traffic goes through the broadcaster actor so the room loop
// never blocks on a socket write. Frames carrying yourCard or isYou are
// projected per recipient at emission time.

func (a *RoomActor) sendToConn(conn *websocket.Conn, frame interface{}) {
	if conn == nil || a.broadcasterPID == nil {
		return
	}
	a.engine.Send(a.broadcasterPID, SendFrame{Conn: conn, Frame: frame}, a.selfPID)
}

func (a *RoomActor) sendToPlayer(player *Player, frame interface{}) {
	if player == nil {
		return
	}
	a.sendToConn(player.Conn, frame)
}

func (a *RoomActor) sendError(conn *websocket.Conn, code, message string) {
	a.sendToConn(conn, ErrorMessage{Type: MsgError, Code: code, Message: message})
}

func (a *RoomActor) sendErrorToPlayer(player *Player, code, message string) {
	if player == nil {
		return
	}
	a.sendError(player.Conn, code, message)
}

// broadcastFrame sends the same frame to every connected player.
func (a *RoomActor) broadcastFrame(frame interface{}) {
	for _, p := range a.players {
		if p.Connected() {
			a.sendToConn(p.Conn, frame)
		}
	}
}

// broadcastExcept sends a frame to every connected player but one.
func (a *RoomActor) broadcastExcept(excludeID string, frame interface{}) {
	for _, p := range a.players {
		if p.ID == excludeID || !p.Connected() {
			continue
		}
		a.sendToConn(p.Conn, frame)
	}
}

// broadcastRoomState sends each connected player their own projection.
func (a *RoomActor) broadcastRoomState() {
	for _, p := range a.players {
		if p.Connected() {
			a.sendToConn(p.Conn, a.roomStateFor(p))
		}
	}
}

// broadcastRoundStart opens a round for every connected player with their
// personal hand.
func (a *RoomActor) broadcastRoundStart() {
	for _, p := range a.players {
		if !p.Connected() {
			continue
		}
		a.sendToConn(p.Conn, RoundStartMessage{
			Type:          MsgRoundStart,
			RoundNumber:   a.roundNumber,
			YourCard:      p.Hand,
			CenterCard:    a.centerCard,
			DeckRemaining: len(a.deck),
		})
	}
}

// roomStateFor builds the full room view as seen by one recipient. Other
// players' hands never appear in it.
func (a *RoomActor) roomStateFor(recipient *Player) RoomStateMessage {
	msg := RoomStateMessage{
		Type:    MsgRoomState,
		Phase:   a.phase,
		Players: make([]PlayerView, 0, len(a.joinOrder)),
		Config:  a.config,
	}
	for _, id := range a.joinOrder {
		p := a.players[id]
		if p == nil {
			continue
		}
		msg.Players = append(msg.Players, a.viewOf(p, recipient != nil && p.ID == recipient.ID))
	}

	switch a.phase {
	case PhaseWaiting:
		msg.RoomExpiresAt = a.expiresAt.UnixMilli()
	case PhasePlaying, PhaseRoundEnd:
		msg.CenterCard = a.centerCard
		if recipient != nil {
			msg.YourCard = recipient.Hand
		}
		remaining := len(a.deck)
		round := a.roundNumber
		msg.DeckRemaining = &remaining
		msg.RoundNumber = &round
	}
	return msg
}

func (a *RoomActor) viewOf(p *Player, isYou bool) PlayerView {
	return PlayerView{
		ID:     p.ID,
		Name:   p.Name,
		IsHost: p.IsHost,
		IsYou:  isYou,
		Status: p.Status,
		Score:  p.Score,
	}
}

// scoreboard lists the roster in descending score order, ties broken by join
// order.
func (a *RoomActor) scoreboard() []ScoreEntry {
	entries := make([]ScoreEntry, 0, len(a.joinOrder))
	for _, id := range a.joinOrder {
		if p := a.players[id]; p != nil {
			entries = append(entries, ScoreEntry{PlayerID: p.ID, Name: p.Name, Score: p.Score})
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Score > entries[j].Score
	})
	return entries
}
