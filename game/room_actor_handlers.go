// File: game/room_actor_handlers.go
package game

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/net/websocket"
)

// handleClientAttached registers a fresh stream with the broadcaster. The
// stream stays unbound until a join or reconnect succeeds; a reconnectId
// supplied in the URL is treated as an immediate reconnect intent.
func (a *RoomActor) handleClientAttached(conn *websocket.Conn, reconnectID string) {
	if conn == nil || a.destroyed {
		return
	}
	a.engine.Send(a.broadcasterPID, AddClient{Conn: conn}, a.selfPID)
	a.unbound[conn] = true

	if reconnectID != "" {
		a.handleReconnect(conn, reconnectID)
	}
}

// handleClientFrame decodes one inbound frame and dispatches by type.
// Malformed frames and unknown types get a BAD_MESSAGE error without any
// state change and without closing the stream.
func (a *RoomActor) handleClientFrame(conn *websocket.Conn, data []byte) {
	if conn == nil || a.destroyed {
		return
	}

	var frame InboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		a.sendError(conn, ErrCodeBadMessage, "malformed frame")
		return
	}
	if frame.Type == "" {
		a.sendError(conn, ErrCodeBadMessage, "missing message type")
		return
	}

	switch frame.Type {
	case MsgPing:
		a.sendToConn(conn, PongMessage{
			Type:            MsgPong,
			ClientTimestamp: frame.Timestamp,
			ServerTimestamp: nowMs(),
		})
		return
	case MsgJoin:
		a.handleJoin(conn, frame.PlayerName)
		return
	case MsgReconnect:
		a.handleReconnect(conn, frame.PlayerID)
		return
	}

	// Everything below requires a bound player.
	player := a.playerByConn(conn)
	if player == nil {
		a.sendError(conn, ErrCodeUnauthorized, "no player bound to this connection")
		return
	}

	switch frame.Type {
	case MsgLeave:
		a.handleLeave(player)
	case MsgSetConfig:
		a.handleSetConfig(player, frame.Config)
	case MsgStartGame:
		a.handleStartGame(player, frame.Config)
	case MsgMatchAttempt:
		a.handleMatchAttempt(player, frame.SymbolID, frame.ClientTimestamp)
	case MsgPlayAgain:
		a.handlePlayAgain(player)
	default:
		a.sendError(conn, ErrCodeBadMessage, fmt.Sprintf("unknown message type %q", frame.Type))
	}
}

// --- Join / Reconnect ---

func (a *RoomActor) handleJoin(conn *websocket.Conn, requestedName string) {
	// Race rule: once a stream has a Player bound, later join messages on
	// the same stream are silently ignored. This defeats the client retry
	// that sends both a reconnect and a fallback join.
	if _, bound := a.connToPlayer[conn]; bound {
		return
	}

	if a.phase != PhaseWaiting && a.phase != PhaseGameOver {
		a.rejectConn(conn, ErrCodeGameInProgress, "game already in progress")
		return
	}
	if len(a.players) >= a.cfg.MaxPlayersPerRoom {
		a.rejectConn(conn, ErrCodeRoomFull, "room is full")
		return
	}

	name := strings.TrimSpace(requestedName)
	if name == "" {
		name = "Player"
	}

	player := NewPlayer(a.uniqueName(name), conn)
	a.players[player.ID] = player
	a.joinOrder = append(a.joinOrder, player.ID)
	a.connToPlayer[conn] = player.ID
	delete(a.unbound, conn)

	a.ensureHost()
	if a.phase == PhaseWaiting {
		a.armRoomIdleTimer()
	}

	fmt.Printf("RoomActor %s: player %s (%s) joined (%d in roster).\n", a.code, player.Name, player.ID, len(a.players))

	a.sendToPlayer(player, a.roomStateFor(player))
	a.broadcastExcept(player.ID, PlayerJoinedMessage{Type: MsgPlayerJoined, Player: a.viewOf(player, false)})

	a.maybeAutoStart()
}

func (a *RoomActor) handleReconnect(conn *websocket.Conn, priorID string) {
	// Same race rule as join: a bound stream ignores further binds.
	if _, bound := a.connToPlayer[conn]; bound {
		return
	}

	player := a.players[priorID]
	if player == nil || player.Status != StatusDisconnected {
		a.rejectConn(conn, ErrCodeGameInProgress, "cannot reconnect with that player id")
		return
	}

	player.Conn = conn
	player.Status = StatusConnected
	player.DisconnectDeadline = time.Time{}
	a.connToPlayer[conn] = player.ID
	delete(a.unbound, conn)
	a.cancelTimer(timerGrace, player.ID)

	a.ensureHost()
	if a.phase == PhaseWaiting {
		a.armRoomIdleTimer()
	}
	// A round may have stalled waiting for this player; get it moving again.
	if a.phase == PhaseRoundEnd && a.connectedCount() >= 2 {
		a.armTimer(timerInterRound, "", a.cfg.InterRoundDelay)
	}

	fmt.Printf("RoomActor %s: player %s (%s) reconnected.\n", a.code, player.Name, player.ID)

	// No player_joined here: the roster never changed. Everyone just gets a
	// fresh personalized view.
	a.broadcastRoomState()

	// A reconnect can be the message that brings the room up to the
	// configured target.
	a.maybeAutoStart()
}

// uniqueName resolves duplicates by suffixing " 2", " 3", ...
func (a *RoomActor) uniqueName(base string) string {
	taken := func(name string) bool {
		for _, p := range a.players {
			if p.Name == name {
				return true
			}
		}
		return false
	}
	if !taken(base) {
		return base
	}
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s %d", base, i)
		if !taken(candidate) {
			return candidate
		}
	}
}

// rejectConn sends a capacity error and closes the stream.
func (a *RoomActor) rejectConn(conn *websocket.Conn, code, message string) {
	a.sendError(conn, code, message)
	delete(a.unbound, conn)
	a.engine.Send(a.broadcasterPID, CloseClient{Conn: conn}, a.selfPID)
}

// --- Leave / Disconnect ---

func (a *RoomActor) handleLeave(player *Player) {
	fmt.Printf("RoomActor %s: player %s (%s) left.\n", a.code, player.Name, player.ID)

	conn := player.Conn

	if a.phase == PhaseGameOver {
		// Terminal phase: drop the roster entry but never re-evaluate
		// game over. The rematch set and the rejoin deadline are part of
		// the already-announced outcome.
		a.removePlayer(player)
		if conn != nil {
			a.engine.Send(a.broadcasterPID, CloseClient{Conn: conn}, a.selfPID)
		}
		return
	}

	a.removePlayer(player)
	if conn != nil {
		a.engine.Send(a.broadcasterPID, CloseClient{Conn: conn}, a.selfPID)
	}
	a.afterRosterShrink()
}

func (a *RoomActor) handleClientClosed(conn *websocket.Conn) {
	if conn == nil || a.destroyed {
		return
	}
	if a.unbound[conn] {
		delete(a.unbound, conn)
		a.engine.Send(a.broadcasterPID, RemoveClient{Conn: conn}, a.selfPID)
		return
	}

	playerID, bound := a.connToPlayer[conn]
	if !bound {
		return
	}
	player := a.players[playerID]
	delete(a.connToPlayer, conn)
	a.engine.Send(a.broadcasterPID, RemoveClient{Conn: conn}, a.selfPID)
	if player == nil {
		return
	}

	player.Conn = nil
	player.Status = StatusDisconnected

	fmt.Printf("RoomActor %s: player %s (%s) disconnected.\n", a.code, player.Name, player.ID)
	a.broadcastFrame(PlayerDisconnectedMessage{Type: MsgPlayerDisconnected, PlayerID: player.ID})
	a.ensureHost()

	switch a.phase {
	case PhaseGameOver:
		// The rejoin window already bounds this player's fate; no grace
		// timer on top of it.
	case PhaseCountdown:
		player.DisconnectDeadline = time.Now().Add(a.cfg.DisconnectGrace)
		a.armTimer(timerGrace, player.ID, a.cfg.DisconnectGrace)
		if a.connectedCount() < 2 {
			a.cancelCountdown()
		}
	default:
		player.DisconnectDeadline = time.Now().Add(a.cfg.DisconnectGrace)
		a.armTimer(timerGrace, player.ID, a.cfg.DisconnectGrace)
	}
}

// handleGraceExpired fires when a disconnected player ran out their grace
// period: they lose their seat for good.
func (a *RoomActor) handleGraceExpired(playerID string) {
	player := a.players[playerID]
	if player == nil || player.Status == StatusConnected {
		return
	}
	fmt.Printf("RoomActor %s: grace expired for %s (%s).\n", a.code, player.Name, playerID)
	a.removePlayer(player)
	a.afterRosterShrink()
}

// removePlayer drops a player from the roster, discards their hand and
// announces the departure. Phase consequences are the caller's business.
func (a *RoomActor) removePlayer(player *Player) {
	if player.Hand != nil {
		// The card leaves play entirely.
		a.dealtCount--
		player.Hand = nil
	}
	if player.Conn != nil {
		delete(a.connToPlayer, player.Conn)
		player.Conn = nil
	}
	a.cancelTimer(timerGrace, player.ID)
	delete(a.players, player.ID)
	for i, id := range a.joinOrder {
		if id == player.ID {
			a.joinOrder = append(a.joinOrder[:i], a.joinOrder[i+1:]...)
			break
		}
	}
	a.broadcastFrame(PlayerLeftMessage{Type: MsgPlayerLeft, PlayerID: player.ID})
	a.ensureHost()
}

// afterRosterShrink applies the phase consequences of losing a roster entry
// outside GAME_OVER.
func (a *RoomActor) afterRosterShrink() {
	switch a.phase {
	case PhaseCountdown:
		if a.connectedCount() < 2 {
			a.cancelCountdown()
		}
	case PhasePlaying, PhaseRoundEnd:
		if a.connectedCount() < 2 {
			a.endGameLastPlayerStanding()
		}
	}
}

// ensureHost enforces: exactly one host iff at least one player is
// connected. Succession follows join order among connected players.
func (a *RoomActor) ensureHost() {
	var currentHost *Player
	for _, p := range a.players {
		if p.IsHost {
			currentHost = p
			break
		}
	}
	if currentHost != nil && currentHost.Connected() {
		return
	}

	var successor *Player
	for _, id := range a.joinOrder {
		if p := a.players[id]; p != nil && p.Connected() {
			successor = p
			break
		}
	}

	if successor == nil {
		if currentHost != nil {
			currentHost.IsHost = false
		}
		return
	}
	if currentHost != nil {
		currentHost.IsHost = false
	}
	successor.IsHost = true
	fmt.Printf("RoomActor %s: host is now %s (%s).\n", a.code, successor.Name, successor.ID)
	a.broadcastFrame(HostChangedMessage{Type: MsgHostChanged, PlayerID: successor.ID})
}

// --- Config / Start ---

func (a *RoomActor) handleSetConfig(player *Player, update *RoomConfig) {
	if a.phase != PhaseWaiting {
		a.sendErrorToPlayer(player, ErrCodeInvalidState, "config can only change while waiting")
		return
	}
	if !player.IsHost {
		a.sendErrorToPlayer(player, ErrCodeUnauthorized, "only the host can change the config")
		return
	}
	if update == nil {
		a.sendErrorToPlayer(player, ErrCodeBadMessage, "set_config requires a config payload")
		return
	}
	if err := update.Validate(); err != nil {
		a.sendErrorToPlayer(player, ErrCodeBadMessage, err.Error())
		return
	}

	a.config = *update
	a.armRoomIdleTimer()
	a.broadcastFrame(ConfigUpdatedMessage{Type: MsgConfigUpdated, Config: a.config})
	a.maybeAutoStart()
}

func (a *RoomActor) handleStartGame(player *Player, update *RoomConfig) {
	if a.phase != PhaseWaiting {
		a.sendErrorToPlayer(player, ErrCodeInvalidState, "game can only start from the waiting phase")
		return
	}
	if !player.IsHost {
		a.sendErrorToPlayer(player, ErrCodeUnauthorized, "only the host can start the game")
		return
	}
	if update != nil {
		if err := update.Validate(); err != nil {
			a.sendErrorToPlayer(player, ErrCodeBadMessage, err.Error())
			return
		}
		a.config = *update
		a.broadcastFrame(ConfigUpdatedMessage{Type: MsgConfigUpdated, Config: a.config})
	}
	if a.connectedCount() < 2 {
		a.sendErrorToPlayer(player, ErrCodeInvalidState, "need at least 2 connected players")
		return
	}
	a.startCountdown()
}

// maybeAutoStart begins the countdown when the connected count reaches the
// configured target. The >=2 guard still applies: auto-start must never slip
// through after a grace-period disconnect.
func (a *RoomActor) maybeAutoStart() {
	if a.phase != PhaseWaiting || a.config.TargetPlayers == 0 {
		return
	}
	connected := a.connectedCount()
	if connected >= 2 && connected >= a.config.TargetPlayers {
		a.startCountdown()
	}
}

// --- Helpers ---

func (a *RoomActor) playerByConn(conn *websocket.Conn) *Player {
	id, ok := a.connToPlayer[conn]
	if !ok {
		return nil
	}
	return a.players[id]
}

func (a *RoomActor) connectedCount() int {
	count := 0
	for _, p := range a.players {
		if p.Connected() {
			count++
		}
	}
	return count
}

func nowMs() int64 {
	return time.Now().UnixMilli()
}
