// File: game/messages.go
package game

import (
	"fmt"

	"github.com/lguibr/matchbox/bollywood"
	"golang.org/x/net/websocket"
)

// --- Room configuration ---

// RoomConfig is the host-adjustable game setup.
type RoomConfig struct {
	CardDifficulty Difficulty `json:"cardDifficulty"`
	GameDuration   int        `json:"gameDuration"`
	CardSetID      string     `json:"cardSetId"`
	TargetPlayers  int        `json:"targetPlayers,omitempty"`
}

// DefaultRoomConfig is the setup a fresh room starts with.
func DefaultRoomConfig() RoomConfig {
	return RoomConfig{
		CardDifficulty: DifficultyEasy,
		GameDuration:   25,
		CardSetID:      "classic",
	}
}

// Validate checks the config against the supported values.
func (c RoomConfig) Validate() error {
	if !c.CardDifficulty.Valid() {
		return fmt.Errorf("unknown cardDifficulty %q", c.CardDifficulty)
	}
	switch c.GameDuration {
	case 10, 25, 50:
	default:
		return fmt.Errorf("gameDuration must be 10, 25 or 50, got %d", c.GameDuration)
	}
	if c.CardSetID == "" {
		return fmt.Errorf("cardSetId must not be empty")
	}
	if c.TargetPlayers != 0 && (c.TargetPlayers < 2 || c.TargetPlayers > 8) {
		return fmt.Errorf("targetPlayers must be between 2 and 8, got %d", c.TargetPlayers)
	}
	return nil
}

// --- Phases ---

// Phase is the room's state machine position.
type Phase string

const (
	PhaseWaiting   Phase = "WAITING"
	PhaseCountdown Phase = "COUNTDOWN"
	PhasePlaying   Phase = "PLAYING"
	PhaseRoundEnd  Phase = "ROUND_END"
	PhaseGameOver  Phase = "GAME_OVER"
)

// --- Wire Messages (Client <-> Server) ---

// Inbound message types.
const (
	MsgJoin         = "join"
	MsgReconnect    = "reconnect"
	MsgLeave        = "leave"
	MsgSetConfig    = "set_config"
	MsgStartGame    = "start_game"
	MsgMatchAttempt = "match_attempt"
	MsgPlayAgain    = "play_again"
	MsgPing         = "ping"
)

// Outbound message types.
const (
	MsgRoomState          = "room_state"
	MsgPlayerJoined       = "player_joined"
	MsgPlayerLeft         = "player_left"
	MsgPlayerDisconnected = "player_disconnected"
	MsgHostChanged        = "host_changed"
	MsgConfigUpdated      = "config_updated"
	MsgCountdown          = "countdown"
	MsgRoundStart         = "round_start"
	MsgRoundWinner        = "round_winner"
	MsgPenalty            = "penalty"
	MsgGameOver           = "game_over"
	MsgPlayAgainAck       = "play_again_ack"
	MsgSoloRejoinBoot     = "solo_rejoin_boot"
	MsgRoomExpired        = "room_expired"
	MsgPong               = "pong"
	MsgError              = "error"
)

// Error codes carried by ErrorMessage.
const (
	ErrCodeRoomFull       = "ROOM_FULL"
	ErrCodeGameInProgress = "GAME_IN_PROGRESS"
	ErrCodeInvalidState   = "INVALID_STATE"
	ErrCodeUnauthorized   = "UNAUTHORIZED"
	ErrCodeBadMessage     = "BAD_MESSAGE"
)

// Game-over reasons.
const (
	ReasonDeckExhausted      = "deck_exhausted"
	ReasonLastPlayerStanding = "last_player_standing"
)

// InboundFrame is the single decode target for every client frame. The Type
// field selects which payload fields are meaningful.
type InboundFrame struct {
	Type            string      `json:"type"`
	PlayerName      string      `json:"playerName,omitempty"`
	PlayerID        string      `json:"playerId,omitempty"`
	Config          *RoomConfig `json:"config,omitempty"`
	SymbolID        *int        `json:"symbolId,omitempty"`
	ClientTimestamp int64       `json:"clientTimestamp,omitempty"`
	Timestamp       int64       `json:"timestamp,omitempty"`
}

// PlayerView is the roster entry projected to a recipient. IsYou is computed
// per recipient at emission time, never stored.
type PlayerView struct {
	ID     string       `json:"id"`
	Name   string       `json:"name"`
	IsHost bool         `json:"isHost"`
	IsYou  bool         `json:"isYou"`
	Status PlayerStatus `json:"status"`
	Score  int          `json:"score"`
}

// ScoreEntry is one row of a scoreboard.
type ScoreEntry struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
	Score    int    `json:"score"`
}

// RoomStateMessage is the full per-recipient view of the room.
type RoomStateMessage struct {
	Type          string       `json:"type"` // "room_state"
	Phase         Phase        `json:"phase"`
	Players       []PlayerView `json:"players"`
	Config        RoomConfig   `json:"config"`
	RoomExpiresAt int64        `json:"roomExpiresAt,omitempty"`
	CenterCard    *Card        `json:"centerCard,omitempty"`
	YourCard      *Card        `json:"yourCard,omitempty"`
	DeckRemaining *int         `json:"deckRemaining,omitempty"`
	RoundNumber   *int         `json:"roundNumber,omitempty"`
}

// PlayerJoinedMessage announces a new roster entry to the other players.
type PlayerJoinedMessage struct {
	Type   string     `json:"type"` // "player_joined"
	Player PlayerView `json:"player"`
}

// PlayerLeftMessage announces a roster removal.
type PlayerLeftMessage struct {
	Type     string `json:"type"` // "player_left"
	PlayerID string `json:"playerId"`
}

// PlayerDisconnectedMessage announces a player entering their grace period.
type PlayerDisconnectedMessage struct {
	Type     string `json:"type"` // "player_disconnected"
	PlayerID string `json:"playerId"`
}

// HostChangedMessage announces host succession.
type HostChangedMessage struct {
	Type     string `json:"type"` // "host_changed"
	PlayerID string `json:"playerId"`
}

// ConfigUpdatedMessage carries the new room config.
type ConfigUpdatedMessage struct {
	Type   string     `json:"type"` // "config_updated"
	Config RoomConfig `json:"config"`
}

// CountdownMessage ticks the pre-game countdown. Seconds == -1 signals
// cancellation.
type CountdownMessage struct {
	Type    string `json:"type"` // "countdown"
	Seconds int    `json:"seconds"`
}

// RoundStartMessage opens a round. YourCard is personalized per recipient.
type RoundStartMessage struct {
	Type          string `json:"type"` // "round_start"
	RoundNumber   int    `json:"roundNumber"`
	YourCard      *Card  `json:"yourCard"`
	CenterCard    *Card  `json:"centerCard"`
	DeckRemaining int    `json:"deckRemaining"`
}

// RoundWinnerMessage closes a round.
type RoundWinnerMessage struct {
	Type        string       `json:"type"` // "round_winner"
	WinnerID    string       `json:"winnerId"`
	SymbolID    int          `json:"symbolId"`
	RoundNumber int          `json:"roundNumber"`
	Scores      []ScoreEntry `json:"scores"`
}

// PenaltyMessage is sent only to the offending player.
type PenaltyMessage struct {
	Type            string `json:"type"` // "penalty"
	DurationMs      int64  `json:"durationMs"`
	ServerTimestamp int64  `json:"serverTimestamp"`
}

// GameOverMessage terminates a game and opens the rejoin window.
type GameOverMessage struct {
	Type           string       `json:"type"` // "game_over"
	Reason         string       `json:"reason"`
	FinalScores    []ScoreEntry `json:"finalScores"`
	BonusAwarded   int          `json:"bonusAwarded,omitempty"`
	RejoinWindowMs int64        `json:"rejoinWindowMs"`
}

// PlayAgainAckMessage confirms a rematch request.
type PlayAgainAckMessage struct {
	Type     string `json:"type"` // "play_again_ack"
	PlayerID string `json:"playerId"`
}

// SoloRejoinBootMessage tells the lone remaining player no rematch happened.
type SoloRejoinBootMessage struct {
	Type    string `json:"type"` // "solo_rejoin_boot"
	Message string `json:"message"`
}

// RoomExpiredMessage is the terminal frame before the room closes every
// remaining connection.
type RoomExpiredMessage struct {
	Type   string `json:"type"` // "room_expired"
	Reason string `json:"reason"`
}

// PongMessage reflects a ping. Client timestamps are for RTT display only.
type PongMessage struct {
	Type            string `json:"type"` // "pong"
	ClientTimestamp int64  `json:"clientTimestamp"`
	ServerTimestamp int64  `json:"serverTimestamp"`
}

// ErrorMessage reports a protocol or capacity error.
type ErrorMessage struct {
	Type    string `json:"type"` // "error"
	Code    string `json:"code"`
	Message string `json:"message"`
}

// --- Actor Messages (Internal Communication) ---

// --- RoomManagerActor Messages ---

// ResolveRoomRequest asks the RoomManager for the room with the given code,
// creating it when absent. Sent via Ask.
type ResolveRoomRequest struct {
	Code string
}

// ResolveRoomResponse is the reply to ResolveRoomRequest. RoomPID is nil
// when no room could be resolved; Reason says why.
type ResolveRoomResponse struct {
	RoomPID *bollywood.PID
	Code    string
	Reason  string
}

// CreateRoomRequest asks the RoomManager to allocate a fresh room under a
// generated unused code. Sent via Ask.
type CreateRoomRequest struct{}

// CreateRoomResponse is the reply to CreateRoomRequest.
type CreateRoomResponse struct {
	Code    string
	RoomPID *bollywood.PID
	Reason  string
}

// RoomClosed notifies the RoomManager that a room destroyed itself.
type RoomClosed struct {
	Code string
}

// GetRoomListRequest asks the RoomManager for active room summaries. Sent
// via Ask by the HTTP handler.
type GetRoomListRequest struct{}

// RoomSummary is one row of the room list.
type RoomSummary struct {
	Code    string `json:"code"`
	Players int    `json:"players"`
	Phase   Phase  `json:"phase"`
}

// RoomListResponse is the reply to GetRoomListRequest.
type RoomListResponse struct {
	Rooms []RoomSummary `json:"rooms"`
}

// --- RoomActor Messages ---

// ClientAttached tells the RoomActor a new stream reached the room. The
// stream is unbound until a join or reconnect succeeds. ReconnectID carries
// the optional reconnectId URL parameter.
type ClientAttached struct {
	Conn        *websocket.Conn
	ReconnectID string
}

// ClientFrame wraps one raw frame read from a stream.
type ClientFrame struct {
	Conn *websocket.Conn
	Data []byte
}

// ClientClosed tells the RoomActor a stream is gone. The room decides
// whether that means a grace period or nothing at all.
type ClientClosed struct {
	Conn *websocket.Conn
}

// timerKind discriminates the room's one-shot timers.
type timerKind string

const (
	timerRoomIdle   timerKind = "roomIdle"
	timerCountdown  timerKind = "countdown"
	timerInterRound timerKind = "interRound"
	timerGrace      timerKind = "grace"
	timerRejoin     timerKind = "rejoinWindow"
)

// timerFired is posted into the room mailbox by a timer goroutine. A firing
// whose generation lost a rearm race is dropped.
type timerFired struct {
	Kind     timerKind
	PlayerID string // only for timerGrace
	Gen      uint64
}

// internalGetStateRequest asks a RoomActor for a state snapshot (tests and
// diagnostics). Sent via Ask.
type internalGetStateRequest struct{}

// internalGetSummaryRequest asks a RoomActor for its room-list row. Sent via
// Ask by the RoomManager.
type internalGetSummaryRequest struct{}

// --- BroadcasterActor Messages ---

// AddClient registers a stream with the broadcaster and starts its writer.
type AddClient struct {
	Conn *websocket.Conn
}

// RemoveClient detaches a stream without closing it.
type RemoveClient struct {
	Conn *websocket.Conn
}

// SendFrame queues one frame for one stream.
type SendFrame struct {
	Conn  *websocket.Conn
	Frame interface{}
}

// CloseClient detaches a stream and closes it after the queued frames drain.
type CloseClient struct {
	Conn *websocket.Conn
}

// CloseAll detaches and closes every stream after queued frames drain.
type CloseAll struct{}
