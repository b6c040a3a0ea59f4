// File: game/room_actor.go
package game

import (
	"fmt"
	"math/rand"
	"runtime/debug"
	"time"

	"github.com/lguibr/matchbox/bollywood"
	"github.com/lguibr/matchbox/utils"
	"golang.org/x/net/websocket"
)

// RoomActor is the authoritative state machine for one room. Every inbound
// frame, stream event and timer firing for the room enters its single
// mailbox, so handlers never race each other: arbitration order is mailbox
// order.
type RoomActor struct {
	cfg    utils.Config
	code   string
	engine *bollywood.Engine

	managerPID     *bollywood.PID
	broadcasterPID *bollywood.PID
	selfPID        *bollywood.PID

	phase        Phase
	config       RoomConfig
	players      map[string]*Player
	joinOrder    []string
	connToPlayer map[*websocket.Conn]string
	unbound      map[*websocket.Conn]bool

	deck        Deck
	centerCard  *Card
	dealtCount  int
	roundNumber int

	playersWantRematch map[string]bool
	expiresAt          time.Time

	rng *rand.Rand

	timerGens          map[string]uint64
	countdownRemaining int
	gameOverBonus      int

	destroyed bool
}

// NewRoomActorProducer creates a producer for a RoomActor. broadcasterPID
// may be nil, in which case the room spawns its own broadcaster on Started
// (tests inject a recording one).
func NewRoomActorProducer(engine *bollywood.Engine, cfg utils.Config, code string, managerPID, broadcasterPID *bollywood.PID, seed int64) bollywood.Producer {
	return func() bollywood.Actor {
		return &RoomActor{
			cfg:                cfg,
			code:               code,
			engine:             engine,
			managerPID:         managerPID,
			broadcasterPID:     broadcasterPID,
			phase:              PhaseWaiting,
			config:             DefaultRoomConfig(),
			players:            make(map[string]*Player),
			connToPlayer:       make(map[*websocket.Conn]string),
			unbound:            make(map[*websocket.Conn]bool),
			playersWantRematch: make(map[string]bool),
			rng:                rand.New(rand.NewSource(seed)),
			timerGens:          make(map[string]uint64),
		}
	}
}

// Receive is the main message handler for the RoomActor.
func (a *RoomActor) Receive(ctx bollywood.Context) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Printf("PANIC recovered in RoomActor %s Receive: %v\nStack trace:\n%s\n", a.code, r, string(debug.Stack()))
			if ctx.RequestID() != "" {
				ctx.Reply(fmt.Errorf("room %s panicked: %v", a.code, r))
			}
			// An invariant violation is local to the room: terminate it,
			// never the neighbors.
			a.destroyRoom("internal", nil)
		}
	}()

	if a.selfPID == nil {
		a.selfPID = ctx.Self()
	}

	switch msg := ctx.Message().(type) {
	case bollywood.Started:
		fmt.Printf("RoomActor %s: Started.\n", a.code)
		if a.broadcasterPID == nil {
			a.broadcasterPID = a.engine.Spawn(bollywood.NewProps(NewBroadcasterProducer(a.selfPID, a.cfg.OutboundBufferSize)))
		}
		a.armRoomIdleTimer()

	case ClientAttached:
		a.handleClientAttached(msg.Conn, msg.ReconnectID)

	case ClientFrame:
		a.handleClientFrame(msg.Conn, msg.Data)

	case ClientClosed:
		a.handleClientClosed(msg.Conn)

	case timerFired:
		a.handleTimerFired(msg)

	case internalGetStateRequest:
		ctx.Reply(a.snapshot())

	case internalGetSummaryRequest:
		ctx.Reply(RoomSummary{Code: a.code, Players: a.connectedCount(), Phase: a.phase})

	case bollywood.Stopping:
		fmt.Printf("RoomActor %s: Stopping.\n", a.code)
		a.destroyed = true
		if a.broadcasterPID != nil {
			a.engine.Stop(a.broadcasterPID)
		}

	case bollywood.Stopped:
		fmt.Printf("RoomActor %s: Stopped.\n", a.code)

	default:
		fmt.Printf("RoomActor %s: Received unknown message type: %T\n", a.code, msg)
		if ctx.RequestID() != "" {
			ctx.Reply(fmt.Errorf("unknown message type: %T", msg))
		}
	}
}

// --- Timers ---

// Timers are one-shot goroutines that post timerFired back into the room
// mailbox, so their effects are serialized with everything else. Arming (or
// canceling) bumps the generation; a firing carrying a stale generation lost
// the race and is dropped.

func timerKey(kind timerKind, playerID string) string {
	if playerID == "" {
		return string(kind)
	}
	return string(kind) + ":" + playerID
}

func (a *RoomActor) armTimer(kind timerKind, playerID string, d time.Duration) {
	key := timerKey(kind, playerID)
	a.timerGens[key]++
	gen := a.timerGens[key]
	engine := a.engine
	selfPID := a.selfPID
	go func() {
		time.Sleep(d)
		engine.Send(selfPID, timerFired{Kind: kind, PlayerID: playerID, Gen: gen}, nil)
	}()
}

// cancelTimer is idempotent: it only bumps the generation.
func (a *RoomActor) cancelTimer(kind timerKind, playerID string) {
	a.timerGens[timerKey(kind, playerID)]++
}

func (a *RoomActor) timerIsCurrent(msg timerFired) bool {
	return a.timerGens[timerKey(msg.Kind, msg.PlayerID)] == msg.Gen
}

func (a *RoomActor) handleTimerFired(msg timerFired) {
	if a.destroyed || !a.timerIsCurrent(msg) {
		return
	}
	switch msg.Kind {
	case timerRoomIdle:
		a.handleRoomIdleExpired()
	case timerCountdown:
		a.handleCountdownTick()
	case timerInterRound:
		a.handleInterRoundExpired()
	case timerGrace:
		a.handleGraceExpired(msg.PlayerID)
	case timerRejoin:
		a.handleRejoinWindowExpired()
	}
}

// armRoomIdleTimer (re)arms destruction at now + idle timeout. The idle
// timer only runs while the room sits in WAITING; countdown, play and the
// rejoin window have their own clocks.
func (a *RoomActor) armRoomIdleTimer() {
	a.expiresAt = time.Now().Add(a.cfg.RoomIdleTimeout)
	a.armTimer(timerRoomIdle, "", a.cfg.RoomIdleTimeout)
}

func (a *RoomActor) handleRoomIdleExpired() {
	if a.phase != PhaseWaiting {
		return
	}
	fmt.Printf("RoomActor %s: idle timeout, destroying room.\n", a.code)
	a.destroyRoom("idle_timeout", nil)
}

// --- Destruction ---

// destroyRoom is the single terminal path. soloBootConn, when set, receives
// solo_rejoin_boot instead of room_expired. Everything else gets
// room_expired{reason}, then all streams are drained and closed and the
// directory forgets the room.
func (a *RoomActor) destroyRoom(reason string, soloBootConn *websocket.Conn) {
	if a.destroyed {
		return
	}
	a.destroyed = true
	fmt.Printf("RoomActor %s: destroying (reason=%s).\n", a.code, reason)

	for conn := range a.connToPlayer {
		if conn == soloBootConn {
			a.sendToConn(conn, SoloRejoinBootMessage{
				Type:    MsgSoloRejoinBoot,
				Message: "no other player rejoined in time",
			})
			continue
		}
		a.sendToConn(conn, RoomExpiredMessage{Type: MsgRoomExpired, Reason: reason})
	}
	for conn := range a.unbound {
		a.sendToConn(conn, RoomExpiredMessage{Type: MsgRoomExpired, Reason: reason})
	}

	if a.broadcasterPID != nil {
		a.engine.Send(a.broadcasterPID, CloseAll{}, a.selfPID)
	}
	if a.managerPID != nil {
		a.engine.Send(a.managerPID, RoomClosed{Code: a.code}, a.selfPID)
	}
	if a.selfPID != nil {
		a.engine.Stop(a.selfPID)
	}
}

// --- Snapshot (tests/diagnostics) ---

type roomSnapshot struct {
	Code           string
	Phase          Phase
	Config         RoomConfig
	JoinOrder      []string
	Players        map[string]playerSnapshot
	HostID         string
	CenterSymbols  []int
	DeckRemaining  int
	DealtCount     int
	RoundNumber    int
	RematchVotes   map[string]bool
	ConnectedCount int
	BonusAwarded   int
}

type playerSnapshot struct {
	ID           string
	Name         string
	IsHost       bool
	Status       PlayerStatus
	Score        int
	HandSymbols  []int
	PenaltyUntil time.Time
}

func (a *RoomActor) snapshot() roomSnapshot {
	snap := roomSnapshot{
		Code:           a.code,
		Phase:          a.phase,
		Config:         a.config,
		JoinOrder:      append([]string(nil), a.joinOrder...),
		Players:        make(map[string]playerSnapshot, len(a.players)),
		DeckRemaining:  len(a.deck),
		DealtCount:     a.dealtCount,
		RoundNumber:    a.roundNumber,
		RematchVotes:   make(map[string]bool, len(a.playersWantRematch)),
		ConnectedCount: a.connectedCount(),
		BonusAwarded:   a.gameOverBonus,
	}
	for id := range a.playersWantRematch {
		snap.RematchVotes[id] = true
	}
	if a.centerCard != nil {
		snap.CenterSymbols = symbolIDs(a.centerCard)
	}
	for id, p := range a.players {
		ps := playerSnapshot{
			ID:           p.ID,
			Name:         p.Name,
			IsHost:       p.IsHost,
			Status:       p.Status,
			Score:        p.Score,
			PenaltyUntil: p.PenaltyUntil,
		}
		if p.Hand != nil {
			ps.HandSymbols = symbolIDs(p.Hand)
		}
		snap.Players[id] = ps
		if p.IsHost {
			snap.HostID = p.ID
		}
	}
	return snap
}

func symbolIDs(c *Card) []int {
	ids := make([]int, len(c.Symbols))
	for i, s := range c.Symbols {
		ids[i] = s.ID
	}
	return ids
}
