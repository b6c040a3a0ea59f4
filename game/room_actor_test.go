// File: game/room_actor_test.go
package game

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/lguibr/matchbox/bollywood"
	"github.com/lguibr/matchbox/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"
)

// --- Recording broadcaster ---

// recordingBroadcaster stands in for the BroadcasterActor and captures every
// outbound frame instead of writing to sockets.
type recordingBroadcaster struct {
	mu     sync.Mutex
	events []interface{}
}

func (a *recordingBroadcaster) Receive(ctx bollywood.Context) {
	switch ctx.Message().(type) {
	case bollywood.Started, bollywood.Stopping, bollywood.Stopped:
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, ctx.Message())
}

// framesFor returns the frames queued for one connection, in order.
func (a *recordingBroadcaster) framesFor(conn *websocket.Conn) []interface{} {
	a.mu.Lock()
	defer a.mu.Unlock()
	var frames []interface{}
	for _, ev := range a.events {
		if send, ok := ev.(SendFrame); ok && send.Conn == conn {
			frames = append(frames, send.Frame)
		}
	}
	return frames
}

func (a *recordingBroadcaster) sawCloseAll() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, ev := range a.events {
		if _, ok := ev.(CloseAll); ok {
			return true
		}
	}
	return false
}

func (a *recordingBroadcaster) sawCloseClient(conn *websocket.Conn) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, ev := range a.events {
		if closeMsg, ok := ev.(CloseClient); ok && closeMsg.Conn == conn {
			return true
		}
	}
	return false
}

// findFrame returns the first frame of type T among the given frames.
func findFrame[T any](frames []interface{}) (T, bool) {
	for _, f := range frames {
		if typed, ok := f.(T); ok {
			return typed, true
		}
	}
	var zero T
	return zero, false
}

// lastFrame returns the last frame of type T among the given frames.
func lastFrame[T any](frames []interface{}) (T, bool) {
	for i := len(frames) - 1; i >= 0; i-- {
		if typed, ok := frames[i].(T); ok {
			return typed, true
		}
	}
	var zero T
	return zero, false
}

// waitFrame polls the recorder until a frame of type T is visible for conn.
// Frames reach the recorder asynchronously, so a bare findFrame right after
// an Ask-observed state change races the recorder's mailbox drain.
func waitFrame[T any](f *roomFixture, conn *websocket.Conn) (T, bool) {
	deadline := time.Now().Add(statePollTimeout)
	for {
		frame, ok := findFrame[T](f.recorder.framesFor(conn))
		if ok || time.Now().After(deadline) {
			return frame, ok
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// waitLastFrame is waitFrame for assertions on the last frame of a type.
func waitLastFrame[T any](f *roomFixture, conn *websocket.Conn) (T, bool) {
	deadline := time.Now().Add(statePollTimeout)
	for {
		frame, ok := lastFrame[T](f.recorder.framesFor(conn))
		if ok || time.Now().After(deadline) {
			return frame, ok
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// --- Fixture ---

const statePollTimeout = 3 * time.Second

type roomFixture struct {
	t        *testing.T
	engine   *bollywood.Engine
	roomPID  *bollywood.PID
	recorder *recordingBroadcaster
}

func testConfig() utils.Config {
	cfg := utils.DefaultConfig()
	cfg.CountdownSeconds = 2
	cfg.CountdownTickInterval = 25 * time.Millisecond
	cfg.InterRoundDelay = 40 * time.Millisecond
	cfg.PenaltyDuration = 150 * time.Millisecond
	cfg.DisconnectGrace = 300 * time.Millisecond
	cfg.RejoinWindow = 150 * time.Millisecond
	cfg.RoomIdleTimeout = 5 * time.Second
	return cfg
}

func setupRoom(t *testing.T, cfg utils.Config) *roomFixture {
	engine := bollywood.NewEngine()
	recorder := &recordingBroadcaster{}
	recorderPID := engine.Spawn(bollywood.NewProps(func() bollywood.Actor { return recorder }))
	require.NotNil(t, recorderPID)

	roomPID := engine.Spawn(bollywood.NewProps(NewRoomActorProducer(engine, cfg, "TEST", nil, recorderPID, 1)))
	require.NotNil(t, roomPID)

	t.Cleanup(func() { engine.Shutdown(2 * time.Second) })
	return &roomFixture{t: t, engine: engine, roomPID: roomPID, recorder: recorder}
}

func (f *roomFixture) attach(conn *websocket.Conn) {
	f.engine.Send(f.roomPID, ClientAttached{Conn: conn}, nil)
}

func (f *roomFixture) frame(conn *websocket.Conn, payload string) {
	f.engine.Send(f.roomPID, ClientFrame{Conn: conn, Data: []byte(payload)}, nil)
}

func (f *roomFixture) join(conn *websocket.Conn, name string) {
	f.attach(conn)
	f.frame(conn, fmt.Sprintf(`{"type":"join","playerName":%q}`, name))
}

func (f *roomFixture) state() (roomSnapshot, error) {
	result, err := f.engine.Ask(f.roomPID, internalGetStateRequest{}, time.Second)
	if err != nil {
		return roomSnapshot{}, err
	}
	return result.(roomSnapshot), nil
}

// waitState polls the room until cond holds or the deadline passes.
func (f *roomFixture) waitState(desc string, cond func(roomSnapshot) bool) roomSnapshot {
	f.t.Helper()
	deadline := time.Now().Add(statePollTimeout)
	var last roomSnapshot
	for time.Now().Before(deadline) {
		snap, err := f.state()
		if err == nil {
			last = snap
			if cond(snap) {
				return snap
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	f.t.Fatalf("timed out waiting for %s; last snapshot: %+v", desc, last)
	return last
}

// settle gives the recorder time to drain frames already queued, so negative
// assertions don't pass vacuously and last-frame reads see the final value.
func (f *roomFixture) settle() {
	time.Sleep(50 * time.Millisecond)
}

// waitGone polls until the room actor no longer answers.
func (f *roomFixture) waitGone() {
	f.t.Helper()
	deadline := time.Now().Add(statePollTimeout)
	for time.Now().Before(deadline) {
		if _, err := f.state(); err != nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	f.t.Fatal("room actor still answering after destruction")
}

// startGame joins both conns, starts the game with the given duration and
// waits for the first round to open.
func (f *roomFixture) startGame(conn1, conn2 *websocket.Conn, duration int) roomSnapshot {
	f.t.Helper()
	f.join(conn1, "Ana")
	f.join(conn2, "Bo")
	f.waitState("both players joined", func(s roomSnapshot) bool { return len(s.Players) == 2 })
	f.frame(conn1, fmt.Sprintf(`{"type":"start_game","config":{"cardDifficulty":"EASY","gameDuration":%d,"cardSetId":"classic"}}`, duration))
	return f.waitState("round 1 open", func(s roomSnapshot) bool {
		return s.Phase == PhasePlaying && s.RoundNumber == 1
	})
}

func commonSymbolID(t *testing.T, hand, center []int) int {
	t.Helper()
	centerSet := make(map[int]bool, len(center))
	for _, id := range center {
		centerSet[id] = true
	}
	for _, id := range hand {
		if centerSet[id] {
			return id
		}
	}
	t.Fatal("hand and center share no symbol")
	return -1
}

func missingSymbolID(t *testing.T, hand, center []int) int {
	t.Helper()
	centerSet := make(map[int]bool, len(center))
	for _, id := range center {
		centerSet[id] = true
	}
	for _, id := range hand {
		if !centerSet[id] {
			return id
		}
	}
	t.Fatal("every hand symbol is on the center card")
	return -1
}

func attemptFrame(symbolID int) string {
	return fmt.Sprintf(`{"type":"match_attempt","symbolId":%d,"clientTimestamp":123}`, symbolID)
}

// --- Joining and roster ---

func TestRoomActor_JoinRosterAndHost(t *testing.T) {
	f := setupRoom(t, testConfig())
	conn1 := &websocket.Conn{}
	conn2 := &websocket.Conn{}

	f.join(conn1, "Ana")
	f.join(conn2, "Ana")

	snap := f.waitState("two players", func(s roomSnapshot) bool { return len(s.Players) == 2 })
	assert.Equal(t, PhaseWaiting, snap.Phase)
	assert.Len(t, snap.JoinOrder, 2)

	first := snap.Players[snap.JoinOrder[0]]
	second := snap.Players[snap.JoinOrder[1]]
	assert.Equal(t, "Ana", first.Name)
	assert.Equal(t, "Ana 2", second.Name, "duplicate names get a numeric suffix")
	assert.True(t, first.IsHost, "first joiner is host")
	assert.False(t, second.IsHost)
	assert.Equal(t, first.ID, snap.HostID)

	// The joiner got a personalized room_state; the other side got player_joined.
	state, ok := waitFrame[RoomStateMessage](f, conn1)
	require.True(t, ok)
	assert.Equal(t, PhaseWaiting, state.Phase)
	joined, ok := waitFrame[PlayerJoinedMessage](f, conn1)
	require.True(t, ok, "existing player hears about the second joiner")
	assert.Equal(t, second.ID, joined.Player.ID)
	assert.False(t, joined.Player.IsYou)
}

func TestRoomActor_JoinEmptyNameAndIsYou(t *testing.T) {
	f := setupRoom(t, testConfig())
	conn := &websocket.Conn{}
	f.join(conn, "   ")

	snap := f.waitState("one player", func(s roomSnapshot) bool { return len(s.Players) == 1 })
	assert.Equal(t, "Player", snap.Players[snap.JoinOrder[0]].Name)

	state, ok := waitFrame[RoomStateMessage](f, conn)
	require.True(t, ok)
	require.Len(t, state.Players, 1)
	assert.True(t, state.Players[0].IsYou)
	assert.NotZero(t, state.RoomExpiresAt)
}

func TestRoomActor_JoinRoomFull(t *testing.T) {
	cfg := testConfig()
	cfg.MaxPlayersPerRoom = 2
	f := setupRoom(t, cfg)

	conn1, conn2, conn3 := &websocket.Conn{}, &websocket.Conn{}, &websocket.Conn{}
	f.join(conn1, "Ana")
	f.join(conn2, "Bo")
	f.waitState("room at capacity", func(s roomSnapshot) bool { return len(s.Players) == 2 })

	f.join(conn3, "Cy")
	f.waitState("third join rejected", func(s roomSnapshot) bool { return len(s.Players) == 2 })

	errFrame, ok := waitFrame[ErrorMessage](f, conn3)
	require.True(t, ok)
	assert.Equal(t, ErrCodeRoomFull, errFrame.Code)
	f.settle()
	assert.True(t, f.recorder.sawCloseClient(conn3), "capacity errors close the stream")
}

func TestRoomActor_JoinDuringGameRejected(t *testing.T) {
	f := setupRoom(t, testConfig())
	conn1, conn2 := &websocket.Conn{}, &websocket.Conn{}
	f.startGame(conn1, conn2, 25)

	late := &websocket.Conn{}
	f.join(late, "Late")
	time.Sleep(50 * time.Millisecond)

	errFrame, ok := findFrame[ErrorMessage](f.recorder.framesFor(late))
	require.True(t, ok)
	assert.Equal(t, ErrCodeGameInProgress, errFrame.Code)

	snap, err := f.state()
	require.NoError(t, err)
	assert.Len(t, snap.Players, 2)
}

func TestRoomActor_BadFrameAndPing(t *testing.T) {
	f := setupRoom(t, testConfig())
	conn := &websocket.Conn{}
	f.attach(conn)

	f.frame(conn, `{not json`)
	f.frame(conn, `{"type":"warp"}`)
	f.frame(conn, `{"type":"ping","timestamp":777}`)

	var pong PongMessage
	require.Eventually(t, func() bool {
		var ok bool
		pong, ok = findFrame[PongMessage](f.recorder.framesFor(conn))
		return ok
	}, statePollTimeout, 10*time.Millisecond)
	assert.Equal(t, int64(777), pong.ClientTimestamp)
	assert.NotZero(t, pong.ServerTimestamp)

	errFrame, ok := findFrame[ErrorMessage](f.recorder.framesFor(conn))
	require.True(t, ok)
	assert.Equal(t, ErrCodeBadMessage, errFrame.Code)
}

// --- Config and start ---

func TestRoomActor_SetConfigAuthorization(t *testing.T) {
	f := setupRoom(t, testConfig())
	conn1, conn2 := &websocket.Conn{}, &websocket.Conn{}
	f.join(conn1, "Ana")
	f.join(conn2, "Bo")
	f.waitState("both joined", func(s roomSnapshot) bool { return len(s.Players) == 2 })

	// Non-host cannot change the config.
	f.frame(conn2, `{"type":"set_config","config":{"cardDifficulty":"HARD","gameDuration":50,"cardSetId":"classic"}}`)
	require.Eventually(t, func() bool {
		errFrame, ok := findFrame[ErrorMessage](f.recorder.framesFor(conn2))
		return ok && errFrame.Code == ErrCodeUnauthorized
	}, statePollTimeout, 10*time.Millisecond)

	snap, err := f.state()
	require.NoError(t, err)
	assert.Equal(t, DefaultRoomConfig(), snap.Config)

	// The host can.
	f.frame(conn1, `{"type":"set_config","config":{"cardDifficulty":"HARD","gameDuration":50,"cardSetId":"classic"}}`)
	snap = f.waitState("config applied", func(s roomSnapshot) bool { return s.Config.CardDifficulty == DifficultyHard })
	assert.Equal(t, 50, snap.Config.GameDuration)

	updated, ok := waitFrame[ConfigUpdatedMessage](f, conn2)
	require.True(t, ok)
	assert.Equal(t, DifficultyHard, updated.Config.CardDifficulty)

	// Invalid values are rejected wholesale.
	f.frame(conn1, `{"type":"set_config","config":{"cardDifficulty":"HARD","gameDuration":30,"cardSetId":"classic"}}`)
	time.Sleep(50 * time.Millisecond)
	snap, err = f.state()
	require.NoError(t, err)
	assert.Equal(t, 50, snap.Config.GameDuration)
}

func TestRoomActor_StartGameNeedsTwoPlayers(t *testing.T) {
	f := setupRoom(t, testConfig())
	conn := &websocket.Conn{}
	f.join(conn, "Ana")
	f.waitState("joined", func(s roomSnapshot) bool { return len(s.Players) == 1 })

	f.frame(conn, `{"type":"start_game"}`)
	require.Eventually(t, func() bool {
		errFrame, ok := findFrame[ErrorMessage](f.recorder.framesFor(conn))
		return ok && errFrame.Code == ErrCodeInvalidState
	}, statePollTimeout, 10*time.Millisecond)

	snap, err := f.state()
	require.NoError(t, err)
	assert.Equal(t, PhaseWaiting, snap.Phase)
}

func TestRoomActor_AutoStartAtTargetPlayers(t *testing.T) {
	f := setupRoom(t, testConfig())
	conn1, conn2 := &websocket.Conn{}, &websocket.Conn{}
	f.join(conn1, "Ana")
	f.waitState("host joined", func(s roomSnapshot) bool { return len(s.Players) == 1 })
	f.frame(conn1, `{"type":"set_config","config":{"cardDifficulty":"EASY","gameDuration":25,"cardSetId":"classic","targetPlayers":2}}`)
	f.waitState("target set", func(s roomSnapshot) bool { return s.Config.TargetPlayers == 2 })

	f.join(conn2, "Bo")
	f.waitState("auto start", func(s roomSnapshot) bool {
		return s.Phase == PhaseCountdown || s.Phase == PhasePlaying
	})
}

func TestRoomActor_AutoStartOnReconnectReachingTarget(t *testing.T) {
	f := setupRoom(t, testConfig())
	conn1, conn2, conn3 := &websocket.Conn{}, &websocket.Conn{}, &websocket.Conn{}
	f.join(conn1, "Ana")
	f.join(conn2, "Bo")
	f.join(conn3, "Cy")
	snap := f.waitState("three players", func(s roomSnapshot) bool { return len(s.Players) == 3 })
	p3ID := snap.JoinOrder[2]

	f.engine.Send(f.roomPID, ClientClosed{Conn: conn3}, nil)
	f.waitState("p3 disconnected", func(s roomSnapshot) bool {
		return s.Players[p3ID].Status == StatusDisconnected
	})

	// Target set while one seat is in grace: two connected is below target,
	// so the room keeps waiting.
	f.frame(conn1, `{"type":"set_config","config":{"cardDifficulty":"EASY","gameDuration":25,"cardSetId":"classic","targetPlayers":3}}`)
	snap = f.waitState("target set", func(s roomSnapshot) bool { return s.Config.TargetPlayers == 3 })
	assert.Equal(t, PhaseWaiting, snap.Phase)

	// The reconnect is the message that reaches the target.
	conn3b := &websocket.Conn{}
	f.attach(conn3b)
	f.frame(conn3b, fmt.Sprintf(`{"type":"reconnect","playerId":%q}`, p3ID))
	f.waitState("auto start on reconnect", func(s roomSnapshot) bool {
		return s.Phase == PhaseCountdown || s.Phase == PhasePlaying
	})
}

// --- Countdown and dealing ---

func TestRoomActor_CountdownDealsUniqueHands(t *testing.T) {
	f := setupRoom(t, testConfig())
	conn1, conn2 := &websocket.Conn{}, &websocket.Conn{}
	snap := f.startGame(conn1, conn2, 25)

	// 25-card play deck, 2 hands and a center dealt.
	assert.Equal(t, 22, snap.DeckRemaining)
	assert.Equal(t, 25, snap.DealtCount)
	assert.Len(t, snap.CenterSymbols, 8, "EASY order 7 means 8 symbols per card")

	p1 := snap.Players[snap.JoinOrder[0]]
	p2 := snap.Players[snap.JoinOrder[1]]
	assert.Len(t, p1.HandSymbols, 8)
	assert.Len(t, p2.HandSymbols, 8)
	assert.NotEqual(t, p1.HandSymbols, p2.HandSymbols)
	assert.Zero(t, p1.Score)
	assert.Zero(t, p2.Score)

	// Each player got a personalized round_start with their own hand.
	rs1, ok := waitLastFrame[RoundStartMessage](f, conn1)
	require.True(t, ok)
	rs2, ok := waitLastFrame[RoundStartMessage](f, conn2)
	require.True(t, ok)
	assert.Equal(t, 1, rs1.RoundNumber)
	assert.NotNil(t, rs1.YourCard)
	assert.NotNil(t, rs2.YourCard)
	assert.NotEqual(t, rs1.YourCard.ID, rs2.YourCard.ID)
	assert.Equal(t, rs1.CenterCard.ID, rs2.CenterCard.ID)

	// The countdown counted down on the wire.
	countdown, ok := waitFrame[CountdownMessage](f, conn1)
	require.True(t, ok)
	assert.Equal(t, 2, countdown.Seconds)
}

func TestRoomActor_CountdownCancelledOnDisconnect(t *testing.T) {
	cfg := testConfig()
	cfg.CountdownSeconds = 3
	cfg.CountdownTickInterval = 150 * time.Millisecond
	f := setupRoom(t, cfg)

	conn1, conn2 := &websocket.Conn{}, &websocket.Conn{}
	f.join(conn1, "Ana")
	f.join(conn2, "Bo")
	f.waitState("both joined", func(s roomSnapshot) bool { return len(s.Players) == 2 })

	f.frame(conn1, `{"type":"start_game"}`)
	f.waitState("countdown running", func(s roomSnapshot) bool { return s.Phase == PhaseCountdown })

	f.engine.Send(f.roomPID, ClientClosed{Conn: conn2}, nil)
	snap := f.waitState("back to waiting", func(s roomSnapshot) bool { return s.Phase == PhaseWaiting })
	assert.Zero(t, snap.RoundNumber, "no round may start after a cancel")
	f.settle()

	cancel, ok := lastFrame[CountdownMessage](f.recorder.framesFor(conn1))
	require.True(t, ok)
	assert.Equal(t, -1, cancel.Seconds)

	_, sawRound := findFrame[RoundStartMessage](f.recorder.framesFor(conn1))
	assert.False(t, sawRound)
}

// --- Arbitration ---

func TestRoomActor_ValidMatchWinsRound(t *testing.T) {
	f := setupRoom(t, testConfig())
	conn1, conn2 := &websocket.Conn{}, &websocket.Conn{}
	snap := f.startGame(conn1, conn2, 50)
	assert.Equal(t, 47, snap.DeckRemaining)

	p1ID := snap.JoinOrder[0]
	hand := snap.Players[p1ID].HandSymbols
	center := snap.CenterSymbols
	match := commonSymbolID(t, hand, center)

	f.frame(conn1, attemptFrame(match))
	snap = f.waitState("round ended", func(s roomSnapshot) bool { return s.Phase == PhaseRoundEnd })

	assert.Equal(t, 1, snap.Players[p1ID].Score)
	assert.Equal(t, hand, snap.CenterSymbols, "winner's hand becomes the center card")
	assert.Equal(t, 46, snap.DeckRemaining, "winner drew the next card")

	winner, ok := waitFrame[RoundWinnerMessage](f, conn2)
	require.True(t, ok)
	assert.Equal(t, p1ID, winner.WinnerID)
	assert.Equal(t, match, winner.SymbolID)
	assert.Equal(t, 1, winner.RoundNumber)

	// The inter-round delay opens round 2.
	snap = f.waitState("round 2", func(s roomSnapshot) bool {
		return s.Phase == PhasePlaying && s.RoundNumber == 2
	})
	assert.Equal(t, 46, snap.DeckRemaining)
}

func TestRoomActor_InvalidMatchPenalty(t *testing.T) {
	f := setupRoom(t, testConfig())
	conn1, conn2 := &websocket.Conn{}, &websocket.Conn{}
	snap := f.startGame(conn1, conn2, 25)

	p1ID := snap.JoinOrder[0]
	p2ID := snap.JoinOrder[1]
	wrong := missingSymbolID(t, snap.Players[p1ID].HandSymbols, snap.CenterSymbols)

	f.frame(conn1, attemptFrame(wrong))
	snap = f.waitState("penalty applied", func(s roomSnapshot) bool {
		return !s.Players[p1ID].PenaltyUntil.IsZero()
	})
	assert.Equal(t, PhasePlaying, snap.Phase, "an invalid attempt never ends the round")
	assert.Zero(t, snap.Players[p1ID].Score)
	f.settle()

	penalty, ok := findFrame[PenaltyMessage](f.recorder.framesFor(conn1))
	require.True(t, ok)
	assert.Equal(t, testConfig().PenaltyDuration.Milliseconds(), penalty.DurationMs)
	_, leaked := findFrame[PenaltyMessage](f.recorder.framesFor(conn2))
	assert.False(t, leaked, "penalty goes to the offender only")

	// A correct attempt while penalized is ignored without reply.
	match := commonSymbolID(t, snap.Players[p1ID].HandSymbols, snap.CenterSymbols)
	f.frame(conn1, attemptFrame(match))
	time.Sleep(30 * time.Millisecond)
	current, err := f.state()
	require.NoError(t, err)
	assert.Equal(t, PhasePlaying, current.Phase)
	assert.Zero(t, current.Players[p1ID].Score)

	// The other player is unaffected and can win the round meanwhile.
	match2 := commonSymbolID(t, snap.Players[p2ID].HandSymbols, snap.CenterSymbols)
	f.frame(conn2, attemptFrame(match2))
	current = f.waitState("other player wins", func(s roomSnapshot) bool { return s.Phase == PhaseRoundEnd })
	assert.Equal(t, 1, current.Players[p2ID].Score)
}

func TestRoomActor_ArbitrationFirstAttemptWins(t *testing.T) {
	f := setupRoom(t, testConfig())
	conn1, conn2 := &websocket.Conn{}, &websocket.Conn{}
	snap := f.startGame(conn1, conn2, 25)

	p1ID := snap.JoinOrder[0]
	p2ID := snap.JoinOrder[1]
	match1 := commonSymbolID(t, snap.Players[p1ID].HandSymbols, snap.CenterSymbols)
	match2 := commonSymbolID(t, snap.Players[p2ID].HandSymbols, snap.CenterSymbols)

	// Back to back: mailbox order decides, the later timestamp is irrelevant.
	f.frame(conn1, attemptFrame(match1))
	f.frame(conn2, attemptFrame(match2))

	snap = f.waitState("round ended", func(s roomSnapshot) bool { return s.Phase == PhaseRoundEnd })
	assert.Equal(t, 1, snap.Players[p1ID].Score)
	assert.Zero(t, snap.Players[p2ID].Score, "the second attempt arrived after the round closed")

	winner, ok := waitFrame[RoundWinnerMessage](f, conn2)
	require.True(t, ok)
	assert.Equal(t, p1ID, winner.WinnerID)
}

// --- Disconnects and identity ---

func TestRoomActor_ReconnectKeepsIdentity(t *testing.T) {
	f := setupRoom(t, testConfig())
	conn1, conn2 := &websocket.Conn{}, &websocket.Conn{}
	snap := f.startGame(conn1, conn2, 25)

	p2ID := snap.JoinOrder[1]
	p2Hand := snap.Players[p2ID].HandSymbols

	f.engine.Send(f.roomPID, ClientClosed{Conn: conn2}, nil)
	f.waitState("p2 disconnected", func(s roomSnapshot) bool {
		return s.Players[p2ID].Status == StatusDisconnected
	})

	gone, ok := waitFrame[PlayerDisconnectedMessage](f, conn1)
	require.True(t, ok)
	assert.Equal(t, p2ID, gone.PlayerID)

	// Fresh socket, same identity.
	conn2b := &websocket.Conn{}
	f.attach(conn2b)
	f.frame(conn2b, fmt.Sprintf(`{"type":"reconnect","playerId":%q}`, p2ID))

	snap = f.waitState("p2 reconnected", func(s roomSnapshot) bool {
		return s.Players[p2ID].Status == StatusConnected
	})
	assert.Equal(t, PhasePlaying, snap.Phase, "the game survived the drop")
	assert.Equal(t, p2Hand, snap.Players[p2ID].HandSymbols, "hand survives reconnect")
	assert.Len(t, snap.Players, 2)
	f.settle()

	state, ok := lastFrame[RoomStateMessage](f.recorder.framesFor(conn2b))
	require.True(t, ok)
	assert.Equal(t, PhasePlaying, state.Phase)
	require.NotNil(t, state.YourCard)

	_, rejoined := findFrame[PlayerJoinedMessage](f.recorder.framesFor(conn1))
	assert.False(t, rejoined, "a reconnect is not a roster change")
}

func TestRoomActor_ReconnectUnknownIDRejected(t *testing.T) {
	f := setupRoom(t, testConfig())
	conn1, conn2 := &websocket.Conn{}, &websocket.Conn{}
	f.startGame(conn1, conn2, 25)

	stranger := &websocket.Conn{}
	f.attach(stranger)
	f.frame(stranger, `{"type":"reconnect","playerId":"nope"}`)

	require.Eventually(t, func() bool {
		errFrame, ok := findFrame[ErrorMessage](f.recorder.framesFor(stranger))
		return ok && errFrame.Code == ErrCodeGameInProgress
	}, statePollTimeout, 10*time.Millisecond)
}

func TestRoomActor_GraceExpiryEndsGame(t *testing.T) {
	cfg := testConfig()
	cfg.DisconnectGrace = 60 * time.Millisecond
	f := setupRoom(t, cfg)

	conn1, conn2 := &websocket.Conn{}, &websocket.Conn{}
	snap := f.startGame(conn1, conn2, 25)
	p1ID := snap.JoinOrder[0]
	p2ID := snap.JoinOrder[1]
	deckBefore := snap.DeckRemaining

	f.engine.Send(f.roomPID, ClientClosed{Conn: conn2}, nil)
	snap = f.waitState("game over", func(s roomSnapshot) bool { return s.Phase == PhaseGameOver })

	_, stillThere := snap.Players[p2ID]
	assert.False(t, stillThere, "grace expiry removes the player")
	assert.Equal(t, deckBefore, snap.BonusAwarded)
	assert.Equal(t, deckBefore, snap.Players[p1ID].Score, "survivor collects one point per remaining card")

	gameOver, ok := waitFrame[GameOverMessage](f, conn1)
	require.True(t, ok)
	assert.Equal(t, ReasonLastPlayerStanding, gameOver.Reason)
	assert.Equal(t, deckBefore, gameOver.BonusAwarded)
}

func TestRoomActor_LeaveMidGameLastPlayerStanding(t *testing.T) {
	f := setupRoom(t, testConfig())
	conn1, conn2 := &websocket.Conn{}, &websocket.Conn{}
	snap := f.startGame(conn1, conn2, 25)
	p1ID := snap.JoinOrder[0]
	deckBefore := snap.DeckRemaining

	f.frame(conn2, `{"type":"leave"}`)
	snap = f.waitState("game over", func(s roomSnapshot) bool { return s.Phase == PhaseGameOver })

	assert.Len(t, snap.Players, 1)
	assert.Equal(t, deckBefore, snap.Players[p1ID].Score)

	left, ok := waitFrame[PlayerLeftMessage](f, conn1)
	require.True(t, ok)
	assert.Equal(t, snap.JoinOrder, []string{p1ID})
	assert.NotEmpty(t, left.PlayerID)
}

func TestRoomActor_HostSuccessionOnLeave(t *testing.T) {
	f := setupRoom(t, testConfig())
	conn1, conn2, conn3 := &websocket.Conn{}, &websocket.Conn{}, &websocket.Conn{}
	f.join(conn1, "Ana")
	f.join(conn2, "Bo")
	f.join(conn3, "Cy")
	snap := f.waitState("three players", func(s roomSnapshot) bool { return len(s.Players) == 3 })
	p2ID := snap.JoinOrder[1]

	f.frame(conn1, `{"type":"leave"}`)
	snap = f.waitState("host moved", func(s roomSnapshot) bool { return s.HostID == p2ID })
	assert.Len(t, snap.Players, 2)

	var hostChange HostChangedMessage
	require.Eventually(t, func() bool {
		var ok bool
		hostChange, ok = findFrame[HostChangedMessage](f.recorder.framesFor(conn3))
		return ok
	}, statePollTimeout, 10*time.Millisecond)
	assert.Equal(t, p2ID, hostChange.PlayerID)
}

// --- Game over, rematch, rejoin window ---

func TestRoomActor_LeaveDuringGameOverDoesNotReevaluate(t *testing.T) {
	cfg := testConfig()
	cfg.RejoinWindow = 2 * time.Second
	f := setupRoom(t, cfg)
	conn1, conn2 := &websocket.Conn{}, &websocket.Conn{}
	snap := f.startGame(conn1, conn2, 25)
	p1ID := snap.JoinOrder[0]

	f.frame(conn2, `{"type":"leave"}`)
	f.waitState("game over", func(s roomSnapshot) bool { return s.Phase == PhaseGameOver })

	f.frame(conn1, `{"type":"play_again"}`)
	f.waitState("vote recorded", func(s roomSnapshot) bool { return s.RematchVotes[p1ID] })

	f.frame(conn1, `{"type":"leave"}`)
	snap = f.waitState("roster empty", func(s roomSnapshot) bool { return len(s.Players) == 0 })
	assert.Equal(t, PhaseGameOver, snap.Phase, "leave in GAME_OVER never re-evaluates the outcome")
	assert.True(t, snap.RematchVotes[p1ID], "the announced outcome stays frozen")
}

func TestRoomActor_DeckExhaustionAndRematch(t *testing.T) {
	f := setupRoom(t, testConfig())
	conn1, conn2 := &websocket.Conn{}, &websocket.Conn{}
	snap := f.startGame(conn1, conn2, 10)
	assert.Equal(t, 7, snap.DeckRemaining)

	p1ID := snap.JoinOrder[0]
	p2ID := snap.JoinOrder[1]

	// Win every round until the deck runs dry.
	for round := 1; snap.Phase == PhasePlaying; round++ {
		match := commonSymbolID(t, snap.Players[p1ID].HandSymbols, snap.CenterSymbols)
		f.frame(conn1, attemptFrame(match))
		snap = f.waitState("round resolved", func(s roomSnapshot) bool {
			return s.Phase == PhaseGameOver || (s.Phase == PhasePlaying && s.RoundNumber == round+1)
		})
	}

	assert.Equal(t, PhaseGameOver, snap.Phase)
	assert.Zero(t, snap.DeckRemaining)
	assert.Equal(t, 7, snap.Players[p1ID].Score, "one point per round won")

	gameOver, ok := waitFrame[GameOverMessage](f, conn2)
	require.True(t, ok)
	assert.Equal(t, ReasonDeckExhausted, gameOver.Reason)
	assert.Zero(t, gameOver.BonusAwarded)

	// Both vote for a rematch; the rejoin window resets the room.
	f.frame(conn1, `{"type":"play_again"}`)
	f.frame(conn2, `{"type":"play_again"}`)
	f.waitState("votes in", func(s roomSnapshot) bool { return len(s.RematchVotes) == 2 })

	var ack PlayAgainAckMessage
	require.Eventually(t, func() bool {
		var ok bool
		ack, ok = findFrame[PlayAgainAckMessage](f.recorder.framesFor(conn1))
		return ok
	}, statePollTimeout, 10*time.Millisecond)
	assert.NotEmpty(t, ack.PlayerID)

	snap = f.waitState("rematch reset", func(s roomSnapshot) bool { return s.Phase == PhaseWaiting })
	assert.Len(t, snap.Players, 2)
	assert.Zero(t, snap.Players[p1ID].Score)
	assert.Zero(t, snap.Players[p2ID].Score)
	assert.Empty(t, snap.Players[p1ID].HandSymbols)
	assert.Empty(t, snap.RematchVotes)
	assert.NotEmpty(t, snap.HostID)
}

func TestRoomActor_RejoinWindowSoloBoot(t *testing.T) {
	f := setupRoom(t, testConfig())
	conn1, conn2 := &websocket.Conn{}, &websocket.Conn{}
	f.startGame(conn1, conn2, 25)

	f.frame(conn2, `{"type":"leave"}`)
	f.waitState("game over", func(s roomSnapshot) bool { return s.Phase == PhaseGameOver })

	// Nobody else rejoins; the survivor is booted and the room dies.
	f.waitGone()

	boot, ok := findFrame[SoloRejoinBootMessage](f.recorder.framesFor(conn1))
	require.True(t, ok)
	assert.Equal(t, MsgSoloRejoinBoot, boot.Type)
	assert.True(t, f.recorder.sawCloseAll())
}

func TestRoomActor_IdleRoomExpires(t *testing.T) {
	cfg := testConfig()
	cfg.RoomIdleTimeout = 80 * time.Millisecond
	f := setupRoom(t, cfg)

	conn := &websocket.Conn{}
	f.join(conn, "Ana")
	f.waitState("joined", func(s roomSnapshot) bool { return len(s.Players) == 1 })

	f.waitGone()
	expired, ok := findFrame[RoomExpiredMessage](f.recorder.framesFor(conn))
	require.True(t, ok)
	assert.Equal(t, "idle_timeout", expired.Reason)
}
