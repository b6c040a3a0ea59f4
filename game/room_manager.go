// File: game/room_manager.go
package game

import (
	"fmt"
	"math/rand"
	"runtime/debug"
	"time"

	"github.com/lguibr/matchbox/bollywood"
	"github.com/lguibr/matchbox/utils"
	"golang.org/x/time/rate"
)

const summaryAskTimeout = 250 * time.Millisecond

// RoomManagerActor is the room directory: it owns the code->room mapping,
// creates rooms on demand and forgets them when they announce RoomClosed.
// Room creation is rate limited so a join-code scanner cannot fill the
// server with empty rooms.
type RoomManagerActor struct {
	cfg     utils.Config
	engine  *bollywood.Engine
	rooms   map[string]*bollywood.PID
	limiter *rate.Limiter
	rng     *rand.Rand
	selfPID *bollywood.PID
}

// NewRoomManagerProducer creates a producer for the RoomManagerActor.
func NewRoomManagerProducer(engine *bollywood.Engine, cfg utils.Config) bollywood.Producer {
	return func() bollywood.Actor {
		return &RoomManagerActor{
			cfg:     cfg,
			engine:  engine,
			rooms:   make(map[string]*bollywood.PID),
			limiter: rate.NewLimiter(rate.Limit(cfg.RoomCreateRate), cfg.RoomCreateBurst),
			rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		}
	}
}

// Receive is the main message handler for the RoomManagerActor.
func (a *RoomManagerActor) Receive(ctx bollywood.Context) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Printf("PANIC recovered in RoomManagerActor Receive: %v\nStack trace:\n%s\n", r, string(debug.Stack()))
			if ctx.RequestID() != "" {
				ctx.Reply(fmt.Errorf("room manager panicked: %v", r))
			}
		}
	}()

	if a.selfPID == nil {
		a.selfPID = ctx.Self()
	}

	switch msg := ctx.Message().(type) {
	case bollywood.Started:
		fmt.Printf("RoomManagerActor: Started.\n")

	case ResolveRoomRequest:
		ctx.Reply(a.resolveRoom(msg.Code))

	case CreateRoomRequest:
		ctx.Reply(a.createRoom())

	case RoomClosed:
		if _, ok := a.rooms[msg.Code]; ok {
			delete(a.rooms, msg.Code)
			fmt.Printf("RoomManagerActor: room %s closed (%d active).\n", msg.Code, len(a.rooms))
		}

	case GetRoomListRequest:
		ctx.Reply(a.listRooms())

	case bollywood.Stopping:
		fmt.Printf("RoomManagerActor: Stopping. Closing %d rooms.\n", len(a.rooms))
		for code, pid := range a.rooms {
			a.engine.Stop(pid)
			delete(a.rooms, code)
		}

	case bollywood.Stopped:
		fmt.Printf("RoomManagerActor: Stopped.\n")

	default:
		fmt.Printf("RoomManagerActor: Received unknown message type: %T\n", msg)
		if ctx.RequestID() != "" {
			ctx.Reply(fmt.Errorf("unknown message type: %T", msg))
		}
	}
}

// resolveRoom returns the room for a code, creating it when absent. Joining
// an existing room never consumes rate-limit budget.
func (a *RoomManagerActor) resolveRoom(code string) ResolveRoomResponse {
	if pid, ok := a.rooms[code]; ok {
		return ResolveRoomResponse{RoomPID: pid, Code: code}
	}
	if reason := a.creationBlocked(); reason != "" {
		return ResolveRoomResponse{Code: code, Reason: reason}
	}
	pid := a.spawnRoom(code)
	return ResolveRoomResponse{RoomPID: pid, Code: code}
}

// createRoom allocates a fresh room under a generated unused code.
func (a *RoomManagerActor) createRoom() CreateRoomResponse {
	if reason := a.creationBlocked(); reason != "" {
		return CreateRoomResponse{Reason: reason}
	}
	code := a.unusedCode()
	if code == "" {
		return CreateRoomResponse{Reason: "server_full"}
	}
	pid := a.spawnRoom(code)
	return CreateRoomResponse{Code: code, RoomPID: pid}
}

func (a *RoomManagerActor) creationBlocked() string {
	if len(a.rooms) >= a.cfg.MaxRooms {
		return "server_full"
	}
	if !a.limiter.Allow() {
		return "rate_limited"
	}
	return ""
}

func (a *RoomManagerActor) spawnRoom(code string) *bollywood.PID {
	seed := a.rng.Int63()
	pid := a.engine.Spawn(bollywood.NewProps(NewRoomActorProducer(a.engine, a.cfg, code, a.selfPID, nil, seed)))
	a.rooms[code] = pid
	fmt.Printf("RoomManagerActor: room %s created (%d active).\n", code, len(a.rooms))
	return pid
}

func (a *RoomManagerActor) unusedCode() string {
	for i := 0; i < 64; i++ {
		code := utils.NewRoomCode(a.rng)
		if _, taken := a.rooms[code]; !taken {
			return code
		}
	}
	return ""
}

// listRooms asks every room for its summary row. A room that is mid-shutdown
// or slow is simply skipped; the list is a best-effort view.
func (a *RoomManagerActor) listRooms() RoomListResponse {
	resp := RoomListResponse{Rooms: make([]RoomSummary, 0, len(a.rooms))}
	for _, pid := range a.rooms {
		result, err := a.engine.Ask(pid, internalGetSummaryRequest{}, summaryAskTimeout)
		if err != nil {
			continue
		}
		if summary, ok := result.(RoomSummary); ok {
			resp.Rooms = append(resp.Rooms, summary)
		}
	}
	return resp
}
