// File: game/broadcaster_actor.go
package game

import (
	"fmt"
	"runtime/debug"

	"github.com/lguibr/matchbox/bollywood"
	"golang.org/x/net/websocket"
)

// BroadcasterActor fans frames out to the streams of one room. Each stream
// gets a bounded outbound channel drained by its own writer goroutine, so a
// slow recipient can never stall the room loop: when the buffer fills the
// client is dropped and the room is notified.
type BroadcasterActor struct {
	clients    map[*websocket.Conn]chan interface{}
	bufferSize int
	roomPID    *bollywood.PID
	selfPID    *bollywood.PID
}

// NewBroadcasterProducer creates a producer for BroadcasterActor.
func NewBroadcasterProducer(roomPID *bollywood.PID, bufferSize int) bollywood.Producer {
	return func() bollywood.Actor {
		if bufferSize <= 0 {
			bufferSize = 256
		}
		return &BroadcasterActor{
			clients:    make(map[*websocket.Conn]chan interface{}),
			bufferSize: bufferSize,
			roomPID:    roomPID,
		}
	}
}

// Receive handles messages for the BroadcasterActor.
func (a *BroadcasterActor) Receive(ctx bollywood.Context) {
	defer func() {
		if r := recover(); r != nil {
			pidStr := "unknown"
			if a.selfPID != nil {
				pidStr = a.selfPID.String()
			}
			fmt.Printf("PANIC recovered in BroadcasterActor %s Receive: %v\nStack trace:\n%s\n", pidStr, r, string(debug.Stack()))
		}
	}()

	if a.selfPID == nil {
		a.selfPID = ctx.Self()
	}

	switch msg := ctx.Message().(type) {
	case bollywood.Started:
		// Actor started

	case AddClient:
		a.handleAddClient(ctx, msg.Conn)

	case RemoveClient:
		a.detachClient(msg.Conn)

	case SendFrame:
		a.handleSendFrame(ctx, msg.Conn, msg.Frame)

	case CloseClient:
		a.detachClient(msg.Conn)

	case CloseAll:
		a.closeAllClients()

	case bollywood.Stopping:
		fmt.Printf("Broadcaster %s: Stopping. Closing %d remaining streams.\n", a.selfPID, len(a.clients))
		a.closeAllClients()

	case bollywood.Stopped:
		// Actor stopped

	default:
		fmt.Printf("BroadcasterActor %s: Received unknown message type: %T\n", a.selfPID, msg)
	}
}

func (a *BroadcasterActor) handleAddClient(ctx bollywood.Context, conn *websocket.Conn) {
	if conn == nil {
		return
	}
	if _, exists := a.clients[conn]; exists {
		return
	}
	outbound := make(chan interface{}, a.bufferSize)
	a.clients[conn] = outbound
	go runClientWriter(ctx.Engine(), a.roomPID, a.selfPID, conn, outbound)
}

func (a *BroadcasterActor) handleSendFrame(ctx bollywood.Context, conn *websocket.Conn, frame interface{}) {
	if conn == nil || frame == nil {
		return
	}
	outbound, exists := a.clients[conn]
	if !exists {
		return
	}
	select {
	case outbound <- frame:
		// Frame queued
	default:
		// The recipient is not draining its buffer. Drop it rather than
		// stall the room; the writer closes the connection after the
		// channel closes.
		fmt.Printf("Broadcaster %s: outbound buffer full, dropping slow client %s\n", a.selfPID, remoteAddr(conn))
		a.detachClient(conn)
		if a.roomPID != nil {
			ctx.Engine().Send(a.roomPID, ClientClosed{Conn: conn}, a.selfPID)
		}
	}
}

// detachClient closes the client's channel; the writer drains what is queued
// and then closes the connection.
func (a *BroadcasterActor) detachClient(conn *websocket.Conn) {
	if conn == nil {
		return
	}
	outbound, exists := a.clients[conn]
	if !exists {
		return
	}
	delete(a.clients, conn)
	close(outbound)
}

func (a *BroadcasterActor) closeAllClients() {
	for conn, outbound := range a.clients {
		delete(a.clients, conn)
		close(outbound)
	}
}

// runClientWriter drains one client's outbound channel. On write error or
// channel close it closes the connection; the room learns about dead streams
// through its own read loop or an explicit ClientClosed from the broadcaster.
func runClientWriter(engine *bollywood.Engine, roomPID, broadcasterPID *bollywood.PID, conn *websocket.Conn, outbound chan interface{}) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Printf("PANIC recovered in broadcaster writer for %s: %v\nStack trace:\n%s\n", remoteAddr(conn), r, string(debug.Stack()))
		}
		_ = conn.Close()
	}()

	for frame := range outbound {
		if err := websocket.JSON.Send(conn, frame); err != nil {
			// Drain the rest so the broadcaster never blocks on a dead client.
			for range outbound {
			}
			if engine != nil && broadcasterPID != nil {
				engine.Send(broadcasterPID, RemoveClient{Conn: conn}, nil)
			}
			return
		}
	}
}

func remoteAddr(conn *websocket.Conn) string {
	if conn == nil {
		return "unknown"
	}
	defer func() { recover() }()
	if addr := conn.Request(); addr != nil {
		return addr.RemoteAddr
	}
	return "unknown"
}
