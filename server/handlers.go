// File: server/handlers.go
package server

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/lguibr/matchbox/bollywood"
	"github.com/lguibr/matchbox/game"
	"github.com/lguibr/matchbox/utils"
	"golang.org/x/net/websocket"
)

// HandleSubscribe is the websocket entry point. The room is resolved before
// the upgrade so capacity problems surface as plain HTTP errors; once the
// stream is up the RoomActor owns all protocol decisions.
func (s *Server) HandleSubscribe(w http.ResponseWriter, r *http.Request) {
	code := strings.ToUpper(chi.URLParam(r, "code"))
	if !utils.IsValidRoomCode(code) {
		http.Error(w, "invalid room code", http.StatusNotFound)
		return
	}

	result, err := s.engine.Ask(s.managerPID, game.ResolveRoomRequest{Code: code}, managerAskTimeout)
	if err != nil {
		fmt.Printf("HandleSubscribe: resolving room %s failed: %v\n", code, err)
		http.Error(w, "room directory unavailable", http.StatusServiceUnavailable)
		return
	}
	resolved, ok := result.(game.ResolveRoomResponse)
	if !ok || resolved.RoomPID == nil {
		switch resolved.Reason {
		case "rate_limited":
			http.Error(w, "too many new rooms, try again shortly", http.StatusTooManyRequests)
		default:
			http.Error(w, "no capacity for new rooms", http.StatusServiceUnavailable)
		}
		return
	}

	reconnectID := r.URL.Query().Get("reconnectId")
	websocket.Handler(func(ws *websocket.Conn) {
		s.serveRoomStream(ws, code, resolved.RoomPID, reconnectID)
	}).ServeHTTP(w, r)
}

// serveRoomStream attaches one stream to its room and pumps inbound frames
// until the client goes away. Writes flow the other way, through the room's
// broadcaster.
func (s *Server) serveRoomStream(ws *websocket.Conn, code string, roomPID *bollywood.PID, reconnectID string) {
	connectionAddr := remoteAddr(ws)
	fmt.Printf("HandleSubscribe: new stream for room %s from %s\n", code, connectionAddr)

	var closedSent bool
	defer func() {
		if r := recover(); r != nil {
			fmt.Printf("PANIC recovered in room stream for %s: %v\nStack trace:\n%s\n", connectionAddr, r, string(debug.Stack()))
		}
		if !closedSent {
			s.engine.Send(roomPID, game.ClientClosed{Conn: ws}, nil)
			closedSent = true
		}
		_ = ws.Close()
		fmt.Printf("HandleSubscribe: stream for room %s from %s finished\n", code, connectionAddr)
	}()

	s.engine.Send(roomPID, game.ClientAttached{Conn: ws, ReconnectID: reconnectID}, nil)

	for {
		var raw string
		if err := websocket.Message.Receive(ws, &raw); err != nil {
			return
		}
		s.engine.Send(roomPID, game.ClientFrame{Conn: ws, Data: []byte(raw)}, nil)
	}
}

// HandleListRooms serves the room directory as JSON.
func (s *Server) HandleListRooms(w http.ResponseWriter, r *http.Request) {
	result, err := s.engine.Ask(s.managerPID, game.GetRoomListRequest{}, managerAskTimeout)
	if err != nil {
		fmt.Printf("HandleListRooms: %v\n", err)
		http.Error(w, "room directory unavailable", http.StatusServiceUnavailable)
		return
	}
	list, ok := result.(game.RoomListResponse)
	if !ok {
		http.Error(w, "room directory unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// HandleCreateRoom allocates a fresh room and returns its code.
func (s *Server) HandleCreateRoom(w http.ResponseWriter, r *http.Request) {
	result, err := s.engine.Ask(s.managerPID, game.CreateRoomRequest{}, managerAskTimeout)
	if err != nil {
		fmt.Printf("HandleCreateRoom: %v\n", err)
		http.Error(w, "room directory unavailable", http.StatusServiceUnavailable)
		return
	}
	created, ok := result.(game.CreateRoomResponse)
	if !ok {
		http.Error(w, "room directory unavailable", http.StatusServiceUnavailable)
		return
	}
	if created.RoomPID == nil {
		switch created.Reason {
		case "rate_limited":
			http.Error(w, "too many new rooms, try again shortly", http.StatusTooManyRequests)
		default:
			http.Error(w, "no capacity for new rooms", http.StatusServiceUnavailable)
		}
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"code": created.Code})
}

func remoteAddr(ws *websocket.Conn) string {
	defer func() { recover() }()
	if req := ws.Request(); req != nil {
		return req.RemoteAddr
	}
	return "unknown"
}
