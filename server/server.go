// File: server/server.go
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/lguibr/matchbox/bollywood"
	"github.com/lguibr/matchbox/game"
	"github.com/lguibr/matchbox/utils"
)

const managerAskTimeout = 2 * time.Second

// Server wires the HTTP surface to the actor system: the websocket entry
// point, the room directory endpoints and the health checks.
type Server struct {
	cfg        utils.Config
	engine     *bollywood.Engine
	managerPID *bollywood.PID
}

// NewServer creates a Server bound to an engine and a room manager.
func NewServer(cfg utils.Config, engine *bollywood.Engine, managerPID *bollywood.PID) *Server {
	return &Server{
		cfg:        cfg,
		engine:     engine,
		managerPID: managerPID,
	}
}

// Router builds the HTTP routing table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)

	r.Get("/ws/{code}", s.HandleSubscribe)
	r.Get("/rooms", s.HandleListRooms)
	r.Post("/rooms", s.HandleCreateRoom)

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Get("/health/ready", s.HandleReady)

	return r
}

// HandleReady reports readiness: the manager must answer a directory query.
func (s *Server) HandleReady(w http.ResponseWriter, r *http.Request) {
	if s.engine == nil || s.managerPID == nil {
		http.Error(w, "actor system not running", http.StatusServiceUnavailable)
		return
	}
	if _, err := s.engine.Ask(s.managerPID, game.GetRoomListRequest{}, managerAskTimeout); err != nil {
		fmt.Printf("HandleReady: room manager not answering: %v\n", err)
		http.Error(w, "room manager not answering", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		fmt.Println("Error writing JSON response:", err)
	}
}
