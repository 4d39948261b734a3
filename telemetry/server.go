package telemetry

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/cgxeiji/pulseoxi"
)

// Source is the pipeline as seen by telemetry.
type Source interface {
	State() pulseoxi.State
	ResetPulseDetected()
}

// Server exposes a pipeline over HTTP.
type Server struct {
	router  *mux.Router
	hub     *Hub
	src     Source
	session string
	now     func() time.Time
}

// NewServer routes:
//
//	GET  /ws               websocket stream of the reporter messages
//	GET  /api/state        full pipeline snapshot
//	GET  /api/message      the report that would be sent now
//	POST /api/pulse/reset  clears the pulse latch
//	GET  /healthz
func NewServer(hub *Hub, src Source, session string) *Server {
	s := &Server{
		router:  mux.NewRouter(),
		hub:     hub,
		src:     src,
		session: session,
		now:     time.Now,
	}
	s.router.Use(enableCORS)
	s.router.Handle("/ws", hub).Methods("GET")
	s.router.HandleFunc("/healthz", s.health).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/state", s.state).Methods("GET")
	api.HandleFunc("/message", s.message).Methods("GET")
	api.HandleFunc("/pulse/reset", s.resetPulse).Methods("POST")
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"clients": s.hub.Clients(),
	})
}

// GET /api/state
func (s *Server) state(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": s.session,
		"state":      s.src.State(),
	})
}

// GET /api/message
func (s *Server) message(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, NewMessage(s.session, s.src.State(), s.now()))
}

// POST /api/pulse/reset
func (s *Server) resetPulse(w http.ResponseWriter, r *http.Request) {
	s.src.ResetPulseDetected()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"pulse": false,
	})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("[ERROR] telemetry: failed to encode JSON response: %v", err)
	}
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		next.ServeHTTP(w, r)
	})
}
