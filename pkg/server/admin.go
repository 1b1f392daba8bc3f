package server

import (
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// adminStatusInterval is how often the websocket pushes a fresh snapshot.
const adminStatusInterval = 2 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The endpoint runs only when an admin address is configured; browser
	// origins are not a trust boundary here.
	CheckOrigin: func(*http.Request) bool { return true },
}

// StartAdmin serves the monitoring endpoint on addr: GET /status returns one
// JSON snapshot, GET /ws streams snapshots over a WebSocket. Returns the
// bound listener so callers can close it on shutdown.
func (s *Server) StartAdmin(addr string) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleAdminStatus)
	mux.HandleFunc("/ws", s.handleAdminWS)

	go func() {
		httpServer := &http.Server{Handler: mux}
		httpServer.Serve(ln)
	}()

	s.log.Infof("admin endpoint on %s", ln.Addr())
	return ln, nil
}

func (s *Server) handleAdminStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.Status())
}

func (s *Server) handleAdminWS(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer ws.Close()

	// Drain client frames so pings and close messages are processed.
	go func() {
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(adminStatusInterval)
	defer ticker.Stop()

	// First snapshot immediately, then on the ticker.
	if err := ws.WriteJSON(s.Status()); err != nil {
		return
	}
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			if err := ws.WriteJSON(s.Status()); err != nil {
				return
			}
		}
	}
}
