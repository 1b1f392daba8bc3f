package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestAdminStatusEndpoint(t *testing.T) {
	srv := newBareServer(t)

	ln, err := srv.StartAdmin("127.0.0.1:0")
	if err != nil {
		t.Fatalf("StartAdmin: %v", err)
	}
	defer ln.Close()

	resp, err := http.Get(fmt.Sprintf("http://%s/status", ln.Addr()))
	if err != nil {
		t.Fatalf("GET /status: %v", err)
	}
	defer resp.Body.Close()

	var st Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if st.MaxPlayers != srv.cfg.Server.MaxPlayers {
		t.Errorf("MaxPlayers = %d, want %d", st.MaxPlayers, srv.cfg.Server.MaxPlayers)
	}
}

func TestAdminWebSocketStream(t *testing.T) {
	srv := newBareServer(t)

	ln, err := srv.StartAdmin("127.0.0.1:0")
	if err != nil {
		t.Fatalf("StartAdmin: %v", err)
	}
	defer ln.Close()

	ws, _, err := websocket.DefaultDialer.Dial(fmt.Sprintf("ws://%s/ws", ln.Addr()), nil)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}
	defer ws.Close()

	ws.SetReadDeadline(time.Now().Add(5 * time.Second))

	var st Status
	if err := ws.ReadJSON(&st); err != nil {
		t.Fatalf("read first snapshot: %v", err)
	}
	if st.MaxPlayers != srv.cfg.Server.MaxPlayers {
		t.Errorf("snapshot MaxPlayers = %d, want %d", st.MaxPlayers, srv.cfg.Server.MaxPlayers)
	}
}
