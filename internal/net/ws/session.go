package ws

import (
	"time"

	"github.com/gorilla/websocket"

	"decharge/gateway/internal/hub"
)

const (
	// pongWait must exceed the hub's ping interval.
	pongWait       = 75 * time.Second
	maxClientFrame = 4096
)

// session owns the read side of one stream connection. Viewers never send
// anything meaningful, so inbound frames are discarded; the loop exists to
// observe pongs and the close handshake.
type session struct {
	id   string
	conn *websocket.Conn
	hub  *hub.Hub
}

func newSession(id string, conn *websocket.Conn, h *hub.Hub) *session {
	return &session{id: id, conn: conn, hub: h}
}

func (s *session) serve() {
	defer s.hub.Detach(s.id)

	s.conn.SetReadLimit(maxClientFrame)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
	}
}
