// Package ws serves the live event stream over websockets.
package ws

import (
	nethttp "net/http"

	"github.com/gorilla/websocket"

	"decharge/gateway/internal/bootstrap"
	"decharge/gateway/internal/hub"
	"decharge/gateway/internal/net/proto"
	"decharge/gateway/internal/store"
	"decharge/gateway/internal/telemetry"
)

// HandlerConfig carries optional collaborators for the stream endpoint.
type HandlerConfig struct {
	Logger telemetry.Logger
}

// Handler serves GET /stream.
type Handler struct {
	store    *store.Store
	hub      *hub.Hub
	logger   telemetry.Logger
	upgrader websocket.Upgrader
}

// NewHandler returns a stream endpoint reading from s and subscribing to h.
func NewHandler(s *store.Store, h *hub.Hub, cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.Discard()
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *nethttp.Request) bool {
			return true
		},
	}

	return &Handler{
		store:    s,
		hub:      h,
		logger:   logger,
		upgrader: upgrader,
	}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w nethttp.ResponseWriter, r *nethttp.Request) {
	h.Handle(w, r)
}

// Handle upgrades the request, sends the bootstrap frame and then streams
// every live event applied after it.
func (h *Handler) Handle(w nethttp.ResponseWriter, r *nethttp.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("stream upgrade failed from %s: %v", r.RemoteAddr, err)
		return
	}

	var (
		id        string
		attachErr error
	)
	// The view excludes writers, so the snapshot and registration happen
	// between two broadcasts.
	h.store.View(func(reader store.Reader) {
		frame, err := proto.Encode(bootstrap.Build(reader))
		if err != nil {
			attachErr = err
			return
		}
		id, attachErr = h.hub.Attach(conn, frame)
	})
	if attachErr != nil {
		h.logger.Printf("failed to attach stream subscriber %s: %v", r.RemoteAddr, attachErr)
		message := websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "unavailable")
		conn.WriteMessage(websocket.CloseMessage, message)
		conn.Close()
		return
	}

	newSession(id, conn, h.hub).serve()
}
