// Package server exposes HTTP handlers, including the WebSocket upgrade and
// health checks.
package server

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// ServeWS upgrades the HTTP request to a WebSocket connection, registers the
// client with the hub, and starts its read/write pumps.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.origins.check,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("addr", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}

	client := NewClient(conn, h, r.RemoteAddr)

	select {
	case h.register <- client:
	case <-h.done:
		_ = conn.Close()
		return
	}

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()
}

// HealthHandler reports whether the hub's event loop is accepting events.
func (h *Hub) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	if !h.Ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("hub not running\n"))
		return
	}
	_, _ = w.Write([]byte("ok\n"))
}

// InfoHandler is the root endpoint, useful as a trivial liveness probe.
func InfoHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("Parlor chat server is running!\n"))
}
