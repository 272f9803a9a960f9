// Package server wires HTTP handlers into a chi router for the Parlor
// application.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter configures the application routes: the health and info
// endpoints plus the WebSocket entry point.
func NewRouter(h *Hub) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/", InfoHandler)
	r.Get("/healthz", h.HealthHandler)
	r.Get("/ws", h.ServeWS)
	return r
}
