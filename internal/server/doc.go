// Package server implements the WebSocket and HTTP layer of the Parlor chat
// service.
//
// The Hub is the heart of the package: a single event loop that owns the
// session state from internal/chat and routes every inbound client event to
// the matching operation before fanning the result out to the right
// audience. The surrounding files cover configuration, clients, routing,
// origin control, and rate limiting.
package server
