// Package server manages individual WebSocket clients, handling read/write
// pumps, rate limiting, and lifecycle control for each connection.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// Client represents one WebSocket connection. Its username binding lives in
// the hub's registry, keyed by the client id; the client itself only moves
// bytes. The send channel is written and closed exclusively by the hub's
// event loop, so no per-client locking is needed around fan-out.
type Client struct {
	id             string
	conn           *websocket.Conn
	hub            *Hub
	send           chan []byte
	addr           string
	maxMessageSize int64
	limiter        *tokenBucket
}

// NewClient creates a Client for an upgraded connection. The send channel is
// buffered so a slow reader does not stall the hub; a client whose buffer
// fills up is dropped instead.
func NewClient(conn *websocket.Conn, hub *Hub, addr string) *Client {
	cfg := hub.cfg
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}
	return &Client{
		id:             uuid.NewString(),
		conn:           conn,
		hub:            hub,
		send:           make(chan []byte, 256),
		addr:           addr,
		maxMessageSize: cfg.MaxMessageSize,
		limiter:        newTokenBucket(cfg.RateLimit),
	}
}

// ID returns the opaque connection id assigned at creation.
func (c *Client) ID() string {
	return c.id
}

func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		log.Error().Err(err).Str("addr", c.addr).Msg("set initial read deadline")
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			log.Error().Err(err).Str("addr", c.addr).Msg("set read deadline in pong handler")
		}
		return nil
	})
}

// handleReadError classifies a read failure and reports whether the read
// loop should stop.
func (c *Client) handleReadError(err error) bool {
	if err == nil {
		return false
	}

	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		log.Warn().Str("addr", c.addr).Int64("limit", c.maxMessageSize).Msg("message exceeded maximum size")
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		log.Debug().Str("addr", c.addr).Err(err).Msg("client disconnected")
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		log.Debug().Str("addr", c.addr).Err(err).Msg("connection closed")
	default:
		log.Warn().Str("addr", c.addr).Err(err).Msg("websocket read error")
	}
	return true
}

// processFrame parses one inbound frame and hands the event to the hub. A
// malformed envelope is dropped here; payload shape is checked later by the
// hub so a bad actor never crashes the event loop.
func (c *Client) processFrame(raw []byte) {
	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		log.Debug().Str("addr", c.addr).Err(err).Msg("dropping malformed frame")
		return
	}
	if f.Event == "" {
		log.Debug().Str("addr", c.addr).Msg("dropping frame without event name")
		return
	}
	c.hub.dispatch(inboundEvent{client: c, name: f.Event, data: f.Data})
}

func (c *Client) readPump() {
	defer func() {
		// During shutdown the loop is gone; don't block on the cascade.
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			log.Debug().Err(err).Str("addr", c.addr).Msg("close connection in readPump")
		}
	}()

	c.setupReadConnection()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if c.handleReadError(err) {
				return
			}
			continue
		}

		if c.limiter != nil && !c.limiter.take(c.addr) {
			continue
		}

		c.processFrame(raw)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			log.Debug().Err(err).Str("addr", c.addr).Msg("close connection in writePump")
		}
	}()

	for {
		select {
		case payload, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Debug().Err(err).Str("addr", c.addr).Msg("set write deadline")
				return
			}
			if !ok {
				// Hub closed the channel; say goodbye properly.
				if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil && !isExpectedCloseError(err) {
					log.Debug().Err(err).Str("addr", c.addr).Msg("write close message")
				}
				return
			}
			// Each frame is a standalone JSON document, so frames are
			// written one per WebSocket message and never coalesced.
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				log.Debug().Err(err).Str("addr", c.addr).Msg("write message")
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Debug().Err(err).Str("addr", c.addr).Msg("set write deadline for ping")
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().Err(err).Str("addr", c.addr).Msg("write ping")
				return
			}
		}
	}
}

// isExpectedCloseError checks if an error is expected during connection
// closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
