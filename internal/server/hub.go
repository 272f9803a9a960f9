// Package server coordinates client registration, session state, and message
// fan-out for the Parlor WebSocket system via the Hub type.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/parlorchat/parlor/internal/chat"
)

// inboundEvent is one unit of work for the hub: a named event from a client
// with its raw payload.
type inboundEvent struct {
	client *Client
	name   string
	data   json.RawMessage
}

// Hub is the broadcast router. It owns the username registry, the bounded
// message store, and the typing tracker, and it is the only goroutine that
// mutates them: every inbound event, timer expiry, and disconnect is handled
// to completion on the Run loop before the next one starts, which gives
// single-threaded semantics over the shared session state without locks.
type Hub struct {
	cfg Config

	clients map[*Client]struct{}
	byID    map[string]*Client

	registry *chat.Registry
	store    *chat.Store
	typing   *chat.TypingTracker
	timers   map[string]*time.Timer
	origins  *originPolicy

	register   chan *Client
	unregister chan *Client
	events     chan inboundEvent
	tasks      chan func()

	ready  atomic.Bool
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHub creates a Hub with empty session state. Call Run in its own
// goroutine before accepting connections.
func NewHub(cfg Config) *Hub {
	cfg = sanitizeConfig(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		cfg:        cfg,
		clients:    make(map[*Client]struct{}),
		byID:       make(map[string]*Client),
		registry:   chat.NewRegistry(),
		store:      chat.NewStore(cfg.HistoryLimit),
		typing:     chat.NewTypingTracker(),
		timers:     make(map[string]*time.Timer),
		origins:    newOriginPolicy(cfg.AllowedOrigins),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		events:     make(chan inboundEvent, 64),
		tasks:      make(chan func(), 64),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Ready reports whether the event loop is accepting events; the health
// endpoint surfaces this to the host process.
func (h *Hub) Ready() bool {
	return h.ready.Load()
}

// Run is the hub's event loop. Events are processed as discrete,
// non-overlapping units of work in arrival order; it returns only after
// shutdown is requested through Shutdown.
func (h *Hub) Run() {
	h.ready.Store(true)
	defer func() {
		h.ready.Store(false)
		close(h.done)
	}()

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				log.Warn().Msg("received nil client registration; skipping")
				continue
			}
			h.clients[client] = struct{}{}
			h.byID[client.id] = client
			log.Info().Str("addr", client.addr).Int("total", len(h.clients)).Msg("client connected")

		case client := <-h.unregister:
			h.dropClient(client)

		case ev := <-h.events:
			h.handleEvent(ev)

		case fn := <-h.tasks:
			fn()
		}
	}
}

// dispatch hands an inbound event to the Run loop. Events arriving during
// shutdown are discarded.
func (h *Hub) dispatch(ev inboundEvent) {
	select {
	case h.events <- ev:
	case <-h.done:
	}
}

// schedule enqueues a timer callback onto the Run loop so it mutates state
// with the same single-threaded guarantees as client events.
func (h *Hub) schedule(fn func()) {
	select {
	case h.tasks <- fn:
	case <-h.done:
	}
}

// handleEvent resolves the acting identity and routes the event to the
// matching session operation. Everything except join is silently dropped
// for unauthenticated connections.
func (h *Hub) handleEvent(ev inboundEvent) {
	if _, live := h.clients[ev.client]; !live {
		return
	}

	if ev.name == evJoin {
		h.handleJoin(ev)
		return
	}

	username, ok := h.registry.Username(ev.client.id)
	if !ok {
		log.Debug().Str("addr", ev.client.addr).Str("event", ev.name).Err(chat.ErrNotAuthenticated).Msg("dropping event")
		return
	}

	switch ev.name {
	case evSendMessage:
		h.handleSendMessage(ev, username)
	case evSendEncrypted:
		h.handleSendEncrypted(ev, username)
	case evVoiceMessage:
		h.handleVoiceMessage(ev, username)
	case evEditMessage:
		h.handleEditMessage(ev, username)
	case evDeleteMessage:
		h.handleDeleteMessage(ev, username)
	case evAddReaction:
		h.handleReaction(ev, username, true)
	case evRemoveReaction:
		h.handleReaction(ev, username, false)
	case evMarkAsRead:
		h.handleMarkAsRead(ev, username)
	case evTyping:
		h.handleTyping(ev)
	default:
		log.Debug().Str("event", ev.name).Str("user", username).Msg("dropping unknown event")
	}
}

// handleJoin binds a username to the connection. Only the duplicate-name
// failure is surfaced to the requester; the connection then stays
// unauthenticated and may retry with another name.
func (h *Hub) handleJoin(ev inboundEvent) {
	if _, already := h.registry.Username(ev.client.id); already {
		log.Debug().Str("addr", ev.client.addr).Msg("dropping join from authenticated connection")
		return
	}

	var p joinPayload
	if err := decodePayload(ev.data, &p); err != nil {
		log.Debug().Str("addr", ev.client.addr).Err(err).Msg("dropping invalid join")
		return
	}

	username := sanitizeText(p.Username, 32)
	if username == "" {
		log.Debug().Str("addr", ev.client.addr).Msg("dropping join with empty username")
		return
	}

	if err := h.registry.Register(ev.client.id, username); err != nil {
		if errors.Is(err, chat.ErrDuplicateName) {
			log.Info().Str("addr", ev.client.addr).Str("user", username).Msg("rejected join with taken username")
			h.sendTo(ev.client, evAuthError, authErrorPayload{Error: "Username is already taken"})
			return
		}
		log.Error().Err(err).Str("user", username).Msg("register connection")
		return
	}

	log.Info().Str("addr", ev.client.addr).Str("user", username).Msg("user joined")

	// Replay history to the newcomer first, then announce to everyone.
	h.sendTo(ev.client, evMessageHistory, h.store.History())
	joined := h.store.Append(chat.NewSystemMessage(username + " has joined the chat"))
	h.broadcastAll(evMessage, joined)
	h.broadcastAll(evUserList, h.registry.ActiveUsers())
}

func (h *Hub) handleSendMessage(ev inboundEvent, username string) {
	var p sendMessagePayload
	if err := decodePayload(ev.data, &p); err != nil {
		log.Debug().Str("user", username).Err(err).Msg("dropping invalid sendMessage")
		return
	}
	text := sanitizeText(p.Text, h.cfg.MaxContentLen)
	if text == "" {
		return
	}
	stored := h.store.Append(chat.NewTextMessage(username, text))
	h.broadcastAll(evMessage, stored)
}

// handleSendEncrypted relays an opaque ciphertext to the recipient and
// echoes it to the sender; nobody else sees it. The server never inspects
// the payload.
func (h *Hub) handleSendEncrypted(ev inboundEvent, username string) {
	var p sendEncryptedPayload
	if err := decodePayload(ev.data, &p); err != nil {
		log.Debug().Str("user", username).Err(err).Msg("dropping invalid sendEncryptedMessage")
		return
	}
	stored := h.store.Append(chat.NewEncryptedMessage(username, p.Recipient, p.Ciphertext, p.SenderPublicKey))
	h.sendTo(ev.client, evMessage, stored)
	if connID, online := h.registry.ConnID(p.Recipient); online && connID != ev.client.id {
		if target, ok := h.byID[connID]; ok {
			h.sendTo(target, evMessage, stored)
		}
	}
}

func (h *Hub) handleVoiceMessage(ev inboundEvent, username string) {
	var p voiceMessagePayload
	if err := decodePayload(ev.data, &p); err != nil {
		log.Debug().Str("user", username).Err(err).Msg("dropping invalid voiceMessage")
		return
	}
	stored := h.store.Append(chat.NewVoiceMessage(username, p.AudioURL))
	h.broadcastAll(evMessage, stored)
}

func (h *Hub) handleEditMessage(ev inboundEvent, username string) {
	var p editMessagePayload
	if err := decodePayload(ev.data, &p); err != nil {
		log.Debug().Str("user", username).Err(err).Msg("dropping invalid editMessage")
		return
	}
	text := sanitizeText(p.NewText, h.cfg.MaxContentLen)
	if text == "" {
		return
	}
	updated, err := h.store.Edit(p.MessageID, text, username)
	if err != nil {
		// NotFound and Forbidden are logged apart but equally invisible to
		// the client, so message existence cannot be probed.
		log.Debug().Str("user", username).Str("id", p.MessageID).Err(err).Msg("dropping edit")
		return
	}
	h.broadcastAll(evMessageEdited, updated)
}

func (h *Hub) handleDeleteMessage(ev inboundEvent, username string) {
	var p deleteMessagePayload
	if err := decodePayload(ev.data, &p); err != nil {
		log.Debug().Str("user", username).Err(err).Msg("dropping invalid deleteMessage")
		return
	}
	if err := h.store.SoftDelete(p.MessageID, username); err != nil {
		log.Debug().Str("user", username).Str("id", p.MessageID).Err(err).Msg("dropping delete")
		return
	}
	h.broadcastAll(evMessageDeleted, messageDeletedPayload{MessageID: p.MessageID})
}

func (h *Hub) handleReaction(ev inboundEvent, username string, add bool) {
	var p reactionPayload
	if err := decodePayload(ev.data, &p); err != nil {
		log.Debug().Str("user", username).Err(err).Msg("dropping invalid reaction")
		return
	}
	var (
		snapshot []chat.ReactionView
		err      error
	)
	if add {
		snapshot, err = h.store.AddReaction(p.MessageID, p.Reaction, username)
	} else {
		snapshot, err = h.store.RemoveReaction(p.MessageID, p.Reaction, username)
	}
	if err != nil {
		log.Debug().Str("user", username).Str("id", p.MessageID).Err(err).Msg("dropping reaction")
		return
	}
	h.broadcastAll(evReactionUpdated, reactionUpdatedPayload{MessageID: p.MessageID, Reactions: snapshot})
}

// handleMarkAsRead records read receipts and broadcasts one update per
// message that actually changed. Ids evicted from history are skipped; they
// only indicate a stale client view.
func (h *Hub) handleMarkAsRead(ev inboundEvent, username string) {
	var p markAsReadPayload
	if err := decodePayload(ev.data, &p); err != nil {
		log.Debug().Str("user", username).Err(err).Msg("dropping invalid markAsRead")
		return
	}
	for _, id := range p.MessageIDs {
		readBy, changed, err := h.store.MarkRead(id, username)
		if err != nil {
			log.Debug().Str("user", username).Str("id", id).Err(err).Msg("skipping read receipt")
			continue
		}
		if changed {
			h.broadcastAll(evReadReceiptUpdated, readReceiptPayload{MessageID: id, ReadBy: readBy})
		}
	}
}

// handleTyping arms or clears the per-connection typing marker. Expiry runs
// through the task queue and is validated against the tracker's generation
// counter, so a cancelled or refreshed marker never fires late.
func (h *Hub) handleTyping(ev inboundEvent) {
	var isTyping bool
	if err := json.Unmarshal(ev.data, &isTyping); err != nil {
		log.Debug().Str("addr", ev.client.addr).Err(err).Msg("dropping invalid typing")
		return
	}

	connID := ev.client.id
	h.cancelTypingTimer(connID)

	if isTyping {
		gen := h.typing.Start(connID)
		h.timers[connID] = time.AfterFunc(h.cfg.TypingTTL, func() {
			h.schedule(func() {
				delete(h.timers, connID)
				if h.typing.Expire(connID, gen) {
					h.broadcastTyping(h.byID[connID])
				}
			})
		})
		h.broadcastTyping(ev.client)
		return
	}

	if h.typing.Stop(connID) {
		h.broadcastTyping(ev.client)
	}
}

func (h *Hub) cancelTypingTimer(connID string) {
	if timer, ok := h.timers[connID]; ok {
		timer.Stop()
		delete(h.timers, connID)
	}
}

// broadcastTyping fans the aggregate typing state out to every registered
// connection, excluding the connection whose state changed unless the echo
// policy is enabled.
func (h *Hub) broadcastTyping(changed *Client) {
	except := changed
	if h.cfg.TypingEchoSelf {
		except = nil
	}
	h.broadcast(evTypingStatus, typingStatusPayload{Users: h.typing.Users(h.registry)}, except)
}

// dropClient runs the full disconnect cascade: connection bookkeeping,
// typing cleanup, registry unbind, and presence rebroadcast. It is
// idempotent so racing unregister paths are safe.
func (h *Hub) dropClient(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	delete(h.byID, client.id)
	close(client.send)

	h.cancelTypingTimer(client.id)
	wasTyping := h.typing.Stop(client.id)

	username, had := h.registry.Unregister(client.id)
	log.Info().Str("addr", client.addr).Str("user", username).Int("total", len(h.clients)).Msg("client disconnected")
	if !had {
		return
	}
	if wasTyping {
		h.broadcastTyping(nil)
	}
	left := h.store.Append(chat.NewSystemMessage(username + " has left the chat"))
	h.broadcastAll(evMessage, left)
	h.broadcastAll(evUserList, h.registry.ActiveUsers())
}

// sendTo unicasts one event to a single connection.
func (h *Hub) sendTo(client *Client, event string, payload interface{}) {
	data, err := encodeFrame(event, payload)
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("encode frame")
		return
	}
	if _, ok := h.clients[client]; !ok {
		return
	}
	select {
	case client.send <- data:
	default:
		log.Warn().Str("addr", client.addr).Msg("send buffer full; dropping client")
		h.dropClient(client)
	}
}

func (h *Hub) broadcastAll(event string, payload interface{}) {
	h.broadcast(event, payload, nil)
}

// broadcast fans one event out to every registered (joined) connection,
// optionally excluding one. Clients whose send buffer is full are removed
// rather than allowed to stall the loop.
func (h *Hub) broadcast(event string, payload interface{}, except *Client) {
	data, err := encodeFrame(event, payload)
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("encode frame")
		return
	}

	var failed []*Client
	for client := range h.clients {
		if client == except {
			continue
		}
		if _, joined := h.registry.Username(client.id); !joined {
			continue
		}
		select {
		case client.send <- data:
		default:
			failed = append(failed, client)
		}
	}
	for _, client := range failed {
		log.Warn().Str("addr", client.addr).Msg("send buffer full; dropping client")
		h.dropClient(client)
	}
}

// shutdownClients closes every send channel so the write pumps deliver a
// close frame and exit.
func (h *Hub) shutdownClients() {
	log.Info().Int("count", len(h.clients)).Msg("closing client connections")
	for client := range h.clients {
		delete(h.clients, client)
		delete(h.byID, client.id)
		close(client.send)
	}
	for connID, timer := range h.timers {
		timer.Stop()
		delete(h.timers, connID)
	}
}

// Shutdown stops the event loop and waits for all client goroutines to
// finish, or until the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	log.Info().Msg("initiating hub shutdown")

	h.cancel()
	<-h.done

	finished := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		log.Info().Msg("hub shutdown completed")
		return nil
	case <-time.After(timeout):
		log.Warn().Msg("hub shutdown timeout reached; some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
