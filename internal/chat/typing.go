package chat

import (
	"sort"

	"github.com/samber/lo"
)

// TypingTracker holds the transient per-connection typing markers. Expiry is
// scheduled by the caller; each (re)start bumps a generation counter so that
// a stale timer callback arriving after a stop or refresh can be recognized
// and ignored instead of clearing fresher state.
type TypingTracker struct {
	entries map[string]uint64
	gen     uint64
}

// NewTypingTracker creates an empty tracker.
func NewTypingTracker() *TypingTracker {
	return &TypingTracker{entries: make(map[string]uint64)}
}

// Start marks the connection as typing and returns the generation the caller
// must present on expiry. Restarting refreshes the generation, invalidating
// any previously scheduled expiry.
func (t *TypingTracker) Start(connID string) uint64 {
	t.gen++
	t.entries[connID] = t.gen
	return t.gen
}

// Stop clears the connection's marker immediately. It reports whether a
// marker was present, so the caller knows if a broadcast is due.
func (t *TypingTracker) Stop(connID string) bool {
	if _, ok := t.entries[connID]; !ok {
		return false
	}
	delete(t.entries, connID)
	return true
}

// Expire clears the marker only when the stored generation still matches the
// one handed out by Start. A mismatch means the entry was stopped or
// refreshed in the meantime and the expiry must not fire.
func (t *TypingTracker) Expire(connID string, gen uint64) bool {
	current, ok := t.entries[connID]
	if !ok || current != gen {
		return false
	}
	delete(t.entries, connID)
	return true
}

// IsTyping reports whether the connection has a live marker.
func (t *TypingTracker) IsTyping(connID string) bool {
	_, ok := t.entries[connID]
	return ok
}

// Users maps the live markers through the registry and returns the sorted
// usernames currently typing. Connections without a bound username are
// dropped.
func (t *TypingTracker) Users(reg *Registry) []string {
	names := lo.FilterMap(lo.Keys(t.entries), func(connID string, _ int) (string, bool) {
		return reg.Username(connID)
	})
	sort.Strings(names)
	return names
}
