package chat

import (
	"github.com/samber/lo"
)

// DefaultHistoryLimit bounds the in-memory history when no explicit capacity
// is configured.
const DefaultHistoryLimit = 50

// Store owns the bounded, ordered message history. Insertion order is
// arrival order; once capacity is exceeded the oldest message is evicted
// together with its reactions and read receipts. Messages are only ever
// mutated through the methods below so ownership checks cannot be bypassed.
type Store struct {
	limit   int
	ordered []*Message
	byID    map[string]*Message
}

// NewStore creates an empty store bounded to the given capacity. A
// non-positive capacity falls back to DefaultHistoryLimit.
func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &Store{
		limit:   limit,
		ordered: make([]*Message, 0, limit),
		byID:    make(map[string]*Message, limit),
	}
}

// Append inserts the message at the tail, evicting the head when the store
// is full. System messages count toward the capacity like any other kind.
// The stored copy is returned for broadcast.
func (s *Store) Append(m Message) Message {
	stored := m.Clone()
	s.ordered = append(s.ordered, &stored)
	s.byID[stored.ID] = &stored

	if len(s.ordered) > s.limit {
		evicted := s.ordered[0]
		s.ordered[0] = nil
		s.ordered = s.ordered[1:]
		delete(s.byID, evicted.ID)
	}
	return stored.Clone()
}

// Find returns a copy of the message with the given id.
func (s *Store) Find(id string) (Message, error) {
	m, ok := s.byID[id]
	if !ok {
		return Message{}, ErrNotFound
	}
	return m.Clone(), nil
}

// Edit replaces the body of a message owned by requester and marks it
// edited. Deleted messages are tombstones and can no longer be edited.
func (s *Store) Edit(id, newContent, requester string) (Message, error) {
	m, ok := s.byID[id]
	if !ok {
		return Message{}, ErrNotFound
	}
	if m.Sender != requester || m.Deleted {
		return Message{}, ErrForbidden
	}
	m.Content = newContent
	m.Edited = true
	return m.Clone(), nil
}

// SoftDelete tombstones a message owned by requester: the body is replaced
// with the fixed placeholder and the id is retained until eviction. The
// operation is irreversible.
func (s *Store) SoftDelete(id, requester string) error {
	m, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	if m.Sender != requester {
		return ErrForbidden
	}
	m.Content = DeletedPlaceholder
	m.Deleted = true
	return nil
}

// AddReaction records username under the given emoji. Adding the same pair
// twice has no additional effect. The full reaction snapshot is returned.
func (s *Store) AddReaction(id, emoji, username string) ([]ReactionView, error) {
	m, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	users, ok := m.Reactions[emoji]
	if !ok {
		users = make(map[string]struct{}, 1)
		m.Reactions[emoji] = users
	}
	users[username] = struct{}{}
	return m.Reactions.Snapshot(), nil
}

// RemoveReaction drops username from the emoji's set; the emoji key itself
// is removed once its set is empty. Removing an absent reaction is a no-op.
func (s *Store) RemoveReaction(id, emoji, username string) ([]ReactionView, error) {
	m, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	if users, ok := m.Reactions[emoji]; ok {
		delete(users, username)
		if len(users) == 0 {
			delete(m.Reactions, emoji)
		}
	}
	return m.Reactions.Snapshot(), nil
}

// MarkRead adds username to the message's read set. The returned flag is
// false when the username had already observed the message, letting the
// caller broadcast only actual deltas.
func (s *Store) MarkRead(id, username string) ([]string, bool, error) {
	m, ok := s.byID[id]
	if !ok {
		return nil, false, ErrNotFound
	}
	if _, seen := m.ReadBy[username]; seen {
		return m.ReadBy.Names(), false, nil
	}
	m.ReadBy[username] = struct{}{}
	return m.ReadBy.Names(), true, nil
}

// History returns copies of all retained messages, oldest first, for replay
// to a newly joined connection.
func (s *Store) History() []Message {
	return lo.Map(s.ordered, func(m *Message, _ int) Message {
		return m.Clone()
	})
}

// Len reports the number of retained messages.
func (s *Store) Len() int {
	return len(s.ordered)
}
