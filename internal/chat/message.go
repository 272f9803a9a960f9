package chat

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Kind discriminates the message variants carried by the shared envelope.
type Kind string

const (
	KindSystem    Kind = "system"
	KindText      Kind = "text"
	KindVoice     Kind = "voice"
	KindEncrypted Kind = "encrypted"
)

// DeletedPlaceholder replaces the body of a soft-deleted message. The
// original content is unrecoverable once this is in place.
const DeletedPlaceholder = "This message has been deleted"

// Message is the session-lifetime unit of conversation. Content carries the
// plain text, the audio URL for voice messages, or the opaque ciphertext for
// encrypted ones; the server never interprets ciphertext.
type Message struct {
	ID              string    `json:"id"`
	Kind            Kind      `json:"type"`
	Sender          string    `json:"username,omitempty"`
	Content         string    `json:"content"`
	Recipient       string    `json:"recipient,omitempty"`
	SenderPublicKey string    `json:"senderPublicKey,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
	Edited          bool      `json:"edited"`
	Deleted         bool      `json:"deleted"`
	Reactions       Reactions `json:"reactions"`
	ReadBy          ReadSet   `json:"readBy"`
}

// Reactions maps an emoji to the set of usernames that reacted with it.
type Reactions map[string]map[string]struct{}

// ReadSet is the set of usernames that have observed a message.
type ReadSet map[string]struct{}

// ReactionView is the wire shape of one reaction entry.
type ReactionView struct {
	Emoji string   `json:"emoji"`
	Users []string `json:"users"`
}

// NewTextMessage builds a plain text message from a sender.
func NewTextMessage(sender, text string) Message {
	return newMessage(KindText, sender, text)
}

// NewVoiceMessage builds a voice message referencing an audio URL. The audio
// itself is hosted elsewhere; the server only stores the reference.
func NewVoiceMessage(sender, audioURL string) Message {
	return newMessage(KindVoice, sender, audioURL)
}

// NewEncryptedMessage builds a direct encrypted message. The ciphertext and
// public key are opaque blobs relayed as-is.
func NewEncryptedMessage(sender, recipient, ciphertext, senderPublicKey string) Message {
	m := newMessage(KindEncrypted, sender, ciphertext)
	m.Recipient = recipient
	m.SenderPublicKey = senderPublicKey
	return m
}

// NewSystemMessage builds a server announcement with no sender.
func NewSystemMessage(text string) Message {
	return newMessage(KindSystem, "", text)
}

func newMessage(kind Kind, sender, content string) Message {
	m := Message{
		ID:        uuid.NewString(),
		Kind:      kind,
		Sender:    sender,
		Content:   content,
		Timestamp: time.Now().UTC(),
		Reactions: Reactions{},
		ReadBy:    ReadSet{},
	}
	// A message is read by its own sender from the moment it exists.
	if sender != "" {
		m.ReadBy[sender] = struct{}{}
	}
	return m
}

// Clone returns a deep copy so callers can hand the message to encoders
// without racing against later mutation inside the store.
func (m Message) Clone() Message {
	out := m
	out.Reactions = make(Reactions, len(m.Reactions))
	for emoji, users := range m.Reactions {
		out.Reactions[emoji] = make(map[string]struct{}, len(users))
		for u := range users {
			out.Reactions[emoji][u] = struct{}{}
		}
	}
	out.ReadBy = make(ReadSet, len(m.ReadBy))
	for u := range m.ReadBy {
		out.ReadBy[u] = struct{}{}
	}
	return out
}

// Snapshot flattens the reaction sets into the wire shape, sorted by emoji
// with sorted user lists, so repeated snapshots of the same state are
// byte-identical.
func (r Reactions) Snapshot() []ReactionView {
	views := make([]ReactionView, 0, len(r))
	for emoji, users := range r {
		names := lo.Keys(users)
		sort.Strings(names)
		views = append(views, ReactionView{Emoji: emoji, Users: names})
	}
	sort.Slice(views, func(i, j int) bool { return views[i].Emoji < views[j].Emoji })
	return views
}

// MarshalJSON serializes reactions as the sorted view array.
func (r Reactions) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Snapshot())
}

// UnmarshalJSON rebuilds the reaction sets from the view array.
func (r *Reactions) UnmarshalJSON(data []byte) error {
	var views []ReactionView
	if err := json.Unmarshal(data, &views); err != nil {
		return err
	}
	out := make(Reactions, len(views))
	for _, v := range views {
		users := make(map[string]struct{}, len(v.Users))
		for _, u := range v.Users {
			users[u] = struct{}{}
		}
		out[v.Emoji] = users
	}
	*r = out
	return nil
}

// Names returns the usernames in the set, sorted.
func (s ReadSet) Names() []string {
	names := lo.Keys(s)
	sort.Strings(names)
	return names
}

// MarshalJSON serializes the read set as a sorted username array.
func (s ReadSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Names())
}

// UnmarshalJSON rebuilds the set from a username array.
func (s *ReadSet) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	out := make(ReadSet, len(names))
	for _, n := range names {
		out[n] = struct{}{}
	}
	*s = out
	return nil
}
