package chat

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReactionsMarshalSorted(t *testing.T) {
	r := Reactions{
		"🎉": {"carol": {}},
		"👍": {"bob": {}, "alice": {}},
	}

	data, err := json.Marshal(r)
	require.NoError(t, err)

	var views []ReactionView
	require.NoError(t, json.Unmarshal(data, &views))
	require.Len(t, views, 2)
	// Sorted by emoji, users sorted within each entry.
	assert.Equal(t, []string{"alice", "bob"}, views[0].Users)
	assert.Equal(t, []string{"carol"}, views[1].Users)
}

func TestReactionsRoundTrip(t *testing.T) {
	orig := Reactions{"👍": {"alice": {}, "bob": {}}}

	data, err := json.Marshal(orig)
	require.NoError(t, err)

	var back Reactions
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, orig, back)
}

func TestMessageWireShape(t *testing.T) {
	m := NewTextMessage("alice", "hi")

	data, err := json.Marshal(m)
	require.NoError(t, err)

	var wire map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &wire))

	assert.Contains(t, wire, "id")
	assert.Contains(t, wire, "username")
	assert.Contains(t, wire, "content")
	assert.Contains(t, wire, "timestamp")
	assert.Contains(t, wire, "reactions")
	assert.Contains(t, wire, "readBy")
	assert.JSONEq(t, `"text"`, string(wire["type"]))
	assert.JSONEq(t, `["alice"]`, string(wire["readBy"]))
	assert.NotContains(t, wire, "recipient", "empty optional fields are omitted")
}

func TestSystemMessageOmitsSender(t *testing.T) {
	m := NewSystemMessage("bob has left the chat")

	data, err := json.Marshal(m)
	require.NoError(t, err)

	var wire map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &wire))
	assert.NotContains(t, wire, "username")
}

func TestEncryptedMessageCarriesKeyAndRecipient(t *testing.T) {
	m := NewEncryptedMessage("alice", "bob", "ciphertext-blob", "pubkey-blob")

	assert.Equal(t, KindEncrypted, m.Kind)
	assert.Equal(t, "bob", m.Recipient)
	assert.Equal(t, "pubkey-blob", m.SenderPublicKey)
	assert.Equal(t, "ciphertext-blob", m.Content)
}

func TestCloneIsDeep(t *testing.T) {
	m := NewTextMessage("alice", "hi")
	m.Reactions["👍"] = map[string]struct{}{"bob": {}}

	c := m.Clone()
	c.Reactions["👍"]["carol"] = struct{}{}
	c.ReadBy["dave"] = struct{}{}

	assert.Equal(t, []string{"bob"}, func() []string {
		var names []string
		for u := range m.Reactions["👍"] {
			names = append(names, u)
		}
		return names
	}())
	assert.Equal(t, []string{"alice"}, m.ReadBy.Names())
}
