package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypingExpireChecksGeneration(t *testing.T) {
	tr := NewTypingTracker()

	gen := tr.Start("c1")
	require.True(t, tr.IsTyping("c1"))

	// A refresh invalidates the old generation.
	fresh := tr.Start("c1")
	assert.False(t, tr.Expire("c1", gen), "stale expiry must not clear a refreshed marker")
	assert.True(t, tr.IsTyping("c1"))

	assert.True(t, tr.Expire("c1", fresh))
	assert.False(t, tr.IsTyping("c1"))
}

func TestTypingStopBeatsExpiry(t *testing.T) {
	tr := NewTypingTracker()

	gen := tr.Start("c1")
	require.True(t, tr.Stop("c1"))

	assert.False(t, tr.Expire("c1", gen), "expiry after stop is a no-op")
	assert.False(t, tr.Stop("c1"), "stop is idempotent")
}

func TestTypingUsersMapsThroughRegistry(t *testing.T) {
	tr := NewTypingTracker()
	r := NewRegistry()
	require.NoError(t, r.Register("c1", "bob"))
	require.NoError(t, r.Register("c2", "alice"))

	tr.Start("c1")
	tr.Start("c2")
	tr.Start("c3") // never joined; must be dropped from the view

	assert.Equal(t, []string{"alice", "bob"}, tr.Users(r))
}
