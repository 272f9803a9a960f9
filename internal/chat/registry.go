package chat

import (
	"sort"

	"github.com/samber/lo"
)

// Registry is the single source of truth for who is online. It binds each
// live connection id to at most one username and enforces first-come
// uniqueness. Usernames are not durable accounts: a name frees up the moment
// its connection unregisters, and re-joining with it is allowed.
type Registry struct {
	byConn map[string]string
	byName map[string]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byConn: make(map[string]string),
		byName: make(map[string]string),
	}
}

// Register binds username to the connection. It fails with ErrDuplicateName
// when the name is held by a different live connection, leaving the existing
// binding untouched. Re-registering the same pair is a no-op; rebinding a
// connection under a new name frees its previous name so neither map holds a
// stale entry.
func (r *Registry) Register(connID, username string) error {
	if holder, taken := r.byName[username]; taken && holder != connID {
		return ErrDuplicateName
	}
	if current, bound := r.byConn[connID]; bound && current != username {
		delete(r.byName, current)
	}
	r.byConn[connID] = username
	r.byName[username] = connID
	return nil
}

// Unregister removes the connection's binding and returns the freed
// username. It is idempotent; the second return is false when no username
// was bound.
func (r *Registry) Unregister(connID string) (string, bool) {
	username, ok := r.byConn[connID]
	if !ok {
		return "", false
	}
	delete(r.byConn, connID)
	delete(r.byName, username)
	return username, true
}

// Username resolves the name bound to a connection, if any.
func (r *Registry) Username(connID string) (string, bool) {
	username, ok := r.byConn[connID]
	return username, ok
}

// ConnID resolves the connection currently holding a username, if any.
func (r *Registry) ConnID(username string) (string, bool) {
	connID, ok := r.byName[username]
	return connID, ok
}

// ActiveUsers returns the usernames of all registered connections, sorted
// for stable wire output.
func (r *Registry) ActiveUsers() []string {
	names := lo.Keys(r.byName)
	sort.Strings(names)
	return names
}

// Size reports the number of registered connections.
func (r *Registry) Size() int {
	return len(r.byConn)
}
