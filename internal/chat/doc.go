// Package chat implements the transport-free session core of the Parlor
// server: the bounded message history, the username registry, and the typing
// tracker, together with the error taxonomy shared with the connection layer.
//
// Nothing in this package is safe for concurrent use on its own. All state is
// owned by the hub's event loop in internal/server, which processes one event
// to completion before starting the next.
package chat
