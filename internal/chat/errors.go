package chat

import "errors"

// Failure kinds surfaced by the session core. Only ErrDuplicateName is ever
// reported back to a client; the rest are logged server-side and the action
// is dropped, so a probing client cannot tell a missing message from one it
// does not own.
var (
	ErrDuplicateName    = errors.New("username already taken")
	ErrNotFound         = errors.New("message not found")
	ErrForbidden        = errors.New("not the message owner")
	ErrNotAuthenticated = errors.New("connection not authenticated")
)
