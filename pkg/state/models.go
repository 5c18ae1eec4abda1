package state

import (
	"time"

	"github.com/google/uuid"
)

// Conn is what the registry needs from a transport connection. Satisfied by
// *transport.Connection; tests substitute fakes.
type Conn interface {
	ID() uuid.UUID
	Send(message []byte) bool
	Close(err error)
}

// Session is the relay-side representation of one live client connection.
// It is owned exclusively by the relay process and never persisted.
type Session struct {
	ID        uuid.UUID
	IPAddress string
	Transport Conn
	CreatedAt time.Time

	// UserID is empty until the session is announced. Multiple sessions may
	// carry the same UserID concurrently; that is multi-device fan-out, not
	// an error.
	UserID string

	// Rooms is the set of room keys this connection currently participates
	// in, maintained so disconnect can retract every membership in one pass.
	Rooms map[string]struct{}
}

// Room is a named broadcast group. Membership is transient and relay-local;
// an absent room is equivalent to an empty one.
type Room struct {
	Key     string
	Members map[uuid.UUID]*Session
}
