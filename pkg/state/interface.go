package state

import "github.com/google/uuid"

// Registry tracks live sessions and room membership. All mutations are
// idempotent where the contract says so: repeated joins and leaves are never
// errors, and reads of absent rooms return empty sets.
type Registry interface {
	// --- Session lifecycle ---
	RegisterConnection(conn Conn, ipAddr string) (*Session, error)
	// DeregisterConnection retracts every room membership the connection held
	// and discards the session. Safe to call for an unknown connection.
	DeregisterConnection(connID uuid.UUID) error
	GetSession(connID uuid.UUID) (*Session, bool)

	// Announce binds the session to a user identity and joins the user's
	// personal inbox room. Re-announcing with a different identity rebinds.
	Announce(connID uuid.UUID, userID string) (*Session, error)

	// --- Room membership ---
	Join(connID uuid.UUID, roomKey string) error
	Leave(connID uuid.UUID, roomKey string) error
	LeaveAll(connID uuid.UUID) error
	// MembersOf returns a snapshot of the sessions currently in the room;
	// the snapshot is safe to iterate while the registry mutates.
	MembersOf(roomKey string) []*Session

	// --- Per-user views (connection limiting, shutdown) ---
	UserConnectionCount(userID string) int
	OldestUserConnection(userID string) (*Session, bool)
	AllSessions() []*Session

	// --- Introspection ---
	ConnectionCount() int
	RoomCount() int
}
