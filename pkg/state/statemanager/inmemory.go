package statemanager

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"chatrelay/pkg/protocol"
	"chatrelay/pkg/state"
)

// InMemoryRegistry is the single-process Registry implementation. One mutex
// guards sessions, rooms, and the per-user index together; the structures
// cross-reference each other and partial locking invites inconsistent
// snapshots.
type InMemoryRegistry struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*state.Session
	rooms    map[string]*state.Room
	byUser   map[string]map[uuid.UUID]*state.Session

	logger *slog.Logger
}

func NewInMemoryRegistry(logger *slog.Logger) *InMemoryRegistry {
	return &InMemoryRegistry{
		sessions: make(map[uuid.UUID]*state.Session),
		rooms:    make(map[string]*state.Room),
		byUser:   make(map[string]map[uuid.UUID]*state.Session),
		logger:   logger.With(slog.String("component", "registry")),
	}
}

// compile-time check to ensure InMemoryRegistry implements Registry.
var _ state.Registry = (*InMemoryRegistry)(nil)

func (r *InMemoryRegistry) RegisterConnection(conn state.Conn, ipAddr string) (*state.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	connID := conn.ID()
	if _, exists := r.sessions[connID]; exists {
		return nil, errors.New("connection is already registered")
	}
	sess := &state.Session{
		ID:        connID,
		IPAddress: ipAddr,
		Transport: conn,
		CreatedAt: time.Now(),
		Rooms:     make(map[string]struct{}),
	}
	r.sessions[connID] = sess
	r.logger.Debug("connection registered", slog.String("connID", connID.String()))
	return sess, nil
}

func (r *InMemoryRegistry) DeregisterConnection(connID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[connID]
	if !ok {
		// already deregistered
		return nil
	}
	r.leaveAllLocked(sess)
	r.detachUserLocked(sess)
	delete(r.sessions, connID)
	r.logger.Debug("connection deregistered", slog.String("connID", connID.String()))
	return nil
}

func (r *InMemoryRegistry) GetSession(connID uuid.UUID) (*state.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[connID]
	return sess, ok
}

func (r *InMemoryRegistry) Announce(connID uuid.UUID, userID string) (*state.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[connID]
	if !ok {
		return nil, errors.New("cannot announce on unknown connection")
	}
	if sess.UserID == userID {
		return sess, nil
	}

	// Rebinding: retract the previous identity's personal room and index entry.
	if sess.UserID != "" {
		r.leaveLocked(sess, protocol.PersonalRoom(sess.UserID))
		r.detachUserLocked(sess)
		r.logger.Info("session rebound to new identity",
			slog.String("connID", connID.String()),
			slog.String("old", sess.UserID),
			slog.String("new", userID),
		)
	}

	sess.UserID = userID
	conns, ok := r.byUser[userID]
	if !ok {
		conns = make(map[uuid.UUID]*state.Session)
		r.byUser[userID] = conns
	}
	conns[connID] = sess

	// Identification implies participation in the personal inbox room; call
	// signaling and cross-device notification reach the user through it
	// without an explicit join.
	r.joinLocked(sess, protocol.PersonalRoom(userID))

	r.logger.Debug("session announced", slog.String("connID", connID.String()), slog.String("userID", userID))
	return sess, nil
}

func (r *InMemoryRegistry) Join(connID uuid.UUID, roomKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[connID]
	if !ok {
		return errors.New("cannot join room on unknown connection")
	}
	r.joinLocked(sess, roomKey)
	return nil
}

func (r *InMemoryRegistry) Leave(connID uuid.UUID, roomKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[connID]
	if !ok {
		// nothing to retract
		return nil
	}
	r.leaveLocked(sess, roomKey)
	return nil
}

func (r *InMemoryRegistry) LeaveAll(connID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[connID]
	if !ok {
		return nil
	}
	r.leaveAllLocked(sess)
	return nil
}

func (r *InMemoryRegistry) MembersOf(roomKey string) []*state.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[roomKey]
	if !ok {
		return nil
	}
	members := make([]*state.Session, 0, len(room.Members))
	for _, sess := range room.Members {
		members = append(members, sess)
	}
	return members
}

func (r *InMemoryRegistry) UserConnectionCount(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID])
}

func (r *InMemoryRegistry) OldestUserConnection(userID string) (*state.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var oldest *state.Session
	for _, sess := range r.byUser[userID] {
		if oldest == nil || sess.CreatedAt.Before(oldest.CreatedAt) {
			oldest = sess
		}
	}
	return oldest, oldest != nil
}

func (r *InMemoryRegistry) AllSessions() []*state.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := make([]*state.Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		sessions = append(sessions, sess)
	}
	return sessions
}

func (r *InMemoryRegistry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *InMemoryRegistry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// joinLocked is idempotent: a repeated join leaves the membership set unchanged.
func (r *InMemoryRegistry) joinLocked(sess *state.Session, roomKey string) {
	if roomKey == "" {
		return
	}
	room, ok := r.rooms[roomKey]
	if !ok {
		room = &state.Room{
			Key:     roomKey,
			Members: make(map[uuid.UUID]*state.Session),
		}
		r.rooms[roomKey] = room
	}
	room.Members[sess.ID] = sess
	sess.Rooms[roomKey] = struct{}{}
	r.logger.Debug("joined room", slog.String("connID", sess.ID.String()), slog.String("room", roomKey))
}

// leaveLocked is idempotent and prunes rooms whose member set becomes empty.
func (r *InMemoryRegistry) leaveLocked(sess *state.Session, roomKey string) {
	delete(sess.Rooms, roomKey)
	room, ok := r.rooms[roomKey]
	if !ok {
		return
	}
	delete(room.Members, sess.ID)
	if len(room.Members) == 0 {
		delete(r.rooms, roomKey)
		r.logger.Debug("pruned empty room", slog.String("room", roomKey))
	}
	r.logger.Debug("left room", slog.String("connID", sess.ID.String()), slog.String("room", roomKey))
}

func (r *InMemoryRegistry) leaveAllLocked(sess *state.Session) {
	for roomKey := range sess.Rooms {
		r.leaveLocked(sess, roomKey)
	}
}

func (r *InMemoryRegistry) detachUserLocked(sess *state.Session) {
	if sess.UserID == "" {
		return
	}
	conns, ok := r.byUser[sess.UserID]
	if !ok {
		return
	}
	delete(conns, sess.ID)
	if len(conns) == 0 {
		delete(r.byUser, sess.UserID)
	}
}
