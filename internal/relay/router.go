package relay

import (
	"log/slog"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"chatrelay/internal/metrics"
	"chatrelay/pkg/protocol"
	"chatrelay/pkg/state"
)

// route validates an inbound frame and hands it to the matching handler.
// Relay-level problems are never surfaced to the emitting peer: a malformed
// or unsupported event is dropped, logged, and counted, and must never
// disrupt the connection or other rooms.
func (r *Relay) route(connID uuid.UUID, frame []byte) {
	var msg protocol.ClientMessage
	if err := json.Unmarshal(frame, &msg); err != nil || msg.Event == "" {
		metrics.EventsDropped.WithLabelValues("malformed").Inc()
		r.logger.Debug("dropping unparseable frame", slog.Any("error", err))
		return
	}

	sess, ok := r.registry.GetSession(connID)
	if !ok {
		// The connection raced with its own disconnect; nothing to do.
		return
	}

	switch msg.Event {
	case protocol.EventJoinChat:
		r.handleJoin(sess, msg.Payload)
	case protocol.EventLeaveChat:
		r.handleLeave(sess, msg.Payload)
	case protocol.EventSendMessage:
		r.handleSendMessage(sess, msg.Payload)
	case protocol.EventStartCall, protocol.EventAcceptCall, protocol.EventDeclineCall, protocol.EventHangup:
		r.handleCallSignal(sess, msg.Event, msg.Payload)
	case protocol.EventChangeImageGroup:
		r.handleGroupImage(sess, msg.Payload)
	default:
		metrics.EventsDropped.WithLabelValues("unknown_event").Inc()
		r.logger.Debug("ignoring unknown event", slog.String("event", msg.Event))
		return
	}
	metrics.EventsTotal.WithLabelValues(msg.Event).Inc()
}

// handleJoin subscribes the connection to a room. A bare numeric payload is
// a group id and lands in the group namespace; a string payload is taken
// literally (pair keys and personal ids are computed client-side).
func (r *Relay) handleJoin(sess *state.Session, payload json.RawMessage) {
	key := joinTarget(payload)
	if key == "" {
		metrics.EventsDropped.WithLabelValues("malformed").Inc()
		return
	}
	if err := r.registry.Join(sess.ID, key); err != nil {
		r.logger.Warn("join failed", slog.String("room", key), slog.Any("error", err))
	}
}

func (r *Relay) handleLeave(sess *state.Session, payload json.RawMessage) {
	key := joinTarget(payload)
	if key == "" {
		metrics.EventsDropped.WithLabelValues("malformed").Inc()
		return
	}
	if err := r.registry.Leave(sess.ID, key); err != nil {
		r.logger.Warn("leave failed", slog.String("room", key), slog.Any("error", err))
	}
}

// handleSendMessage fans an already-persisted message out to the other
// members of its conversation room. The sender is excluded; it already has
// the optimistic local copy. The envelope is relayed verbatim.
func (r *Relay) handleSendMessage(sess *state.Session, payload json.RawMessage) {
	chatID := gjson.GetBytes(payload, "chatId")
	userID := gjson.GetBytes(payload, "userId")
	if chatID.String() == "" || !userID.Exists() {
		metrics.EventsDropped.WithLabelValues("malformed").Inc()
		r.logger.Debug("send_message missing chatId or userId")
		return
	}
	r.dispatcher.Broadcast(chatID.String(), protocol.EventReceiveMessage, payload, sess.ID)
}

// handleCallSignal routes call-lifecycle events. The signal reaches the
// target's personal inbox room whether or not any conversation room between
// the parties is joined; a target with no live connections means the signal
// is dropped, there is no server-side ringing persistence. The legacy shape
// carries a chatId instead of a targetId and goes to that room directly.
func (r *Relay) handleCallSignal(sess *state.Session, event string, payload json.RawMessage) {
	var room string
	if target := gjson.GetBytes(payload, "targetId"); target.String() != "" {
		room = protocol.PersonalRoom(target.String())
	} else if chat := gjson.GetBytes(payload, "chatId"); chat.String() != "" {
		room = chat.String()
	} else {
		metrics.EventsDropped.WithLabelValues("malformed").Inc()
		r.logger.Debug("call signal missing targetId and chatId", slog.String("event", event))
		return
	}

	// An invite is announced under both names: older client surfaces listen
	// for "call", the call modal listens for "startcall".
	if event == protocol.EventStartCall {
		r.dispatcher.Broadcast(room, protocol.EventCall, payload, sess.ID)
	}
	r.dispatcher.Broadcast(room, event, payload, sess.ID)
}

// handleGroupImage pushes a group's new image to its members so they update
// without re-fetching. The URL was resolved by the upload API beforehand.
func (r *Relay) handleGroupImage(sess *state.Session, payload json.RawMessage) {
	groupID := gjson.GetBytes(payload, "groupId")
	if !groupID.Exists() {
		metrics.EventsDropped.WithLabelValues("malformed").Inc()
		return
	}
	key := protocol.GroupRoom(groupID.Int())
	r.dispatcher.Broadcast(key, protocol.EventChangeImageGroup, payload, sess.ID)
}

func joinTarget(payload json.RawMessage) string {
	res := gjson.ParseBytes(payload)
	switch res.Type {
	case gjson.String, gjson.Number:
		return protocol.NormalizeJoinTarget(res.String(), res.Type == gjson.Number)
	default:
		return ""
	}
}
