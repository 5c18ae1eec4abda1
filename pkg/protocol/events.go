// Package protocol is the single source of truth for the relay's event
// vocabulary: event names, payload shapes, and room-key derivation. The
// server and any Go client derive both from here rather than scattering
// string literals across call sites.
package protocol

import json "github.com/goccy/go-json"

// Inbound event names (client -> relay).
const (
	EventJoinChat         = "join_chat"
	EventLeaveChat        = "leave_chat"
	EventSendMessage      = "send_message"
	EventStartCall        = "startcall"
	EventAcceptCall       = "acceptcall"
	EventDeclineCall      = "decline_call"
	EventHangup           = "hangup"
	EventChangeImageGroup = "changeImageGroup"
)

// Outbound event names (relay -> client).
const (
	EventReceiveMessage = "receive_message"
	EventCall           = "call"
)

// ClientMessage is the framing every inbound frame must satisfy: a named
// event plus an opaque payload the router inspects per event.
type ClientMessage struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// ServerMessage is the outbound frame shape, relayed verbatim to room members.
type ServerMessage struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// MessageEnvelope is the in-flight form of an already-persisted message.
// The relay holds no durable copy; Content may be ciphertext and File an
// already-resolved URL, both opaque here.
type MessageEnvelope struct {
	ID             json.Number `json:"id"`
	Content        string      `json:"content,omitempty"`
	File           string      `json:"file,omitempty"`
	Profile        string      `json:"profile,omitempty"`
	ChatID         string      `json:"chatId"`
	ConversationID json.Number `json:"conversationId,omitempty"`
	UserID         json.Number `json:"userId"`
}

// CallSignalKind discriminates the call-lifecycle events. All of them are
// routed to the target's personal inbox room, never to a conversation room.
type CallSignalKind string

const (
	CallInvite  CallSignalKind = "invite"
	CallAccept  CallSignalKind = "accept"
	CallDecline CallSignalKind = "decline"
	CallHangup  CallSignalKind = "hangup"
)

// CallSignal is the payload for startcall and its siblings. The legacy shape
// carries only ChatID, in which case the signal is broadcast to that room
// instead of a personal inbox.
type CallSignal struct {
	TargetID json.Number `json:"targetId,omitempty"`
	CallerID json.Number `json:"callerId,omitempty"`
	ChatID   string      `json:"chatId,omitempty"`
}

// GroupImageUpdate is the payload for changeImageGroup, fanned out to the
// group room so members update the displayed image without re-fetching.
type GroupImageUpdate struct {
	GroupID json.Number `json:"groupId"`
	Image   string      `json:"image"`
}
