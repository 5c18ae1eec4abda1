// Package relay implements the connection-scoped pub/sub room router: it
// receives inbound events from live connections, resolves their target
// rooms, and fans them out to current room members. The relay holds no
// durable state; everything it tracks dies with the process.
package relay

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"chatrelay/internal/metrics"
	"chatrelay/pkg/state"
)

type inboundKind int

const (
	inboundFrame inboundKind = iota
	inboundDisconnect
)

type inbound struct {
	kind   inboundKind
	connID uuid.UUID
	frame  []byte
}

// Relay serializes all inbound traffic onto a single event loop. Each event
// is processed to completion (registry mutation plus broadcast enumeration)
// before the next one begins, which makes delivery within one room follow
// submission order without per-room locking.
type Relay struct {
	logger     *slog.Logger
	registry   state.Registry
	dispatcher *Dispatcher

	queue chan inbound
	done  chan struct{}
}

func New(logger *slog.Logger, registry state.Registry) *Relay {
	return &Relay{
		logger:     logger.With(slog.String("component", "relay")),
		registry:   registry,
		dispatcher: NewDispatcher(logger, registry),
		queue:      make(chan inbound, 512),
		done:       make(chan struct{}),
	}
}

// Run drains the event queue until the context is cancelled. It owns every
// registry mutation triggered by inbound traffic.
func (r *Relay) Run(ctx context.Context) {
	defer close(r.done)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("relay loop stopped")
			return
		case ev := <-r.queue:
			r.safeProcess(ev)
			r.SyncGauges()
		}
	}
}

// safeProcess keeps a panicking handler from taking the loop down with it.
// The offending event is dropped and the loop moves on.
func (r *Relay) safeProcess(ev inbound) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("recovered from panic while processing event",
				slog.String("connID", ev.connID.String()),
				slog.Any("panic", rec))
		}
	}()
	r.process(ev)
}

func (r *Relay) process(ev inbound) {
	switch ev.kind {
	case inboundFrame:
		r.route(ev.connID, ev.frame)
	case inboundDisconnect:
		if err := r.registry.DeregisterConnection(ev.connID); err != nil {
			r.logger.Error("failed to deregister connection", slog.String("connID", ev.connID.String()), slog.Any("error", err))
		}
	}
}

// HandleMessage is the transport's message callback. It enqueues the frame
// for the loop; if the loop is saturated this blocks the connection's read
// pump, which is the backpressure we want.
func (r *Relay) HandleMessage(ctx context.Context, connID uuid.UUID, msg []byte) {
	select {
	case r.queue <- inbound{kind: inboundFrame, connID: connID, frame: msg}:
	case <-ctx.Done():
	case <-r.done:
	}
}

// HandleDisconnect enqueues the connection's removal from every room it had
// joined. Disconnect is the only cancellation signal: no grace period, no
// reconnection window.
func (r *Relay) HandleDisconnect(connID uuid.UUID) {
	select {
	case r.queue <- inbound{kind: inboundDisconnect, connID: connID}:
	case <-r.done:
	}
}

// SyncGauges refreshes the population gauges from the registry. The server
// also calls this outside the loop after handshake-time registration.
func (r *Relay) SyncGauges() {
	metrics.ConnectionsActive.Set(float64(r.registry.ConnectionCount()))
	metrics.RoomsActive.Set(float64(r.registry.RoomCount()))
}
