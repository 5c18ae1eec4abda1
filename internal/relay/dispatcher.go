package relay

import (
	"log/slog"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"chatrelay/internal/metrics"
	"chatrelay/pkg/protocol"
	"chatrelay/pkg/state"
)

// Dispatcher fans an event out to every connection currently in a room,
// optionally excluding one (the sender keeps its optimistic local copy).
// Delivery is at-most-once, best-effort: a recipient that is closing or
// saturated is skipped, never retried, and never aborts delivery to the
// remaining members. Broadcasting to an absent room is a no-op.
type Dispatcher struct {
	logger   *slog.Logger
	registry state.Registry
}

func NewDispatcher(logger *slog.Logger, registry state.Registry) *Dispatcher {
	return &Dispatcher{
		logger:   logger.With(slog.String("component", "dispatcher")),
		registry: registry,
	}
}

// Broadcast delivers event/payload to the members of roomKey. Pass uuid.Nil
// as exclude to reach every member. Returns the number of queued deliveries.
func (d *Dispatcher) Broadcast(roomKey, event string, payload json.RawMessage, exclude uuid.UUID) int {
	members := d.registry.MembersOf(roomKey)
	metrics.BroadcastsTotal.Inc()
	if len(members) == 0 {
		return 0
	}

	frame, err := json.Marshal(protocol.ServerMessage{Event: event, Payload: payload})
	if err != nil {
		d.logger.Error("failed to marshal outbound frame", slog.String("event", event), slog.Any("error", err))
		return 0
	}

	delivered := 0
	for _, member := range members {
		if member.ID == exclude {
			continue
		}
		if member.Transport.Send(frame) {
			delivered++
			metrics.DeliveriesTotal.Inc()
		} else {
			metrics.DeliveriesDropped.Inc()
		}
	}

	d.logger.Debug("broadcast complete",
		slog.String("room", roomKey),
		slog.String("event", event),
		slog.Int("delivered", delivered),
	)
	return delivered
}
