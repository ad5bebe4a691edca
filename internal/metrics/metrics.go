// Package metrics exposes Prometheus collectors for the relay and for
// participant phase machines.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"phasesync/internal/domain"
)

const namespace = "phasesync"

var (
	// roomsActive is a gauge of rooms held in memory by the relay.
	roomsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rooms_active",
			Help:      "Number of rooms currently held by the relay",
		},
	)

	// participantsConnected is a gauge of connected participants.
	participantsConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "participants_connected",
			Help:      "Number of participants currently connected",
		},
	)

	// deltasTotal counts submitted deltas by outcome.
	deltasTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deltas_total",
			Help:      "Total number of shared-state deltas submitted",
		},
		[]string{"status"}, // status: applied, empty, error
	)

	// eventsBroadcastTotal counts room events by type.
	eventsBroadcastTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_broadcast_total",
			Help:      "Total number of room events broadcast to participants",
		},
		[]string{"type"},
	)

	// eventsDroppedTotal counts events dropped because a queue was full.
	eventsDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Total number of room events dropped on a full queue",
		},
	)

	// transitionsTotal counts accepted local phase transitions.
	transitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "phase_transitions_total",
			Help:      "Total number of accepted local phase transitions",
		},
		[]string{"to", "first"},
	)

	// notificationsDroppedTotal counts duplicate or stale phase notifications.
	notificationsDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "phase_notifications_dropped_total",
			Help:      "Total number of phase notifications dropped as duplicate or stale",
		},
		[]string{"current", "claimed"},
	)
)

var allCollectors = []prometheus.Collector{
	roomsActive,
	participantsConnected,
	deltasTotal,
	eventsBroadcastTotal,
	eventsDroppedTotal,
	transitionsTotal,
	notificationsDroppedTotal,
}

// Register adds every collector to reg
func Register(reg prometheus.Registerer) error {
	for _, c := range allCollectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// RoomOpened records a room entering memory
func RoomOpened() { roomsActive.Inc() }

// RoomClosed records a room leaving memory
func RoomClosed() { roomsActive.Dec() }

// ParticipantConnected records a participant connection
func ParticipantConnected() { participantsConnected.Inc() }

// ParticipantDisconnected records a participant disconnection
func ParticipantDisconnected() { participantsConnected.Dec() }

// DeltaApplied records a delta outcome
func DeltaApplied(status string) { deltasTotal.WithLabelValues(status).Inc() }

// EventBroadcast records an event sent to a room
func EventBroadcast(eventType domain.EventType) {
	eventsBroadcastTotal.WithLabelValues(string(eventType)).Inc()
}

// EventDropped records an event lost to a full queue
func EventDropped() { eventsDroppedTotal.Inc() }

// unknownPhase labels phases outside the observer's known set
const unknownPhase = "unknown"

// PhaseObserver counts phase machine decisions. It satisfies phase.Observer.
// Phase labels are limited to the known phases; anything else a peer writes
// is counted as "unknown".
type PhaseObserver struct {
	known map[domain.Phase]bool
}

// NewPhaseObserver creates an observer labelling the given phases
func NewPhaseObserver(phases ...domain.Phase) *PhaseObserver {
	known := make(map[domain.Phase]bool, len(phases)+1)
	known[domain.InitialPhase] = true
	for _, p := range phases {
		known[p] = true
	}
	return &PhaseObserver{known: known}
}

func (o *PhaseObserver) label(p domain.Phase) string {
	if o.known[p] {
		return string(p)
	}
	return unknownPhase
}

// TransitionAccepted counts an accepted transition
func (o *PhaseObserver) TransitionAccepted(_, to domain.Phase, first bool) {
	label := "false"
	if first {
		label = "true"
	}
	transitionsTotal.WithLabelValues(o.label(to), label).Inc()
}

// NotificationDropped counts a dropped notification
func (o *PhaseObserver) NotificationDropped(current, claimed domain.Phase) {
	notificationsDroppedTotal.WithLabelValues(o.label(current), o.label(claimed)).Inc()
}
