package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sequencerAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "relay",
		Subsystem: "sequencer",
		Name:      "attempts_total",
		Help:      "Append attempts by outcome (ok, retry, failed).",
	}, []string{"outcome"})

	reactionToggles = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "relay",
		Subsystem: "reactions",
		Name:      "toggles_total",
		Help:      "Reaction toggles by resulting state.",
	}, []string{"state"})

	typingTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "relay",
		Subsystem: "typing",
		Name:      "transitions_total",
		Help:      "Typing state transitions by kind (start, stop, expire, disconnect, denied, throttled).",
	}, []string{"kind"})

	documentWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "relay",
		Subsystem: "documents",
		Name:      "writes_total",
		Help:      "Document writes by outcome (ok, conflict).",
	}, []string{"outcome"})

	fanoutDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "relay",
		Subsystem: "fanout",
		Name:      "deliveries_total",
		Help:      "Per session deliveries by result (ok, dropped).",
	}, []string{"result"})
)
