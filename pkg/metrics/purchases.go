package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PurchaseMetrics tracks the reservation and settlement pipeline.
type PurchaseMetrics struct {
	reservations  *prometheus.CounterVec
	settlements   *prometheus.CounterVec
	holdsReleased *prometheus.CounterVec
}

// NewPurchaseMetrics registers purchase metrics on the provided registerer.
func NewPurchaseMetrics(reg prometheus.Registerer) *PurchaseMetrics {
	if reg == nil {
		return &PurchaseMetrics{}
	}
	reservations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reservations_total",
		Help: "Reservation attempts by purchase kind and outcome.",
	}, []string{"kind", "outcome"})
	settlements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settlements_total",
		Help: "Settlement attempts by gateway and outcome.",
	}, []string{"gateway", "outcome"})
	holdsReleased := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "holds_released_total",
		Help: "Inventory holds returned to availability by reason.",
	}, []string{"reason"})
	reg.MustRegister(reservations, settlements, holdsReleased)
	return &PurchaseMetrics{
		reservations:  reservations,
		settlements:   settlements,
		holdsReleased: holdsReleased,
	}
}

// IncReservation counts a reservation attempt.
func (m *PurchaseMetrics) IncReservation(kind, outcome string) {
	if m == nil || m.reservations == nil {
		return
	}
	m.reservations.WithLabelValues(normalizeLabel(kind), normalizeLabel(outcome)).Inc()
}

// IncSettlement counts a settlement attempt. Outcomes include "noop" for already-terminal purchases.
func (m *PurchaseMetrics) IncSettlement(gateway, outcome string) {
	if m == nil || m.settlements == nil {
		return
	}
	m.settlements.WithLabelValues(normalizeLabel(gateway), normalizeLabel(outcome)).Inc()
}

// IncHoldReleased counts a released hold.
func (m *PurchaseMetrics) IncHoldReleased(reason string) {
	if m == nil || m.holdsReleased == nil {
		return
	}
	m.holdsReleased.WithLabelValues(normalizeLabel(reason)).Inc()
}
