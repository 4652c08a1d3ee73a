// Package metrics exposes Prometheus collectors for the presence engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	storeOps     *prometheus.CounterVec
	declarations *prometheus.CounterVec
	slotChanges  *prometheus.CounterVec
	malformed    *prometheus.CounterVec
	nameLookups  *prometheus.CounterVec
	liveCount    *prometheus.GaugeVec
}

// New creates the collectors and registers them with reg. A nil reg uses
// the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		storeOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "courtboard_store_operations_total",
			Help: "Shared store operations by backend, operation and result.",
		}, []string{"backend", "op", "result"}),
		declarations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "courtboard_declarations_total",
			Help: "Attendance declarations written, by status.",
		}, []string{"status"}),
		slotChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "courtboard_slot_changes_total",
			Help: "Time-slot joins and leaves written.",
		}, []string{"op"}),
		malformed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "courtboard_malformed_records_total",
			Help: "Fetched values skipped because they did not parse.",
		}, []string{"kind"}),
		nameLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "courtboard_profile_lookups_total",
			Help: "Profile directory lookups made by the name cache.",
		}, []string{"result"}),
		liveCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "courtboard_live_count",
			Help: "People in the currently active slot.",
		}, []string{"slot"}),
	}
	reg.MustRegister(m.storeOps, m.declarations, m.slotChanges, m.malformed, m.nameLookups, m.liveCount)
	return m
}

// ObserveStoreOp counts one store operation.
func (m *Metrics) ObserveStoreOp(backend, op string, err error) {
	if m == nil {
		return
	}
	m.storeOps.WithLabelValues(backend, op, result(err)).Inc()
}

// Declared counts a persisted declaration.
func (m *Metrics) Declared(status string) {
	if m == nil {
		return
	}
	m.declarations.WithLabelValues(status).Inc()
}

// SlotChanged counts a join or leave.
func (m *Metrics) SlotChanged(op string) {
	if m == nil {
		return
	}
	m.slotChanges.WithLabelValues(op).Inc()
}

// Malformed counts a skipped value.
func (m *Metrics) Malformed(kind string) {
	if m == nil {
		return
	}
	m.malformed.WithLabelValues(kind).Inc()
}

// NameLookup counts a profile lookup.
func (m *Metrics) NameLookup(err error) {
	if m == nil {
		return
	}
	m.nameLookups.WithLabelValues(result(err)).Inc()
}

// SetLive records the live count. The previous slot series is reset so
// only the active slot carries a value.
func (m *Metrics) SetLive(slot string, count int) {
	if m == nil {
		return
	}
	m.liveCount.Reset()
	if slot == "" {
		slot = "none"
	}
	m.liveCount.WithLabelValues(slot).Set(float64(count))
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// LiveGauge returns the live count series of slot.
func (m *Metrics) LiveGauge(slot string) prometheus.Gauge {
	return m.liveCount.WithLabelValues(slot)
}
