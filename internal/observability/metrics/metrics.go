package metrics

import "github.com/prometheus/client_golang/prometheus"

// FrontDeskMetrics exposes counters/histograms for booking and lifecycle flows.
type FrontDeskMetrics struct {
	bookingsTotal    *prometheus.CounterVec
	bookingLatency   *prometheus.HistogramVec
	transitionsTotal *prometheus.CounterVec
	lookupsTotal     *prometheus.CounterVec
	capacityUpdates  *prometheus.CounterVec
}

func NewFrontDeskMetrics(reg prometheus.Registerer) *FrontDeskMetrics {
	m := &FrontDeskMetrics{
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "frontdesk",
			Subsystem: "booking",
			Name:      "requests_total",
			Help:      "Total booking attempts by outcome",
		}, []string{"source", "outcome"}),
		bookingLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "frontdesk",
			Subsystem: "booking",
			Name:      "latency_seconds",
			Help:      "Latency of booking requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "frontdesk",
			Subsystem: "appointments",
			Name:      "transitions_total",
			Help:      "Committed appointment status changes",
		}, []string{"from", "to"}),
		lookupsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "frontdesk",
			Subsystem: "identity",
			Name:      "lookups_total",
			Help:      "Patient identity lookups by result",
		}, []string{"mode", "result"}),
		capacityUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "frontdesk",
			Subsystem: "capacity",
			Name:      "updates_total",
			Help:      "Capacity ledger changes",
		}, []string{"op"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingsTotal, m.bookingLatency, m.transitionsTotal, m.lookupsTotal, m.capacityUpdates)
	return m
}

func (m *FrontDeskMetrics) ObserveBooking(source, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(source, outcome).Inc()
	m.bookingLatency.WithLabelValues(source).Observe(seconds)
}

func (m *FrontDeskMetrics) ObserveTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(from, to).Inc()
}

func (m *FrontDeskMetrics) ObserveLookup(mode, result string) {
	if m == nil {
		return
	}
	m.lookupsTotal.WithLabelValues(mode, result).Inc()
}

func (m *FrontDeskMetrics) ObserveCapacityUpdate(op string) {
	if m == nil {
		return
	}
	m.capacityUpdates.WithLabelValues(op).Inc()
}
