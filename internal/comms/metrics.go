package comms

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type sessionMetrics struct {
	records       prometheus.Counter
	dropped       prometheus.Counter
	bytesSent     prometheus.Counter
	flushes       prometheus.Counter
	writeFailures prometheus.Counter
	connects      prometheus.Counter
	editsReceived prometheus.Counter
	editsDropped  prometheus.Counter
	connected     prometheus.Gauge
}

func newSessionMetrics(reg prometheus.Registerer, app, instance string) *sessionMetrics {
	factory := promauto.With(reg)
	labels := prometheus.Labels{"app": app, "session": instance}
	counter := func(name, help string) prometheus.Counter {
		return factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "scopecomms",
			Subsystem:   "session",
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		})
	}
	return &sessionMetrics{
		records:       counter("records_total", "Records accepted into the outbound buffer"),
		dropped:       counter("records_dropped_total", "Records dropped while disconnected or over the buffer cap"),
		bytesSent:     counter("bytes_sent_total", "Bytes written to the transport"),
		flushes:       counter("flushes_total", "Batches handed to the writer"),
		writeFailures: counter("write_failures_total", "Transport writes that failed"),
		connects:      counter("connects_total", "Successful connections"),
		editsReceived: counter("edits_received_total", "Inbound library edits"),
		editsDropped:  counter("edits_dropped_total", "Inbound edits rejected for a bad index or payload"),
		connected: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "scopecomms",
			Subsystem:   "session",
			Name:        "connected",
			Help:        "1 while the session has a live connection",
			ConstLabels: labels,
		}),
	}
}
