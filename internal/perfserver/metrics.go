package perfserver

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type serverMetrics struct {
	clients   prometheus.Gauge
	accepted  prometheus.Counter
	records   *prometheus.CounterVec
	badFrames prometheus.Counter
	editsSent prometheus.Counter
	seqGaps   prometheus.Counter
}

func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	factory := promauto.With(reg)
	return &serverMetrics{
		clients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "scopecomms",
			Subsystem: "server",
			Name:      "clients",
			Help:      "Clients currently attached",
		}),
		accepted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "scopecomms",
			Subsystem: "server",
			Name:      "connections_total",
			Help:      "Connections accepted",
		}),
		records: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scopecomms",
			Subsystem: "server",
			Name:      "records_total",
			Help:      "Records received, by record type",
		}, []string{"type"}),
		badFrames: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "scopecomms",
			Subsystem: "server",
			Name:      "bad_frames_total",
			Help:      "Frames that failed to decode",
		}),
		editsSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "scopecomms",
			Subsystem: "server",
			Name:      "edits_sent_total",
			Help:      "Library edits sent to clients",
		}),
		seqGaps: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "scopecomms",
			Subsystem: "server",
			Name:      "counter_seq_gaps_total",
			Help:      "Counter snapshots missing from a client's sequence",
		}),
	}
}
