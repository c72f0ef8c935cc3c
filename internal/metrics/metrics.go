// Package metrics exposes Prometheus collectors for MMS sessions. A nil
// *Collector is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "mmsdl"
	subsystem = "session"
)

// Collector groups the session metrics.
type Collector struct {
	sessionsStarted prometheus.Counter
	sessionsEnded   *prometheus.CounterVec
	sessionsActive  prometheus.Gauge
	mediaPackets    prometheus.Counter
	mediaBytes      prometheus.Counter
	connectFailures *prometheus.CounterVec
}

// New registers the session metrics on reg.
func New(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		sessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "started_total",
			Help:      "Number of session runs started",
		}),
		sessionsEnded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "ended_total",
			Help:      "Number of session runs ended, by resulting status",
		}, []string{"status"}),
		sessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "active",
			Help:      "Number of sessions currently holding a transport",
		}),
		mediaPackets: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "media_packets_total",
			Help:      "Media packets written to sinks",
		}),
		mediaBytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "media_bytes_total",
			Help:      "Media bytes written to sinks",
		}),
		connectFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "connect_failures_total",
			Help:      "Transport connection failures, by classification",
		}, []string{"classification"}),
	}
}

func (c *Collector) SessionStarted() {
	if c == nil {
		return
	}

	c.sessionsStarted.Inc()
	c.sessionsActive.Inc()
}

// SessionEnded records the end of a run with the status it ended in.
func (c *Collector) SessionEnded(status string) {
	if c == nil {
		return
	}

	c.sessionsEnded.WithLabelValues(status).Inc()
	c.sessionsActive.Dec()
}

func (c *Collector) MediaPacket(size int) {
	if c == nil {
		return
	}

	c.mediaPackets.Inc()
	c.mediaBytes.Add(float64(size))
}

func (c *Collector) ConnectFailure(tolerated bool) {
	if c == nil {
		return
	}

	label := "fatal"
	if tolerated {
		label = "tolerated"
	}

	c.connectFailures.WithLabelValues(label).Inc()
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
