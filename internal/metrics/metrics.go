// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	LinesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nmea_lines_received_total",
		Help: "Raw lines read from the transport",
	}, []string{"transport"})
	Sentences = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nmea_sentences_total",
		Help: "Decoded sentences by type",
	}, []string{"type"})
	DecodeErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nmea_decode_errors_total",
		Help: "Lines that could not be decoded",
	}, []string{"reason"})
	Fixes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nmea_fix_candidates_total",
		Help: "Fix candidates by correlator outcome",
	}, []string{"outcome"})

	TransportConnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nmea_transport_connects_total",
		Help: "Successful transport connections",
	}, []string{"transport"})
	TransportFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nmea_transport_failures_total",
		Help: "Failed connection attempts and dropped sessions",
	}, []string{"transport"})
	TransportConnected = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "nmea_transport_connected",
		Help: "1 while the transport has an open connection",
	}, []string{"transport"})
	CommandsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nmea_commands_sent_total",
		Help: "Commands written to the receiver",
	}, []string{"transport"})
	CommandsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nmea_commands_dropped_total",
		Help: "Queued commands discarded before delivery",
	}, []string{"transport"})

	PipelineRestarts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nmea_pipeline_restarts_total",
		Help: "Orchestrator restarts after a pipeline fault",
	})
	SinkErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nmea_sink_errors_total",
		Help: "Failed fix deliveries by sink",
	}, []string{"sink"})
	Subscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "nmea_subscribers",
		Help: "Registered location subscribers",
	})
	ProcessLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "nmea_process_latency_seconds",
		Help:    "Decode, correlate and deliver latency per line",
		Buckets: []float64{.00005, .0001, .00025, .0005, .001, .0025, .005, .01, .025, .05, .1},
	})
)

func ObserveProcessLatency(start time.Time) {
	ProcessLatency.Observe(time.Since(start).Seconds())
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
