// Package metrics provides Prometheus instrumentation for the portal client.
// It counts backend requests by outcome, tracks request latency, and follows
// the chat stream: open streams, fragments applied and frames dropped.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Request outcomes
const (
	OutcomeOK       = "ok"
	OutcomeAPIError = "api_error"
	OutcomeTimeout  = "timeout"
	OutcomeNetwork  = "network"
	OutcomeCanceled = "canceled"
)

var (
	// RequestsTotal counts backend requests, labeled by method and outcome.
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_api_requests_total",
		Help: "Total number of backend API requests",
	}, []string{"method", "outcome"})

	// RequestLatency records backend round trip time in seconds.
	RequestLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "portal_api_request_duration_seconds",
		Help:    "Backend API request latency in seconds",
		Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"method"})

	// ChatStreamsActive tracks replies currently streaming.
	ChatStreamsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "portal_chat_streams_active",
		Help: "Current number of chat replies being streamed",
	})

	// ChatFragmentsTotal counts content fragments appended to replies.
	ChatFragmentsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "portal_chat_fragments_total",
		Help: "Total number of streamed content fragments applied",
	})

	// ChatMalformedFramesTotal counts frames skipped because they did not parse.
	ChatMalformedFramesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "portal_chat_malformed_frames_total",
		Help: "Total number of stream frames skipped as malformed",
	})

	// ChatRepliesTotal counts finished replies, labeled by result:
	// "completed" or "failed".
	ChatRepliesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_chat_replies_total",
		Help: "Total number of chat replies by result",
	}, []string{"result"})
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestLatency,
		ChatStreamsActive,
		ChatFragmentsTotal,
		ChatMalformedFramesTotal,
		ChatRepliesTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
