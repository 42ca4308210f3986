package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	framesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "framelink",
			Subsystem: "wire",
			Name:      "frames_total",
			Help:      "Frames moved across the transport.",
		},
		[]string{"peer", "dir"},
	)
	framesDiscarded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "framelink",
			Subsystem: "wire",
			Name:      "frames_discarded_total",
			Help:      "Inbound frames dropped without dispatch.",
		},
		[]string{"peer", "reason"},
	)
	inflightRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "framelink",
			Subsystem: "client",
			Name:      "inflight_requests",
			Help:      "Requests currently awaiting a response.",
		},
	)
	handlerErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "framelink",
			Subsystem: "server",
			Name:      "handler_errors_total",
			Help:      "Handler outcomes that became error replies.",
		},
		[]string{"kind"},
	)
	subscriptionDrops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "framelink",
			Subsystem: "client",
			Name:      "subscription_drops_total",
			Help:      "Topic messages lost to inbox overflow.",
		},
		[]string{"policy"},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "framelink",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests on the diagnostics endpoint.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "framelink",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			framesTotal, framesDiscarded, inflightRequests,
			handlerErrors, subscriptionDrops,
			httpRequests, httpDuration,
		)
	})
}

func RecordFrame(peer, dir string) {
	RegisterMetrics()
	framesTotal.WithLabelValues(peer, dir).Inc()
}

func RecordDiscard(peer, reason string) {
	RegisterMetrics()
	framesDiscarded.WithLabelValues(peer, reason).Inc()
}

func SetInflight(n int) {
	RegisterMetrics()
	inflightRequests.Set(float64(n))
}

func RecordHandlerError(kind string) {
	RegisterMetrics()
	handlerErrors.WithLabelValues(kind).Inc()
}

func RecordSubscriptionDrop(policy string) {
	RegisterMetrics()
	subscriptionDrops.WithLabelValues(policy).Inc()
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}
