// Package metrics exposes Prometheus collectors for the board service.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "rankboard",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rankboard",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rankboard",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	wsConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "rankboard",
			Subsystem: "realtime",
			Name:      "connections",
			Help:      "Current number of live websocket connections.",
		},
	)

	wsEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rankboard",
			Subsystem: "realtime",
			Name:      "events_total",
			Help:      "Total number of client events processed, by event and outcome.",
		},
		[]string{"event", "outcome"},
	)

	roomBroadcasts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rankboard",
			Subsystem: "realtime",
			Name:      "broadcasts_total",
			Help:      "Total number of room broadcasts, by event.",
		},
		[]string{"event"},
	)

	broadcastDrops = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "rankboard",
			Subsystem: "realtime",
			Name:      "broadcast_drops_total",
			Help:      "Broadcast deliveries skipped because a member's send buffer was full.",
		},
	)

	debounceResets = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "rankboard",
			Subsystem: "writeback",
			Name:      "debounce_resets_total",
			Help:      "Change signals that replaced an already-pending save timer.",
		},
	)

	persistenceJobs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rankboard",
			Subsystem: "writeback",
			Name:      "jobs_total",
			Help:      "Write-behind reconciliation jobs, by outcome.",
		},
		[]string{"outcome"},
	)

	persistenceDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "rankboard",
			Subsystem: "writeback",
			Name:      "job_duration_seconds",
			Help:      "Duration of write-behind reconciliation jobs.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		wsConnections,
		wsEvents,
		roomBroadcasts,
		broadcastDrops,
		debounceResets,
		persistenceJobs,
		persistenceDuration,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// ConnectionOpened tracks a new websocket connection.
func ConnectionOpened() { wsConnections.Inc() }

// ConnectionClosed tracks a websocket disconnect.
func ConnectionClosed() { wsConnections.Dec() }

// RecordEvent records one processed client event and its outcome
// ("ok", "denied", "malformed" or "error").
func RecordEvent(event, outcome string) {
	wsEvents.WithLabelValues(event, outcome).Inc()
}

// RecordBroadcast records one room broadcast.
func RecordBroadcast(event string) {
	roomBroadcasts.WithLabelValues(event).Inc()
}

// RecordBroadcastDrop records a skipped delivery to a slow member.
func RecordBroadcastDrop() { broadcastDrops.Inc() }

// RecordDebounceReset records a save timer replaced by a newer change signal.
func RecordDebounceReset() { debounceResets.Inc() }

// RecordPersistenceJob records a write-behind job and its duration.
func RecordPersistenceJob(outcome string, duration time.Duration) {
	if duration <= 0 {
		duration = time.Millisecond
	}
	persistenceJobs.WithLabelValues(outcome).Inc()
	persistenceDuration.Observe(duration.Seconds())
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// canonicalPath collapses resource ids so metric labels stay low-cardinality.
func canonicalPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	if parts[0] != "api" {
		return "/" + parts[0]
	}
	switch len(parts) {
	case 1:
		return "/api"
	case 2:
		return "/api/" + parts[1]
	case 3:
		return "/api/" + parts[1] + "/:id"
	default:
		return "/api/" + parts[1] + "/:id/" + parts[3]
	}
}
