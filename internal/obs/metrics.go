package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP metrics
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	ready = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ready",
		Help: "1 when the service reports ready.",
	})
)

// Domain metrics
var (
	EventsEmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_emitted_total",
			Help: "Events emitted per bus and event type.",
		},
		[]string{"bus", "type"},
	)

	HandlerPanics = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "event_handler_panics_total",
			Help: "Subscriber handlers that panicked during delivery.",
		},
		[]string{"bus"},
	)

	CapabilityResolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "capability_resolutions_total",
			Help: "Per-module resolution outcomes (enabled or the disabled reason).",
		},
		[]string{"module", "outcome"},
	)

	PlatformMutations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "platform_mutations_total",
			Help: "Mock platform store mutations by operation and result.",
		},
		[]string{"op", "result"},
	)

	SimulatorRunning = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "simulator_running",
		Help: "1 while the realtime simulator is running.",
	})

	StreamClients = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sse_clients",
			Help: "Connected Server-Sent Events clients per bus.",
		},
		[]string{"bus"},
	)
)

// Init registers all metrics in the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration, ready,
		EventsEmitted, HandlerPanics, CapabilityResolutions, PlatformMutations, SimulatorRunning, StreamClients,
	)
}

// SetReady records the readiness state.
func SetReady(ok bool) {
	if ok {
		ready.Set(1)
		return
	}
	ready.Set(0)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Instrument measures RPS, latency and in-flight requests.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// CanonicalPath replaces entity ids with placeholders to keep label cardinality bounded.
func CanonicalPath(raw string) string {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		raw = raw[:i]
	}
	if raw == "" {
		return "/"
	}
	parts := strings.Split(strings.Trim(raw, "/"), "/")
	if len(parts) < 3 || parts[0] != "v1" {
		return raw
	}
	switch parts[1] {
	case "conversations", "threads":
	default:
		return raw
	}
	switch {
	case len(parts) == 3:
		parts[2] = ":id"
	case len(parts) == 4 && parts[3] == "messages":
		parts[2] = ":id"
	case len(parts) == 6 && parts[1] == "threads" && parts[3] == "messages" && parts[5] == "read":
		parts[2] = ":id"
		parts[4] = ":mid"
	default:
		return raw
	}
	return "/" + strings.Join(parts, "/")
}

// statusWriter remembers the response code.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// Flush keeps SSE responses streaming through the instrumentation wrapper.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
