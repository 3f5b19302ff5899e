package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Counter: edge cache lookups by result (hit | miss | error).
	EdgeLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edge_lookups_total",
			Help: "Total number of edge cache lookups by result.",
		},
		[]string{"result"},
	)

	// Counter: origin resolutions by final decision.
	OriginDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "origin_decisions_total",
			Help: "Total number of origin resolutions by decision.",
		},
		[]string{"decision"},
	)

	// Counter: transformed images that could not be written back to storage.
	WriteBackFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "write_back_failures_total",
			Help: "Total number of failed storage write-backs.",
		},
	)

	// Histogram: compute origin latency in seconds.
	ComputeLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "compute_latency_seconds",
			Help:    "Latency of image transformation requests in seconds.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"status_code"},
	)

	// Histogram: gateway HTTP latency in seconds.
	GatewayLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_latency_seconds",
			Help:    "HTTP request latency for the gateway in seconds.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"path", "method", "status_code"},
	)
)

// Register is called once in main() to register metrics.
func Register() {
	prometheus.MustRegister(
		EdgeLookupsTotal,
		OriginDecisionsTotal,
		WriteBackFailuresTotal,
		ComputeLatencySeconds,
		GatewayLatencySeconds,
	)
}

// Handler exposes the /metrics endpoint for Prometheus to scrape.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware measures gateway latency for each HTTP request.
// The path label is the matched route pattern so image paths don't blow up
// label cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rec := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(rec, r)

		GatewayLatencySeconds.
			WithLabelValues(routePattern(r), r.Method, strconv.Itoa(rec.statusCode)).
			Observe(time.Since(start).Seconds())
	})
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	wrote      bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wrote {
		r.statusCode = code
		r.wrote = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wrote = true
	return r.ResponseWriter.Write(b)
}
