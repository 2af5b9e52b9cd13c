package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nomercy",
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests received",
	}, []string{"method", "path", "status"})

	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "nomercy",
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	httpInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "nomercy",
		Name:      "http_in_flight_requests",
		Help:      "Current number of in-flight HTTP requests",
	})

	// QueueJoins counts accepted queue joins by mode and game mode.
	QueueJoins = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nomercy",
		Name:      "queue_joins_total",
		Help:      "Total accepted ranked queue joins",
	}, []string{"mode", "gameMode"})

	// QueueDepth tracks live entries per queue.
	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "nomercy",
		Name:      "queue_depth",
		Help:      "Current number of players waiting per ranked queue",
	}, []string{"mode", "gameMode"})

	// QueueEvictions counts entries dropped for a missed heartbeat.
	QueueEvictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nomercy",
		Name:      "queue_evictions_total",
		Help:      "Total queue entries evicted after heartbeat expiry",
	}, []string{"mode", "gameMode"})

	// MatchesFormed counts matches created by the matchmaker.
	MatchesFormed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nomercy",
		Name:      "matches_formed_total",
		Help:      "Total ranked matches formed",
	}, []string{"mode", "gameMode"})

	// MatchesSettled counts matches settled, labelled by how they ended.
	MatchesSettled = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nomercy",
		Name:      "matches_settled_total",
		Help:      "Total ranked matches settled",
	}, []string{"mode", "outcome"})

	// SettlementErrors counts ladder rows that failed to apply after the
	// settlement claim, despite retries.
	SettlementErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nomercy",
		Name:      "settlement_errors_total",
		Help:      "Total ladder updates that failed during settlement",
	}, []string{"mode"})

	// DisputesOpened counts matches that entered the disputed state.
	DisputesOpened = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nomercy",
		Name:      "disputes_opened_total",
		Help:      "Total ranked match disputes opened",
	}, []string{"mode"})

	// TimeToMatch observes seconds between enqueue and match found.
	TimeToMatch = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "nomercy",
		Name:      "time_to_match_seconds",
		Help:      "Seconds players waited in queue before a match formed",
		Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1200},
	}, []string{"mode", "gameMode"})
)

type responseRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

func (r *responseRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *responseRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := r.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, fmt.Errorf("metrics: underlying ResponseWriter does not support hijacking")
}

// Middleware records request metrics with Prometheus labels.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()

			httpInFlight.Inc()
			defer httpInFlight.Dec()

			next.ServeHTTP(rec, r)

			labels := prometheus.Labels{
				"method": r.Method,
				"path":   r.URL.Path,
				"status": strconv.Itoa(rec.status),
			}
			httpRequests.With(labels).Inc()
			httpLatency.With(labels).Observe(time.Since(start).Seconds())
		})
	}
}

// Handler exposes the default Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
