package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chitfund_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chitfund_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "route"})

	settlementReleases = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chitfund_settlement_releases_total",
		Help: "Settlement snapshots persisted",
	})

	sequenceConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chitfund_sequence_conflicts_total",
		Help: "Settlement record inserts that lost a sequence race",
	})

	joinDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chitfund_join_request_decisions_total",
		Help: "Join request decisions, labeled by outcome",
	}, []string{"outcome"})

	reportDegradedRows = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chitfund_report_degraded_rows_total",
		Help: "Report rows whose wallet figures were derived instead of stored",
	})

	notificationTasks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chitfund_background_tasks_total",
		Help: "Background tasks finished, labeled by task and result",
	}, []string{"task", "result"})
)

// ObserveTask records a background task result. Pass it as
// notify.Options.OnResult.
func ObserveTask(task string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	notificationTasks.WithLabelValues(task, result).Inc()
}

// instrument counts requests and observes latency per route pattern.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := ""
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			route = rctx.RoutePattern()
		}
		if route == "" {
			route = "unmatched"
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
