package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ReconcileTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rp_reconcile_total",
			Help: "Reconciliations of identity records against Discord membership",
		},
		[]string{"source", "outcome"},
	)

	SyncRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rp_sync_runs_total",
			Help: "Full membership sync passes",
		},
		[]string{"result"},
	)

	SyncMembers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rp_sync_last_members",
			Help: "Member counts of the last sync pass",
		},
		[]string{"state"},
	)

	SyncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rp_sync_duration_seconds",
			Help:    "Duration of full membership sync passes",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	GateDenials = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rp_gate_denials_total",
			Help: "Requests rejected by the permission gate",
		},
		[]string{"reason"},
	)

	DiscordRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rp_discord_requests_total",
			Help: "Calls to the Discord API",
		},
		[]string{"endpoint", "result"},
	)

	LiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rp_live_connections",
			Help: "Open dashboard websocket connections on this instance",
		},
	)

	LiveEventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rp_live_events_dropped_total",
			Help: "Live events dropped because a client buffer was full",
		},
	)

	BackupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rp_backups_total",
			Help: "Database backups by result",
		},
		[]string{"result"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rp_http_requests_total",
			Help: "HTTP requests by route and status",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rp_http_request_duration_seconds",
			Help:    "HTTP request duration by route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// HTTP records request counts and latency labelled by chi route pattern,
// which keeps path parameters out of the label set.
func HTTP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Hijack lets the websocket upgrader take over the connection.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return h.Hijack()
}
