package metrics

import (
	"github.com/fasthttp/router"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	"github.com/fortressbank/bankd/pkg/logger"
)

// Outcome label values.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

type collectors struct {
	sessionsOpened   prometheus.Counter
	sessionsActive   prometheus.Gauge
	loginAttempts    *prometheus.CounterVec
	ledgerOperations *prometheus.CounterVec
	syncCycles       prometheus.Counter
	syncConflicts    prometheus.Counter
}

var enabled *collectors

// Enable registers the collectors once at process start. Before Enable
// every record call is a no-op, which keeps tests free of registry state.
func Enable(namespace string) {
	enabled = &collectors{
		sessionsOpened: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "opened_total",
		}),
		sessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "active",
		}),
		loginAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "login_attempts_total",
		}, []string{"outcome"}),
		ledgerOperations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "operations_total",
		}, []string{"type", "outcome"}),
		syncCycles: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "replication",
			Name:      "cycles_total",
		}),
		syncConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "replication",
			Name:      "conflicts_total",
		}),
	}
}

func SessionOpened() {
	if enabled == nil {
		return
	}
	enabled.sessionsOpened.Inc()
	enabled.sessionsActive.Inc()
}

func SessionClosed() {
	if enabled == nil {
		return
	}
	enabled.sessionsActive.Dec()
}

func LoginAttempt(outcome string) {
	if enabled == nil {
		return
	}
	enabled.loginAttempts.WithLabelValues(outcome).Inc()
}

func LedgerOperation(operation, outcome string) {
	if enabled == nil {
		return
	}
	enabled.ledgerOperations.WithLabelValues(operation, outcome).Inc()
}

func SyncCycle() {
	if enabled == nil {
		return
	}
	enabled.syncCycles.Inc()
}

func SyncConflict() {
	if enabled == nil {
		return
	}
	enabled.syncConflicts.Inc()
}

// ListenAndServe exposes /metrics on the given address. Blocks, so run it
// on its own goroutine.
func ListenAndServe(addr string) error {
	r := router.New()
	r.GET("/metrics", fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler()))
	r.GET("/health", func(ctx *fasthttp.RequestCtx) {
		ctx.SetContentType("application/json")
		ctx.SetBodyString(`{"status":"healthy"}`)
	})
	logger.Info("[metrics-server] listening...", "addr", addr)
	return fasthttp.ListenAndServe(addr, r.Handler)
}
