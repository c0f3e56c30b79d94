// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Risk engine

// TicksProcessed counts price ticks applied to open positions.
var TicksProcessed = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "signalguard",
		Subsystem: "engine",
		Name:      "ticks_processed_total",
		Help:      "Price ticks evaluated against open positions",
	},
	[]string{"source"},
)

// TickLatency measures one tick across every open position of a symbol.
var TickLatency = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "signalguard",
		Subsystem: "engine",
		Name:      "tick_latency_ms",
		Help:      "Time to evaluate one tick in milliseconds",
		Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250, 1000},
	},
)

// PositionErrors counts per-position failures that were skipped.
var PositionErrors = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "signalguard",
		Subsystem: "engine",
		Name:      "position_errors_total",
		Help:      "Per-position evaluation errors; the position is retried on the next tick",
	},
)

// Closes counts exits by kind.
var Closes = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "signalguard",
		Subsystem: "engine",
		Name:      "closes_total",
		Help:      "Position exits",
	},
	[]string{"kind"}, // partial, trailing, take_profit, stop_loss, panic
)

// RealizedPnL accumulates realized profit across all accounts.
var RealizedPnL = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "signalguard",
		Subsystem: "engine",
		Name:      "realized_pnl_session",
		Help:      "Realized PnL booked since process start",
	},
)

// Signal intake

// Signals counts webhook signals by outcome.
var Signals = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "signalguard",
		Subsystem: "intake",
		Name:      "signals_total",
		Help:      "Inbound signals by outcome",
	},
	[]string{"outcome"},
)

// PositionsOpened counts simulated entries.
var PositionsOpened = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "signalguard",
		Subsystem: "intake",
		Name:      "positions_opened_total",
		Help:      "Simulated positions opened",
	},
)

// Feed

// FeedObservations counts price observations by source.
var FeedObservations = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "signalguard",
		Subsystem: "feed",
		Name:      "observations_total",
		Help:      "Price observations by source",
	},
	[]string{"source"},
)

// FeedErrors counts failed polls and dropped streams.
var FeedErrors = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "signalguard",
		Subsystem: "feed",
		Name:      "errors_total",
		Help:      "Price source failures",
	},
	[]string{"source"},
)

// StreamsActive is the number of live trade streams.
var StreamsActive = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "signalguard",
		Subsystem: "feed",
		Name:      "streams_active",
		Help:      "Open WebSocket trade streams",
	},
)

// Safety

// CooldownsActivated counts cooldown activations.
var CooldownsActivated = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "signalguard",
		Subsystem: "safety",
		Name:      "cooldowns_activated_total",
		Help:      "Ticker cooldowns activated",
	},
)

// SlippagePct observes execution slippage in percent.
var SlippagePct = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "signalguard",
		Subsystem: "safety",
		Name:      "slippage_pct",
		Help:      "Execution slippage in percent of the expected price",
		Buckets:   []float64{-0.5, -0.2, -0.1, -0.05, 0, 0.05, 0.1, 0.2, 0.5},
	},
)

// KillSwitches counts kill-switch executions by result.
var KillSwitches = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "signalguard",
		Subsystem: "safety",
		Name:      "kill_switch_total",
		Help:      "Kill switch executions",
	},
	[]string{"result"}, // success, partial, failed
)

// HeartbeatHealth exposes the last heartbeat classification (1 for the
// current state, 0 otherwise).
var HeartbeatHealth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "signalguard",
		Subsystem: "safety",
		Name:      "heartbeat_health",
		Help:      "Current heartbeat health state",
	},
	[]string{"health"},
)

// Scheduler

// JobRuns counts scheduled job executions by result.
var JobRuns = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "signalguard",
		Subsystem: "scheduler",
		Name:      "job_runs_total",
		Help:      "Scheduled job executions",
	},
	[]string{"job", "result"},
)

// JobDuration observes scheduled job run time in seconds.
var JobDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "signalguard",
		Subsystem: "scheduler",
		Name:      "job_duration_seconds",
		Help:      "Scheduled job run time",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"job"},
)

// HTTP

// HTTPRequests counts API requests by route pattern and status class.
var HTTPRequests = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "signalguard",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route and status",
	},
	[]string{"route", "code"},
)

// HTTPLatency observes API latency by route pattern.
var HTTPLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "signalguard",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	},
	[]string{"route"},
)

// RateLimited counts requests rejected by the per-client limiter.
var RateLimited = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "signalguard",
		Subsystem: "http",
		Name:      "rate_limited_total",
		Help:      "Requests rejected by the rate limiter",
	},
	[]string{"scope"},
)
