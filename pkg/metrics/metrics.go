// Package metrics holds the prometheus collectors for upstream calls and the
// energy conversion pipeline.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "solarledger_"

	ResultSuccess = "success"
	ResultError   = "error"
)

var (
	registerOnce sync.Once

	upstreamRequests *prometheus.CounterVec
	upstreamLatency  *prometheus.HistogramVec
	upstreamLogins   *prometheus.CounterVec

	conversionsTotal *prometheus.CounterVec
	clampedPeriods   *prometheus.CounterVec
	coercedValues    prometheus.Counter
	skippedRows      prometheus.Counter

	exportsTotal  *prometheus.CounterVec
	streamsActive prometheus.Gauge
)

// Init creates the collectors and registers them with reg. A nil reg uses the
// default prometheus registerer. Only the first call has any effect.
func Init(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}

		upstreamRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "upstream_requests_total",
				Help: "Total upstream cloud API requests by endpoint and result",
			},
			[]string{"endpoint", "result"},
		)
		upstreamLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "upstream_latency_seconds",
				Help:    "Upstream cloud API latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		)
		upstreamLogins = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "upstream_logins_total",
				Help: "Total upstream logins by reason",
			},
			[]string{"reason"},
		)
		conversionsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "conversions_total",
				Help: "Total cumulative-to-period conversions by granularity",
			},
			[]string{"granularity"},
		)
		clampedPeriods = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "clamped_periods_total",
				Help: "Periods whose negative cumulative delta was clamped to 0",
			},
			[]string{"granularity"},
		)
		coercedValues = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "coerced_values_total",
				Help: "Raw values that were missing or unparseable and coerced to 0",
			},
		)
		skippedRows = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "skipped_rows_total",
				Help: "Raw rows dropped because they had no timestamp",
			},
		)
		exportsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "exports_total",
				Help: "Total report exports by format and result",
			},
			[]string{"format", "result"},
		)
		streamsActive = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "realtime_streams_active",
				Help: "Open real-time websocket streams",
			},
		)

		reg.MustRegister(
			upstreamRequests,
			upstreamLatency,
			upstreamLogins,
			conversionsTotal,
			clampedPeriods,
			coercedValues,
			skippedRows,
			exportsTotal,
			streamsActive,
		)
	})
}

// ObserveUpstream records one upstream request.
func ObserveUpstream(endpoint string, err error, duration time.Duration) {
	result := ResultSuccess
	if err != nil {
		result = ResultError
	}
	if upstreamRequests != nil {
		upstreamRequests.WithLabelValues(endpoint, result).Inc()
	}
	if upstreamLatency != nil {
		upstreamLatency.WithLabelValues(endpoint).Observe(duration.Seconds())
	}
}

// IncLogin counts an upstream login, e.g. "startup" or "expired".
func IncLogin(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	if upstreamLogins != nil {
		upstreamLogins.WithLabelValues(reason).Inc()
	}
}

// ObserveConversion records one conversion and its data-quality counts.
func ObserveConversion(granularity string, clamped, coerced, skipped int) {
	if conversionsTotal != nil {
		conversionsTotal.WithLabelValues(granularity).Inc()
	}
	if clampedPeriods != nil && clamped > 0 {
		clampedPeriods.WithLabelValues(granularity).Add(float64(clamped))
	}
	if coercedValues != nil && coerced > 0 {
		coercedValues.Add(float64(coerced))
	}
	if skippedRows != nil && skipped > 0 {
		skippedRows.Add(float64(skipped))
	}
}

// IncExport counts a report export.
func IncExport(format string, err error) {
	result := ResultSuccess
	if err != nil {
		result = ResultError
	}
	if exportsTotal != nil {
		exportsTotal.WithLabelValues(format, result).Inc()
	}
}

// StreamOpened marks a websocket stream as open and returns the func that
// marks it closed.
func StreamOpened() func() {
	if streamsActive == nil {
		return func() {}
	}
	streamsActive.Inc()
	return streamsActive.Dec
}
