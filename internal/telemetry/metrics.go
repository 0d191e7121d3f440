package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/wolfeidau/blogify"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Gate decisions, tagged with "decision" and "route"
	GateDecisionsTotal metric.Int64Counter

	// Rate limiter
	RateLimitChecksTotal  metric.Int64Counter
	RateLimitDeniedTotal  metric.Int64Counter
	RateLimitSweptEntries metric.Int64Counter

	// Session issuance at login and signup, tagged with "method"
	SessionsIssuedTotal metric.Int64Counter
	LoginFailuresTotal  metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	m.GateDecisionsTotal, _ = meter.Int64Counter(
		"blogify.gate.decisions.total",
		metric.WithDescription("Total number of edge gate decisions"),
		metric.WithUnit("{request}"),
	)

	m.RateLimitChecksTotal, _ = meter.Int64Counter(
		"blogify.ratelimit.checks.total",
		metric.WithDescription("Total number of rate limit checks"),
		metric.WithUnit("{check}"),
	)

	m.RateLimitDeniedTotal, _ = meter.Int64Counter(
		"blogify.ratelimit.denied.total",
		metric.WithDescription("Total number of requests rejected by the rate limiter"),
		metric.WithUnit("{request}"),
	)

	m.RateLimitSweptEntries, _ = meter.Int64Counter(
		"blogify.ratelimit.swept.total",
		metric.WithDescription("Total number of expired rate limit entries removed by the sweep"),
		metric.WithUnit("{entry}"),
	)

	m.SessionsIssuedTotal, _ = meter.Int64Counter(
		"blogify.sessions.issued.total",
		metric.WithDescription("Total number of session cookies issued"),
		metric.WithUnit("{session}"),
	)

	m.LoginFailuresTotal, _ = meter.Int64Counter(
		"blogify.login.failures.total",
		metric.WithDescription("Total number of rejected login attempts"),
		metric.WithUnit("{attempt}"),
	)

	return m
}
