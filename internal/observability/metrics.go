package observability

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "taskhub/auth"

var (
	metricsOnce    sync.Once
	authEvents     metric.Int64Counter
	rateLimitHits  metric.Int64Counter
	tokensRevoked  metric.Int64Counter
	metricsInitErr error
)

func initMetrics() {
	meter := otel.Meter(meterName)
	authEvents, metricsInitErr = meter.Int64Counter("auth_events_total",
		metric.WithDescription("Authentication events by kind and result"))
	if metricsInitErr != nil {
		return
	}
	rateLimitHits, metricsInitErr = meter.Int64Counter("rate_limit_events_total",
		metric.WithDescription("Admission decisions by scope and outcome"))
	if metricsInitErr != nil {
		return
	}
	tokensRevoked, metricsInitErr = meter.Int64Counter("refresh_tokens_revoked_total",
		metric.WithDescription("Refresh tokens revoked, by reason"))
}

// RecordAuthEvent counts a login/refresh/logout outcome. With no meter
// provider installed this is a no-op.
func RecordAuthEvent(ctx context.Context, event, result string) {
	metricsOnce.Do(initMetrics)
	if metricsInitErr != nil {
		return
	}
	authEvents.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event", event),
		attribute.String("result", result),
	))
}

// RecordRateLimitEvent counts an admission decision for one scope.
func RecordRateLimitEvent(ctx context.Context, scope, outcome string) {
	metricsOnce.Do(initMetrics)
	if metricsInitErr != nil {
		return
	}
	rateLimitHits.Add(ctx, 1, metric.WithAttributes(
		attribute.String("scope", scope),
		attribute.String("outcome", outcome),
	))
}

// RecordTokensRevoked counts bulk refresh-token revocations.
func RecordTokensRevoked(ctx context.Context, count int64, reason string) {
	metricsOnce.Do(initMetrics)
	if metricsInitErr != nil || count <= 0 {
		return
	}
	tokensRevoked.Add(ctx, count, metric.WithAttributes(
		attribute.String("reason", reason),
	))
}
