package observability

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	redisMetricsOnce sync.Once
	redisKeyspaceOps metric.Int64Counter
	redisErrors      metric.Int64Counter
	redisMetricsErr  error
)

func initRedisMetrics() {
	meter := otel.Meter(meterName)
	redisKeyspaceOps, redisMetricsErr = meter.Int64Counter("redis_keyspace_ops_total",
		metric.WithDescription("Redis keyspace reads by outcome"))
	if redisMetricsErr != nil {
		return
	}
	redisErrors, redisMetricsErr = meter.Int64Counter("redis_errors_total",
		metric.WithDescription("Redis command failures by class"))
}

// redisMetricsHook observes limiter traffic to Redis: keyspace hit/miss
// ratios and failure classes.
type redisMetricsHook struct{}

func NewRedisMetricsHook() redis.Hook {
	return redisMetricsHook{}
}

func (redisMetricsHook) DialHook(next redis.DialHook) redis.DialHook {
	return next
}

func (redisMetricsHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		err := next(ctx, cmd)
		observeRedisCommand(ctx, cmd)
		return err
	}
}

func (redisMetricsHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		err := next(ctx, cmds)
		for _, cmd := range cmds {
			observeRedisCommand(ctx, cmd)
		}
		return err
	}
}

func observeRedisCommand(ctx context.Context, cmd redis.Cmder) {
	redisMetricsOnce.Do(initRedisMetrics)
	if redisMetricsErr != nil {
		return
	}

	if err := cmd.Err(); err != nil && !errors.Is(err, redis.Nil) {
		redisErrors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("class", classifyRedisError(err)),
			attribute.String("command", cmd.Name()),
		))
		return
	}

	hits, misses, ok := classifyKeyspaceOutcome(cmd)
	if !ok {
		return
	}
	if hits > 0 {
		redisKeyspaceOps.Add(ctx, hits, metric.WithAttributes(
			attribute.String("command", cmd.Name()),
			attribute.String("outcome", "hit"),
		))
	}
	if misses > 0 {
		redisKeyspaceOps.Add(ctx, misses, metric.WithAttributes(
			attribute.String("command", cmd.Name()),
			attribute.String("outcome", "miss"),
		))
	}
}

// classifyKeyspaceOutcome extracts hit/miss counts from read commands.
// Commands that are not keyspace reads report ok=false.
func classifyKeyspaceOutcome(cmd redis.Cmder) (hits, misses int64, ok bool) {
	switch cmd.Name() {
	case "get":
		if errors.Is(cmd.Err(), redis.Nil) {
			return 0, 1, true
		}
		if cmd.Err() == nil {
			return 1, 0, true
		}
		return 0, 0, false
	case "mget":
		slice, isSlice := cmd.(*redis.SliceCmd)
		if !isSlice || slice.Err() != nil {
			return 0, 0, false
		}
		for _, v := range slice.Val() {
			if v == nil {
				misses++
			} else {
				hits++
			}
		}
		return hits, misses, true
	default:
		return 0, 0, false
	}
}

func classifyRedisError(err error) string {
	if err == nil {
		return "none"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	msg := strings.ToLower(err.Error())
	switch {
	case errors.Is(err, context.DeadlineExceeded), strings.Contains(msg, "timeout"):
		return "timeout"
	case strings.Contains(msg, "connection"), strings.Contains(msg, "broken pipe"):
		return "connection"
	default:
		return "other"
	}
}
