package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	lru "github.com/hashicorp/golang-lru"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/hupe1980/evalmesh/core"
	"github.com/hupe1980/evalmesh/internal/util"
	"github.com/hupe1980/evalmesh/logging"
)

// RetryOptions configure the Retry middleware.
type RetryOptions struct {
	// MaxAttempts bounds the total number of calls, including the first.
	MaxAttempts uint
	// InitialInterval is the first backoff delay.
	InitialInterval time.Duration
	// MaxInterval caps the backoff delay.
	MaxInterval time.Duration
	// RetryIf decides whether an error is worth retrying. Defaults to
	// retrying everything except context cancellation.
	RetryIf func(err error) bool
	Logger  logging.Logger
}

// Retry re-runs the wrapped stages with exponential backoff until they
// succeed or MaxAttempts is reached. The last error is returned unchanged.
func Retry(optFns ...func(o *RetryOptions)) core.Middleware {
	opts := RetryOptions{
		MaxAttempts:     3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		RetryIf: func(err error) bool {
			return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
		},
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	logger := logging.OrNoOp(opts.Logger)

	return func(ctx context.Context, ec core.EvalContext, next core.Next) (core.Outcome, error) {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = opts.InitialInterval
		b.MaxInterval = opts.MaxInterval

		attempt := 0
		op := func() (core.Outcome, error) {
			attempt++
			out, err := next(ctx)
			if err != nil && !opts.RetryIf(err) {
				return out, backoff.Permanent(err)
			}
			return out, err
		}

		return backoff.Retry(ctx, op,
			backoff.WithBackOff(b),
			backoff.WithMaxTries(max(opts.MaxAttempts, 1)),
			backoff.WithNotify(func(err error, d time.Duration) {
				logger.Warn("unit.retry", "run_id", ec.RunID, "index", ec.Index, "attempt", attempt, "delay", d, "error", err.Error())
			}),
		)
	}
}

// RateLimit throttles units through a shared token bucket. Units wait for a
// token before running; waiting respects context cancellation.
func RateLimit(limit rate.Limit, burst int) core.Middleware {
	limiter := rate.NewLimiter(limit, max(burst, 1))
	return func(ctx context.Context, _ core.EvalContext, next core.Next) (core.Outcome, error) {
		if err := limiter.Wait(ctx); err != nil {
			return core.Outcome{}, fmt.Errorf("rate limit: %w", err)
		}
		return next(ctx)
	}
}

// CacheOptions configure the Cache middleware.
type CacheOptions struct {
	// Scope partitions cached outcomes. Units only share an entry when their
	// scope, input and criteria match. An empty scope means the unit's run
	// id and source, so outcomes never cross sources or runs. Set a fixed
	// scope to reuse outcomes across runs that use the same work function
	// and judge.
	Scope string
}

// Cache memoizes successful outcomes in an LRU of the given size. Errors are
// never cached. The returned middleware is safe for concurrent use.
func Cache(size int, optFns ...func(o *CacheOptions)) (core.Middleware, error) {
	opts := CacheOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	c, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}
	return func(ctx context.Context, ec core.EvalContext, next core.Next) (core.Outcome, error) {
		key := cacheKey(opts.Scope, ec)
		if v, ok := c.Get(key); ok {
			return v.(core.Outcome), nil
		}
		out, err := next(ctx)
		if err == nil {
			c.Add(key, out)
		}
		return out, err
	}, nil
}

func cacheKey(scope string, ec core.EvalContext) string {
	if scope == "" {
		scope = ec.RunID + "\x00" + ec.Source
	}
	var input string
	if turns, ok := ec.Input.(core.Turns); ok {
		input = fmt.Sprintf("%#v", []any(turns))
	} else {
		input = fmt.Sprintf("%T:%s", ec.Input, util.Stringify(ec.Input))
	}
	return scope + "\x00" + input + "\x00" + ec.Criteria
}

// Logging logs the start and outcome of every unit at debug level, and
// failures at warn level.
func Logging(logger logging.Logger) core.Middleware {
	logger = logging.OrNoOp(logger)
	return func(ctx context.Context, ec core.EvalContext, next core.Next) (core.Outcome, error) {
		start := time.Now()
		logger.Debug("unit.started", "run_id", ec.RunID, "index", ec.Index, "source", ec.Source)
		out, err := next(ctx)
		if err != nil {
			logger.Warn("unit.failed", "run_id", ec.RunID, "index", ec.Index, "duration", time.Since(start), "error", err.Error())
			return out, err
		}
		logger.Debug("unit.completed", "run_id", ec.RunID, "index", ec.Index, "duration", time.Since(start), "verdict", out.Judgment.Verdict.String())
		return out, nil
	}
}

// TracingOptions configure the Tracing middleware.
type TracingOptions struct {
	TracerProvider trace.TracerProvider
	SpanName       string
}

// Tracing wraps every unit in an OpenTelemetry span. Without an explicit
// provider the global one is used.
func Tracing(optFns ...func(o *TracingOptions)) core.Middleware {
	opts := TracingOptions{SpanName: "evalmesh.unit"}
	for _, fn := range optFns {
		fn(&opts)
	}
	var tracer trace.Tracer
	if opts.TracerProvider != nil {
		tracer = opts.TracerProvider.Tracer("github.com/hupe1980/evalmesh/pipeline")
	} else {
		tracer = otel.Tracer("github.com/hupe1980/evalmesh/pipeline")
	}

	return func(ctx context.Context, ec core.EvalContext, next core.Next) (core.Outcome, error) {
		ctx, span := tracer.Start(ctx, opts.SpanName,
			trace.WithAttributes(
				attribute.String("evalmesh.run_id", ec.RunID),
				attribute.Int("evalmesh.index", ec.Index),
				attribute.String("evalmesh.source", ec.Source),
				attribute.String("evalmesh.category", ec.Category),
			),
		)
		defer span.End()

		out, err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return out, err
		}
		span.SetAttributes(
			attribute.String("evalmesh.verdict.kind", out.Judgment.Verdict.Kind.String()),
			attribute.String("evalmesh.verdict", out.Judgment.Verdict.String()),
		)
		span.SetStatus(codes.Ok, "")
		return out, nil
	}
}
