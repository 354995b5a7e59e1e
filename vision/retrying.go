package vision

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"recipeagent"
	"recipeagent/retry"
)

type detector interface {
	Detect(ctx context.Context, image []byte) (recipeagent.DetectionResult, error)
}

// RetryingDetector owns the single logical detection call for an image.
// Transient failures are retried with backoff; permanent failures and
// exhausted retries degrade to an empty result. Only cancellation by the
// caller is returned as an error.
type RetryingDetector struct {
	inner  detector
	policy retry.Policy
	tracer trace.Tracer
}

func NewRetryingDetector(inner detector, policy retry.Policy) *RetryingDetector {
	return &RetryingDetector{
		inner:  inner,
		policy: policy,
		tracer: otel.Tracer(recipeagent.TracerNameVision),
	}
}

func (d *RetryingDetector) Detect(ctx context.Context, image []byte) (recipeagent.DetectionResult, error) {
	ctx, span := d.tracer.Start(ctx, "RetryingDetector.Detect", trace.WithAttributes(
		attribute.Int("image.bytes", len(image)),
	))
	defer span.End()

	p := d.policy
	p.Notify = func(err error, n int, delay time.Duration) {
		slog.Warn("DETECTOR_RETRY: Transient failure, backing off", "retry", n, "delay", delay, "error", err)
		span.AddEvent("Backing off", trace.WithAttributes(
			attribute.Int("retry", n),
			attribute.Int64("delay_ms", delay.Milliseconds()),
			attribute.String("error", err.Error()),
		))
	}

	result, err := retry.Do(ctx, p, func(ctx context.Context, attempt int) (recipeagent.DetectionResult, error) {
		return d.inner.Detect(ctx, image)
	})
	if err == nil {
		span.SetAttributes(attribute.Int("ingredients.kept", len(result.Ingredients)))
		return result, nil
	}

	if ctx.Err() != nil {
		span.SetStatus(codes.Error, "cancelled")
		return recipeagent.DetectionResult{}, ctx.Err()
	}

	slog.Warn("DETECTOR_RETRY: Giving up, treating as no detection",
		"exhausted", errors.Is(err, retry.ErrExhausted),
		"error", err,
	)
	span.RecordError(err)
	span.SetStatus(codes.Error, "no detection")
	return recipeagent.DetectionResult{}, nil
}
