package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"recipeagent"
	"recipeagent/photo"
	"recipeagent/session"
)

const (
	noIngredientsNotice = "I couldn't make out any ingredients in that photo."
	unsupportedNotice   = "I can't look at photos right now."
	invalidImageNotice  = "That file doesn't look like a JPEG or PNG photo, so I couldn't read any ingredients from it."
	fetchFailedNotice   = "I couldn't download that photo, so I couldn't read any ingredients from it."
)

func tooLargeNotice(maxMB int) string {
	return fmt.Sprintf("That photo is larger than the %d MB limit, so I couldn't look at it.", maxMB)
}

// imageOutcome is the result of the image stage. When err is set, notice
// holds the user-facing explanation and result is empty.
type imageOutcome struct {
	fingerprint string
	result      recipeagent.DetectionResult
	cached      bool
	notice      string
	err         error
}

// resolveImage fetches, validates and detects ingredients on one image.
// Detection results already cached in the session are reused. It never
// writes to the session.
func (c *Coordinator) resolveImage(ctx context.Context, sess session.Session, ref recipeagent.ImageRef) imageOutcome {
	ctx, span := c.tracer.Start(ctx, "Coordinator.ResolveImage")
	defer span.End()

	failed := func(out imageOutcome) imageOutcome {
		span.SetStatus(codes.Error, "image rejected")
		span.RecordError(out.err)
		return out
	}

	if c.fetcher == nil || c.detector == nil {
		return failed(imageOutcome{
			notice: unsupportedNotice,
			err:    recipeagent.NewError(recipeagent.ErrValidation, "photos are not supported", nil),
		})
	}

	data, err := c.fetcher.Fetch(ctx, ref)
	if err != nil {
		return failed(c.rejectImage(err, fetchFailedNotice, "the photo could not be downloaded"))
	}
	format, err := c.validator.Validate(data)
	if err != nil {
		return failed(c.rejectImage(err, invalidImageNotice, "the photo is not a JPEG or PNG"))
	}

	fp := photo.Fingerprint(data)
	span.SetAttributes(
		attribute.String("image.fingerprint", fp),
		attribute.String("image.format", string(format)),
		attribute.Int("image.bytes", len(data)),
	)

	if cached, ok := sess.Detection(fp); ok {
		c.m.detectionHits.Add(ctx, 1)
		span.AddEvent("Detection cache hit")
		slog.Info("COORDINATOR: Reusing cached detection", "fingerprint", fp, "ingredients", cached.Ingredients)
		return imageOutcome{fingerprint: fp, result: cached, cached: true}
	}

	c.m.detections.Add(ctx, 1)
	start := time.Now()
	result, err := c.detector.Detect(ctx, data)
	c.m.detectionDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		return failed(imageOutcome{fingerprint: fp, notice: noIngredientsNotice, err: err})
	}

	span.AddEvent("Ingredients detected", trace.WithAttributes(attribute.StringSlice("ingredients", result.Ingredients)))
	slog.Info("COORDINATOR: Detected ingredients", "fingerprint", fp, "ingredients", result.Ingredients)
	return imageOutcome{fingerprint: fp, result: result}
}

func (c *Coordinator) rejectImage(err error, notice, msg string) imageOutcome {
	if errors.Is(err, photo.ErrTooLarge) {
		return imageOutcome{
			notice: tooLargeNotice(c.maxImageMB),
			err:    recipeagent.NewError(recipeagent.ErrPayloadTooLarge, fmt.Sprintf("the photo is larger than %d MB", c.maxImageMB), err),
		}
	}
	return imageOutcome{
		notice: notice,
		err:    recipeagent.NewError(recipeagent.ErrValidation, msg, err),
	}
}
