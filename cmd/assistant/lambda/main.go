package main

import (
	"context"
	"encoding/base64"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"recipeagent"
	"recipeagent/assistant"
)

type Params struct {
	SessionID   string `json:"session_id"`
	Text        string `json:"text"`
	ImageURL    string `json:"image_url,omitempty"`
	ImageBase64 string `json:"image_base64,omitempty"`
}

type Results struct {
	StatusCode int                   `json:"status_code"`
	Response   *recipeagent.Response `json:"response,omitempty"`
	Error      string                `json:"error,omitempty"`
}

func main() {
	ctx := context.Background()

	cfg, err := assistant.LoadConfig()
	if err != nil {
		slog.Error("SETUP: Failed to load config", "error", err)
		os.Exit(1)
	}

	tracerProvider, meterProvider, otelShutdown, err := recipeagent.InitOtel(ctx)
	if err != nil {
		slog.Error("SETUP: Failed to initialize OpenTelemetry", "error", err)
		os.Exit(1)
	}

	awsCfg, err := assistant.LoadAWSConfig(ctx)
	if err != nil {
		slog.Error("SETUP: Failed to load AWS config", "error", err)
		os.Exit(1)
	}

	a, err := assistant.New(cfg, assistant.Deps{
		AWS:        awsCfg,
		TurnLogger: recipeagent.NewStdoutTurnLogger(),
		Tracer:     tracerProvider.Tracer(recipeagent.TracerNameCoordinator),
		Meter:      meterProvider.Meter(recipeagent.MeterNameCoordinator),
	})
	if err != nil {
		slog.Error("SETUP: Failed to build assistant", "error", err)
		os.Exit(1)
	}

	// Connect during the cold start; an unreachable provider fails the
	// init instead of every invocation.
	if err := a.Start(ctx); err != nil {
		slog.Error("SETUP: Recipe tools unavailable", "error", err)
		os.Exit(1)
	}

	fn := func(ctx context.Context, params Params) (Results, error) {
		// Flush telemetry before the execution environment freezes.
		defer func() {
			if err := tracerProvider.ForceFlush(ctx); err != nil {
				slog.Warn("RESULT: Failed to flush traces", "error", err)
			}
			if err := meterProvider.ForceFlush(ctx); err != nil {
				slog.Warn("RESULT: Failed to flush metrics", "error", err)
			}
		}()

		req := recipeagent.Request{SessionID: params.SessionID, Text: params.Text}
		switch {
		case params.ImageBase64 != "":
			data, err := base64.StdEncoding.DecodeString(params.ImageBase64)
			if err != nil {
				err = recipeagent.NewError(recipeagent.ErrValidation, "image_base64 is not valid base64", err)
				return Results{StatusCode: recipeagent.StatusCode(err), Error: recipeagent.UserMessage(err)}, nil
			}
			req.Image = &recipeagent.ImageRef{Data: data}
		case params.ImageURL != "":
			req.Image = &recipeagent.ImageRef{URL: params.ImageURL}
		}

		resp, err := a.HandleTurn(ctx, req)
		if err != nil {
			slog.Error("RESULT: Error handling turn", "error", err)
			return Results{StatusCode: recipeagent.StatusCode(err), Error: recipeagent.UserMessage(err)}, nil
		}
		return Results{StatusCode: recipeagent.StatusFor(resp, nil), Response: &resp}, nil
	}

	lambda.StartWithOptions(fn, lambda.WithEnableSIGTERM(func() {
		a.Close()
		if err := otelShutdown(context.Background()); err != nil {
			slog.Error("SETUP: Failed to shutdown OpenTelemetry", "error", err)
		}
	}))
}
