package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/joho/godotenv"

	"recipeagent"
	"recipeagent/assistant"
)

func main() {
	sessionID := flag.String("session", "", "session id; a new one is generated when empty")
	image := flag.String("image", "", "photo of ingredients: a local path, an http(s) URL or an s3:// URL")
	text := flag.String("text", "", "message to send")
	interactive := flag.Bool("i", false, "read one message per line from stdin; prefix a line with @path to attach a photo")
	dump := flag.Bool("dump", false, "dump the full structured response")
	flag.Parse()

	if err := run(*sessionID, *image, *text, *interactive, *dump); err != nil {
		slog.Error("RESULT: Assistant failed", "error", err)
		os.Exit(1)
	}
}

func run(sessionID, image, text string, interactive, dump bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("SETUP: Failed to read .env", "error", err)
	}

	cfg, err := assistant.LoadConfig()
	if err != nil {
		return err
	}

	tracerProvider, meterProvider, otelShutdown, err := recipeagent.InitOtel(ctx)
	if err != nil {
		return fmt.Errorf("initialize OpenTelemetry: %w", err)
	}
	defer func() {
		if err := otelShutdown(context.WithoutCancel(ctx)); err != nil {
			slog.Error("SETUP: Failed to shutdown OpenTelemetry", "error", err)
		}
	}()

	logger, cleanup, err := newTurnLogger(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := cleanup(); err != nil {
			slog.Error("Failed to flush turn log", "error", err)
		}
	}()

	awsCfg, err := assistant.LoadAWSConfig(ctx)
	if err != nil {
		return fmt.Errorf("load AWS config: %w", err)
	}

	a, err := assistant.New(cfg, assistant.Deps{
		AWS:        awsCfg,
		TurnLogger: logger,
		Tracer:     tracerProvider.Tracer(recipeagent.TracerNameCoordinator),
		Meter:      meterProvider.Meter(recipeagent.MeterNameCoordinator),
	})
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Start(ctx); err != nil {
		return err
	}
	go a.SweepSessions(ctx)

	if !interactive {
		_, err := turn(ctx, a, sessionID, text, image, dump)
		return err
	}

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Fprint(os.Stderr, "> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		img := ""
		if strings.HasPrefix(line, "@") {
			img, line, _ = strings.Cut(strings.TrimPrefix(line, "@"), " ")
		}
		if line == "" && img == "" {
			fmt.Fprint(os.Stderr, "> ")
			continue
		}
		if sid, err := turn(ctx, a, sessionID, line, img, dump); err == nil {
			sessionID = sid
		} else if ctx.Err() != nil {
			return ctx.Err()
		}
		fmt.Fprint(os.Stderr, "\n> ")
	}
	return scanner.Err()
}

// turn sends one message and prints the reply. Turn errors are printed with
// their status and returned.
func turn(ctx context.Context, a *assistant.Assistant, sessionID, text, image string, dump bool) (string, error) {
	req := recipeagent.Request{SessionID: sessionID, Text: text}
	if image != "" {
		ref, err := imageRef(image)
		if err != nil {
			return sessionID, err
		}
		req.Image = ref
	}

	resp, err := a.HandleTurn(ctx, req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[%d] %s\n", recipeagent.StatusCode(err), recipeagent.UserMessage(err))
		return sessionID, err
	}

	fmt.Println(resp.Text)
	fmt.Fprintf(os.Stderr, "\n(session %s, %d ms, tools %v)\n", resp.SessionID, resp.LatencyMs, resp.ToolsCalled)
	if dump {
		recipeagent.Dump(os.Stderr, resp)
	}
	return resp.SessionID, nil
}

func imageRef(s string) (*recipeagent.ImageRef, error) {
	for _, scheme := range []string{"http://", "https://", "s3://"} {
		if strings.HasPrefix(s, scheme) {
			return &recipeagent.ImageRef{URL: s}, nil
		}
	}
	data, err := os.ReadFile(s)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	return &recipeagent.ImageRef{Data: data}, nil
}

func newTurnLogger(cfg assistant.Config) (recipeagent.TurnLogger, func() error, error) {
	path := cfg.Assistant.TurnLogPath
	if path == "" {
		return recipeagent.NewNoOpTurnLogger(), func() error { return nil }, nil
	}
	if path == "auto" {
		path = recipeagent.NewTurnLogFilePath(cfg.Model.ModelID)
	}

	logFile, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open turn log: %w", err)
	}
	logger := recipeagent.NewFileTurnLogger(logFile)
	cleanup := func() error {
		return errors.Join(logger.Flush(), logFile.Close())
	}
	return logger, cleanup, nil
}
