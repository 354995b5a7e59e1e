// Package assistant wires the recipe assistant from environment
// configuration. Binaries build one Assistant at startup and hand turns to
// it.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/joeshaw/envdecode"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"recipeagent"
	"recipeagent/coordinator"
	"recipeagent/coordinator/bedrock"
	"recipeagent/coordinator/ollama"
	"recipeagent/notify"
	"recipeagent/photo"
	"recipeagent/preferences"
	"recipeagent/recipes"
	"recipeagent/retry"
	"recipeagent/session"
	"recipeagent/toolconn"
	"recipeagent/vision"
)

// Config is everything the assistant reads from the environment.
type Config struct {
	Model     recipeagent.ModelConfig
	Assistant recipeagent.AssistantConfig
	Tools     recipeagent.ToolProviderConfig
	Notify    recipeagent.NotifyConfig
}

func LoadConfig() (Config, error) {
	var cfg Config
	for _, target := range []any{&cfg.Model, &cfg.Assistant, &cfg.Tools, &cfg.Notify} {
		if err := envdecode.Decode(target); err != nil {
			return Config{}, fmt.Errorf("decode config: %w", err)
		}
	}
	if err := cfg.Assistant.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Policy is the retry policy shared by detection and tool connection.
func (c Config) Policy() retry.Policy {
	p := retry.DefaultPolicy()
	p.Retries = c.Assistant.RetryAttempts
	p.InitialDelay = c.Assistant.RetryInitialDelay
	return p
}

// Deps are the process-wide collaborators that binaries create themselves.
type Deps struct {
	AWS        aws.Config
	HTTPClient recipeagent.HTTPClient
	Notifier   recipeagent.Notifier
	TurnLogger recipeagent.TurnLogger
	Tracer     trace.Tracer
	Meter      metric.Meter
	// Dialer overrides the transport chosen from Config.Tools.
	Dialer toolconn.Dialer
}

// Assistant is a ready coordinator together with the resources it holds.
type Assistant struct {
	*coordinator.Coordinator

	Store *session.MemoryStore
	Tools *toolconn.Manager

	cfg      Config
	notifier recipeagent.Notifier
}

// New builds the assistant. It does not connect to the recipe tools; call
// Start before serving turns.
func New(cfg Config, deps Deps) (*Assistant, error) {
	if deps.HTTPClient == nil {
		deps.HTTPClient = http.DefaultClient
	}
	if deps.Notifier == nil {
		deps.Notifier = NewNotifier(cfg.Notify, deps.HTTPClient)
	}

	textLLM, visionLLM, err := newModels(cfg.Model, deps)
	if err != nil {
		return nil, err
	}

	detector := vision.NewRetryingDetector(
		vision.NewDetector(visionLLM,
			vision.WithMinConfidence(cfg.Assistant.MinIngredientConfidence),
			vision.WithTimeout(cfg.Assistant.VisionTimeout),
		),
		cfg.Policy(),
	)

	fetcher := photo.NewFetcher(deps.HTTPClient, cfg.Assistant.MaxImageBytes(),
		photo.WithS3(s3.NewFromConfig(deps.AWS)),
		photo.WithTimeout(cfg.Assistant.FetchTimeout),
	)

	dialer := deps.Dialer
	if dialer == nil {
		dialer = NewDialer(cfg.Tools)
	}
	tools := toolconn.NewManager(toolconn.Options{
		APIKey:         cfg.Tools.APIKey,
		Dialer:         dialer,
		Policy:         cfg.Policy(),
		ConnectTimeout: cfg.Tools.ConnectTimeout,
		ClientName:     "recipe-assistant",
	})

	var gate coordinator.Gate = coordinator.NewKeywordGate()
	if cfg.Assistant.LLMDomainGate {
		gate = coordinator.NewLLMGate(textLLM)
	}
	var synth coordinator.Synthesizer = coordinator.NewTemplateSynthesizer()
	if cfg.Assistant.LLMSynthesis {
		synth = coordinator.NewLLMSynthesizer(textLLM)
	}

	store := session.NewMemoryStore(cfg.Assistant.MaxHistoryTurns)
	c, err := coordinator.New(coordinator.Options{
		Store:          store,
		Recipes:        recipes.NewClient(tools, cfg.Assistant.SearchTimeout),
		Fetcher:        fetcher,
		Validator:      photo.NewValidator(cfg.Assistant.MaxImageBytes()),
		Detector:       detector,
		Extractor:      preferences.NewKeywordExtractor(),
		Gate:           gate,
		Synthesizer:    synth,
		Logger:         deps.TurnLogger,
		RecipeCount:    cfg.Assistant.RecipeCount,
		MaxImageSizeMB: cfg.Assistant.MaxImageSizeMB,
		Tracer:         deps.Tracer,
		Meter:          deps.Meter,
	})
	if err != nil {
		return nil, err
	}

	slog.Info("SETUP: Assistant configured",
		"model_provider", cfg.Model.Provider,
		"model_id", cfg.Model.ModelID,
		"vision_model_id", cfg.Model.VisionModel(),
		"llm_gate", cfg.Assistant.LLMDomainGate,
		"llm_synthesis", cfg.Assistant.LLMSynthesis,
		"max_history_turns", cfg.Assistant.MaxHistoryTurns,
	)

	return &Assistant{
		Coordinator: c,
		Store:       store,
		Tools:       tools,
		cfg:         cfg,
		notifier:    deps.Notifier,
	}, nil
}

type model interface {
	DescribeImage(ctx context.Context, image []byte, format, instruction string) (string, error)
	Complete(ctx context.Context, system, user string) (string, error)
}

// newModels returns the text and vision models for the configured provider.
func newModels(cfg recipeagent.ModelConfig, deps Deps) (model, model, error) {
	switch cfg.Provider {
	case recipeagent.ProviderOllama:
		text, err := ollama.NewClient(ollama.ClientOpts{
			BaseEndpoint: cfg.OllamaEndpoint,
			ModelID:      cfg.ModelID,
			HTTPClient:   deps.HTTPClient,
			MaxTokens:    int(cfg.MaxTokens),
			Temperature:  float64(cfg.Temperature),
			TopP:         float64(cfg.TopP),
		})
		if err != nil {
			return nil, nil, err
		}
		visual, err := ollama.NewClient(ollama.ClientOpts{
			BaseEndpoint: cfg.OllamaEndpoint,
			ModelID:      cfg.VisionModel(),
			HTTPClient:   deps.HTTPClient,
			MaxTokens:    int(cfg.MaxTokens),
			Temperature:  float64(cfg.Temperature),
			TopP:         float64(cfg.TopP),
		})
		if err != nil {
			return nil, nil, err
		}
		return text, visual, nil

	case recipeagent.ProviderBedrock, "":
		// The retry package owns backoff; the SDK makes a single attempt.
		brc := bedrockruntime.NewFromConfig(deps.AWS, func(o *bedrockruntime.Options) {
			o.RetryMaxAttempts = 1
		})
		text := bedrock.NewLLMClient(brc, bedrock.LLMOptions{
			ModelID:     cfg.ModelID,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
			TopP:        cfg.TopP,
		})
		visual := bedrock.NewLLMClient(brc, bedrock.LLMOptions{
			ModelID:     cfg.VisionModel(),
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
			TopP:        cfg.TopP,
		})
		return text, visual, nil
	}
	return nil, nil, fmt.Errorf("unknown MODEL_PROVIDER %q", cfg.Provider)
}

// Start connects to the recipe tools. On failure an alert is posted and the
// error is returned so the binary can exit before serving anything.
func (a *Assistant) Start(ctx context.Context) error {
	if err := a.Tools.Start(ctx); err != nil {
		notify.Alert(ctx, a.notifier, a.cfg.Notify.Channel, "recipe tool connection", err)
		return fmt.Errorf("start recipe tools: %w", err)
	}
	return nil
}

// SweepSessions evicts idle sessions until ctx is done.
func (a *Assistant) SweepSessions(ctx context.Context) {
	ttl := a.cfg.Assistant.SessionIdleTTL
	if ttl <= 0 {
		return
	}
	a.Store.RunSweeper(ctx, max(ttl/4, time.Minute), ttl)
}

func (a *Assistant) Close() error {
	return a.Tools.Close()
}

// NewDialer picks the provider transport: streamable HTTP when an endpoint
// is configured, otherwise a child process over stdio.
func NewDialer(cfg recipeagent.ToolProviderConfig) toolconn.Dialer {
	if cfg.Endpoint != "" {
		return toolconn.HTTPDialer(cfg.Endpoint, cfg.APIKey, nil)
	}
	fields := strings.Fields(cfg.Command)
	if len(fields) == 0 {
		return func(ctx context.Context) (mcp.Transport, error) {
			return nil, errors.New("RECIPE_TOOL_COMMAND is empty")
		}
	}
	return toolconn.CommandDialer(cfg.APIKey, fields[0], fields[1:]...)
}

// NewNotifier posts to the configured webhook, or discards alerts when none
// is set.
func NewNotifier(cfg recipeagent.NotifyConfig, httpClient recipeagent.HTTPClient) recipeagent.Notifier {
	if cfg.WebhookURL == "" {
		return notify.Discard{}
	}
	return notify.NewWebhook(cfg.WebhookURL, httpClient)
}

// LoadAWSConfig loads the default AWS configuration chain.
func LoadAWSConfig(ctx context.Context) (aws.Config, error) {
	return config.LoadDefaultConfig(ctx)
}
