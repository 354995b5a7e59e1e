package recipeagent

import (
	"errors"
	"fmt"
	"time"
)

// Model providers.
const (
	ProviderBedrock = "bedrock"
	ProviderOllama  = "ollama"
)

type ModelConfig struct {
	Provider       string  `env:"MODEL_PROVIDER,default=bedrock"`
	OllamaEndpoint string  `env:"OLLAMA_ENDPOINT,default=http://localhost:11434"`
	ModelID        string  `env:"MODEL_ID,required"`
	VisionModelID  string  `env:"VISION_MODEL_ID"`
	MaxTokens      int32   `env:"MAX_TOKENS,default=1024"`
	Temperature    float32 `env:"TEMPERATURE,default=0.2"`
	TopP           float32 `env:"TOP_P,default=0.9"`
}

// VisionModel returns the model used for ingredient detection, falling back
// to ModelID when no dedicated vision model is set.
func (c ModelConfig) VisionModel() string {
	if c.VisionModelID != "" {
		return c.VisionModelID
	}
	return c.ModelID
}

type AssistantConfig struct {
	MaxHistoryTurns         int           `env:"MAX_HISTORY_TURNS,default=3"`
	MinIngredientConfidence float64       `env:"MIN_INGREDIENT_CONFIDENCE,default=0.7"`
	MaxImageSizeMB          int           `env:"MAX_IMAGE_SIZE_MB,default=5"`
	RetryAttempts           int           `env:"RETRY_ATTEMPTS,default=3"`
	RetryInitialDelay       time.Duration `env:"RETRY_INITIAL_DELAY,default=1s"`
	FetchTimeout            time.Duration `env:"FETCH_TIMEOUT,default=10s"`
	VisionTimeout           time.Duration `env:"VISION_TIMEOUT,default=20s"`
	SearchTimeout           time.Duration `env:"SEARCH_TIMEOUT,default=10s"`
	RecipeCount             int           `env:"RECIPE_COUNT,default=3"`
	LLMSynthesis            bool          `env:"LLM_SYNTHESIS,default=true"`
	LLMDomainGate           bool          `env:"LLM_DOMAIN_GATE,default=false"`
	SessionIdleTTL          time.Duration `env:"SESSION_IDLE_TTL,default=30m"`
	TurnLogPath             string        `env:"TURN_LOG_PATH"`
}

// MaxImageBytes is the image ceiling in bytes.
func (c AssistantConfig) MaxImageBytes() int64 {
	return int64(c.MaxImageSizeMB) << 20
}

func (c AssistantConfig) Validate() error {
	var errs []error
	if c.MaxHistoryTurns < 1 {
		errs = append(errs, fmt.Errorf("MAX_HISTORY_TURNS must be at least 1, got %d", c.MaxHistoryTurns))
	}
	if c.MinIngredientConfidence < 0 || c.MinIngredientConfidence > 1 {
		errs = append(errs, fmt.Errorf("MIN_INGREDIENT_CONFIDENCE must be within [0,1], got %v", c.MinIngredientConfidence))
	}
	if c.MaxImageSizeMB < 1 {
		errs = append(errs, fmt.Errorf("MAX_IMAGE_SIZE_MB must be at least 1, got %d", c.MaxImageSizeMB))
	}
	if c.RetryAttempts < 0 {
		errs = append(errs, fmt.Errorf("RETRY_ATTEMPTS must not be negative, got %d", c.RetryAttempts))
	}
	if c.RetryInitialDelay <= 0 {
		errs = append(errs, fmt.Errorf("RETRY_INITIAL_DELAY must be positive, got %s", c.RetryInitialDelay))
	}
	if c.RecipeCount < 1 {
		errs = append(errs, fmt.Errorf("RECIPE_COUNT must be at least 1, got %d", c.RecipeCount))
	}
	return errors.Join(errs...)
}

type ToolProviderConfig struct {
	APIKey         string        `env:"RECIPE_API_KEY"`
	Endpoint       string        `env:"RECIPE_TOOL_ENDPOINT"`
	Command        string        `env:"RECIPE_TOOL_COMMAND,default=recipe-provider"`
	ConnectTimeout time.Duration `env:"CONNECT_TIMEOUT,default=10s"`
}

type NotifyConfig struct {
	WebhookURL string `env:"ALERT_WEBHOOK_URL"`
	Channel    string `env:"ALERT_CHANNEL,default=#recipe-assistant"`
}

type ProviderConfig struct {
	CatalogPath string `env:"CATALOG_PATH,default=artifacts/recipes.json"`
	S3Bucket    string `env:"CATALOG_S3_BUCKET"`
	S3Key       string `env:"CATALOG_S3_KEY"`
	Addr        string `env:"PROVIDER_ADDR"`
}
