package vision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"recipeagent"
	"recipeagent/photo"
)

const (
	DefaultMinConfidence = 0.7
	defaultTimeout       = 20 * time.Second
)

// ErrUnparseable is returned when the model reply holds no usable JSON
// object. A second ask often succeeds, so it is marked transient.
var ErrUnparseable = errors.New("vision reply has no usable JSON object")

// Model is the vision capability: one image plus an instruction in, free
// text out.
type Model interface {
	DescribeImage(ctx context.Context, image []byte, format, instruction string) (string, error)
}

const extractionPrompt = `You are looking at a photo of food ingredients.

List every distinct raw ingredient you can see. Use short, lower-case, singular-or-plural common names ("tomatoes", "basil", "red onion"). Do not list prepared dishes, utensils or packaging.

Return ONLY a JSON object, no prose and no code fences:
{
  "ingredients": [string...],                 // in the order you noticed them
  "confidence_scores": {string: number...},   // one entry per ingredient, 0.0 to 1.0
  "description": string                       // one sentence describing the photo
}

If you cannot see any ingredients return {"ingredients": [], "confidence_scores": {}, "description": "..."}.`

type Detector struct {
	model         Model
	minConfidence float64
	timeout       time.Duration
}

type Option func(*Detector)

func WithMinConfidence(threshold float64) Option {
	return func(d *Detector) { d.minConfidence = threshold }
}

// WithTimeout bounds each model call.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Detector) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

func NewDetector(model Model, opts ...Option) *Detector {
	d := &Detector{
		model:         model,
		minConfidence: DefaultMinConfidence,
		timeout:       defaultTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Detect makes exactly one model call for image and returns the ingredients
// whose confidence reaches the configured minimum, in detection order.
func (d *Detector) Detect(ctx context.Context, image []byte) (recipeagent.DetectionResult, error) {
	format, err := photo.DetectFormat(image)
	if err != nil {
		return recipeagent.DetectionResult{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	text, err := d.model.DescribeImage(ctx, image, string(format), extractionPrompt)
	if err != nil {
		return recipeagent.DetectionResult{}, fmt.Errorf("vision call: %w", err)
	}

	r, err := parseReply(text)
	if err != nil {
		slog.Warn("VISION: Could not parse model reply", "reply_len", len(text), "error", err)
		return recipeagent.DetectionResult{}, recipeagent.Transient(err)
	}

	result := filter(r, d.minConfidence)
	slog.Info("VISION: Detection complete",
		"reported", len(r.Ingredients),
		"kept", len(result.Ingredients),
		"min_confidence", d.minConfidence,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

type reply struct {
	Ingredients      []string           `json:"ingredients"`
	ConfidenceScores map[string]float64 `json:"confidence_scores"`
	Description      string             `json:"description"`
}

// parseReply tries the whole text as JSON first, then every balanced
// object-shaped substring in order, returning the first that decodes.
func parseReply(text string) (reply, error) {
	var r reply
	s := strings.TrimSpace(text)
	if err := json.Unmarshal([]byte(s), &r); err == nil {
		return r, nil
	}

	for i := 0; i < len(s); i++ {
		if s[i] != '{' {
			continue
		}
		end := matchBrace(s, i)
		if end < 0 {
			continue
		}
		var candidate reply
		if err := json.Unmarshal([]byte(s[i:end+1]), &candidate); err == nil {
			return candidate, nil
		}
	}
	return reply{}, ErrUnparseable
}

// matchBrace returns the index of the brace closing the one at start, or -1.
// Braces inside JSON strings are ignored.
func matchBrace(s string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// filter normalizes names, drops ingredients without a valid score or below
// threshold, and removes duplicates keeping the first position.
func filter(r reply, threshold float64) recipeagent.DetectionResult {
	scores := make(map[string]float64, len(r.ConfidenceScores))
	for name, score := range r.ConfidenceScores {
		name = normalizeName(name)
		if name == "" || score < 0 || score > 1 {
			continue
		}
		scores[name] = score
	}

	out := recipeagent.DetectionResult{
		Ingredients: []string{},
		Confidence:  scores,
		Description: strings.TrimSpace(r.Description),
	}
	seen := make(map[string]bool, len(r.Ingredients))
	for _, ing := range r.Ingredients {
		name := normalizeName(ing)
		if name == "" || seen[name] {
			continue
		}
		score, ok := scores[name]
		if !ok || score < threshold {
			continue
		}
		seen[name] = true
		out.Ingredients = append(out.Ingredients, name)
	}
	return out
}

func normalizeName(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
