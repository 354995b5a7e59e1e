package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"recipeagent"
)

const (
	refusalText = "I can only help with cooking and recipes. Tell me which ingredients you have, or send a photo of them, and I'll suggest something to make."
	clarifyText = "Which ingredients do you have? List a few, or send a photo of your fridge or pantry, and I'll find recipes for them."
	apologyText = "Sorry, I couldn't reach the recipe service just now, so I can't suggest recipes this time. Please try again in a moment."
)

// SynthesisInput is everything a reply may be grounded in.
type SynthesisInput struct {
	Text        string                  `json:"user_message"`
	Ingredients []string                `json:"ingredients"`
	Preferences recipeagent.Preferences `json:"preferences"`
	Recipes     []recipeagent.Recipe    `json:"recipes"`
	Notices     []string                `json:"notices,omitempty"`
}

// Synthesizer turns verified recipes into the assistant's reply.
type Synthesizer interface {
	Compose(ctx context.Context, in SynthesisInput) (string, error)
}

// TemplateSynthesizer renders a fixed layout with no model call.
type TemplateSynthesizer struct{}

func NewTemplateSynthesizer() *TemplateSynthesizer { return &TemplateSynthesizer{} }

func (s *TemplateSynthesizer) Compose(ctx context.Context, in SynthesisInput) (string, error) {
	var b strings.Builder
	for _, n := range in.Notices {
		b.WriteString(n)
		b.WriteString("\n\n")
	}

	if len(in.Recipes) == 0 {
		fmt.Fprintf(&b, "I couldn't find any recipes using %s", joinList(in.Ingredients))
		if p := describePreferences(in.Preferences); p != "" {
			fmt.Fprintf(&b, " that are %s", p)
		}
		b.WriteString(". Try other ingredients or relax one of your preferences.")
		return b.String(), nil
	}

	noun := "recipes"
	if len(in.Recipes) == 1 {
		noun = "recipe"
	}
	fmt.Fprintf(&b, "Here %s %d %s using %s", verb(len(in.Recipes)), len(in.Recipes), noun, joinList(in.Ingredients))
	if p := describePreferences(in.Preferences); p != "" {
		fmt.Fprintf(&b, " (%s)", p)
	}
	b.WriteString(":\n")

	for i, r := range in.Recipes {
		fmt.Fprintf(&b, "\n%d. %s", i+1, r.Title)
		if total := r.PrepMinutes + r.CookMinutes; total > 0 {
			fmt.Fprintf(&b, " (%d min)", total)
		}
		b.WriteString("\n")
		if len(r.Ingredients) > 0 {
			fmt.Fprintf(&b, "   Ingredients: %s\n", strings.Join(r.Ingredients, "; "))
		}
		for j, step := range r.Instructions {
			fmt.Fprintf(&b, "   %d) %s\n", j+1, step)
		}
		if r.SourceURL != "" {
			fmt.Fprintf(&b, "   Source: %s\n", r.SourceURL)
		}
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func verb(n int) string {
	if n == 1 {
		return "is"
	}
	return "are"
}

func joinList(items []string) string {
	switch len(items) {
	case 0:
		return "your ingredients"
	case 1:
		return items[0]
	}
	return strings.Join(items[:len(items)-1], ", ") + " and " + items[len(items)-1]
}

func describePreferences(p recipeagent.Preferences) string {
	var parts []string
	for _, v := range []string{p.Diet, p.Cuisine, p.MealType} {
		if v != "" {
			parts = append(parts, v)
		}
	}
	for _, in := range p.Intolerances {
		parts = append(parts, in+"-free")
	}
	return strings.Join(parts, ", ")
}

const synthesisSystemPrompt = `You are a friendly cooking assistant.
You receive JSON with the user's message, their ingredients, their preferences and a list of recipes.
Write a short reply presenting ONLY the recipes in the JSON, in the given order, using their exact titles.
Never invent recipes, ingredients, quantities, steps or timings that are not in the JSON.
Mention any notices first. Keep each recipe to a few lines.`

// LLMSynthesizer asks the text model to phrase the reply. When the model
// fails, or mentions none of the recipe titles, the fallback is used.
type LLMSynthesizer struct {
	model    completer
	fallback Synthesizer
}

func NewLLMSynthesizer(model completer) *LLMSynthesizer {
	return &LLMSynthesizer{model: model, fallback: NewTemplateSynthesizer()}
}

func (s *LLMSynthesizer) Compose(ctx context.Context, in SynthesisInput) (string, error) {
	if len(in.Recipes) == 0 {
		return s.fallback.Compose(ctx, in)
	}

	payload, err := json.Marshal(in)
	if err != nil {
		return s.fallback.Compose(ctx, in)
	}
	reply, err := s.model.Complete(ctx, synthesisSystemPrompt, string(payload))
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		slog.Warn("SYNTHESIZER: Model call failed; using template", "error", err)
		return s.fallback.Compose(ctx, in)
	}

	reply = strings.TrimSpace(reply)
	if reply == "" || !mentionsAnyTitle(reply, in.Recipes) {
		slog.Warn("SYNTHESIZER: Model reply not grounded in recipes; using template", "reply_len", len(reply))
		return s.fallback.Compose(ctx, in)
	}
	return reply, nil
}

func mentionsAnyTitle(reply string, recipes []recipeagent.Recipe) bool {
	lower := strings.ToLower(reply)
	for _, r := range recipes {
		if strings.Contains(lower, strings.ToLower(r.Title)) {
			return true
		}
	}
	return false
}
