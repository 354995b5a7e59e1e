package coordinator

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
)

// Gate decides whether a text-only turn is about food and cooking.
// followUp is true when the session already has recipe context.
type Gate interface {
	Allow(ctx context.Context, text string, followUp bool) (bool, error)
}

// cookingVocabulary matches whole words and their regular inflections:
// "cook" matches "cooking" but "indian" does not match "indiana".
var cookingVocabulary = regexp.MustCompile(`\b(?:` + strings.Join(cookingWords, "|") + `)(?:s|es|ed|ing|er|ers|en)?\b`)

var followUpPrefix = regexp.MustCompile(`^(?:what about|how about|and|more|another|any other|something|instead|make it|can you make it|what if|ok|okay|yes|sure|thanks)\b`)

// KeywordGate accepts text that mentions cooking vocabulary, a known
// ingredient or an ingredient list, and short follow-ups in a session that
// already has recipe context.
type KeywordGate struct{}

func NewKeywordGate() *KeywordGate { return &KeywordGate{} }

func (g *KeywordGate) Allow(ctx context.Context, text string, followUp bool) (bool, error) {
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "" {
		return false, nil
	}
	if cookingVocabulary.MatchString(t) {
		return true, nil
	}
	if len(ParseIngredients(t)) > 0 {
		return true, nil
	}
	return followUp && followUpPrefix.MatchString(t), nil
}

type completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

const gateSystemPrompt = `You are a classifier for a cooking assistant.
Reply with exactly one word: "yes" if the user's message is about food, cooking, recipes, ingredients, diets, allergies or meal planning, or is a follow-up in such a conversation; otherwise "no".`

// LLMGate asks the text model about messages the keyword heuristic
// rejects. Model failures fall back to the heuristic's answer.
type LLMGate struct {
	model    completer
	fallback Gate
}

func NewLLMGate(model completer) *LLMGate {
	return &LLMGate{model: model, fallback: NewKeywordGate()}
}

func (g *LLMGate) Allow(ctx context.Context, text string, followUp bool) (bool, error) {
	ok, err := g.fallback.Allow(ctx, text, followUp)
	if err == nil && ok {
		return true, nil
	}

	user := text
	if followUp {
		user = "(follow-up in a recipe conversation) " + text
	}
	reply, err := g.model.Complete(ctx, gateSystemPrompt, user)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		slog.Warn("GATE: Model classification failed; using keyword result", "error", err)
		return ok, nil
	}
	answer := strings.ToLower(strings.TrimSpace(reply))
	return strings.HasPrefix(answer, "yes"), nil
}
