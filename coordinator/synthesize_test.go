package coordinator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recipeagent"
)

func TestTemplateSynthesizer_Compose(t *testing.T) {
	caprese := recipeagent.Recipe{
		ID:           "1",
		Title:        "Caprese Salad",
		Ingredients:  []string{"2 tomatoes", "1 bunch basil"},
		Instructions: []string{"Slice the tomatoes.", "Add basil."},
		PrepMinutes:  10,
		SourceURL:    "https://example.com/caprese",
	}

	tests := []struct {
		name     string
		input    SynthesisInput
		contains []string
		excludes []string
	}{
		{
			name: "single recipe",
			input: SynthesisInput{
				Ingredients: []string{"tomatoes", "basil"},
				Preferences: recipeagent.Preferences{Diet: "vegetarian", Intolerances: []string{"gluten"}},
				Recipes:     []recipeagent.Recipe{caprese},
			},
			contains: []string{
				"Here is 1 recipe using tomatoes and basil (vegetarian, gluten-free):",
				"1. Caprese Salad (10 min)",
				"Ingredients: 2 tomatoes; 1 bunch basil",
				"1) Slice the tomatoes.",
				"2) Add basil.",
				"Source: https://example.com/caprese",
			},
		},
		{
			name: "nothing found",
			input: SynthesisInput{
				Ingredients: []string{"durian"},
				Preferences: recipeagent.Preferences{Cuisine: "italian"},
			},
			contains: []string{"I couldn't find any recipes using durian that are italian."},
			excludes: []string{"Here"},
		},
		{
			name: "notices come first",
			input: SynthesisInput{
				Ingredients: []string{"eggs"},
				Recipes:     []recipeagent.Recipe{caprese},
				Notices:     []string{invalidImageNotice},
			},
			contains: []string{invalidImageNotice + "\n\nHere is 1 recipe using eggs:"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := NewTemplateSynthesizer().Compose(context.Background(), tt.input)
			require.NoError(t, err)
			for _, s := range tt.contains {
				assert.Contains(t, out, s)
			}
			for _, s := range tt.excludes {
				assert.NotContains(t, out, s)
			}
		})
	}
}

func TestJoinList(t *testing.T) {
	assert.Equal(t, "your ingredients", joinList(nil))
	assert.Equal(t, "egg", joinList([]string{"egg"}))
	assert.Equal(t, "egg and rice", joinList([]string{"egg", "rice"}))
	assert.Equal(t, "egg, rice and peas", joinList([]string{"egg", "rice", "peas"}))
}

func TestLLMSynthesizer_Compose(t *testing.T) {
	in := SynthesisInput{
		Ingredients: []string{"tomatoes"},
		Recipes:     []recipeagent.Recipe{{ID: "1", Title: "Caprese Salad"}},
	}

	tests := []struct {
		name          string
		reply         string
		err           error
		in            SynthesisInput
		expected      string
		expectedCalls int
	}{
		{
			name:          "grounded reply is used",
			reply:         "  Try the Caprese Salad tonight!  ",
			in:            in,
			expected:      "Try the Caprese Salad tonight!",
			expectedCalls: 1,
		},
		{
			name:          "reply without a known title falls back",
			reply:         "Make a lovely lasagna.",
			in:            in,
			expected:      "Here is 1 recipe using tomatoes:\n\n1. Caprese Salad",
			expectedCalls: 1,
		},
		{
			name:          "model failure falls back",
			err:           errors.New("throttled"),
			in:            in,
			expected:      "Here is 1 recipe using tomatoes:\n\n1. Caprese Salad",
			expectedCalls: 1,
		},
		{
			name:          "no recipes skips the model",
			in:            SynthesisInput{Ingredients: []string{"tomatoes"}},
			expected:      "I couldn't find any recipes using tomatoes. Try other ingredients or relax one of your preferences.",
			expectedCalls: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := &mockCompleter{reply: tt.reply, err: tt.err}
			out, err := NewLLMSynthesizer(model).Compose(context.Background(), tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, out)
			assert.Equal(t, tt.expectedCalls, model.calls)
		})
	}
}
