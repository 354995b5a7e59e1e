package coordinator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockCompleter implements completer for testing
type mockCompleter struct {
	reply string
	err   error
	calls int
	user  string
}

func (m *mockCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	m.calls++
	m.user = user
	return m.reply, m.err
}

func TestKeywordGate_Allow(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		followUp bool
		expected bool
	}{
		{name: "cooking question", text: "How do I cook rice?", expected: true},
		{name: "ingredient list", text: "I have tomatoes and basil", expected: true},
		{name: "preference only", text: "make it gluten-free", expected: true},
		{name: "diet word", text: "Anything vegetarian?", expected: true},
		{name: "off topic", text: "Tell me a joke about computers", expected: false},
		{name: "word containing a vocabulary word", text: "What's the weather tomorrow?", expected: false},
		{name: "state name starting with a cuisine", text: "What's the capital of Indiana?", expected: false},
		{name: "country name starting with a cuisine", text: "What's the capital of Thailand?", expected: false},
		{name: "word starting with dish", text: "Is it dishonest to lie?", expected: false},
		{name: "word starting with boil", text: "generate some boilerplate code", expected: false},
		{name: "off topic with context", text: "What's the capital of Indiana?", followUp: true, expected: false},
		{name: "inflected cooking word", text: "We're baking tonight, any ideas?", expected: true},
		{name: "inflected eat", text: "What should we be eating this week?", expected: true},
		{name: "allergy stem", text: "Any allergies I should mention?", expected: true},
		{name: "empty", text: "   ", expected: false},
		{name: "follow-up with context", text: "what about the other one?", followUp: true, expected: true},
		{name: "follow-up without context", text: "what about the other one?", expected: false},
	}

	gate := NewKeywordGate()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := gate.Allow(context.Background(), tt.text, tt.followUp)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, ok)
		})
	}
}

func TestLLMGate_Allow(t *testing.T) {
	tests := []struct {
		name          string
		text          string
		reply         string
		err           error
		expected      bool
		expectedCalls int
	}{
		{name: "keyword match skips the model", text: "I have eggs and rice", expected: true, expectedCalls: 0},
		{name: "model accepts", text: "what goes well with a rainy day?", reply: "Yes.", expected: true, expectedCalls: 1},
		{name: "model refuses", text: "who won the match?", reply: "no", expected: false, expectedCalls: 1},
		{name: "model failure uses keyword answer", text: "who won the match?", err: errors.New("throttled"), expected: false, expectedCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := &mockCompleter{reply: tt.reply, err: tt.err}
			ok, err := NewLLMGate(model).Allow(context.Background(), tt.text, false)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, ok)
			assert.Equal(t, tt.expectedCalls, model.calls)
		})
	}
}

func TestLLMGate_FollowUpIsMarked(t *testing.T) {
	model := &mockCompleter{reply: "yes"}
	ok, err := NewLLMGate(model).Allow(context.Background(), "hmm, and then?", true)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, model.user, "follow-up")
}

func TestLLMGate_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	model := &mockCompleter{err: context.Canceled}
	_, err := NewLLMGate(model).Allow(ctx, "who won the match?", false)
	assert.ErrorIs(t, err, context.Canceled)
}
