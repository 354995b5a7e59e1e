package vision

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recipeagent"
	"recipeagent/photo"
)

var jpegBytes = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10}

type mockModel struct {
	reply  string
	err    error
	calls  int
	format string
}

func (m *mockModel) DescribeImage(ctx context.Context, image []byte, format, instruction string) (string, error) {
	m.calls++
	m.format = format
	return m.reply, m.err
}

func TestParseReply(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    []string
		wantErr bool
	}{
		{
			name: "strict json",
			text: `{"ingredients":["tomatoes","basil"],"confidence_scores":{"tomatoes":0.9,"basil":0.8}}`,
			want: []string{"tomatoes", "basil"},
		},
		{
			name: "prose before the object",
			text: "Sure! Here is what I found:\n{\"ingredients\":[\"eggs\"],\"confidence_scores\":{\"eggs\":0.95}}\nEnjoy.",
			want: []string{"eggs"},
		},
		{
			name: "fenced code block",
			text: "```json\n{\"ingredients\":[\"rice\"],\"confidence_scores\":{\"rice\":0.9}}\n```",
			want: []string{"rice"},
		},
		{
			name: "braces inside strings",
			text: `Result: {"ingredients":["chili {dried}"],"confidence_scores":{"chili {dried}":0.9},"description":"a } brace"}`,
			want: []string{"chili {dried}"},
		},
		{
			name: "unclosed brace before a good object",
			text: `{ oops {"ingredients":["leek"],"confidence_scores":{"leek":0.8}}`,
			want: []string{"leek"},
		},
		{
			name:    "no object at all",
			text:    "I see a kitchen counter.",
			wantErr: true,
		},
		{
			name:    "broken json",
			text:    `{"ingredients": [`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := parseReply(tt.text)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnparseable)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, r.Ingredients)
		})
	}
}

func TestFilter(t *testing.T) {
	r := reply{
		Ingredients: []string{"Tomatoes", "basil", "mystery", "garlic", " tomatoes ", "onion", "lime"},
		ConfidenceScores: map[string]float64{
			"tomatoes": 0.92,
			"basil":    0.70,
			"garlic":   0.40,
			"onion":    1.7,
			"lime":     -0.2,
		},
		Description: " a cutting board ",
	}

	got := filter(r, 0.7)

	assert.Equal(t, []string{"tomatoes", "basil"}, got.Ingredients)
	assert.Equal(t, "a cutting board", got.Description)
	for _, ing := range got.Ingredients {
		score, ok := got.Confidence[ing]
		require.True(t, ok, "every kept ingredient has a score")
		assert.GreaterOrEqual(t, score, 0.7)
	}
	assert.NotContains(t, got.Confidence, "onion")
	assert.NotContains(t, got.Confidence, "lime")
}

func TestDetector_Detect(t *testing.T) {
	t.Run("filters and keeps order", func(t *testing.T) {
		model := &mockModel{reply: `{"ingredients":["basil","tomatoes","salt"],"confidence_scores":{"basil":0.81,"tomatoes":0.99,"salt":0.3},"description":"fresh produce"}`}
		d := NewDetector(model)

		got, err := d.Detect(context.Background(), jpegBytes)
		require.NoError(t, err)
		assert.Equal(t, []string{"basil", "tomatoes"}, got.Ingredients)
		assert.Equal(t, "fresh produce", got.Description)
		assert.Equal(t, "jpeg", model.format)
		assert.Equal(t, 1, model.calls)
	})

	t.Run("custom threshold", func(t *testing.T) {
		model := &mockModel{reply: `{"ingredients":["salt"],"confidence_scores":{"salt":0.3}}`}
		got, err := NewDetector(model, WithMinConfidence(0.2)).Detect(context.Background(), jpegBytes)
		require.NoError(t, err)
		assert.Equal(t, []string{"salt"}, got.Ingredients)
	})

	t.Run("unparseable reply is transient", func(t *testing.T) {
		model := &mockModel{reply: "no json here"}
		_, err := NewDetector(model).Detect(context.Background(), jpegBytes)
		assert.ErrorIs(t, err, ErrUnparseable)
		assert.True(t, recipeagent.IsTransient(err))
	})

	t.Run("model error is passed through", func(t *testing.T) {
		boom := errors.New("access denied")
		model := &mockModel{err: boom}
		_, err := NewDetector(model).Detect(context.Background(), jpegBytes)
		assert.ErrorIs(t, err, boom)
		assert.False(t, recipeagent.IsTransient(err))
	})

	t.Run("not an image", func(t *testing.T) {
		model := &mockModel{}
		_, err := NewDetector(model).Detect(context.Background(), []byte("hello"))
		assert.ErrorIs(t, err, photo.ErrInvalidFormat)
		assert.Zero(t, model.calls)
	})
}
