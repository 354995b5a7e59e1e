package bedrock

type Prompt struct {
	Messages []Message `json:"messages"`
}

type MessagePart struct {
	Type   string `json:"type"`
	Text   string `json:"text,omitempty"`
	Image  []byte `json:"-"`
	Format string `json:"format,omitempty"` // jpeg or png, for image parts
}

type MessageParts []MessagePart

// Join concatenates the text parts.
func (mp MessageParts) Join() string {
	var result string
	for _, part := range mp {
		if part.Type == "text" {
			result += part.Text
		}
	}
	return result
}

type Message struct {
	Role    string       `json:"role"`
	Content MessageParts `json:"content"`
}

type Response struct {
	Content      string `json:"content,omitempty"`
	StopReason   string `json:"stop_reason,omitempty"`
	InputTokens  int32  `json:"input_tokens,omitempty"`
	OutputTokens int32  `json:"output_tokens,omitempty"`
}

// NewTextPrompt builds a system + user prompt.
func NewTextPrompt(system, user string) Prompt {
	var msgs []Message
	if system != "" {
		msgs = append(msgs, Message{Role: "system", Content: MessageParts{{Type: "text", Text: system}}})
	}
	msgs = append(msgs, Message{Role: "user", Content: MessageParts{{Type: "text", Text: user}}})
	return Prompt{Messages: msgs}
}

// NewImagePrompt builds a user message carrying the image followed by the
// instruction text.
func NewImagePrompt(image []byte, format, instruction string) Prompt {
	return Prompt{
		Messages: []Message{
			{
				Role: "user",
				Content: MessageParts{
					{Type: "image", Image: image, Format: format},
					{Type: "text", Text: instruction},
				},
			},
		},
	}
}
