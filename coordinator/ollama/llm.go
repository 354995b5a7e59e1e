// Package ollama talks to a local Ollama server through its /api/chat
// endpoint. It serves both the vision model (images are sent base64
// encoded) and the text model.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"recipeagent"
)

type options struct {
	Temperature   float64 `json:"temperature,omitempty"`
	TopP          float64 `json:"top_p,omitempty"`
	RepeatPenalty float64 `json:"repeat_penalty,omitempty"`
	NumCtx        int     `json:"num_ctx,omitempty"`
	NumPredict    int     `json:"num_predict,omitempty"`
}

type Client struct {
	endpoint   string
	model      string
	httpClient recipeagent.HTTPClient
	options    options
}

type ClientOpts struct {
	BaseEndpoint string
	ModelID      string
	HTTPClient   recipeagent.HTTPClient
	MaxTokens    int
	Temperature  float64
	TopP         float64
}

func NewClient(opts ClientOpts) (*Client, error) {
	if strings.TrimSpace(opts.ModelID) == "" {
		return nil, errors.New("ollama: model id is required")
	}
	if opts.BaseEndpoint == "" {
		opts.BaseEndpoint = "http://localhost:11434"
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	o := options{
		Temperature:   0.2,
		TopP:          0.9,
		RepeatPenalty: 1.05,
		NumCtx:        8192,
		NumPredict:    opts.MaxTokens,
	}
	if opts.Temperature > 0 {
		o.Temperature = opts.Temperature
	}
	if opts.TopP > 0 {
		o.TopP = opts.TopP
	}

	return &Client{
		model:      opts.ModelID,
		httpClient: opts.HTTPClient,
		endpoint:   strings.TrimRight(opts.BaseEndpoint, "/") + "/api/chat",
		options:    o,
	}, nil
}

type wireMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  [][]byte `json:"images,omitempty"` // encoding/json writes []byte as base64
}

type wireRequest struct {
	Model    string        `json:"model"`
	Messages []wireMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  options       `json:"options,omitempty"`
}

type wireResponse struct {
	Message    wireMessage `json:"message"`
	DoneReason string      `json:"done_reason,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// DescribeImage sends one image with an instruction and returns the reply
// text. Ollama sniffs the image format itself.
func (c *Client) DescribeImage(ctx context.Context, image []byte, format, instruction string) (string, error) {
	return c.chat(ctx, []wireMessage{{Role: "user", Content: instruction, Images: [][]byte{image}}})
}

// Complete runs a plain text exchange.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	var msgs []wireMessage
	if strings.TrimSpace(system) != "" {
		msgs = append(msgs, wireMessage{Role: "system", Content: system})
	}
	msgs = append(msgs, wireMessage{Role: "user", Content: user})
	return c.chat(ctx, msgs)
}

func (c *Client) chat(ctx context.Context, msgs []wireMessage) (string, error) {
	slog.Info("LLM_CLIENT: Invoked", "model_id", c.model, "messages_len", len(msgs))

	reqBytes, err := json.Marshal(wireRequest{
		Model:    c.model,
		Messages: msgs,
		Stream:   false,
		Options:  c.options,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(reqBytes))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded || recipeagent.IsTransient(err) {
			return "", recipeagent.Transient(err)
		}
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("ollama: %s: %s", resp.Status, strings.TrimSpace(string(body)))
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return "", recipeagent.Transient(err)
		}
		return "", err
	}

	var wr wireResponse
	if err := json.Unmarshal(body, &wr); err != nil {
		return "", fmt.Errorf("ollama: decode response: %w", err)
	}
	if wr.Error != "" {
		return "", fmt.Errorf("ollama: %s", wr.Error)
	}
	if wr.DoneReason == "length" {
		slog.Warn("LLM_CLIENT: Model hit num_predict limit", "model_id", c.model)
	}

	slog.Info("LLM_CLIENT: Ollama invoke succeeded", "model_id", c.model, "done_reason", wr.DoneReason)
	return wr.Message.Content, nil
}
