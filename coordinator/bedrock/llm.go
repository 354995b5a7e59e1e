package bedrock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"

	"recipeagent"
)

const (
	// defaultModelID is the default model ID for Bedrock Claude.
	// It's an inference profile ID or ARN, not the foundation model's ID.
	// See https://docs.aws.amazon.com/bedrock/latest/userguide/inference-profiles.html.
	defaultModelID = "us.anthropic.claude-3-7-sonnet-20250219-v1:0"

	// Controls the maximum number of tokens the model can generate in one response.
	defaultMaxTokens = 1024

	// Low temperature keeps extraction output deterministic enough to parse.
	defaultTemperature = 0.2

	defaultTopP = 0.9
)

// ErrMaxTokens and ErrBlocked are returned for replies that cannot be used.
var (
	ErrMaxTokens = errors.New("model hit MaxTokens limit")
	ErrBlocked   = errors.New("model response blocked by Bedrock safety filters")
)

type bedrockRuntimeClient interface {
	Converse(context.Context, *bedrockruntime.ConverseInput, ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

type LLMOptions struct {
	ModelID     string
	MaxTokens   int32
	Temperature float32
	TopP        float32
}

type LLMClient struct {
	brc  bedrockRuntimeClient
	opts LLMOptions
}

func NewLLMClient(brc bedrockRuntimeClient, opts LLMOptions) *LLMClient {
	if opts.ModelID == "" {
		opts.ModelID = defaultModelID
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = defaultMaxTokens
	}
	if opts.Temperature == 0 {
		opts.Temperature = defaultTemperature
	}
	if opts.TopP == 0 {
		opts.TopP = defaultTopP
	}
	return &LLMClient{
		brc:  brc,
		opts: opts,
	}
}

// DescribeImage sends one image with an instruction and returns the reply
// text.
func (c *LLMClient) DescribeImage(ctx context.Context, image []byte, format, instruction string) (string, error) {
	res, err := c.Invoke(ctx, NewImagePrompt(image, format, instruction))
	if err != nil {
		return "", err
	}
	return res.Content, nil
}

// Complete runs a plain text exchange.
func (c *LLMClient) Complete(ctx context.Context, system, user string) (string, error) {
	res, err := c.Invoke(ctx, NewTextPrompt(system, user))
	if err != nil {
		return "", err
	}
	return res.Content, nil
}

// Invoke calls the Converse API. Errors that are worth retrying are marked
// with recipeagent.Transient.
func (c *LLMClient) Invoke(ctx context.Context, prompt Prompt) (Response, error) {
	slog.Info("LLM_CLIENT: Invoked", "model_id", c.opts.ModelID, "messages_len", len(prompt.Messages))

	var sys []types.SystemContentBlock
	var msgs []types.Message
	for _, m := range prompt.Messages {
		if m.Role == "system" {
			sys = append(sys, &types.SystemContentBlockMemberText{Value: m.Content.Join()})
			continue
		}

		msg := types.Message{Role: types.ConversationRole(m.Role)}
		for _, part := range m.Content {
			switch part.Type {
			case "text":
				msg.Content = append(msg.Content, &types.ContentBlockMemberText{Value: part.Text})

			case "image":
				format, err := imageFormat(part.Format)
				if err != nil {
					return Response{}, err
				}
				msg.Content = append(msg.Content, &types.ContentBlockMemberImage{
					Value: types.ImageBlock{
						Format: format,
						Source: &types.ImageSourceMemberBytes{Value: part.Image},
					},
				})
				slog.Info("LLM_CLIENT: Added image content", "format", part.Format, "bytes", len(part.Image))
			}
		}
		msgs = append(msgs, msg)
	}

	in := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(c.opts.ModelID),
		System:   sys,
		Messages: msgs,
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens:   aws.Int32(c.opts.MaxTokens),
			Temperature: aws.Float32(c.opts.Temperature),
			TopP:        aws.Float32(c.opts.TopP),
		},
	}
	out, err := c.brc.Converse(ctx, in)
	if err != nil {
		slog.Error("LLM_CLIENT: Bedrock invoke failed", "model_id", c.opts.ModelID, "error", err)
		return Response{}, classify(err)
	}

	res := Response{StopReason: string(out.StopReason)}
	if out.Usage != nil {
		res.InputTokens = aws.ToInt32(out.Usage.InputTokens)
		res.OutputTokens = aws.ToInt32(out.Usage.OutputTokens)
	}
	var latency int64
	if out.Metrics != nil {
		latency = aws.ToInt64(out.Metrics.LatencyMs)
	}
	slog.Info("LLM_CLIENT: Bedrock invoke succeeded",
		"stop_reason", out.StopReason,
		"latency_ms", latency,
		"input_tokens", res.InputTokens,
		"output_tokens", res.OutputTokens,
	)

	switch out.StopReason {
	case types.StopReasonMaxTokens:
		slog.Warn("LLM_CLIENT: Model hit MaxTokens limit; consider increasing MaxTokens")
		return Response{}, ErrMaxTokens
	case types.StopReasonGuardrailIntervened, types.StopReasonContentFiltered:
		slog.Warn("LLM_CLIENT: Model response blocked by Bedrock safety filters")
		return Response{}, ErrBlocked
	}

	res.Content = textFromOutput(out)
	return res, nil
}

func imageFormat(f string) (types.ImageFormat, error) {
	switch strings.ToLower(f) {
	case "jpeg", "jpg":
		return types.ImageFormatJpeg, nil
	case "png":
		return types.ImageFormatPng, nil
	}
	return "", fmt.Errorf("unsupported image format %q", f)
}

// textFromOutput joins the assistant's text blocks with '\n'.
func textFromOutput(out *bedrockruntime.ConverseOutput) string {
	if out == nil || out.Output == nil {
		return ""
	}

	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok || msg == nil {
		return ""
	}

	texts := make([]string, 0, len(msg.Value.Content))
	for _, cb := range msg.Value.Content {
		if t, ok := cb.(*types.ContentBlockMemberText); ok && t != nil && t.Value != "" {
			texts = append(texts, t.Value)
		}
	}
	return strings.Join(texts, "\n")
}

var transientCodes = map[string]bool{
	"ThrottlingException":         true,
	"ServiceUnavailableException": true,
	"InternalServerException":     true,
	"ModelTimeoutException":       true,
	"ModelNotReadyException":      true,
	"TooManyRequestsException":    true,
	"RequestTimeout":              true,
}

// classify marks throttling, server faults and timeouts as transient. Bad
// credentials, validation errors and other client faults stay permanent.
func classify(err error) error {
	if recipeagent.IsTransient(err) {
		return recipeagent.Transient(err)
	}

	var ae smithy.APIError
	if errors.As(err, &ae) {
		if transientCodes[ae.ErrorCode()] || ae.ErrorFault() == smithy.FaultServer {
			return recipeagent.Transient(err)
		}
		return err
	}

	var re *awshttp.ResponseError
	if errors.As(err, &re) {
		if code := re.HTTPStatusCode(); code >= 500 || code == 429 {
			return recipeagent.Transient(err)
		}
	}
	return err
}
