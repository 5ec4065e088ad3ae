package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"blossom/internal/types"
)

const DefaultAnthropicModel = "claude-sonnet-4-20250514"

// Anthropic is the Claude Messages API.
type Anthropic struct {
	client anthropic.Client
	model  string
}

// NewAnthropic returns a Claude provider. The SDK's own retries are disabled: a failed
// call surfaces immediately and the user decides whether to resubmit.
func NewAnthropic(apiKey, model, baseURL string) *Anthropic {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if model == "" {
		model = DefaultAnthropicModel
	}
	return &Anthropic{client: anthropic.NewClient(opts...), model: model}
}

func (a *Anthropic) Name() string { return "anthropic" }

func (a *Anthropic) params(req types.GenerationRequest) anthropic.MessageNewParams {
	r := resolve(req, a.model)
	p := anthropic.MessageNewParams{
		Model:     anthropic.Model(r.model),
		MaxTokens: int64(r.maxTokens),
		System:    []anthropic.TextBlockParam{{Text: r.system}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(r.user)),
		},
	}
	if r.temp != nil {
		p.Temperature = anthropic.Float(*r.temp)
	}
	return p
}

func (a *Anthropic) Generate(ctx context.Context, req types.GenerationRequest) (Completion, error) {
	msg, err := a.client.Messages.New(ctx, a.params(req))
	if err != nil {
		return Completion{}, fmt.Errorf("anthropic messages request failed: %w", err)
	}
	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	raw := msg.RawJSON()
	if raw == "" {
		b, err := json.Marshal(msg)
		if err != nil {
			return Completion{}, fmt.Errorf("failed to encode anthropic response: %w", err)
		}
		raw = string(b)
	}
	return Completion{Raw: json.RawMessage(raw), Text: text.String()}, nil
}

func (a *Anthropic) Stream(ctx context.Context, req types.GenerationRequest, onDelta func(string)) (string, error) {
	stream := a.client.Messages.NewStreaming(ctx, a.params(req))
	defer stream.Close()

	var out strings.Builder
	for stream.Next() {
		event := stream.Current()
		switch ev := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			if delta, ok := ev.Delta.AsAny().(anthropic.TextDelta); ok && delta.Text != "" {
				out.WriteString(delta.Text)
				if onDelta != nil {
					onDelta(delta.Text)
				}
			}
		case anthropic.MessageStopEvent:
			return out.String(), nil
		}
	}
	if err := stream.Err(); err != nil {
		return out.String(), fmt.Errorf("anthropic stream failed: %w", err)
	}
	if ctx.Err() != nil {
		return out.String(), errors.Join(errors.New("anthropic stream interrupted"), ctx.Err())
	}
	return out.String(), nil
}
