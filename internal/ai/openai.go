package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"blossom/internal/types"
)

// OpenAI is the Chat Completions API through go-openai.
type OpenAI struct {
	client *openai.Client
	model  string
}

func NewOpenAI(apiKey, model, baseURL string) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = openai.GPT4o
	}
	return &OpenAI{client: openai.NewClientWithConfig(cfg), model: model}
}

func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) request(req types.GenerationRequest, stream bool) openai.ChatCompletionRequest {
	r := resolve(req, o.model)
	out := openai.ChatCompletionRequest{
		Model: r.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: r.system},
			{Role: openai.ChatMessageRoleUser, Content: r.user},
		},
		MaxTokens: r.maxTokens,
		Stream:    stream,
	}
	if r.temp != nil {
		out.Temperature = float32(*r.temp)
	}
	return out
}

func (o *OpenAI) Generate(ctx context.Context, req types.GenerationRequest) (Completion, error) {
	resp, err := o.client.CreateChatCompletion(ctx, o.request(req, false))
	if err != nil {
		return Completion{}, fmt.Errorf("openai chat completion failed: %w", err)
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		return Completion{}, fmt.Errorf("failed to encode openai response: %w", err)
	}
	text := ""
	if len(resp.Choices) > 0 {
		text = resp.Choices[0].Message.Content
	}
	return Completion{Raw: raw, Text: text}, nil
}

func (o *OpenAI) Stream(ctx context.Context, req types.GenerationRequest, onDelta func(string)) (string, error) {
	stream, err := o.client.CreateChatCompletionStream(ctx, o.request(req, true))
	if err != nil {
		return "", fmt.Errorf("openai chat completion stream failed: %w", err)
	}
	defer stream.Close()

	var out strings.Builder
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return out.String(), nil
		}
		if err != nil {
			return out.String(), fmt.Errorf("openai stream failed: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		if chunk := resp.Choices[0].Delta.Content; chunk != "" {
			out.WriteString(chunk)
			if onDelta != nil {
				onDelta(chunk)
			}
		}
	}
}
