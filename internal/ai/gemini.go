package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"blossom/internal/types"
)

const DefaultGeminiModel = "gemini-2.5-flash"

// Gemini is the Gemini API through the genai SDK.
type Gemini struct {
	client *genai.Client
	model  string
}

func NewGemini(ctx context.Context, apiKey, model, baseURL string) (*Gemini, error) {
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	cli, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	return &Gemini{client: cli, model: model}, nil
}

func (g *Gemini) Name() string { return "gemini" }

func (g *Gemini) request(req types.GenerationRequest) (string, []*genai.Content, *genai.GenerateContentConfig) {
	r := resolve(req, g.model)
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(r.system, genai.RoleUser),
		MaxOutputTokens:   int32(r.maxTokens),
	}
	if r.temp != nil {
		cfg.Temperature = genai.Ptr(float32(*r.temp))
	}
	return r.model, genai.Text(r.user), cfg
}

func (g *Gemini) Generate(ctx context.Context, req types.GenerationRequest) (Completion, error) {
	model, contents, cfg := g.request(req)
	resp, err := g.client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return Completion{}, fmt.Errorf("gemini generate content failed: %w", err)
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		return Completion{}, fmt.Errorf("failed to encode gemini response: %w", err)
	}
	return Completion{Raw: raw, Text: resp.Text()}, nil
}

func (g *Gemini) Stream(ctx context.Context, req types.GenerationRequest, onDelta func(string)) (string, error) {
	model, contents, cfg := g.request(req)
	var out strings.Builder
	for resp, err := range g.client.Models.GenerateContentStream(ctx, model, contents, cfg) {
		if err != nil {
			return out.String(), fmt.Errorf("gemini stream failed: %w", err)
		}
		if chunk := resp.Text(); chunk != "" {
			out.WriteString(chunk)
			if onDelta != nil {
				onDelta(chunk)
			}
		}
	}
	return out.String(), nil
}
