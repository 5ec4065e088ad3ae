// Package ai talks to the upstream LLM providers on behalf of the relay. Each provider
// holds its own server-side credential and answers with the provider's native JSON, so
// the relay can pass it through untouched.
package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"blossom/internal/ai/prompts"
	"blossom/internal/logging"
	"blossom/internal/types"
)

// DefaultMaxTokens is used when a request does not set max_tokens.
const DefaultMaxTokens = 8192

// ErrUnknownProvider is returned for provider names that are not registered.
var ErrUnknownProvider = errors.New("unknown provider")

// Completion is one upstream answer: the provider's own response body and the text
// it carries.
type Completion struct {
	Raw  json.RawMessage
	Text string
}

// Provider is an upstream text-generation API.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req types.GenerationRequest) (Completion, error)
	// Stream calls onDelta with each text fragment as it arrives and returns the
	// whole text once the upstream finishes.
	Stream(ctx context.Context, req types.GenerationRequest, onDelta func(string)) (string, error)
}

// Settings carries the credentials and defaults for every provider. A provider whose
// key is empty is not registered.
type Settings struct {
	AnthropicAPIKey  string
	AnthropicModel   string
	AnthropicBaseURL string

	GeminiAPIKey  string
	GeminiModel   string
	GeminiBaseURL string

	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string

	DefaultProvider string
}

// Registry resolves provider names for the relay.
type Registry struct {
	providers map[string]Provider
	def       string
}

// NewRegistry builds a provider for every configured key.
func NewRegistry(ctx context.Context, s Settings, logger *zap.Logger) (*Registry, error) {
	logger = logging.OrNop(logger)
	r := &Registry{providers: map[string]Provider{}, def: strings.ToLower(s.DefaultProvider)}

	if s.AnthropicAPIKey != "" {
		r.Register(NewAnthropic(s.AnthropicAPIKey, s.AnthropicModel, s.AnthropicBaseURL))
	}
	if s.GeminiAPIKey != "" {
		g, err := NewGemini(ctx, s.GeminiAPIKey, s.GeminiModel, s.GeminiBaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create gemini provider: %w", err)
		}
		r.Register(g)
	}
	if s.OpenAIAPIKey != "" {
		r.Register(NewOpenAI(s.OpenAIAPIKey, s.OpenAIModel, s.OpenAIBaseURL))
	}

	if len(r.providers) == 0 {
		logger.Warn("no upstream provider keys configured; the relay will reject every request")
	}
	logger.Info("upstream providers ready", zap.Strings("providers", r.Names()), zap.String("default", r.def))
	return r, nil
}

// Register adds or replaces p under its name.
func (r *Registry) Register(p Provider) {
	if r.providers == nil {
		r.providers = map[string]Provider{}
	}
	r.providers[p.Name()] = p
}

// Get returns the provider called name, or the default one when name is empty.
func (r *Registry) Get(name string) (Provider, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return r.Default()
	}
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	return p, nil
}

// Default returns the configured default provider, falling back to the first
// registered one by name.
func (r *Registry) Default() (Provider, error) {
	if p, ok := r.providers[r.def]; ok {
		return p, nil
	}
	names := r.Names()
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: none configured", ErrUnknownProvider)
	}
	return r.providers[names[0]], nil
}

// Names lists the registered providers, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for n := range r.providers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// resolved is a request with every default applied.
type resolved struct {
	model     string
	system    string
	user      string
	maxTokens int
	temp      *float64
}

func resolve(req types.GenerationRequest, defaultModel string) resolved {
	r := resolved{
		model:     req.Options.Model,
		system:    prompts.SystemPrompt(req.Options.SystemInstructions),
		user:      prompts.UserPrompt(req.Prompt, req.ExistingFiles),
		maxTokens: req.Options.MaxTokens,
		temp:      req.Options.Temperature,
	}
	if r.model == "" {
		r.model = defaultModel
	}
	if r.maxTokens <= 0 {
		r.maxTokens = DefaultMaxTokens
	}
	return r
}
