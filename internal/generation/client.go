// Package generation is the client side of the generation relay: it sends a prompt and
// optional file context to the configured endpoint and normalizes whatever provider
// shape comes back into a types.GeneratedText.
package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"blossom/internal/types"
)

// ProviderHeader carries the upstream provider name on relay responses.
const ProviderHeader = "X-Blossom-Provider"

const maxBodyBytes = 16 << 20

// Config is resolved once by the settings layer and handed to New.
type Config struct {
	EndpointURL string
	// StreamURL defaults to EndpointURL + "/stream".
	StreamURL  string
	Model      string
	Credential string
	// Timeout bounds a whole call, streaming included. Zero means no timeout.
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client issues exactly one HTTP request per call and never retries.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithLogger sets the logger used for request diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New validates cfg and returns a Client.
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.EndpointURL == "" {
		return nil, errors.New("generation endpoint URL is not configured")
	}
	if _, err := url.ParseRequestURI(cfg.EndpointURL); err != nil {
		return nil, fmt.Errorf("invalid generation endpoint URL: %w", err)
	}
	if cfg.StreamURL == "" {
		cfg.StreamURL = strings.TrimRight(cfg.EndpointURL, "/") + "/stream"
	}
	c := &Client{cfg: cfg, httpClient: cfg.HTTPClient, logger: zap.NewNop()}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type requestBody struct {
	Prompt      string            `json:"prompt"`
	System      string            `json:"system,omitempty"`
	Temperature *float64          `json:"temperature,omitempty"`
	MaxTokens   int               `json:"max_tokens,omitempty"`
	Files       map[string]string `json:"files,omitempty"`
	Model       string            `json:"model,omitempty"`
}

// Generate sends req and returns the completion text.
func (c *Client) Generate(ctx context.Context, req types.GenerationRequest) (types.GeneratedText, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return types.GeneratedText{}, ErrEmptyPrompt
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.post(ctx, c.cfg.EndpointURL, req, "application/json")
	if err != nil {
		return types.GeneratedText{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return types.GeneratedText{}, c.transportError(ctx, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return types.GeneratedText{}, statusError(resp.StatusCode, body)
	}

	parsed, err := ParseResponse(body)
	if err != nil {
		return types.GeneratedText{}, err
	}
	if parsed.Provider == "" {
		parsed.Provider = resp.Header.Get(ProviderHeader)
	}
	out, err := parsed.Generated()
	if err != nil {
		return types.GeneratedText{}, err
	}
	c.logger.Debug("generation completed",
		zap.String("provider", out.Provider),
		zap.String("shape", string(parsed.Shape)),
		zap.Int("chars", len(out.Text)))
	return out, nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.Timeout > 0 {
		return context.WithTimeout(ctx, c.cfg.Timeout)
	}
	return context.WithCancel(ctx)
}

func (c *Client) post(ctx context.Context, endpoint string, req types.GenerationRequest, accept string) (*http.Response, error) {
	payload, err := json.Marshal(c.body(req))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal generation request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create generation request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", accept)
	if c.cfg.Credential != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.Credential)
	}

	c.logger.Debug("sending generation request",
		zap.String("endpoint", endpoint),
		zap.Int("prompt_chars", len(req.Prompt)),
		zap.Int("existing_files", len(req.ExistingFiles)))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, c.transportError(ctx, err)
	}
	return resp, nil
}

func (c *Client) body(req types.GenerationRequest) requestBody {
	model := req.Options.Model
	if model == "" {
		model = c.cfg.Model
	}
	body := requestBody{
		Prompt:      req.Prompt,
		System:      req.Options.SystemInstructions,
		Temperature: req.Options.Temperature,
		MaxTokens:   req.Options.MaxTokens,
		Model:       model,
	}
	if len(req.ExistingFiles) > 0 {
		body.Files = make(map[string]string, len(req.ExistingFiles))
		for _, f := range req.ExistingFiles {
			body.Files[f.Path] = f.Content
		}
	}
	return body
}

func (c *Client) transportError(ctx context.Context, err error) *Error {
	msg := err.Error()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		msg = fmt.Sprintf("timed out after %s", c.cfg.Timeout)
	}
	return &Error{Kind: KindTransport, Message: msg, Err: err}
}

// statusError describes a non-2xx answer, preferring the message in a JSON error body.
func statusError(status int, body []byte) *Error {
	e := &Error{Kind: KindStatus, Status: status, Message: http.StatusText(status), Excerpt: excerpt(body)}
	if parsed, err := ParseResponse(body); err == nil && parsed.Shape == ShapeError {
		e.Message = parsed.errorText()
	}
	if e.Message == "" {
		e.Message = "unexpected status"
	}
	return e
}
