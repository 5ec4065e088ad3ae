package api

import (
	"net/http"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"blossom/internal/ai"
	"blossom/internal/extract"
	"blossom/internal/generation"
	"blossom/internal/types"
	"blossom/internal/utils"
)

// relayRequest is what the generation client posts to the relay.
type relayRequest struct {
	Prompt      string            `json:"prompt"`
	System      string            `json:"system"`
	Temperature *float64          `json:"temperature"`
	MaxTokens   int               `json:"max_tokens"`
	Files       map[string]string `json:"files"`
	Model       string            `json:"model"`
}

func (r relayRequest) generationRequest() types.GenerationRequest {
	req := types.GenerationRequest{
		Prompt: r.Prompt,
		Options: types.GenerationOptions{
			Temperature:        r.Temperature,
			MaxTokens:          r.MaxTokens,
			SystemInstructions: r.System,
			Model:              r.Model,
		},
	}
	if len(r.Files) > 0 {
		paths := make([]string, 0, len(r.Files))
		for p := range r.Files {
			paths = append(paths, p)
		}
		sort.Strings(paths)
		for _, p := range paths {
			req.ExistingFiles = append(req.ExistingFiles, types.GeneratedFile{Path: p, Content: r.Files[p]})
		}
	}
	return req
}

// Relay error types, the "type" of a {"error": {"message", "type"}} body.
const (
	relayInvalidRequest = "invalid_request_error"
	relayAuthentication = "authentication_error"
	relayNotFound       = "not_found_error"
	relayUpstream       = "upstream_error"
)

func relayError(c *gin.Context, status int, kind, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": gin.H{"message": message, "type": kind}})
}

// authorizeRelay checks the bearer token when one is configured.
func (h *APIHandler) authorizeRelay(c *gin.Context) {
	if h.relayToken == "" {
		c.Next()
		return
	}
	token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
	if !ok || strings.TrimSpace(token) != h.relayToken {
		relayError(c, http.StatusUnauthorized, relayAuthentication, "missing or invalid relay token")
		return
	}
	c.Next()
}

// bindRelay decodes the request and resolves the provider, answering the error itself
// when either fails.
func (h *APIHandler) bindRelay(c *gin.Context) (ai.Provider, types.GenerationRequest, bool) {
	var body relayRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		relayError(c, http.StatusBadRequest, relayInvalidRequest, "Invalid request body: "+err.Error())
		return nil, types.GenerationRequest{}, false
	}
	if strings.TrimSpace(body.Prompt) == "" {
		relayError(c, http.StatusBadRequest, relayInvalidRequest, "prompt is required")
		return nil, types.GenerationRequest{}, false
	}
	provider, err := h.providers.Get(c.Param("provider"))
	if err != nil {
		relayError(c, http.StatusNotFound, relayNotFound, err.Error())
		return nil, types.GenerationRequest{}, false
	}
	return provider, body.generationRequest(), true
}

// POST /api/relay/:provider
func (h *APIHandler) relayGenerate(c *gin.Context) {
	provider, req, ok := h.bindRelay(c)
	if !ok {
		return
	}
	c.Header(generation.ProviderHeader, provider.Name())

	completion, err := provider.Generate(c.Request.Context(), req)
	if err != nil {
		status := utils.StatusOrBadGateway(err)
		h.logger.Warn("relay upstream call failed",
			zap.String("provider", provider.Name()), zap.Int("status", status), zap.Error(err))
		relayError(c, status, relayUpstream, err.Error())
		return
	}
	h.logger.Info("relay completed",
		zap.String("provider", provider.Name()), zap.Int("chars", len(completion.Text)))
	c.Data(http.StatusOK, "application/json", completion.Raw)
}

// POST /api/relay/:provider/stream
func (h *APIHandler) relayStream(c *gin.Context) {
	provider, req, ok := h.bindRelay(c)
	if !ok {
		return
	}
	c.Header(generation.ProviderHeader, provider.Name())

	sse := newSSE(c)
	paths := extract.NewPathScanner()
	var writeErr error

	_, err := provider.Stream(c.Request.Context(), req, func(delta string) {
		if writeErr != nil || delta == "" {
			return
		}
		writeErr = sse.send("", types.StreamToken{Text: delta, FilesChangedHint: paths.Feed(delta)})
	})
	if err != nil {
		status := utils.StatusOrBadGateway(err)
		h.logger.Warn("relay upstream stream failed",
			zap.String("provider", provider.Name()), zap.Int("status", status), zap.Error(err))
		if !sse.started {
			relayError(c, status, relayUpstream, err.Error())
			return
		}
		_ = sse.send("error", gin.H{"error": gin.H{"message": err.Error(), "type": relayUpstream}})
		return
	}
	if writeErr != nil {
		h.logger.Info("relay client went away", zap.Error(writeErr))
		return
	}
	if err := sse.send("", types.StreamToken{IsFinal: true, FilesChangedHint: paths.Paths()}); err != nil {
		h.logger.Debug("final relay frame not delivered", zap.Error(err))
	}
}
