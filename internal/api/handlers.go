package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"blossom/internal/ai"
	"blossom/internal/artifacts"
	"blossom/internal/generation"
	"blossom/internal/logging"
	"blossom/internal/preview"
	"blossom/internal/projects"
	"blossom/internal/session"
)

// ProjectStore is the project persistence the handlers need. *projects.Store satisfies it.
type ProjectStore interface {
	Create(ctx context.Context, p projects.Project) (projects.Project, error)
	Get(ctx context.Context, id string) (projects.Project, error)
	Update(ctx context.Context, id string, patch projects.Patch) (projects.Project, error)
	Delete(ctx context.Context, id string) error
	ListByUser(ctx context.Context, userID string) ([]projects.Project, error)
}

// Deps are the services behind the API. Projects and Artifacts may be nil, in which case
// the project routes answer 503.
type Deps struct {
	Submitter  *session.Submitter
	Providers  *ai.Registry
	Projects   ProjectStore
	Artifacts  artifacts.Store
	Sandbox    preview.SandboxOptions
	RelayToken string
	Logger     *zap.Logger
}

// APIHandler holds dependencies for API endpoints.
type APIHandler struct {
	submitter  *session.Submitter
	providers  *ai.Registry
	projects   ProjectStore
	artifacts  artifacts.Store
	sandbox    preview.SandboxOptions
	relayToken string
	logger     *zap.Logger
}

// NewAPIHandler initializes a new API handler with its dependencies.
func NewAPIHandler(d Deps) *APIHandler {
	logger := logging.OrNop(d.Logger)
	providers := d.Providers
	if providers == nil {
		providers = &ai.Registry{}
	}
	return &APIHandler{
		submitter:  d.Submitter,
		providers:  providers,
		projects:   d.Projects,
		artifacts:  d.Artifacts,
		sandbox:    d.Sandbox,
		relayToken: d.RelayToken,
		logger:     logger,
	}
}

// errorStatus maps a service error to the HTTP status the API answers with.
func errorStatus(err error) int {
	var genErr *generation.Error
	switch {
	case errors.Is(err, session.ErrEmptyPrompt):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, session.ErrNoSuchFile),
		errors.Is(err, projects.ErrNotFound),
		errors.Is(err, artifacts.ErrNotFound),
		errors.Is(err, ai.ErrUnknownProvider):
		return http.StatusNotFound
	case errors.Is(err, projects.ErrInvalidStatus),
		errors.Is(err, artifacts.ErrInvalid),
		errors.Is(err, projects.ErrMissingTitle),
		errors.Is(err, projects.ErrMissingUser):
		return http.StatusBadRequest
	case errors.As(err, &genErr):
		if genErr.Kind == generation.KindStatus && genErr.Status >= 400 {
			return genErr.Status
		}
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// errorBody is the {"error": "..."} body, with the generation failure kind
// added when there is one.
func errorBody(err error) gin.H {
	body := gin.H{"error": err.Error()}
	var genErr *generation.Error
	if errors.As(err, &genErr) {
		body["kind"] = string(genErr.Kind)
	}
	return body
}

func (h *APIHandler) abortWithError(c *gin.Context, err error) {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Int("status", status), zap.Error(err))
	}
	c.AbortWithStatusJSON(status, errorBody(err))
}

func (h *APIHandler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"providers": h.providers.Names(),
		"projects":  h.projects != nil,
	})
}
