package api

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"blossom/internal/artifacts"
	"blossom/internal/filetree"
	"blossom/internal/pipeline"
	"blossom/internal/projects"
	"blossom/internal/session"
	"blossom/internal/types"
)

var errProjectsDisabled = errors.New("project storage is not configured")

type createProjectRequest struct {
	UserID      string                `json:"user_id" binding:"required"`
	Title       string                `json:"title" binding:"required"`
	Description string                `json:"description"`
	Status      projects.Status       `json:"status"`
	Code        *string               `json:"code"`
	Thumbnail   *string               `json:"thumbnail"`
	Files       []types.GeneratedFile `json:"files"`
}

// putFilesRequest saves either the given files or the current files of a builder surface.
type putFilesRequest struct {
	Files   []types.GeneratedFile `json:"files"`
	Surface string                `json:"surface"`
}

type restoreRequest struct {
	Surface string `json:"surface"`
}

type projectFilesResponse struct {
	Files []types.GeneratedFile `json:"files"`
	Tree  []*types.FileTreeNode `json:"tree"`
}

// requireProjects answers 503 when the server runs without project storage.
func (h *APIHandler) requireProjects(c *gin.Context) {
	if h.projects == nil || h.artifacts == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": errProjectsDisabled.Error()})
		return
	}
	c.Next()
}

// POST /api/projects
func (h *APIHandler) createProject(c *gin.Context) {
	var req createProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	ctx := c.Request.Context()
	p, err := h.projects.Create(ctx, projects.Project{
		UserID:      req.UserID,
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		Code:        req.Code,
		Thumbnail:   req.Thumbnail,
	})
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	if err := h.artifacts.Put(ctx, p.ID, nonNilFiles(req.Files)); err != nil {
		h.logger.Error("saving project files failed", zap.String("project", p.ID), zap.Error(err))
		if delErr := h.projects.Delete(ctx, p.ID); delErr != nil {
			h.logger.Warn("rolling back project failed", zap.String("project", p.ID), zap.Error(delErr))
		}
		h.abortWithError(c, err)
		return
	}
	h.logger.Info("project created", zap.String("project", p.ID), zap.Int("files", len(req.Files)))
	c.JSON(http.StatusCreated, p)
}

// GET /api/projects?user_id=
func (h *APIHandler) listProjects(c *gin.Context) {
	userID := strings.TrimSpace(c.Query("user_id"))
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id query parameter is required"})
		return
	}
	list, err := h.projects.ListByUser(c.Request.Context(), userID)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"projects": list})
}

// GET /api/projects/:id
func (h *APIHandler) getProject(c *gin.Context) {
	p, err := h.projects.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// PATCH /api/projects/:id
func (h *APIHandler) updateProject(c *gin.Context) {
	var patch projects.Patch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	p, err := h.projects.Update(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// DELETE /api/projects/:id
func (h *APIHandler) deleteProject(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	if err := h.projects.Delete(ctx, id); err != nil {
		h.abortWithError(c, err)
		return
	}
	if err := h.artifacts.Delete(ctx, id); err != nil {
		h.logger.Warn("project files left behind", zap.String("project", id), zap.Error(err))
	}
	c.Status(http.StatusNoContent)
}

// PUT /api/projects/:id/files
func (h *APIHandler) putProjectFiles(c *gin.Context) {
	var req putFilesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	ctx := c.Request.Context()
	p, err := h.projects.Get(ctx, c.Param("id"))
	if err != nil {
		h.abortWithError(c, err)
		return
	}

	files := req.Files
	if surface := strings.TrimSpace(req.Surface); surface != "" {
		ws, ok := h.submitter.Store().Lookup(surface)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "no builder surface named " + surface})
			return
		}
		files = ws.Files()
	}
	files = nonNilFiles(files)
	if err := h.artifacts.Put(ctx, p.ID, files); err != nil {
		h.abortWithError(c, err)
		return
	}
	if _, err := h.projects.Update(ctx, p.ID, projects.Patch{}); err != nil {
		h.logger.Warn("touching project failed", zap.String("project", p.ID), zap.Error(err))
	}
	c.JSON(http.StatusOK, projectFilesResponse{Files: files, Tree: filetree.Build(files)})
}

func (h *APIHandler) loadProjectFiles(c *gin.Context) ([]types.GeneratedFile, bool) {
	ctx := c.Request.Context()
	p, err := h.projects.Get(ctx, c.Param("id"))
	if err != nil {
		h.abortWithError(c, err)
		return nil, false
	}
	files, err := h.artifacts.Get(ctx, p.ID)
	if errors.Is(err, artifacts.ErrNotFound) {
		return []types.GeneratedFile{}, true
	}
	if err != nil {
		h.abortWithError(c, err)
		return nil, false
	}
	return files, true
}

// GET /api/projects/:id/files
func (h *APIHandler) getProjectFiles(c *gin.Context) {
	files, ok := h.loadProjectFiles(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, projectFilesResponse{Files: files, Tree: filetree.Build(files)})
}

// GET /api/projects/:id/preview
func (h *APIHandler) projectPreview(c *gin.Context) {
	files, ok := h.loadProjectFiles(c)
	if !ok {
		return
	}
	doc, frame := h.previewDocument(files)
	h.writePreview(c, doc, frame)
}

// POST /api/projects/:id/restore
//
// Loads a saved file set into a builder surface so it can be refined.
func (h *APIHandler) restoreProject(c *gin.Context) {
	var req restoreRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	files, ok := h.loadProjectFiles(c)
	if !ok {
		return
	}
	surface := session.NormalizeSurface(req.Surface)
	res := h.submitter.Store().Workspace(surface).Apply(pipeline.FromFiles(types.GeneratedText{}, files, h.sandbox), false)
	c.JSON(http.StatusOK, builderResponse{Surface: surface, Result: res})
}

func nonNilFiles(files []types.GeneratedFile) []types.GeneratedFile {
	if files == nil {
		return []types.GeneratedFile{}
	}
	return files
}
