package api

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes sets up the API endpoints and groups them logically.
func RegisterRoutes(router *gin.Engine, h *APIHandler) {
	apiGroup := router.Group("/api")

	// --- Builder: one workspace per input surface ---
	builderGroup := apiGroup.Group("/builder")
	{
		builderGroup.GET("", h.listSurfaces)
		builderGroup.GET("/:surface", h.builderSnapshot)
		builderGroup.DELETE("/:surface", h.builderDrop)
		builderGroup.POST("/:surface/generate", h.builderGenerate)
		builderGroup.POST("/:surface/stream", h.builderStream)
		builderGroup.GET("/:surface/ws", h.builderWS)
		builderGroup.GET("/:surface/files", h.builderFiles)
		builderGroup.GET("/:surface/tree", h.builderTree)
		builderGroup.GET("/:surface/preview", h.builderPreview)
		builderGroup.GET("/:surface/typing", h.builderTyping)
	}

	apiGroup.POST("/extract", h.extractText)

	// --- Relay: server-held provider keys ---
	relayGroup := apiGroup.Group("/relay", h.authorizeRelay)
	{
		relayGroup.POST("/:provider", h.relayGenerate)
		relayGroup.POST("/:provider/stream", h.relayStream)
	}

	// --- Saved projects ---
	projectGroup := apiGroup.Group("/projects", h.requireProjects)
	{
		projectGroup.POST("", h.createProject)
		projectGroup.GET("", h.listProjects)
		projectGroup.GET("/:id", h.getProject)
		projectGroup.PATCH("/:id", h.updateProject)
		projectGroup.DELETE("/:id", h.deleteProject)
		projectGroup.PUT("/:id/files", h.putProjectFiles)
		projectGroup.GET("/:id/files", h.getProjectFiles)
		projectGroup.GET("/:id/preview", h.projectPreview)
		projectGroup.POST("/:id/restore", h.restoreProject)
	}

	// --- Simple Health Check ---
	router.GET("/health", h.health)
}
