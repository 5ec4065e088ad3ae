package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"blossom/internal/filetree"
	"blossom/internal/pipeline"
	"blossom/internal/preview"
	"blossom/internal/session"
	"blossom/internal/types"
	"blossom/internal/typing"
)

// builderResponse is a pipeline result tagged with the surface it belongs to.
type builderResponse struct {
	Surface string `json:"surface"`
	pipeline.Result
}

func (h *APIHandler) bindSubmission(c *gin.Context) (session.Submission, bool) {
	var sub session.Submission
	if err := c.ShouldBindJSON(&sub); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return sub, false
	}
	sub.SurfaceID = session.NormalizeSurface(c.Param("surface"))
	return sub, true
}

// GET /api/builder
func (h *APIHandler) listSurfaces(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"surfaces": h.submitter.Store().Surfaces()})
}

// POST /api/builder/:surface/generate
func (h *APIHandler) builderGenerate(c *gin.Context) {
	sub, ok := h.bindSubmission(c)
	if !ok {
		return
	}
	h.logger.Info("generation requested",
		zap.String("surface", sub.SurfaceID), zap.Bool("refine", sub.Refine), zap.Int("attachments", len(sub.Attachments)))

	res, err := h.submitter.Submit(c.Request.Context(), sub)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, builderResponse{Surface: sub.SurfaceID, Result: res})
}

// POST /api/builder/:surface/stream
//
// Frames: "token" for every StreamToken, then one "result" (or "error"), then "close".
func (h *APIHandler) builderStream(c *gin.Context) {
	sub, ok := h.bindSubmission(c)
	if !ok {
		return
	}
	// answer with a plain status while that is still possible
	if strings.TrimSpace(sub.Prompt) == "" {
		h.abortWithError(c, session.ErrEmptyPrompt)
		return
	}
	if h.submitter.Gate().Busy(sub.SurfaceID) {
		h.abortWithError(c, session.ErrBusy)
		return
	}

	sse := newSSE(c)
	sse.start()
	defer sse.close()

	res, err := h.submitter.SubmitStream(c.Request.Context(), sub, func(tok types.StreamToken) {
		if err := sse.send("token", tok); err != nil {
			h.logger.Debug("token frame not delivered", zap.Error(err))
		}
	})
	if err != nil {
		h.logger.Warn("streamed generation failed", zap.String("surface", sub.SurfaceID), zap.Error(err))
		body := errorBody(err)
		body["status"] = errorStatus(err)
		_ = sse.send("error", body)
		return
	}
	_ = sse.send("result", builderResponse{Surface: sub.SurfaceID, Result: res})
}

func (h *APIHandler) workspace(c *gin.Context) *session.Workspace {
	return h.submitter.Store().Workspace(session.NormalizeSurface(c.Param("surface")))
}

// GET /api/builder/:surface
func (h *APIHandler) builderSnapshot(c *gin.Context) {
	c.JSON(http.StatusOK, h.workspace(c).Snapshot())
}

// DELETE /api/builder/:surface
func (h *APIHandler) builderDrop(c *gin.Context) {
	h.submitter.Store().Drop(session.NormalizeSurface(c.Param("surface")))
	c.Status(http.StatusNoContent)
}

// GET /api/builder/:surface/files
func (h *APIHandler) builderFiles(c *gin.Context) {
	if path := c.Query("path"); path != "" {
		f, ok := h.workspace(c).File(path)
		if !ok {
			h.abortWithError(c, session.ErrNoSuchFile)
			return
		}
		c.JSON(http.StatusOK, f)
		return
	}
	c.JSON(http.StatusOK, gin.H{"files": h.workspace(c).Files()})
}

// GET /api/builder/:surface/tree
//
// With ?path= only that node (and, for a directory, its subtree) is returned.
func (h *APIHandler) builderTree(c *gin.Context) {
	tree := h.workspace(c).Snapshot().Tree
	path := strings.TrimSpace(c.Query("path"))
	if path == "" {
		c.JSON(http.StatusOK, gin.H{"tree": tree})
		return
	}
	node := filetree.Find(tree, path)
	if node == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no file or directory at " + path})
		return
	}
	c.JSON(http.StatusOK, gin.H{"node": node})
}

// GET /api/builder/:surface/preview
//
// Serves the preview document itself under a CSP sandbox matching the iframe's, or the
// iframe markup with ?format=frame.
func (h *APIHandler) builderPreview(c *gin.Context) {
	snap := h.workspace(c).Snapshot()
	h.writePreview(c, snap.Document, snap.Frame)
}

func (h *APIHandler) writePreview(c *gin.Context, doc, frame string) {
	if c.Query("format") == "frame" {
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(frame))
		return
	}
	c.Header("Content-Security-Policy", h.sandbox.ContentSecurityPolicy())
	c.Header("X-Content-Type-Options", "nosniff")
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(doc))
}

type typingFrame struct {
	Path string `json:"path"`
	Text string `json:"text"`
}

type typingDone struct {
	Path     string `json:"path"`
	Complete bool   `json:"complete"`
}

// GET /api/builder/:surface/typing?path=&cpt=&interval_ms=
//
// Streams growing prefixes of one file. Opening another file on the same surface ends
// this stream with complete=false.
func (h *APIHandler) builderTyping(c *gin.Context) {
	path := strings.TrimSpace(c.Query("path"))
	if path == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "path query parameter is required"})
		return
	}
	cpt, err := queryInt(c, "cpt")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cpt must be an integer"})
		return
	}
	intervalMS, err := queryInt(c, "interval_ms")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "interval_ms must be an integer"})
		return
	}

	ws := h.workspace(c)
	file, ok := ws.File(path)
	if !ok {
		h.abortWithError(c, session.ErrNoSuchFile)
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	updates := make(chan string, 16)
	onUpdate := func(partial string) {
		select {
		case updates <- partial:
		case <-ctx.Done():
		}
	}

	var anim *typing.Animation
	if cpt > 0 || intervalMS > 0 {
		anim, err = ws.OpenWith(path, cpt, time.Duration(intervalMS)*time.Millisecond, onUpdate)
	} else {
		anim, err = ws.Open(path, onUpdate)
	}
	if err != nil {
		cancel()
		h.abortWithError(c, err)
		return
	}
	defer func() {
		cancel()
		anim.Cancel()
	}()

	sse := newSSE(c)
	sse.start()
	defer sse.close()

	last := ""
	for {
		select {
		case <-ctx.Done():
			return
		case partial := <-updates:
			last = partial
			if err := sse.send("", typingFrame{Path: path, Text: partial}); err != nil {
				return
			}
		case <-anim.Done():
			// drain what was produced before the animation exited
		drain:
			for {
				select {
				case partial := <-updates:
					last = partial
					_ = sse.send("", typingFrame{Path: path, Text: partial})
				default:
					break drain
				}
			}
			_ = sse.send("done", typingDone{Path: path, Complete: last == file.Content})
			return
		}
	}
}

func queryInt(c *gin.Context, key string) (int, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

type extractRequest struct {
	Text string `json:"text"`
}

// POST /api/extract
//
// Runs extraction, tree building and preview rendering on text the caller already has.
func (h *APIHandler) extractText(c *gin.Context) {
	var req extractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	res := pipeline.FromText(types.GeneratedText{Text: req.Text}, h.sandbox)
	c.JSON(http.StatusOK, res)
}

// previewDocument renders files outside any workspace.
func (h *APIHandler) previewDocument(files []types.GeneratedFile) (string, string) {
	doc := preview.Render(files)
	return doc, preview.Frame(doc, h.sandbox)
}
