package api

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blossom/internal/projects"
	"blossom/internal/types"
)

func TestProjectsDisabled(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(http.MethodGet, "/api/projects?user_id=u1", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestProjectLifecycle(t *testing.T) {
	env := newTestEnv(t, withProjects(t))

	w := env.do(http.MethodPost, "/api/projects", gin.H{
		"user_id": "u1",
		"title":  "Portfolio",
		"files":  []types.GeneratedFile{{Path: "index.html", Content: "<p>v1</p>"}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[projects.Project](t, w)
	assert.Equal(t, projects.StatusDraft, created.Status)
	id := created.ID

	w = env.do(http.MethodGet, "/api/projects/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Portfolio", decode[projects.Project](t, w).Title)

	w = env.do(http.MethodGet, "/api/projects?user_id=u1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[struct {
		Projects []projects.Project `json:"projects"`
	}](t, w)
	require.Len(t, list.Projects, 1)

	w = env.do(http.MethodPatch, "/api/projects/"+id, gin.H{"status": "published", "description": "mine"})
	require.Equal(t, http.StatusOK, w.Code)
	patched := decode[projects.Project](t, w)
	assert.Equal(t, projects.StatusPublished, patched.Status)
	assert.Equal(t, "mine", patched.Description)

	w = env.do(http.MethodPatch, "/api/projects/"+id, gin.H{"status": "deleted"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodGet, "/api/projects/"+id+"/files", nil)
	require.Equal(t, http.StatusOK, w.Code)
	files := decode[projectFilesResponse](t, w)
	assert.Equal(t, []types.GeneratedFile{{Path: "index.html", Content: "<p>v1</p>"}}, files.Files)
	require.Len(t, files.Tree, 1)

	w = env.do(http.MethodGet, "/api/projects/"+id+"/preview", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "<p>v1</p>")
	assert.Equal(t, "sandbox allow-scripts", w.Header().Get("Content-Security-Policy"))

	// save what the builder produced on a surface
	w = env.do(http.MethodPost, "/api/builder/main/generate", gin.H{"prompt": "app"})
	require.Equal(t, http.StatusOK, w.Code)
	w = env.do(http.MethodPut, "/api/projects/"+id+"/files", gin.H{"surface": "main"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	files = decode[projectFilesResponse](t, w)
	assert.Len(t, files.Files, 2)

	w = env.do(http.MethodPut, "/api/projects/"+id+"/files", gin.H{"surface": "ghost"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	// and bring it back into another surface
	w = env.do(http.MethodPost, "/api/projects/"+id+"/restore", gin.H{"surface": "copy"})
	require.Equal(t, http.StatusOK, w.Code)
	restored := decode[builderResponse](t, w)
	assert.Equal(t, "copy", restored.Surface)
	assert.Equal(t, files.Files, restored.Files)
	ws, ok := env.submitter.Store().Lookup("copy")
	require.True(t, ok)
	assert.Len(t, ws.Files(), 2)

	w = env.do(http.MethodDelete, "/api/projects/"+id, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = env.do(http.MethodGet, "/api/projects/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = env.do(http.MethodGet, "/api/projects/"+id+"/files", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestProjectCreateValidation(t *testing.T) {
	env := newTestEnv(t, withProjects(t))

	w := env.do(http.MethodPost, "/api/projects", gin.H{"title": "no user"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodPost, "/api/projects", gin.H{"user_id": "u", "title": "x", "status": "live"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodPost, "/api/projects", gin.H{
		"user_id": "u", "title": "dup",
		"files": []types.GeneratedFile{{Path: "a"}, {Path: "a"}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = env.do(http.MethodGet, "/api/projects?user_id=u", nil)
	assert.JSONEq(t, `{"projects":[]}`, w.Body.String())

	w = env.do(http.MethodGet, "/api/projects", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProjectWireFieldNames(t *testing.T) {
	env := newTestEnv(t, withProjects(t))

	w := env.do(http.MethodPost, "/api/projects", gin.H{"user_id": "u7", "title": "Shop"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decode[map[string]any](t, w)
	assert.Equal(t, "u7", body["user_id"])
	assert.Contains(t, body, "created_at")
	assert.Contains(t, body, "updated_at")
	assert.NotContains(t, body, "userId")

	w = env.do(http.MethodGet, "/api/projects?userId=u7", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
