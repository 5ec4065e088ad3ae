package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blossom/internal/ai"
	"blossom/internal/artifacts"
	"blossom/internal/generation"
	"blossom/internal/pipeline"
	"blossom/internal/preview"
	"blossom/internal/projects"
	"blossom/internal/session"
	"blossom/internal/types"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const appSource = "export default function App() {\n  return (\n    <main className=\"app\"><h1>Hello</h1></main>\n  );\n}"

func fenced(path, body string) string {
	return "```tsx " + path + "\n" + body + "\n```\n"
}

// stubGenerator stands in for the generation client.
type stubGenerator struct {
	text    string
	tokens  []string
	err     error
	calls   atomic.Int32
	block   chan struct{}
	entered chan struct{}
}

func (s *stubGenerator) Generate(ctx context.Context, _ types.GenerationRequest) (types.GeneratedText, error) {
	s.calls.Add(1)
	if s.entered != nil {
		s.entered <- struct{}{}
	}
	if s.block != nil {
		<-s.block
	}
	if s.err != nil {
		return types.GeneratedText{}, s.err
	}
	return types.GeneratedText{Text: s.text, Provider: "stub"}, nil
}

func (s *stubGenerator) Stream(ctx context.Context, req types.GenerationRequest, onToken func(types.StreamToken)) (types.GeneratedText, error) {
	for i, tok := range s.tokens {
		onToken(types.StreamToken{Text: tok, IsFinal: i == len(s.tokens)-1})
	}
	return s.Generate(ctx, req)
}

type testEnv struct {
	router    *gin.Engine
	handler   *APIHandler
	submitter *session.Submitter
	runner    *pipeline.Runner
	gen       *stubGenerator
	registry  *ai.Registry
}

type envOption func(*Deps)

func withProjects(t *testing.T) envOption {
	return func(d *Deps) {
		store, err := projects.Open(context.Background(), filepath.Join(t.TempDir(), "projects.db"), nil)
		require.NoError(t, err)
		t.Cleanup(func() { _ = store.Close() })
		d.Projects = store
		d.Artifacts = artifacts.NewMemoryStore()
	}
}

func withRelayToken(token string) envOption {
	return func(d *Deps) { d.RelayToken = token }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	gen := &stubGenerator{text: fenced("src/App.tsx", appSource) + "```css src/index.css\nh1 { color: red; }\n```\n"}
	runner := pipeline.New(gen, nil)
	store := session.NewStore(preview.DefaultSandbox(), 4, time.Millisecond)
	t.Cleanup(store.Close)
	submitter := session.NewSubmitter(runner, store, nil)
	registry := &ai.Registry{}

	deps := Deps{
		Submitter: submitter,
		Providers: registry,
		Sandbox:   preview.DefaultSandbox(),
	}
	for _, opt := range opts {
		opt(&deps)
	}
	h := NewAPIHandler(deps)
	router := gin.New()
	router.Use(gin.Recovery())
	RegisterRoutes(router, h)
	return &testEnv{router: router, handler: h, submitter: submitter, runner: runner, gen: gen, registry: registry}
}

func (e *testEnv) do(method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, _ := json.Marshal(b)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

// sseFrame is one parsed Server-Sent Events frame.
type sseFrame struct {
	event string
	data  string
}

func parseSSE(body string) []sseFrame {
	var frames []sseFrame
	for _, block := range strings.Split(body, "\n\n") {
		if strings.TrimSpace(block) == "" {
			continue
		}
		var f sseFrame
		for _, line := range strings.Split(block, "\n") {
			switch {
			case strings.HasPrefix(line, "event: "):
				f.event = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				f.data = strings.TrimPrefix(line, "data: ")
			}
		}
		frames = append(frames, f)
	}
	return frames
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]any](t, w)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, false, body["projects"])
}

func TestBuilderGenerateAndViews(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/builder/hero/generate", gin.H{"prompt": "a landing page"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[builderResponse](t, w)
	assert.Equal(t, "hero", res.Surface)
	require.Len(t, res.Files, 2)
	assert.Equal(t, "src/App.tsx", res.Files[0].Path)
	assert.Contains(t, res.Document, `<main class="app"><h1>Hello</h1></main>`)
	assert.Contains(t, res.Document, "h1 { color: red; }")
	assert.Contains(t, res.Frame, `sandbox="allow-scripts"`)

	w = env.do(http.MethodGet, "/api/builder/hero/files", nil)
	require.Equal(t, http.StatusOK, w.Code)
	files := decode[struct {
		Files []types.GeneratedFile `json:"files"`
	}](t, w)
	assert.Equal(t, res.Files, files.Files)

	w = env.do(http.MethodGet, "/api/builder/hero/files?path=src/index.css", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "src/index.css", decode[types.GeneratedFile](t, w).Path)

	w = env.do(http.MethodGet, "/api/builder/hero/files?path=nope.ts", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(http.MethodGet, "/api/builder/hero/tree", nil)
	require.Equal(t, http.StatusOK, w.Code)
	tree := decode[struct {
		Tree []*types.FileTreeNode `json:"tree"`
	}](t, w)
	require.Len(t, tree.Tree, 1)
	assert.Equal(t, "src", tree.Tree[0].Name)
	assert.Len(t, tree.Tree[0].Children, 2)

	w = env.do(http.MethodGet, "/api/builder/hero/tree?path=src", nil)
	require.Equal(t, http.StatusOK, w.Code)
	node := decode[struct {
		Node *types.FileTreeNode `json:"node"`
	}](t, w)
	require.NotNil(t, node.Node)
	assert.True(t, node.Node.IsDir())
	assert.Len(t, node.Node.Children, 2)

	w = env.do(http.MethodGet, "/api/builder/hero/tree?path=src/missing.ts", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(http.MethodGet, "/api/builder/hero/preview", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "sandbox allow-scripts", w.Header().Get("Content-Security-Policy"))
	assert.Equal(t, res.Document, w.Body.String())

	w = env.do(http.MethodGet, "/api/builder/hero/preview?format=frame", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Body.String(), "<iframe"))

	w = env.do(http.MethodGet, "/api/builder", nil)
	assert.Contains(t, w.Body.String(), `"hero"`)

	w = env.do(http.MethodDelete, "/api/builder/hero", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	_, ok := env.submitter.Store().Lookup("hero")
	assert.False(t, ok)
}

func TestBuilderPreviewBeforeAnyGeneration(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(http.MethodGet, "/api/builder/fresh/preview", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, preview.PlaceholderDocument, w.Body.String())
}

func TestBuilderGenerateErrors(t *testing.T) {
	cases := []struct {
		name   string
		body   any
		genErr error
		status int
		kind   string
	}{
		{name: "blank prompt", body: gin.H{"prompt": "   "}, status: http.StatusBadRequest},
		{name: "bad json", body: "{", status: http.StatusBadRequest},
		{name: "upstream status", body: gin.H{"prompt": "x"},
			genErr: &generation.Error{Kind: generation.KindStatus, Status: http.StatusTooManyRequests, Message: "slow down"},
			status: http.StatusTooManyRequests, kind: "status"},
		{name: "transport", body: gin.H{"prompt": "x"},
			genErr: &generation.Error{Kind: generation.KindTransport, Message: "connection refused"},
			status: http.StatusBadGateway, kind: "transport"},
		{name: "malformed", body: gin.H{"prompt": "x"},
			genErr: &generation.Error{Kind: generation.KindMalformed, Message: "bad"},
			status: http.StatusBadGateway, kind: "malformed"},
		{name: "other", body: gin.H{"prompt": "x"}, genErr: errors.New("boom"), status: http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.gen.err = tc.genErr
			w := env.do(http.MethodPost, "/api/builder/main/generate", tc.body)
			assert.Equal(t, tc.status, w.Code, w.Body.String())
			body := decode[map[string]any](t, w)
			assert.NotEmpty(t, body["error"])
			if tc.kind != "" {
				assert.Equal(t, tc.kind, body["kind"])
			}
		})
	}
}

func TestBuilderGenerateWhileBusyIs409(t *testing.T) {
	env := newTestEnv(t)
	env.gen.block = make(chan struct{})
	env.gen.entered = make(chan struct{}, 1)

	done := make(chan int, 1)
	go func() {
		done <- env.do(http.MethodPost, "/api/builder/main/generate", gin.H{"prompt": "first"}).Code
	}()
	<-env.gen.entered

	w := env.do(http.MethodPost, "/api/builder/main/generate", gin.H{"prompt": "second"})
	assert.Equal(t, http.StatusConflict, w.Code)
	w = env.do(http.MethodPost, "/api/builder/main/stream", gin.H{"prompt": "third"})
	assert.Equal(t, http.StatusConflict, w.Code)

	close(env.gen.block)
	assert.Equal(t, http.StatusOK, <-done)
	assert.EqualValues(t, 1, env.gen.calls.Load())
}

func TestBuilderStream(t *testing.T) {
	env := newTestEnv(t)
	env.gen.tokens = []string{"```tsx src/App.tsx\n", appSource, "\n```\n"}

	w := env.do(http.MethodPost, "/api/builder/main/stream", gin.H{"prompt": "go"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	frames := parseSSE(w.Body.String())
	require.Len(t, frames, 5)
	for i := 0; i < 3; i++ {
		assert.Equal(t, "token", frames[i].event)
	}
	var last types.StreamToken
	require.NoError(t, json.Unmarshal([]byte(frames[2].data), &last))
	assert.True(t, last.IsFinal)

	assert.Equal(t, "result", frames[3].event)
	var res builderResponse
	require.NoError(t, json.Unmarshal([]byte(frames[3].data), &res))
	assert.Equal(t, "main", res.Surface)
	assert.Len(t, res.Files, 2)
	assert.Equal(t, "close", frames[4].event)
}

func TestBuilderStreamErrorFrame(t *testing.T) {
	env := newTestEnv(t)
	env.gen.err = &generation.Error{Kind: generation.KindEmpty}

	w := env.do(http.MethodPost, "/api/builder/main/stream", gin.H{"prompt": "go"})
	require.Equal(t, http.StatusOK, w.Code)
	frames := parseSSE(w.Body.String())
	require.Len(t, frames, 2)
	assert.Equal(t, "error", frames[0].event)
	assert.Contains(t, frames[0].data, `"kind":"empty_completion"`)
	assert.Contains(t, frames[0].data, `"status":502`)
	assert.Equal(t, "close", frames[1].event)

	w = env.do(http.MethodPost, "/api/builder/main/stream", gin.H{"prompt": ""})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBuilderRefineMergesFiles(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(http.MethodPost, "/api/builder/main/generate", gin.H{"prompt": "start"})
	require.Equal(t, http.StatusOK, w.Code)

	env.gen.text = "```ts src/util.ts\nexport const x = 1\n```"
	w = env.do(http.MethodPost, "/api/builder/main/generate", gin.H{"prompt": "add util", "refine": true})
	require.Equal(t, http.StatusOK, w.Code)
	res := decode[builderResponse](t, w)
	assert.Len(t, res.Files, 3)
}

func TestBuilderTyping(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(http.MethodPost, "/api/builder/main/generate", gin.H{"prompt": "go"})
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(http.MethodGet, "/api/builder/main/typing?path=src/index.css&cpt=5&interval_ms=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	frames := parseSSE(w.Body.String())
	require.GreaterOrEqual(t, len(frames), 3)

	var prev string
	for _, f := range frames[:len(frames)-2] {
		var tf typingFrame
		require.NoError(t, json.Unmarshal([]byte(f.data), &tf))
		assert.Equal(t, "src/index.css", tf.Path)
		assert.True(t, strings.HasPrefix(tf.Text, prev))
		prev = tf.Text
	}
	assert.Equal(t, "h1 { color: red; }", prev)
	done := frames[len(frames)-2]
	assert.Equal(t, "done", done.event)
	assert.JSONEq(t, `{"path":"src/index.css","complete":true}`, done.data)
	assert.Equal(t, "close", frames[len(frames)-1].event)

	ws, _ := env.submitter.Store().Lookup("main")
	assert.Equal(t, "src/index.css", ws.Snapshot().ActiveFile)
}

func TestBuilderTypingSwitchEndsPreviousStream(t *testing.T) {
	env := newTestEnv(t)
	ws := env.submitter.Store().Workspace("main")
	ws.Apply(pipeline.FromFiles(types.GeneratedText{}, []types.GeneratedFile{
		{Path: "long.ts", Content: strings.Repeat("x", 100000)},
		{Path: "short.ts", Content: "ab"},
	}, preview.DefaultSandbox()), false)

	first := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		first <- env.do(http.MethodGet, "/api/builder/main/typing?path=long.ts&cpt=1&interval_ms=5", nil)
	}()
	require.Eventually(t, func() bool {
		return ws.Snapshot().ActiveFile == "long.ts"
	}, time.Second, time.Millisecond)

	w := env.do(http.MethodGet, "/api/builder/main/typing?path=short.ts&cpt=1&interval_ms=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"complete":true`)

	select {
	case r := <-first:
		assert.Contains(t, r.Body.String(), `"complete":false`)
	case <-time.After(5 * time.Second):
		t.Fatal("first typing stream was not ended by the switch")
	}
}

func TestBuilderTypingBadRequests(t *testing.T) {
	env := newTestEnv(t)
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/api/builder/main/typing", nil).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/api/builder/main/typing?path=a&cpt=x", nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/api/builder/main/typing?path=a", nil).Code)
}

func TestExtractEndpoint(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(http.MethodPost, "/api/extract", gin.H{"text": fenced("index.html", "<p>hi</p>")})
	require.Equal(t, http.StatusOK, w.Code)
	res := decode[pipeline.Result](t, w)
	require.Len(t, res.Files, 1)
	assert.Contains(t, res.Document, "<p>hi</p>")

	w = env.do(http.MethodPost, "/api/extract", gin.H{"text": "no files here"})
	require.Equal(t, http.StatusOK, w.Code)
	res = decode[pipeline.Result](t, w)
	assert.Empty(t, res.Files)
	assert.Equal(t, preview.PlaceholderDocument, res.Document)
	assert.EqualValues(t, 0, env.gen.calls.Load())
}

func TestErrorStatus(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, errorStatus(projects.ErrNotFound))
	assert.Equal(t, http.StatusNotFound, errorStatus(artifacts.ErrNotFound))
	assert.Equal(t, http.StatusNotFound, errorStatus(ai.ErrUnknownProvider))
	assert.Equal(t, http.StatusBadRequest, errorStatus(projects.ErrInvalidStatus))
	assert.Equal(t, http.StatusConflict, errorStatus(session.ErrBusy))
	assert.Equal(t, http.StatusGatewayTimeout, errorStatus(context.DeadlineExceeded))
	assert.Equal(t, http.StatusBadGateway, errorStatus(&generation.Error{Kind: generation.KindUpstream}))
}
