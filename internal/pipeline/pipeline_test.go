package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blossom/internal/preview"
	"blossom/internal/types"
)

type stubGenerator struct {
	text   string
	tokens []string
	err    error
	calls  int
}

func (s *stubGenerator) Generate(context.Context, types.GenerationRequest) (types.GeneratedText, error) {
	s.calls++
	if s.err != nil {
		return types.GeneratedText{}, s.err
	}
	return types.GeneratedText{Text: s.text, Provider: "stub"}, nil
}

func (s *stubGenerator) Stream(_ context.Context, _ types.GenerationRequest, onToken func(types.StreamToken)) (types.GeneratedText, error) {
	s.calls++
	for i, tok := range s.tokens {
		onToken(types.StreamToken{Text: tok, IsFinal: i == len(s.tokens)-1})
	}
	if s.err != nil {
		return types.GeneratedText{}, s.err
	}
	return types.GeneratedText{Text: s.text, Provider: "stub"}, nil
}

const appResponse = "Here you go:\n```tsx src/App.tsx\nexport default function App(){return <div>Hi</div>}\n```\n"

func TestRunProducesFilesTreeAndPreview(t *testing.T) {
	gen := &stubGenerator{text: appResponse}
	res, err := New(gen, nil).Run(context.Background(), types.GenerationRequest{Prompt: "hi"})
	require.NoError(t, err)

	assert.Equal(t, "stub", res.Text.Provider)
	assert.Equal(t, []types.GeneratedFile{{Path: "src/App.tsx", Content: "export default function App(){return <div>Hi</div>}"}}, res.Files)
	require.Len(t, res.Tree, 1)
	assert.Equal(t, "src", res.Tree[0].Name)
	assert.Contains(t, res.Document, "<div>Hi</div>")
	assert.Contains(t, res.Frame, `sandbox="allow-scripts"`)
	assert.Equal(t, 1, gen.calls)
}

func TestRunWithNoFilesIsNotAnError(t *testing.T) {
	res, err := New(&stubGenerator{text: "I cannot help with that."}, nil).Run(context.Background(), types.GenerationRequest{Prompt: "hi"})
	require.NoError(t, err)
	assert.NotNil(t, res.Files)
	assert.Empty(t, res.Files)
	assert.Empty(t, res.Tree)
	assert.Equal(t, preview.PlaceholderDocument, res.Document)
}

func TestRunAbortsOnGenerationError(t *testing.T) {
	boom := errors.New("boom")
	_, err := New(&stubGenerator{err: boom}, nil).Run(context.Background(), types.GenerationRequest{Prompt: "hi"})
	assert.ErrorIs(t, err, boom)

	_, err = (&Runner{}).Run(context.Background(), types.GenerationRequest{Prompt: "hi"})
	assert.Error(t, err)
}

func TestRunStreamForwardsTokensInOrder(t *testing.T) {
	gen := &stubGenerator{text: appResponse, tokens: []string{"a", "b", "c"}}
	var got []types.StreamToken
	res, err := New(gen, nil).RunStream(context.Background(), types.GenerationRequest{Prompt: "hi"}, func(tok types.StreamToken) {
		got = append(got, tok)
	})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0].Text)
	assert.True(t, got[2].IsFinal)
	assert.Len(t, res.Files, 1)
}

func TestFromFilesHonorsSandbox(t *testing.T) {
	res := FromFiles(types.GeneratedText{}, nil, preview.SandboxOptions{AllowScripts: true, AllowSameOrigin: true})
	assert.Contains(t, res.Frame, `sandbox="allow-scripts allow-same-origin"`)
	assert.NotNil(t, res.Files)
}
