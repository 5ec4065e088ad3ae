package prompts

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"blossom/internal/extract"
	"blossom/internal/types"
)

func TestSystemPrompt(t *testing.T) {
	assert.Equal(t, DefaultSystemPrompt, SystemPrompt(""))
	assert.Equal(t, DefaultSystemPrompt, SystemPrompt("  \n"))
	assert.Equal(t, "only html", SystemPrompt("only html"))
}

func TestUserPromptWithoutFiles(t *testing.T) {
	assert.Equal(t, "make a todo app", UserPrompt("make a todo app", nil))
}

func TestUserPromptRoundTripsThroughExtractor(t *testing.T) {
	files := []types.GeneratedFile{
		{Path: "src/App.tsx", Content: "export default function App() {}\n"},
		{Path: "src/index.css", Content: "body { margin: 0 }"},
		{Path: "Dockerfile", Content: "FROM node:20"},
	}
	got := UserPrompt("add a footer", files)
	assert.Contains(t, got, "add a footer")
	assert.Contains(t, got, "```tsx src/App.tsx\n")
	assert.Contains(t, got, "```text Dockerfile\n")

	assert.Equal(t, []types.GeneratedFile{
		{Path: "src/App.tsx", Content: "export default function App() {}"},
		{Path: "src/index.css", Content: "body { margin: 0 }"},
		{Path: "Dockerfile", Content: "FROM node:20"},
	}, extract.Extract(FileContext(files)))
}
