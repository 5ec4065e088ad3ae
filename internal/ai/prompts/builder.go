package prompts

import (
	"fmt"
	"strings"

	"blossom/internal/types"
)

// DefaultSystemPrompt is sent when the caller supplies no system instructions. It asks
// for the fenced-block file format the extractor reads first.
const DefaultSystemPrompt = `You are Blossom, an AI web builder.

Build exactly what the user asks for as a small React + TypeScript project styled with
TailwindCSS. Keep every component self-contained and prefer plain markup over heavy
dependencies so the result previews well.

Return every file as its own fenced code block whose opening line carries the language
and the file path, for example:

` + "```tsx src/App.tsx" + `
export default function App() {
  return <main className="p-8">Hello</main>
}
` + "```" + `

Always include src/App.tsx as the entry component. Only return files, no explanation.`

const existingFilesTemplate = `User's instruction:
---
%s
---

Here are the current project files:
---
%s
---

Return only the files you modify or add, in the same fenced format. Do not repeat files
that did not change.`

// SystemPrompt returns the caller's instructions, or DefaultSystemPrompt when blank.
func SystemPrompt(custom string) string {
	if strings.TrimSpace(custom) != "" {
		return custom
	}
	return DefaultSystemPrompt
}

// UserPrompt folds the existing files, if any, into the user's prompt.
func UserPrompt(prompt string, existing []types.GeneratedFile) string {
	if len(existing) == 0 {
		return prompt
	}
	return fmt.Sprintf(existingFilesTemplate, prompt, FileContext(existing))
}

// FileContext renders files in the fenced format the model is asked to answer in.
func FileContext(files []types.GeneratedFile) string {
	var b strings.Builder
	for i, f := range files {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "```%s %s\n%s\n```", fenceLanguage(f.Path), f.Path, strings.TrimRight(f.Content, "\n"))
	}
	return b.String()
}

func fenceLanguage(path string) string {
	i := strings.LastIndex(path, ".")
	if i < 0 || i == len(path)-1 || strings.Contains(path[i:], "/") {
		return "text"
	}
	return strings.ToLower(path[i+1:])
}
