package types

// GeneratedFile is one virtual file pulled out of a generation response.
// Path is slash-separated and relative; it is the identity of the file.
type GeneratedFile struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// NodeKind distinguishes files from directories in a FileTreeNode.
type NodeKind string

const (
	KindFile      NodeKind = "file"
	KindDirectory NodeKind = "directory"
)

// FileTreeNode is a node of the navigation tree. File nodes point back at their
// content by Path; they never carry a copy of it.
type FileTreeNode struct {
	Name     string          `json:"name"`
	Path     string          `json:"path"`
	Kind     NodeKind        `json:"kind"`
	Language string          `json:"language,omitempty"` // e.g. "TSX", "CSS"
	Children []*FileTreeNode `json:"children,omitempty"`
}

// IsDir reports whether the node is a directory.
func (n *FileTreeNode) IsDir() bool { return n != nil && n.Kind == KindDirectory }

// GenerationOptions tunes a single generation call.
type GenerationOptions struct {
	Temperature        *float64 `json:"temperature,omitempty"`
	MaxTokens          int      `json:"max_tokens,omitempty"`
	SystemInstructions string   `json:"system,omitempty"`
	Model              string   `json:"model,omitempty"`
}

// GenerationRequest is built per submission and never persisted.
type GenerationRequest struct {
	Prompt        string            `json:"prompt"`
	ExistingFiles []GeneratedFile   `json:"existing_files,omitempty"`
	Options       GenerationOptions `json:"options"`
}

// StreamToken is an incremental unit emitted by a streaming generation.
type StreamToken struct {
	Text             string   `json:"text"`
	IsFinal          bool     `json:"isFinal"`
	FilesChangedHint []string `json:"filesChangedHint,omitempty"`
}

// GeneratedText is the normalized result of a generation, whatever upstream produced it.
type GeneratedText struct {
	Text     string `json:"text"`
	Provider string `json:"provider,omitempty"`
}
