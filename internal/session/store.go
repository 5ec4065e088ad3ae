package session

import (
	"errors"
	"sort"
	"sync"
	"time"

	"blossom/internal/pipeline"
	"blossom/internal/preview"
	"blossom/internal/typing"
	"blossom/internal/types"
)

// ErrNoSuchFile is returned when a surface's workspace has no file at the given path.
var ErrNoSuchFile = errors.New("no such file in workspace")

// Snapshot is a read-only copy of a workspace.
type Snapshot struct {
	Surface    string                `json:"surface"`
	Files      []types.GeneratedFile `json:"files"`
	Tree       []*types.FileTreeNode `json:"tree"`
	Document   string                `json:"document"`
	Frame      string                `json:"frame"`
	Provider   string                `json:"provider,omitempty"`
	ActiveFile string                `json:"activeFile,omitempty"`
	UpdatedAt  time.Time             `json:"updatedAt"`
}

// Workspace is the transient state of one input surface: the last generated file set,
// its tree and preview, and the code viewer's active file.
type Workspace struct {
	surface string
	sandbox preview.SandboxOptions

	mu        sync.RWMutex
	result    pipeline.Result
	active    string
	updatedAt time.Time

	animator *typing.Animator
}

func newWorkspace(surface string, sandbox preview.SandboxOptions, animator *typing.Animator) *Workspace {
	return &Workspace{
		surface:  surface,
		sandbox:  sandbox,
		result:   pipeline.FromFiles(types.GeneratedText{}, nil, sandbox),
		animator: animator,
	}
}

// Apply stores res. With merge, res.Files are laid over the current files (same path
// replaces, new paths are appended) and the tree and preview are rebuilt. It returns
// what the workspace now holds.
func (w *Workspace) Apply(res pipeline.Result, merge bool) pipeline.Result {
	w.mu.Lock()
	defer w.mu.Unlock()
	if merge {
		res = pipeline.FromFiles(res.Text, mergeFiles(w.result.Files, res.Files), w.sandbox)
	}
	w.result = res
	w.updatedAt = time.Now().UTC()
	if w.active != "" && !hasFile(res.Files, w.active) {
		w.active = ""
	}
	return res
}

// Snapshot copies the current state.
func (w *Workspace) Snapshot() Snapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return Snapshot{
		Surface:    w.surface,
		Files:      append([]types.GeneratedFile{}, w.result.Files...),
		Tree:       w.result.Tree,
		Document:   w.result.Document,
		Frame:      w.result.Frame,
		Provider:   w.result.Text.Provider,
		ActiveFile: w.active,
		UpdatedAt:  w.updatedAt,
	}
}

// Files returns a copy of the current file set.
func (w *Workspace) Files() []types.GeneratedFile {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]types.GeneratedFile{}, w.result.Files...)
}

// File returns the file at path.
func (w *Workspace) File(path string) (types.GeneratedFile, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, f := range w.result.Files {
		if f.Path == path {
			return f, true
		}
	}
	return types.GeneratedFile{}, false
}

// Open makes path the active file and starts its typing animation, cancelling the one
// that was running for the previous active file.
func (w *Workspace) Open(path string, onUpdate func(string)) (*typing.Animation, error) {
	f, ok := w.File(path)
	if !ok {
		return nil, ErrNoSuchFile
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.active = path
	return w.animator.Play(path, f.Content, onUpdate), nil
}

// OpenWith is Open with a per-call pace, still cancelling the previous animation.
func (w *Workspace) OpenWith(path string, charsPerTick int, interval time.Duration, onUpdate func(string)) (*typing.Animation, error) {
	f, ok := w.File(path)
	if !ok {
		return nil, ErrNoSuchFile
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.active = path
	return w.animator.PlayWith(path, f.Content, charsPerTick, interval, onUpdate), nil
}

// Store holds the workspace of every surface seen since start. Nothing here is durable.
type Store struct {
	sandbox      preview.SandboxOptions
	charsPerTick int
	interval     time.Duration

	mu         sync.Mutex
	workspaces map[string]*Workspace
}

// NewStore returns an empty Store whose workspaces render with sandbox and animate at
// the given pace.
func NewStore(sandbox preview.SandboxOptions, charsPerTick int, interval time.Duration) *Store {
	return &Store{
		sandbox:      sandbox,
		charsPerTick: charsPerTick,
		interval:     interval,
		workspaces:   map[string]*Workspace{},
	}
}

// Workspace returns the workspace for surface, creating it on first use.
func (s *Store) Workspace(surface string) *Workspace {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workspaces[surface]
	if !ok {
		w = newWorkspace(surface, s.sandbox, typing.NewAnimator(s.charsPerTick, s.interval))
		s.workspaces[surface] = w
	}
	return w
}

// Lookup returns the workspace for surface if one exists.
func (s *Store) Lookup(surface string) (*Workspace, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workspaces[surface]
	return w, ok
}

// Surfaces lists known surfaces, sorted.
func (s *Store) Surfaces() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.workspaces))
	for k := range s.workspaces {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Drop discards a surface's workspace and stops its animation.
func (s *Store) Drop(surface string) {
	s.mu.Lock()
	w, ok := s.workspaces[surface]
	delete(s.workspaces, surface)
	s.mu.Unlock()
	if ok {
		w.animator.Stop()
	}
}

// Close stops every running animation.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.workspaces {
		w.animator.Stop()
	}
}

func mergeFiles(current, incoming []types.GeneratedFile) []types.GeneratedFile {
	out := append([]types.GeneratedFile{}, current...)
	index := make(map[string]int, len(out))
	for i, f := range out {
		index[f.Path] = i
	}
	for _, f := range incoming {
		if i, ok := index[f.Path]; ok {
			out[i] = f
			continue
		}
		index[f.Path] = len(out)
		out = append(out, f)
	}
	return out
}

func hasFile(files []types.GeneratedFile, path string) bool {
	for _, f := range files {
		if f.Path == path {
			return true
		}
	}
	return false
}
