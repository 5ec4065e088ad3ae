// Package pipeline runs one prompt through generation, extraction, tree building and
// preview rendering.
package pipeline

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"blossom/internal/extract"
	"blossom/internal/filetree"
	"blossom/internal/logging"
	"blossom/internal/preview"
	"blossom/internal/types"
)

// Generator produces raw text for a request. *generation.Client satisfies it.
type Generator interface {
	Generate(ctx context.Context, req types.GenerationRequest) (types.GeneratedText, error)
	Stream(ctx context.Context, req types.GenerationRequest, onToken func(types.StreamToken)) (types.GeneratedText, error)
}

// Result is everything one run produces. Files may be empty; that is a valid outcome.
type Result struct {
	Text     types.GeneratedText   `json:"text"`
	Files    []types.GeneratedFile `json:"files"`
	Tree     []*types.FileTreeNode `json:"tree"`
	Document string                `json:"document"`
	Frame    string                `json:"frame"`
}

// Runner wires a Generator to the downstream stages.
type Runner struct {
	Generator Generator
	Preview   preview.SandboxOptions
	Logger    *zap.Logger
}

// New returns a Runner with the default sandbox.
func New(gen Generator, logger *zap.Logger) *Runner {
	return &Runner{Generator: gen, Preview: preview.DefaultSandbox(), Logger: logger}
}

// Run generates in one shot. Generation errors abort the run; extraction and rendering
// cannot fail.
func (r *Runner) Run(ctx context.Context, req types.GenerationRequest) (Result, error) {
	if r.Generator == nil {
		return Result{}, errors.New("pipeline has no generator")
	}
	text, err := r.Generator.Generate(ctx, req)
	if err != nil {
		r.logger().Warn("generation failed", zap.Error(err))
		return Result{}, err
	}
	return r.finish(text), nil
}

// RunStream is Run over the streaming endpoint; onToken sees every token in order
// before the result is assembled.
func (r *Runner) RunStream(ctx context.Context, req types.GenerationRequest, onToken func(types.StreamToken)) (Result, error) {
	if r.Generator == nil {
		return Result{}, errors.New("pipeline has no generator")
	}
	text, err := r.Generator.Stream(ctx, req, onToken)
	if err != nil {
		r.logger().Warn("generation stream failed", zap.Error(err))
		return Result{}, err
	}
	return r.finish(text), nil
}

// Assemble runs the stages after generation on text already in hand.
func (r *Runner) Assemble(text types.GeneratedText) Result {
	return FromText(text, r.Preview)
}

func (r *Runner) finish(text types.GeneratedText) Result {
	res := r.Assemble(text)
	r.logger().Info("pipeline run complete",
		zap.String("provider", text.Provider),
		zap.Int("chars", len(text.Text)),
		zap.Int("files", len(res.Files)))
	return res
}

func (r *Runner) logger() *zap.Logger {
	return logging.OrNop(r.Logger)
}

// FromText extracts files from text and renders them.
func FromText(text types.GeneratedText, sandbox preview.SandboxOptions) Result {
	return FromFiles(text, extract.Extract(text.Text), sandbox)
}

// FromFiles renders an already known file set.
func FromFiles(text types.GeneratedText, files []types.GeneratedFile, sandbox preview.SandboxOptions) Result {
	if files == nil {
		files = []types.GeneratedFile{}
	}
	doc := preview.Render(files)
	return Result{
		Text:     text,
		Files:    files,
		Tree:     filetree.Build(files),
		Document: doc,
		Frame:    preview.Frame(doc, sandbox),
	}
}
