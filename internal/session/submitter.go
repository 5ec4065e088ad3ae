// Package session owns the per-surface state of the builder: the one-at-a-time gate,
// the prompt submitter and the transient workspace each surface generates into.
package session

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"blossom/internal/generation"
	"blossom/internal/logging"
	"blossom/internal/pipeline"
	"blossom/internal/types"
)

// DefaultSurface names the surface used when a caller does not give one.
const DefaultSurface = "default"

// ErrEmptyPrompt is returned before any network call when the prompt is blank.
var ErrEmptyPrompt = generation.ErrEmptyPrompt

// Submission is one press of the submit button.
type Submission struct {
	SurfaceID   string                  `json:"surface"`
	Prompt      string                  `json:"prompt"`
	Attachments []types.GeneratedFile   `json:"attachments,omitempty"`
	Options     types.GenerationOptions `json:"options"`
	// Refine sends the surface's current files along and merges the answer into them
	// instead of replacing them.
	Refine bool `json:"refine,omitempty"`
}

// Submitter validates submissions, enforces the gate and records results in the Store.
type Submitter struct {
	runner *pipeline.Runner
	store  *Store
	gate   *Gate
	logger *zap.Logger
}

func NewSubmitter(runner *pipeline.Runner, store *Store, logger *zap.Logger) *Submitter {
	return &Submitter{runner: runner, store: store, gate: &Gate{}, logger: logging.OrNop(logger)}
}

// Gate exposes the submitter's busy flags.
func (s *Submitter) Gate() *Gate { return s.gate }

// Store exposes the workspaces the submitter writes to.
func (s *Submitter) Store() *Store { return s.store }

// Submit runs sub in one shot.
func (s *Submitter) Submit(ctx context.Context, sub Submission) (pipeline.Result, error) {
	return s.submit(ctx, sub, func(ctx context.Context, req types.GenerationRequest) (pipeline.Result, error) {
		return s.runner.Run(ctx, req)
	})
}

// SubmitStream runs sub over the streaming endpoint, handing each token to onToken.
func (s *Submitter) SubmitStream(ctx context.Context, sub Submission, onToken func(types.StreamToken)) (pipeline.Result, error) {
	return s.submit(ctx, sub, func(ctx context.Context, req types.GenerationRequest) (pipeline.Result, error) {
		return s.runner.RunStream(ctx, req, onToken)
	})
}

type runFunc func(ctx context.Context, req types.GenerationRequest) (pipeline.Result, error)

func (s *Submitter) submit(ctx context.Context, sub Submission, run runFunc) (pipeline.Result, error) {
	if strings.TrimSpace(sub.Prompt) == "" {
		return pipeline.Result{}, ErrEmptyPrompt
	}
	surface := NormalizeSurface(sub.SurfaceID)

	release, err := s.gate.Acquire(surface)
	if err != nil {
		s.logger.Info("submission rejected", zap.String("surface", surface), zap.Error(err))
		return pipeline.Result{}, err
	}
	defer release()

	ws := s.store.Workspace(surface)
	req := types.GenerationRequest{
		Prompt:        sub.Prompt,
		ExistingFiles: existingFiles(ws, sub),
		Options:       sub.Options,
	}

	res, err := run(ctx, req)
	if err != nil {
		return pipeline.Result{}, err
	}
	return ws.Apply(res, sub.Refine), nil
}

func existingFiles(ws *Workspace, sub Submission) []types.GeneratedFile {
	var files []types.GeneratedFile
	if sub.Refine {
		files = ws.Files()
	}
	if len(sub.Attachments) == 0 {
		return files
	}
	return mergeFiles(files, sub.Attachments)
}

// NormalizeSurface maps a blank surface id to DefaultSurface.
func NormalizeSurface(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return DefaultSurface
	}
	return id
}
