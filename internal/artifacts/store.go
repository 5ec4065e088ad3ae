// Package artifacts keeps the generated file set of a saved project.
package artifacts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"blossom/internal/types"
)

var (
	ErrNotFound = errors.New("artifact not found")
	ErrInvalid  = errors.New("invalid file set")
)

// Store saves a project's files as one ordered set. Put replaces the whole set.
type Store interface {
	Put(ctx context.Context, projectID string, files []types.GeneratedFile) error
	Get(ctx context.Context, projectID string) ([]types.GeneratedFile, error)
	Delete(ctx context.Context, projectID string) error
}

func validate(projectID string, files []types.GeneratedFile) (string, error) {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return "", fmt.Errorf("%w: project id is required", ErrInvalid)
	}
	seen := make(map[string]struct{}, len(files))
	for _, f := range files {
		p := strings.TrimSpace(f.Path)
		if p == "" {
			return "", fmt.Errorf("%w: file path is required", ErrInvalid)
		}
		if _, dup := seen[p]; dup {
			return "", fmt.Errorf("%w: duplicate file path %q", ErrInvalid, p)
		}
		seen[p] = struct{}{}
	}
	return projectID, nil
}
