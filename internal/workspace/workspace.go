// Package workspace writes a generated file set onto disk.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"blossom/internal/logging"
	"blossom/internal/types"
)

// ErrUnsafePath is returned for paths that would land outside the target directory.
var ErrUnsafePath = errors.New("unsafe file path")

// Materialize writes files under root, creating directories as needed, and returns the
// number of files written. Every path is checked before anything is written, so an
// unsafe path leaves the disk untouched.
func Materialize(root string, files []types.GeneratedFile, logger *zap.Logger) (int, error) {
	logger = logging.OrNop(logger)
	targets := make([]string, len(files))
	for i, f := range files {
		target, err := resolve(root, f.Path)
		if err != nil {
			return 0, err
		}
		targets[i] = target
	}

	written := 0
	for i, f := range files {
		if err := os.MkdirAll(filepath.Dir(targets[i]), 0o755); err != nil {
			return written, fmt.Errorf("failed to create directory for %s: %w", f.Path, err)
		}
		if err := os.WriteFile(targets[i], []byte(f.Content), 0o644); err != nil {
			return written, fmt.Errorf("failed to write file %s: %w", f.Path, err)
		}
		logger.Debug("file saved", zap.String("path", targets[i]))
		written++
	}
	logger.Info("workspace materialized", zap.String("root", root), zap.Int("files", written))
	return written, nil
}

func resolve(root, p string) (string, error) {
	clean := strings.ReplaceAll(strings.TrimSpace(p), "\\", "/")
	if clean == "" {
		return "", fmt.Errorf("%w: empty path", ErrUnsafePath)
	}
	if strings.HasPrefix(clean, "/") || filepath.IsAbs(clean) || filepath.VolumeName(clean) != "" {
		return "", fmt.Errorf("%w: %q is absolute", ErrUnsafePath, p)
	}
	rel := filepath.Clean(filepath.FromSlash(clean))
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q escapes the workspace", ErrUnsafePath, p)
	}
	return filepath.Join(root, rel), nil
}
