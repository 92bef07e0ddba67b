// Package source fetches job sources into working directories.
package source

import (
	"bytes"
	"context"
	"dogi/internal/apperrors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Git clones repositories with the git CLI, so ssh references use the
// host's ssh configuration and keys.
type Git struct {
	binary string
}

// NewGit locates the git binary.
func NewGit() (*Git, error) {
	gitPath, err := exec.LookPath("git")
	if err != nil {
		return nil, fmt.Errorf("git not found: %w", err)
	}
	return &Git{binary: gitPath}, nil
}

// Ping checks the git binary still runs.
func (g *Git) Ping(ctx context.Context) error {
	if err := exec.CommandContext(ctx, g.binary, "--version").Run(); err != nil {
		return fmt.Errorf("git unavailable: %w", err)
	}
	return nil
}

// Fetch clones reference into dir, which must not exist or be empty.
func (g *Git) Fetch(ctx context.Context, reference, dir string) error {
	if strings.HasPrefix(reference, "-") {
		return apperrors.Validation("reference", fmt.Sprintf("invalid repository reference %q", reference))
	}

	start := time.Now()
	cmd := exec.CommandContext(ctx, g.binary, "clone", "--quiet", "--", reference, dir)
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")

	var errBuf bytes.Buffer
	cmd.Stderr = &errBuf

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(errBuf.String()); msg != "" {
			err = fmt.Errorf("%w: %s", err, msg)
		}
		return apperrors.Internal("git.clone", err)
	}

	slog.Debug("Cloned repository", "reference", reference, "dir", dir, "duration", time.Since(start))
	return nil
}
