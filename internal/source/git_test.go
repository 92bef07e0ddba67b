package source

import (
	"context"
	"dogi/internal/apperrors"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

func runGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=dogi", "GIT_AUTHOR_EMAIL=dogi@example.com",
		"GIT_COMMITTER_NAME=dogi", "GIT_COMMITTER_EMAIL=dogi@example.com",
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git %s: %v\n%s", strings.Join(args, " "), err, out)
	}
}

func newGit(t *testing.T) *Git {
	t.Helper()
	g, err := NewGit()
	if err != nil {
		t.Skip("git not available")
	}
	return g
}

func TestGit_Fetch(t *testing.T) {
	t.Parallel()
	g := newGit(t)

	origin := t.TempDir()
	runGit(t, origin, "init", "--quiet")
	if err := os.WriteFile(filepath.Join(origin, "Dockerfile"), []byte("FROM alpine\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	runGit(t, origin, "add", "Dockerfile")
	runGit(t, origin, "commit", "--quiet", "-m", "initial")

	dest := filepath.Join(t.TempDir(), "repo")
	if err := g.Fetch(context.Background(), origin, dest); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dest, "Dockerfile"))
	if err != nil {
		t.Fatalf("cloned Dockerfile missing: %v", err)
	}
	if string(data) != "FROM alpine\n" {
		t.Errorf("Dockerfile = %q", data)
	}
}

func TestGit_FetchFailure(t *testing.T) {
	t.Parallel()
	g := newGit(t)

	dest := filepath.Join(t.TempDir(), "repo")
	err := g.Fetch(context.Background(), filepath.Join(t.TempDir(), "does-not-exist"), dest)
	if !errors.Is(err, apperrors.ErrInternal) {
		t.Fatalf("Fetch() error = %v, want internal error", err)
	}

	var appErr *apperrors.Error
	if !errors.As(err, &appErr) || appErr.Op != "git.clone" {
		t.Errorf("Fetch() error op = %+v, want git.clone", appErr)
	}
}

func TestGit_FetchRejectsOptionLikeReference(t *testing.T) {
	t.Parallel()
	g := newGit(t)

	err := g.Fetch(context.Background(), "--upload-pack=touch /tmp/x", t.TempDir())
	if !errors.Is(err, apperrors.ErrValidation) {
		t.Errorf("Fetch() error = %v, want validation error", err)
	}
}

func TestGit_Ping(t *testing.T) {
	t.Parallel()
	g := newGit(t)

	if err := g.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}

	missing := &Git{binary: filepath.Join(t.TempDir(), "git")}
	if err := missing.Ping(context.Background()); err == nil {
		t.Error("Ping() with missing binary succeeded")
	}
}
