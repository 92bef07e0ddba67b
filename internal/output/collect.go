package output

import (
	"context"
	"dogi/internal/fingerprint"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sort"
)

// Collect writes the artifact id of every fingerprint directory to w, each
// followed by a newline. Directories lacking the artifact are skipped.
func (m *Manager) Collect(ctx context.Context, w io.Writer, id string) (int, error) {
	if err := ValidateID(id); err != nil {
		return 0, err
	}

	entries, err := os.ReadDir(m.internalDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read instances directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() && fingerprint.Valid(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	count := 0
	for _, fp := range names {
		if err := ctx.Err(); err != nil {
			return count, err
		}

		ok, err := m.copyArtifact(w, fp, id)
		if err != nil {
			return count, err
		}
		if !ok {
			continue
		}
		if _, err := io.WriteString(w, "\n"); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func (m *Manager) copyArtifact(w io.Writer, fp, id string) (bool, error) {
	f, err := os.Open(m.internalPath(fp, id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to open artifact: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return false, fmt.Errorf("failed to copy artifact: %w", err)
	}
	return true, nil
}
