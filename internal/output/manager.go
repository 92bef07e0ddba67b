// Package output allocates and serves job output artifacts.
//
// Each fingerprint owns one directory under the shared instances directory:
//
//	<dir>/<fingerprint>/dogi.out.log      build, run and callback log
//	<dir>/<fingerprint>/dogi.out.file_x   file bound into the container
//	<dir>/<fingerprint>/repo              source checkout (build context)
//
// The orchestrator reads through the internal directory; the container
// runtime binds files from the external directory, which names the same
// location as seen by the docker host.
package output

import (
	"context"
	"dogi/internal/apperrors"
	"dogi/internal/container"
	"dogi/internal/fingerprint"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

const (
	fileNamePrefix = "dogi.out."
	repoDirName    = "repo"
)

// Config holds configuration for the output manager.
type Config struct {
	InternalDir   string // Instances directory as seen by this process
	ExternalDir   string // Same directory as seen by the container runtime host
	AdvertisedURL string // Base URL used to build artifact locators
}

// Manager allocates per-fingerprint output artifacts.
type Manager struct {
	internalDir   string
	externalDir   string
	advertisedURL string
}

// Outputs describes the artifacts of one job generation.
type Outputs struct {
	Files  map[string]string // Artifact id -> internal path
	URLs   map[string]string // Artifact id -> locator
	Mounts []container.Mount // Bind pairs for file artifacts
}

// NewManager creates an output manager.
func NewManager(cfg Config) *Manager {
	externalDir := cfg.ExternalDir
	if externalDir == "" {
		externalDir = cfg.InternalDir
	}
	return &Manager{
		internalDir:   cfg.InternalDir,
		externalDir:   externalDir,
		advertisedURL: strings.TrimSuffix(cfg.AdvertisedURL, "/"),
	}
}

// Dir returns the internal directory owned by a fingerprint.
func (m *Manager) Dir(fp string) string {
	return filepath.Join(m.internalDir, fp)
}

// RepoDir returns where the source checkout of a fingerprint lives.
func (m *Manager) RepoDir(fp string) string {
	return filepath.Join(m.Dir(fp), repoDirName)
}

// Ping checks the instances directory accepts new files.
func (m *Manager) Ping(ctx context.Context) error {
	f, err := os.CreateTemp(m.internalDir, ".dogi-ping-*")
	if err != nil {
		return fmt.Errorf("instances directory not writable: %w", err)
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

// Reset deletes and recreates the directory of a fingerprint.
func (m *Manager) Reset(fp string) error {
	if !fingerprint.Valid(fp) {
		return apperrors.Validation("fingerprint", fmt.Sprintf("invalid fingerprint %q", fp))
	}
	dir := m.Dir(fp)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove %s: %w", dir, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	return nil
}

// Create allocates an empty backing file for the log and for each file
// output (artifact id -> container path) and returns their description.
func (m *Manager) Create(fp string, files map[string]string) (*Outputs, error) {
	if !fingerprint.Valid(fp) {
		return nil, apperrors.Validation("fingerprint", fmt.Sprintf("invalid fingerprint %q", fp))
	}
	if err := ValidateFileOutputs(files); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(m.Dir(fp), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	outs := &Outputs{
		Files: make(map[string]string, len(files)+1),
		URLs:  make(map[string]string, len(files)+1),
	}

	if err := m.allocate(fp, LogID, outs); err != nil {
		return nil, err
	}
	for id, containerPath := range files {
		if err := m.allocate(fp, id, outs); err != nil {
			return nil, err
		}
		outs.Mounts = append(outs.Mounts, container.Mount{
			Host:      m.externalPath(fp, id),
			Container: containerPath,
		})
	}

	return outs, nil
}

func (m *Manager) allocate(fp, id string, outs *Outputs) error {
	p := m.internalPath(fp, id)
	f, err := os.OpenFile(p, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o666)
	if err != nil {
		return fmt.Errorf("failed to create artifact %s: %w", id, err)
	}
	// Container users may differ from ours.
	if err := f.Chmod(0o666); err != nil {
		f.Close()
		return fmt.Errorf("failed to chmod artifact %s: %w", id, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to create artifact %s: %w", id, err)
	}

	outs.Files[id] = p
	outs.URLs[id] = m.Locator(fp, id)
	return nil
}

// Locator returns the URL under which an artifact is served.
func (m *Manager) Locator(fp, id string) string {
	return m.advertisedURL + "/output/" + url.PathEscape(fp) + "/" + url.PathEscape(id)
}

// Path returns the internal path of an artifact.
func (m *Manager) Path(fp, id string) (string, error) {
	if !fingerprint.Valid(fp) {
		return "", apperrors.Validation("fingerprint", fmt.Sprintf("invalid fingerprint %q", fp))
	}
	if err := ValidateID(id); err != nil {
		return "", err
	}
	return m.internalPath(fp, id), nil
}

// Existing reconstructs the outputs left on disk for a fingerprint.
// Mounts are not reconstructed.
func (m *Manager) Existing(fp string) (*Outputs, error) {
	if !fingerprint.Valid(fp) {
		return nil, apperrors.Validation("fingerprint", fmt.Sprintf("invalid fingerprint %q", fp))
	}

	entries, err := os.ReadDir(m.Dir(fp))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperrors.NotFound("job", fp)
		}
		return nil, fmt.Errorf("failed to read output directory: %w", err)
	}

	outs := &Outputs{
		Files: make(map[string]string),
		URLs:  make(map[string]string),
	}
	for _, e := range entries {
		id, ok := strings.CutPrefix(e.Name(), fileNamePrefix)
		if !ok || e.IsDir() || ValidateID(id) != nil {
			continue
		}
		outs.Files[id] = m.internalPath(fp, id)
		outs.URLs[id] = m.Locator(fp, id)
	}
	return outs, nil
}

// Open opens an artifact for reading.
func (m *Manager) Open(fp, id string) (*os.File, error) {
	p, err := m.Path(fp, id)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperrors.NotFound("artifact", id)
		}
		return nil, fmt.Errorf("failed to open artifact: %w", err)
	}
	return f, nil
}

// AppendLog opens the log artifact of a fingerprint for appending.
func (m *Manager) AppendLog(fp string) (*os.File, error) {
	p, err := m.Path(fp, LogID)
	if err != nil {
		return nil, err
	}
	return os.OpenFile(p, os.O_APPEND|os.O_WRONLY, 0)
}

func (m *Manager) internalPath(fp, id string) string {
	return filepath.Join(m.internalDir, fp, fileNamePrefix+id)
}

func (m *Manager) externalPath(fp, id string) string {
	return filepath.Join(m.externalDir, fp, fileNamePrefix+id)
}
