package output

import (
	"dogi/internal/apperrors"
	"fmt"
	"path"
	"regexp"
	"strings"
)

// LogID is the artifact every job has: build and run output.
const LogID = "log"

// FilePrefix prefixes the ids of container-written file artifacts.
const FilePrefix = "file_"

var artifactIDPattern = regexp.MustCompile(`^(log|file_[A-Za-z0-9_-]{1,64})$`)

// ValidateID checks an artifact id.
func ValidateID(id string) error {
	if !artifactIDPattern.MatchString(id) {
		return apperrors.Validation("output", fmt.Sprintf("invalid artifact id %q: must be %q or %q followed by letters, digits, '_' or '-'", id, LogID, FilePrefix))
	}
	return nil
}

// ValidateFileOutputs checks a file-output mapping of artifact id to
// container path.
func ValidateFileOutputs(files map[string]string) error {
	for id, containerPath := range files {
		if id == LogID || !strings.HasPrefix(id, FilePrefix) {
			return apperrors.Validation(id, fmt.Sprintf("file output %q must start with %q", id, FilePrefix))
		}
		if err := ValidateID(id); err != nil {
			return apperrors.Validation(id, fmt.Sprintf("invalid file output id %q", id))
		}
		if containerPath == "" {
			return apperrors.Validation(id, fmt.Sprintf("%s: container path is required", id))
		}
		if err := validateContainerPath(containerPath); err != nil {
			return apperrors.Validation(id, fmt.Sprintf("%s: invalid container path: %v", id, err))
		}
	}
	return nil
}

func validateContainerPath(p string) error {
	if !path.IsAbs(p) {
		return fmt.Errorf("path must be absolute")
	}

	for _, part := range strings.Split(p, "/") {
		if part == ".." {
			return fmt.Errorf("path traversal not allowed")
		}
	}

	if path.Clean(p) == "/" {
		return fmt.Errorf("path must name a file")
	}

	return nil
}
