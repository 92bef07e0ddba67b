package job

import (
	"dogi/internal/apperrors"
	"dogi/internal/output"
	"fmt"
	"net/url"
	"strings"
)

// Validation limits
const (
	maxReferenceLength = 2048
	maxCallerIDLength  = 256
	maxEnvEntries      = 128
	maxEnvKeyLength    = 256
	maxEnvValueLength  = 32 * 1024
	maxFileOutputs     = 32
)

// validate validates a lifecycle request. Does not modify the request.
func (c *Coordinator) validate(req *Request) error {
	switch req.Action {
	case ActionRun, ActionRestart, ActionAbort, ActionPeek:
	default:
		return apperrors.Validation("action", fmt.Sprintf("unknown action %q", req.Action))
	}

	if strings.TrimSpace(req.Reference) == "" {
		return apperrors.Validation("reference", "repository reference is required")
	}
	if len(req.Reference) > maxReferenceLength {
		return apperrors.Validation("reference", fmt.Sprintf("repository reference exceeds maximum length of %d", maxReferenceLength))
	}
	if len(req.CallerID) > maxCallerIDLength {
		return apperrors.Validation("id", fmt.Sprintf("id exceeds maximum length of %d", maxCallerIDLength))
	}

	if req.ShellCommand != "" && len(req.Command) > 0 {
		return apperrors.Validation("cmd", "cmd and bashc are mutually exclusive")
	}

	if len(req.Env) > maxEnvEntries {
		return apperrors.Validation("env", fmt.Sprintf("environment exceeds maximum of %d entries", maxEnvEntries))
	}
	for k, v := range req.Env {
		if k == "" || strings.ContainsAny(k, "=\x00") {
			return apperrors.Validation("env", fmt.Sprintf("invalid environment variable name %q", k))
		}
		if len(k) > maxEnvKeyLength {
			return apperrors.Validation("env", fmt.Sprintf("environment variable name exceeds maximum length of %d", maxEnvKeyLength))
		}
		if len(v) > maxEnvValueLength {
			return apperrors.Validation("env", fmt.Sprintf("environment variable %s exceeds maximum length of %d", k, maxEnvValueLength))
		}
	}

	if len(req.FileOutputs) > maxFileOutputs {
		return apperrors.Validation("file", fmt.Sprintf("file outputs exceed maximum of %d", maxFileOutputs))
	}
	if err := output.ValidateFileOutputs(req.FileOutputs); err != nil {
		return err
	}

	if req.Output != "" && req.Output != StatusOutput {
		if err := output.ValidateID(req.Output); err != nil {
			return err
		}
	}

	if req.CallbackURL != "" {
		if err := validateURL(req.CallbackURL); err != nil {
			return apperrors.Validation("cb", fmt.Sprintf("invalid callback URL: %v", err))
		}
	}

	return nil
}

func validateURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("malformed URL")
	}
	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}
