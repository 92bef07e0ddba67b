package config

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"time"
)

// envOr parses the environment variable key. Unset, empty and unparsable
// values yield the default.
func envOr[T any](key string, defaultValue T, parse func(string) (T, error)) T {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := parse(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// GetEnv returns the environment variable value or a default.
func GetEnv(key, defaultValue string) string {
	return envOr(key, defaultValue, func(s string) (string, error) { return s, nil })
}

// GetBoolEnv returns a boolean environment variable or a default.
// Accepts the forms understood by strconv.ParseBool.
func GetBoolEnv(key string, defaultValue bool) bool {
	return envOr(key, defaultValue, strconv.ParseBool)
}

// GetDurationEnv returns a duration environment variable or a default.
func GetDurationEnv(key string, defaultValue time.Duration) time.Duration {
	return envOr(key, defaultValue, time.ParseDuration)
}

// GetJSONEnv decodes a JSON object of string values (e.g. CB_HEADERS).
func GetJSONEnv(key string, defaultValue map[string]string) map[string]string {
	return envOr(key, defaultValue, func(s string) (map[string]string, error) {
		var out map[string]string
		err := json.Unmarshal([]byte(s), &out)
		return out, err
	})
}

// GetSecretFile reads a secret from a file path.
// Works with Docker secrets (/run/secrets/) and K8s secrets (mounted volumes).
func GetSecretFile(path string) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
