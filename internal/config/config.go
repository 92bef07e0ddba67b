// Package config provides configuration loading from environment variables,
// optionally layered over a YAML file named by CONFIG_FILE.
package config

import (
	"fmt"
	"path/filepath"
	"time"
)

// ServiceConfig holds configuration for the dogi service.
type ServiceConfig struct {
	Port              string
	MetricsPort       string
	InternalSharedDir string // Shared instance directory as seen by this process
	ExternalSharedDir string // Same directory as seen by the docker host
	AdvertisedURL     string // Prefix for artifact locators
	DefaultDockerfile string

	SignaturesSecret  string
	BypassSignatures  bool
	CallbackHeaders   map[string]string
	CallbackKey       string // HMAC key for signing callback bodies (empty = unsigned)
	CallbackTimeout   time.Duration
	ShutdownDrainWait time.Duration // Time to wait for load balancer to drain (0 to skip)
	ShutdownTimeout   time.Duration // Upper bound for aborting active jobs on shutdown
}

// LoadServiceConfig loads service configuration from the optional config file
// and environment variables. Environment variables take precedence.
func LoadServiceConfig() (*ServiceConfig, error) {
	file, err := LoadFile(GetEnv("CONFIG_FILE", ""))
	if err != nil {
		return nil, err
	}

	hostShared := GetEnv("HOST_SHARED_DIR", file.get("hostSharedDir", "/tmp"))

	secret := GetEnv("SIGNATURES_SECRET", file.get("signaturesSecret", ""))
	if secret == "" {
		secret = GetSecretFile(GetEnv("SIGNATURES_SECRET_FILE", ""))
	}

	return &ServiceConfig{
		Port:              GetEnv("PORT", file.get("port", "3001")),
		MetricsPort:       GetEnv("METRICS_PORT", file.get("metricsPort", "9090")),
		InternalSharedDir: GetEnv("SHARED_DIR", file.get("sharedDir", "/tmp/dogi-shared/instances")),
		ExternalSharedDir: filepath.Join(hostShared, "dogi-shared", "instances"),
		AdvertisedURL:     GetEnv("ADVERTISED_URL", file.get("advertisedUrl", "")),
		DefaultDockerfile: GetEnv("DEFAULT_DOCKERFILE", file.get("defaultDockerfile", "Dockerfile")),
		SignaturesSecret:  secret,
		BypassSignatures:  GetBoolEnv("BYPASS_SIGNATURES", file.getBool("bypassSignatures", false)),
		CallbackHeaders:   GetJSONEnv("CB_HEADERS", file.CallbackHeaders),
		CallbackKey:       GetSecretFile(GetEnv("CALLBACK_SIGNING_KEY_FILE", file.get("callbackSigningKeyFile", ""))),
		CallbackTimeout:   GetDurationEnv("CALLBACK_TIMEOUT", file.getDuration("callbackTimeout", 30*time.Second)),
		ShutdownDrainWait: GetDurationEnv("SHUTDOWN_DRAIN_WAIT", file.getDuration("shutdownDrainWait", 5*time.Second)),
		ShutdownTimeout:   GetDurationEnv("SHUTDOWN_TIMEOUT", file.getDuration("shutdownTimeout", 60*time.Second)),
	}, nil
}

// Validate checks settings the service cannot run without.
func (c *ServiceConfig) Validate() error {
	if !c.BypassSignatures && len(c.SignaturesSecret) < 6 {
		return fmt.Errorf("SIGNATURES_SECRET is missing or has less than 6 characters, set BYPASS_SIGNATURES=true to disable signature checks")
	}
	return nil
}
