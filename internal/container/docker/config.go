package docker

import (
	"dogi/internal/config"
	"strings"
)

// Config holds configuration for the Docker runtime.
type Config struct {
	ExtraHosts  []string // Extra /etc/hosts entries for job containers (e.g., ["git.internal:host-gateway"])
	NetworkMode string   // Network for job containers (empty = daemon default)
	PullParent  bool     // Always attempt to pull newer base images during builds
}

// LoadConfigFromEnv loads runtime configuration from environment variables.
func LoadConfigFromEnv() Config {
	var extraHosts []string
	if hosts := config.GetEnv("EXTRA_HOSTS", ""); hosts != "" {
		extraHosts = strings.Split(hosts, ",")
	}

	return Config{
		ExtraHosts:  extraHosts,
		NetworkMode: config.GetEnv("DOCKER_NETWORK", ""),
		PullParent:  config.GetBoolEnv("DOCKER_BUILD_PULL", false),
	}
}
