package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// File is the optional YAML configuration file. Scalar settings are kept
// untyped so a missing key falls through to the built-in default.
type File struct {
	Settings        map[string]string `yaml:"settings"`
	CallbackHeaders map[string]string `yaml:"callbackHeaders"`
}

// LoadFile parses the YAML file at path. An empty path yields an empty File.
func LoadFile(path string) (*File, error) {
	if path == "" {
		return &File{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return &f, nil
}

func (f *File) get(key, defaultValue string) string {
	if v, ok := f.Settings[key]; ok && v != "" {
		return v
	}
	return defaultValue
}

func (f *File) getBool(key string, defaultValue bool) bool {
	switch f.Settings[key] {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	}
	return defaultValue
}

func (f *File) getDuration(key string, defaultValue time.Duration) time.Duration {
	if v, ok := f.Settings[key]; ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}
