// Package observability provides metrics, tracing, and logging utilities.
package observability

import (
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Attribute keys
const (
	attrMethod  = "method"
	attrPath    = "path"
	attrStatus  = "status"
	attrAction  = "action"
	attrPhase   = "phase"
	attrSuccess = "success"
)

func methodAttr(method string) attribute.KeyValue {
	return attribute.String(attrMethod, method)
}

func pathAttr(path string) attribute.KeyValue {
	// Normalize paths with repository references and ids to reduce cardinality
	// /ssh/git@github.com:org/repo.git -> /{scheme}/*
	normalized := normalizePath(path)
	return attribute.String(attrPath, normalized)
}

func statusAttr(code int) attribute.KeyValue {
	// Group status codes to reduce cardinality
	// 200-299 -> 2xx, 400-499 -> 4xx, 500-599 -> 5xx, no response -> none
	if code <= 0 {
		return attribute.String(attrStatus, "none")
	}
	group := fmt.Sprintf("%dxx", code/100)
	return attribute.String(attrStatus, group)
}

func actionAttr(action string) attribute.KeyValue {
	return attribute.String(attrAction, action)
}

func phaseAttr(phase string) attribute.KeyValue {
	return attribute.String(attrPhase, phase)
}

func successAttr(success bool) attribute.KeyValue {
	return attribute.Bool(attrSuccess, success)
}

// normalizePath replaces dynamic path segments with placeholders. It is the
// fallback for requests that did not match a route pattern.
func normalizePath(path string) string {
	for _, scheme := range []string{"ssh", "https", "http", "git"} {
		if strings.HasPrefix(path, "/"+scheme+"/") {
			return "/{scheme}/*"
		}
	}

	switch {
	case strings.HasPrefix(path, "/output/"):
		return "/output/{fingerprint}/{artifactId}"
	case strings.HasPrefix(path, "/collect/"):
		return "/collect/{artifactId}"
	}
	return path
}

// WithMethod returns a metric option with the method attribute.
func WithMethod(method string) metric.MeasurementOption {
	return metric.WithAttributes(methodAttr(method))
}

// WithPath returns a metric option with the path attribute.
func WithPath(path string) metric.MeasurementOption {
	return metric.WithAttributes(pathAttr(path))
}

// WithStatus returns a metric option with the status attribute.
func WithStatus(code int) metric.MeasurementOption {
	return metric.WithAttributes(statusAttr(code))
}

// WithPhase returns a metric option with the phase attribute.
func WithPhase(phase string) metric.MeasurementOption {
	return metric.WithAttributes(phaseAttr(phase))
}
