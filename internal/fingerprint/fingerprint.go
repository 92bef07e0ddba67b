// Package fingerprint derives the stable identity of a job from its
// repository reference and optional caller-supplied id.
//
// A fingerprint doubles as the registry key, the image tag, the container
// name and the on-disk artifact directory name, so it is restricted to
// lowercase hex, underscores and the fixed "dogi_" prefix.
package fingerprint

import (
	"crypto/sha1"
	"encoding/hex"
	"regexp"
	"strings"
)

// Prefix starts every fingerprint.
const Prefix = "dogi_"

var pattern = regexp.MustCompile(`^dogi_[0-9a-f]{40}(_[0-9a-f]{40})?$`)

// Of returns the fingerprint for reference and callerID.
// An empty callerID yields the reference-only fingerprint.
func Of(reference, callerID string) string {
	fp := Prefix + hash(Normalize(reference))
	if callerID != "" {
		fp += "_" + hash(callerID)
	}
	return fp
}

// Normalize trims surrounding whitespace and trailing slashes so that
// trivially different spellings of one repository share a fingerprint.
func Normalize(reference string) string {
	return strings.TrimRight(strings.TrimSpace(reference), "/")
}

// Valid reports whether s has the shape produced by Of. Used to guard
// fingerprints arriving from outside before they become path segments.
func Valid(s string) bool {
	return pattern.MatchString(s)
}

func hash(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
