package fingerprint

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
	"testing"
)

func sha1Hex(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func TestOf(t *testing.T) {
	t.Parallel()
	ref := "git@github.com:ovenator/dogi.git"

	tests := []struct {
		name     string
		ref      string
		callerID string
		want     string
	}{
		{"reference only", ref, "", "dogi_" + sha1Hex(ref)},
		{"with caller id", ref, "1", "dogi_" + sha1Hex(ref) + "_" + sha1Hex("1")},
		{"normalized whitespace", "  " + ref + "\n", "", "dogi_" + sha1Hex(ref)},
		{"normalized trailing slash", "https://github.com/ovenator/dogi/", "", "dogi_" + sha1Hex("https://github.com/ovenator/dogi")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Of(tt.ref, tt.callerID); got != tt.want {
				t.Errorf("Of(%q, %q) = %q, want %q", tt.ref, tt.callerID, got, tt.want)
			}
		})
	}
}

func TestOf_Deterministic(t *testing.T) {
	t.Parallel()
	a := Of("git@github.com:ovenator/estates.git", "job-7")
	b := Of("git@github.com:ovenator/estates.git", "job-7")
	if a != b {
		t.Errorf("expected identical fingerprints, got %q and %q", a, b)
	}
	if a == Of("git@github.com:ovenator/estates.git", "job-8") {
		t.Error("expected different caller ids to produce different fingerprints")
	}
	if a == Of("git@github.com:ovenator/estates.git", "") {
		t.Error("expected caller id to change the fingerprint")
	}
}

func TestValid(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want bool
	}{
		{Of("repo", ""), true},
		{Of("repo", "id"), true},
		{"dogi_" + strings.Repeat("a", 39), false},
		{"dogi_../../etc", false},
		{"other_" + strings.Repeat("a", 40), false},
		{"", false},
		{strings.ToUpper(Of("repo", "")), false},
	}
	for _, tt := range tests {
		if got := Valid(tt.in); got != tt.want {
			t.Errorf("Valid(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
