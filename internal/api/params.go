package api

import (
	"crypto/sha1"
	"crypto/subtle"
	"dogi/internal/apperrors"
	"dogi/internal/job"
	"encoding/hex"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
)

// Schemes are the reference schemes served as /{scheme}/{remainder}.
var Schemes = []string{"ssh", "https", "http", "git"}

// Query parameter prefixes
const (
	envPrefix  = "env"
	filePrefix = "file"
)

// ExtractPrefixed returns the query parameters named <prefix>_<name>, keyed
// by name. The prefix matches case-insensitively.
func ExtractPrefixed(prefix string, query url.Values) map[string]string {
	want := prefix + "_"
	result := make(map[string]string)
	for key, values := range query {
		if len(key) <= len(want) || !strings.EqualFold(key[:len(want)], want) {
			continue
		}
		if len(values) > 0 {
			result[key[len(want):]] = values[0]
		}
	}
	return result
}

// Reference rebuilds the repository reference of a request path. ssh
// references are passed through as written (git@host:org/repo.git).
func Reference(scheme, remainder string) string {
	if scheme == "ssh" {
		return remainder
	}
	return scheme + "://" + remainder
}

// parseLifecycleRequest maps the query of a /{scheme}/* request onto a
// lifecycle request.
func parseLifecycleRequest(r *http.Request, scheme string) (*job.Request, error) {
	remainder := chi.URLParam(r, "*")
	if remainder == "" {
		return nil, apperrors.Validation("reference", "repository reference is required")
	}

	q := r.URL.Query()

	action, err := job.ParseAction(q.Get("action"))
	if err != nil {
		return nil, err
	}

	files := make(map[string]string)
	for name, path := range ExtractPrefixed(filePrefix, q) {
		files[filePrefix+"_"+name] = path
	}

	out := q.Get("output")
	if out == "" {
		out = job.StatusOutput
	}

	return &job.Request{
		Action:       action,
		Reference:    Reference(scheme, remainder),
		CallerID:     q.Get("id"),
		Dockerfile:   q.Get("df"),
		Command:      strings.Fields(q.Get("cmd")),
		ShellCommand: q.Get("bashc"),
		Env:          ExtractPrefixed(envPrefix, q),
		CallbackURL:  q.Get("cb"),
		FileOutputs:  files,
		Output:       out,
	}, nil
}

// SignURL appends a sig parameter to a request URI.
func SignURL(uri, secret string) string {
	sep := "?"
	if strings.Contains(uri, "?") {
		sep = "&"
	}
	return uri + sep + "sig=" + signature(uri, secret)
}

// VerifyURL checks the sig parameter of a request URI. The signature covers
// everything before the parameter, which must come last.
func VerifyURL(uri, secret string) bool {
	param := "?sig="
	if !strings.Contains(uri, param) {
		param = "&sig="
	}

	base, sig, ok := strings.Cut(uri, param)
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(signature(base, secret)), []byte(sig)) == 1
}

func signature(uri, secret string) string {
	sum := sha1.Sum([]byte(secret + ":" + uri))
	return hex.EncodeToString(sum[:])
}
