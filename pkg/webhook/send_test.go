package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSender_Post(t *testing.T) {
	t.Parallel()

	type captured struct {
		headers http.Header
		body    []byte
	}
	requests := make(chan captured, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		requests <- captured{headers: r.Header.Clone(), body: body}
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	s := NewSender(5 * time.Second)
	resp, err := s.Post(context.Background(), server.URL, map[string]string{"callerId": "abc"}, SendOptions{
		Headers:    map[string]string{"Authorization": "Bearer token"},
		SigningKey: "secret",
	})
	if err != nil {
		t.Fatalf("Post() error = %v", err)
	}

	if resp.StatusCode != http.StatusAccepted || !resp.OK() {
		t.Errorf("StatusCode = %d, OK = %v", resp.StatusCode, resp.OK())
	}
	if string(resp.Body) != `{"ok":true}` {
		t.Errorf("Body = %q", resp.Body)
	}

	req := <-requests
	gotBody, gotHeaders := req.body, req.headers

	var payload map[string]string
	if err := json.Unmarshal(gotBody, &payload); err != nil || payload["callerId"] != "abc" {
		t.Errorf("request body = %q", gotBody)
	}
	if gotHeaders.Get("Content-Type") != "application/json" {
		t.Errorf("Content-Type = %q", gotHeaders.Get("Content-Type"))
	}
	if gotHeaders.Get("Authorization") != "Bearer token" {
		t.Errorf("Authorization = %q", gotHeaders.Get("Authorization"))
	}
	if !Verify(gotBody, "secret", gotHeaders.Get(SignatureHeader)) {
		t.Errorf("signature %q does not verify", gotHeaders.Get(SignatureHeader))
	}
}

func TestSender_PostNon2xxIsNotAnError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(SignatureHeader) != "" {
			t.Error("unexpected signature without signing key")
		}
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer server.Close()

	resp, err := NewSender(5*time.Second).Post(context.Background(), server.URL, struct{}{}, SendOptions{})
	if err != nil {
		t.Fatalf("Post() error = %v", err)
	}
	if resp.OK() {
		t.Error("OK() = true for 502")
	}
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("StatusCode = %d", resp.StatusCode)
	}
}

func TestSender_PostTransportError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	if _, err := NewSender(time.Second).Post(context.Background(), url, struct{}{}, SendOptions{}); err == nil {
		t.Error("Post() to closed server returned nil error")
	}
}

func TestSign(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload string
		key     string
		want    string
	}{
		{
			name:    "empty payload",
			payload: "",
			key:     "key",
			want:    "sha256=5d5d139563c95b5967b9bd9a8c9b233a9dedb45072794cd232dc1b74832607d0",
		},
		{
			name:    "rfc 4231 case 2",
			payload: "what do ya want for nothing?",
			key:     "Jefe",
			want:    "sha256=5bdcc146bf60754e6a042426089575c75a003f089d2739839dec58b964ec3843",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Sign([]byte(tt.payload), tt.key); got != tt.want {
				t.Errorf("Sign() = %q, want %q", got, tt.want)
			}
		})
	}
}
