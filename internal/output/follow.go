package output

import (
	"context"
	"dogi/pkg/backoff"
	"fmt"
	"io"
	"net/http"
	"time"
)

var followBackoff = backoff.Config{Initial: 50 * time.Millisecond, Max: time.Second}

// Follow copies an artifact to w as it grows, until done is closed or ctx
// ends. Whatever was appended before done closed is still copied.
func (m *Manager) Follow(ctx context.Context, fp, id string, w io.Writer, done <-chan struct{}) error {
	f, err := m.Open(fp, id)
	if err != nil {
		return err
	}
	defer f.Close()

	flusher, _ := w.(http.Flusher)
	poll := backoff.NewPoller(followBackoff)
	for {
		n, err := io.Copy(w, f)
		if err != nil {
			return fmt.Errorf("failed to copy artifact: %w", err)
		}
		if n > 0 {
			poll.Reset()
			if flusher != nil {
				flusher.Flush()
			}
		}

		select {
		case <-done:
			if _, err := io.Copy(w, f); err != nil {
				return fmt.Errorf("failed to copy artifact: %w", err)
			}
			return nil
		default:
		}

		if err := poll.Wait(ctx, done); err != nil {
			return err
		}
	}
}
