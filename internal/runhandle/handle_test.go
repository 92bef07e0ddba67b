package runhandle

import (
	"bytes"
	"context"
	"dogi/internal/container"
	"dogi/internal/container/containertest"
	"dogi/internal/testutil"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestHandle_RunsToCompletion(t *testing.T) {
	t.Parallel()
	rt := containertest.New()
	rt.Output = func(spec container.Spec) string { return "hello from " + spec.Name + "\n" }

	var out syncBuffer
	h := Start(context.Background(), rt, container.Spec{Name: "dogi_a", Image: "dogi_a"}, &out)

	code, err := h.Wait(waitCtx(t))
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if code != 0 {
		t.Errorf("exit code = %d, want 0", code)
	}
	if got := out.String(); got != "hello from dogi_a\n" {
		t.Errorf("output = %q", got)
	}
	if rt.Removed("dogi_a") != 1 {
		t.Errorf("Removed() = %d, want 1", rt.Removed("dogi_a"))
	}
	if rt.Live() != 0 {
		t.Errorf("Live() = %d, want 0", rt.Live())
	}
}

func TestHandle_NonZeroExit(t *testing.T) {
	t.Parallel()
	rt := containertest.New()
	rt.ExitCode = func(container.Spec) int { return 3 }

	h := Start(context.Background(), rt, container.Spec{Name: "dogi_b"}, &syncBuffer{})

	code, err := h.Wait(waitCtx(t))
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if code != 3 {
		t.Errorf("exit code = %d, want 3", code)
	}
}

func TestHandle_RemovesStaleContainer(t *testing.T) {
	t.Parallel()
	rt := containertest.New()
	ctx := waitCtx(t)

	if _, err := rt.Create(ctx, container.Spec{Name: "dogi_c"}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	h := Start(context.Background(), rt, container.Spec{Name: "dogi_c"}, &syncBuffer{})
	if _, err := h.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	if got := len(rt.Created()); got != 2 {
		t.Errorf("Created() = %d, want 2", got)
	}
	if got := rt.Removed("dogi_c"); got != 2 {
		t.Errorf("Removed() = %d, want 2 (stale + own)", got)
	}
}

func TestHandle_AbortRunning(t *testing.T) {
	t.Parallel()
	rt := containertest.New()
	rt.Hold()
	ctx := waitCtx(t)

	h := Start(context.Background(), rt, container.Spec{Name: "dogi_d"}, &syncBuffer{})
	if _, err := h.Created(ctx); err != nil {
		t.Fatalf("Created() error = %v", err)
	}
	testutil.MustWaitFor(t, func() bool { return rt.Running("dogi_d") },
		testutil.WithTimeout(5*time.Second), testutil.WithInterval(5*time.Millisecond))

	if err := h.Abort(ctx); err != nil {
		t.Fatalf("Abort() error = %v", err)
	}

	code, err := h.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if code != 137 {
		t.Errorf("exit code = %d, want 137", code)
	}
	if got := rt.Removed("dogi_d"); got != 1 {
		t.Errorf("Removed() = %d, want 1", got)
	}
}

func TestHandle_AbortIsIdempotent(t *testing.T) {
	t.Parallel()
	rt := containertest.New()
	rt.Hold()
	ctx := waitCtx(t)

	h := Start(context.Background(), rt, container.Spec{Name: "dogi_e"}, &syncBuffer{})

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- h.Abort(ctx)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("Abort() error = %v", err)
		}
	}

	select {
	case <-h.Done():
	case <-ctx.Done():
		t.Fatal("handle did not finish after abort")
	}
	if got := rt.Removed("dogi_e"); got != 1 {
		t.Errorf("Removed() = %d, want 1", got)
	}
}

func TestHandle_AbortRetriesFailedRemoval(t *testing.T) {
	t.Parallel()
	rt := containertest.New()
	rt.Hold()
	hiccup := errors.New("daemon hiccup")
	var failures atomic.Int64
	rt.RemoveErr = func(string) error {
		if failures.Add(1) == 1 {
			return hiccup
		}
		return nil
	}
	ctx := waitCtx(t)

	h := Start(context.Background(), rt, container.Spec{Name: "dogi_r"}, &syncBuffer{})
	testutil.MustWaitFor(t, func() bool { return rt.Running("dogi_r") },
		testutil.WithTimeout(5*time.Second), testutil.WithInterval(5*time.Millisecond))

	if err := h.Abort(ctx); !errors.Is(err, hiccup) {
		t.Fatalf("first Abort() error = %v, want %v", err, hiccup)
	}
	if !rt.Running("dogi_r") {
		t.Fatal("container stopped although removal failed")
	}

	if err := h.Abort(ctx); err != nil {
		t.Fatalf("second Abort() error = %v", err)
	}
	if code, err := h.Wait(ctx); err != nil || code != 137 {
		t.Errorf("Wait() = %d, %v, want 137", code, err)
	}
	if got := rt.Removed("dogi_r"); got != 1 {
		t.Errorf("Removed() = %d, want 1", got)
	}
}

func TestHandle_AbortAfterExit(t *testing.T) {
	t.Parallel()
	rt := containertest.New()
	ctx := waitCtx(t)

	h := Start(context.Background(), rt, container.Spec{Name: "dogi_f"}, &syncBuffer{})
	if _, err := h.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	if err := h.Abort(ctx); err != nil {
		t.Errorf("Abort() after exit error = %v, want nil", err)
	}
}
