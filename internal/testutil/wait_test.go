package testutil

import (
	"testing"
	"time"
)

func TestWaitFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		succeedAt int // 0 never succeeds
		want      bool
	}{
		{"immediate", 1, true},
		{"eventual", 3, true},
		{"timeout", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			calls := 0
			got := WaitFor(t, func() bool {
				calls++
				return tt.succeedAt > 0 && calls >= tt.succeedAt
			}, WithTimeout(100*time.Millisecond), WithInterval(time.Millisecond))

			if got != tt.want {
				t.Errorf("WaitFor() = %v, want %v", got, tt.want)
			}
			if tt.want && calls != tt.succeedAt {
				t.Errorf("condition called %d times, want %d", calls, tt.succeedAt)
			}
		})
	}
}

func TestMustWaitFor_Success(t *testing.T) {
	t.Parallel()
	MustWaitFor(t, func() bool { return true }, WithTimeout(time.Second))
}

func TestOptions(t *testing.T) {
	t.Parallel()
	opts := defaultOptions()
	if opts.Timeout != 10*time.Second || opts.Interval != 10*time.Millisecond {
		t.Errorf("defaultOptions() = %+v", opts)
	}

	WithTimeout(5 * time.Second)(&opts)
	WithInterval(50 * time.Millisecond)(&opts)
	if opts.Timeout != 5*time.Second || opts.Interval != 50*time.Millisecond {
		t.Errorf("options = %+v", opts)
	}
}

func TestMustReceive(t *testing.T) {
	t.Parallel()
	ch := make(chan int, 1)

	go func() {
		time.Sleep(10 * time.Millisecond)
		ch <- 42
	}()

	if got := MustReceive(t, ch, time.Second); got != 42 {
		t.Errorf("expected 42, got %d", got)
	}
}

func TestMustNotReceive(t *testing.T) {
	t.Parallel()
	MustNotReceive(t, make(chan struct{}), 10*time.Millisecond)
}
