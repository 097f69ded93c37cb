package process

import (
	"context"
	"errors"
	"testing"
	"time"
)

func testWaitConfig() WaitReadyConfig {
	return WaitReadyConfig{
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Timeout:         5 * time.Second,
		Name:            "redis-server",
		Endpoint:        "/tmp/redis.sock",
	}
}

func TestWaitReady_InvalidConfig(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		mutate func(*WaitReadyConfig)
		want   error
	}{
		"zero initial interval": {
			mutate: func(c *WaitReadyConfig) { c.InitialInterval = 0 },
			want:   ErrIntervalNotPositive,
		},
		"negative max interval": {
			mutate: func(c *WaitReadyConfig) { c.MaxInterval = -time.Second },
			want:   ErrIntervalNotPositive,
		},
		"zero timeout": {
			mutate: func(c *WaitReadyConfig) { c.Timeout = 0 },
			want:   ErrTimeoutNotPositive,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			cfg := testWaitConfig()
			tc.mutate(&cfg)
			err := WaitReady(context.Background(), cfg, func(context.Context, int) (bool, error) {
				t.Error("check should not be called")
				return false, nil
			})
			if !errors.Is(err, tc.want) {
				t.Errorf("WaitReady() error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestWaitReady_SucceedsAfterAttempts(t *testing.T) {
	t.Parallel()

	var calls int
	err := WaitReady(context.Background(), testWaitConfig(), func(_ context.Context, attempt int) (bool, error) {
		calls++
		if attempt != calls {
			t.Errorf("attempt = %d, want %d", attempt, calls)
		}
		return attempt == 4, nil
	})
	if err != nil {
		t.Fatalf("WaitReady() error: %v", err)
	}
	if calls != 4 {
		t.Errorf("calls = %d, want 4", calls)
	}
}

func TestWaitReady_Timeout(t *testing.T) {
	t.Parallel()

	cfg := testWaitConfig()
	cfg.Timeout = 100 * time.Millisecond
	cfg.MaxInterval = 20 * time.Millisecond

	var calls int
	start := time.Now()
	err := WaitReady(context.Background(), cfg, func(context.Context, int) (bool, error) {
		calls++
		return false, nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("WaitReady() error = %v, want deadline exceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("timeout took %v", elapsed)
	}
	// The capped backoff keeps polling until the deadline instead of giving up.
	if calls < 3 {
		t.Errorf("calls = %d, want several attempts before timeout", calls)
	}
}

func TestWaitReady_CheckError(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	err := WaitReady(context.Background(), testWaitConfig(), func(context.Context, int) (bool, error) {
		return false, boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("WaitReady() error = %v, want %v", err, boom)
	}
}

func TestWaitReady_ProcessExited(t *testing.T) {
	t.Parallel()

	t.Run("already exited", func(t *testing.T) {
		t.Parallel()
		exited := make(chan struct{})
		close(exited)
		cfg := testWaitConfig()
		cfg.ProcessExited = exited

		err := WaitReady(context.Background(), cfg, func(context.Context, int) (bool, error) {
			t.Error("check should not be called after exit")
			return false, nil
		})
		if !errors.Is(err, ErrProcessExited) {
			t.Errorf("WaitReady() error = %v, want %v", err, ErrProcessExited)
		}
	})

	t.Run("exits while waiting", func(t *testing.T) {
		t.Parallel()
		exited := make(chan struct{})
		cfg := testWaitConfig()
		cfg.MaxInterval = time.Second
		cfg.InitialInterval = time.Second
		cfg.ProcessExited = exited

		start := time.Now()
		err := WaitReady(context.Background(), cfg, func(context.Context, int) (bool, error) {
			close(exited)
			return false, nil
		})
		if !errors.Is(err, ErrProcessExited) {
			t.Errorf("WaitReady() error = %v, want %v", err, ErrProcessExited)
		}
		if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
			t.Errorf("exit was not noticed promptly: %v", elapsed)
		}
	})
}
