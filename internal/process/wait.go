package process

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"
)

// Sentinel errors returned by WaitReady. Callers match them with errors.Is.
var (
	// ErrIntervalNotPositive indicates a non-positive initial or maximum interval.
	ErrIntervalNotPositive = errors.New("interval must be positive")

	// ErrTimeoutNotPositive indicates a non-positive timeout.
	ErrTimeoutNotPositive = errors.New("timeout must be positive")

	// ErrProcessExited indicates the process exited before becoming ready.
	ErrProcessExited = errors.New("process exited before becoming ready")
)

// backoffFactor doubles the delay between readiness attempts.
const backoffFactor = 2.0

// backoffJitter spreads concurrent waiters apart.
const backoffJitter = 0.1

// ReadinessCheck reports whether the process is ready. attempt is 1-based.
// A non-nil error aborts polling.
type ReadinessCheck func(ctx context.Context, attempt int) (ready bool, err error)

// WaitReadyConfig configures WaitReady.
type WaitReadyConfig struct {
	InitialInterval time.Duration   // delay after the first failed attempt
	MaxInterval     time.Duration   // cap for the exponential delay
	Timeout         time.Duration   // overall bound for the whole wait
	Name            string          // for logging and errors
	Endpoint        string          // for logging and errors
	Logger          *slog.Logger    // defaults to slog.Default()
	ProcessExited   <-chan struct{} // if non-nil, abort as soon as it is closed
}

// WaitReady calls check until it reports ready, returns an error, the
// process exits, or Timeout elapses. Delays grow exponentially from
// InitialInterval up to MaxInterval. On timeout the returned error wraps
// context.DeadlineExceeded; on early exit it wraps ErrProcessExited.
func WaitReady(ctx context.Context, cfg WaitReadyConfig, check ReadinessCheck) error {
	if cfg.Name == "" {
		return errors.New("wait ready: name must not be empty")
	}
	if cfg.InitialInterval <= 0 || cfg.MaxInterval <= 0 {
		return fmt.Errorf("wait for %s: %w", cfg.Name, ErrIntervalNotPositive)
	}
	if cfg.Timeout <= 0 {
		return fmt.Errorf("wait for %s: %w", cfg.Name, ErrTimeoutNotPositive)
	}

	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	// Once Duration reaches Cap, Step keeps returning Cap (with jitter).
	backoff := wait.Backoff{
		Duration: cfg.InitialInterval,
		Factor:   backoffFactor,
		Jitter:   backoffJitter,
		Steps:    math.MaxInt32,
		Cap:      cfg.MaxInterval,
	}

	for attempt := 1; ; attempt++ {
		if exited(cfg.ProcessExited) {
			return fmt.Errorf("process %s: %w", cfg.Name, ErrProcessExited)
		}

		ready, err := check(ctx, attempt)
		if err != nil {
			return fmt.Errorf("wait for %s readiness at %s: %w", cfg.Name, cfg.Endpoint, err)
		}
		if ready {
			log.Debug("wait succeeded", "name", cfg.Name, "endpoint", cfg.Endpoint, "attempt", attempt)
			return nil
		}

		delay := time.NewTimer(backoff.Step())
		select {
		case <-ctx.Done():
			delay.Stop()
			return fmt.Errorf("wait for %s readiness at %s after %d attempts: %w",
				cfg.Name, cfg.Endpoint, attempt, ctx.Err())
		case <-cfg.ProcessExited:
			delay.Stop()
			return fmt.Errorf("process %s: %w", cfg.Name, ErrProcessExited)
		case <-delay.C:
		}
	}
}

func exited(ch <-chan struct{}) bool {
	if ch == nil {
		return false
	}
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
