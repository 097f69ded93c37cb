package netutil

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// probeDialTimeout bounds connection setup for probes and shutdown.
const probeDialTimeout = time.Second

// NewClient returns a go-redis client bound to the unix socket at path.
// A poolSize of zero keeps the go-redis default.
func NewClient(path string, poolSize int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Network:  "unix",
		Addr:     path,
		Protocol: 2,
		PoolSize: poolSize,
	})
}

// newProbeClient is a single-connection client that never retries, so that
// a failed probe or a connection closed by SHUTDOWN is reported once.
func newProbeClient(path string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Network:     "unix",
		Addr:        path,
		Protocol:    2,
		PoolSize:    1,
		MaxRetries:  -1,
		DialTimeout: probeDialTimeout,
	})
}

// Ping reports whether a server answers PING on path.
func Ping(ctx context.Context, path string) error {
	c := newProbeClient(path)
	defer func() { _ = c.Close() }()

	if err := c.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping %s: %w", path, err)
	}
	return nil
}

// Shutdown asks the server on path to save and exit. The connection closing
// under the command counts as success.
func Shutdown(ctx context.Context, path string) error {
	c := newProbeClient(path)
	defer func() { _ = c.Close() }()

	if err := c.Shutdown(ctx).Err(); err != nil {
		return fmt.Errorf("shutdown %s: %w", path, err)
	}
	return nil
}
