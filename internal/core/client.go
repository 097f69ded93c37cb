package core

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/giantswarm/redislite/internal/netutil"
)

// Client is a blocking client bound to one shared server instance. It holds
// one reference on the instance until Close. It is safe for concurrent use.
type Client struct {
	h      *handle
	rdb    *redis.Client
	closed atomic.Bool
}

func newClient(h *handle, poolSize int) *Client {
	return &Client{
		h:   h,
		rdb: netutil.NewClient(h.instance().Endpoint, poolSize),
	}
}

// conn returns the protocol client, or ErrClientClosed after Close or once
// the reference was released by Shutdown.
func (c *Client) conn() (*redis.Client, error) {
	if c.closed.Load() || c.h.isReleased() {
		return nil, ErrClientClosed
	}
	return c.rdb, nil
}

// Close closes the connection pool and releases the reference on the
// instance; the release of the last reference stops the server. Close is
// idempotent and returns nil once the reference has been released. If a
// release fails, calling Close again retries it.
//
// A client whose reference is managed externally only closes its
// connections.
func (c *Client) Close() error {
	if c.closed.CompareAndSwap(false, true) {
		if err := c.rdb.Close(); err != nil {
			c.h.log.Debug("close connection pool", "error", err)
		}
	}
	if c.h.externallyManaged.Load() {
		return nil
	}
	return c.h.release(context.Background())
}

// SetExternallyManaged hands the release of the reference to another owner.
// Close then closes connections only.
func (c *Client) SetExternallyManaged(v bool) {
	c.h.externallyManaged.Store(v)
}

// ConnectionCount reports how many connections the client currently holds
// open to the server.
func (c *Client) ConnectionCount() int {
	return int(c.rdb.PoolStats().TotalConns)
}

// Target returns the canonical database path served by the instance.
func (c *Client) Target() string { return c.h.ref.Target }

// Endpoint returns the unix socket path of the instance.
func (c *Client) Endpoint() string { return c.h.instance().Endpoint }

// PID returns the server process id.
func (c *Client) PID() int { return c.h.instance().PID }

// InstanceID returns the id of the server instance.
func (c *Client) InstanceID() string { return c.h.instance().ID }

// Ping checks that the server answers.
func (c *Client) Ping(ctx context.Context) error {
	rdb, err := c.conn()
	if err != nil {
		return err
	}
	_, err = cmdPing(ctx, rdb)
	return err
}

// Get returns the value of key, or ErrKeyNotFound.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	rdb, err := c.conn()
	if err != nil {
		return "", err
	}
	return cmdGet(ctx, rdb, key)
}

// Set stores value under key. A positive ttl sets an expiry.
func (c *Client) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	rdb, err := c.conn()
	if err != nil {
		return err
	}
	_, err = cmdSet(ctx, rdb, key, value, ttl)
	return err
}

// Del removes keys and returns how many existed.
func (c *Client) Del(ctx context.Context, keys ...string) (int64, error) {
	rdb, err := c.conn()
	if err != nil {
		return 0, err
	}
	return cmdDel(ctx, rdb, keys)
}

// Exists returns how many of keys exist.
func (c *Client) Exists(ctx context.Context, keys ...string) (int64, error) {
	rdb, err := c.conn()
	if err != nil {
		return 0, err
	}
	return cmdExists(ctx, rdb, keys)
}

// Keys returns the keys matching pattern.
func (c *Client) Keys(ctx context.Context, pattern string) ([]string, error) {
	rdb, err := c.conn()
	if err != nil {
		return nil, err
	}
	return cmdKeys(ctx, rdb, pattern)
}

// FlushDB removes every key of the current database.
func (c *Client) FlushDB(ctx context.Context) error {
	rdb, err := c.conn()
	if err != nil {
		return err
	}
	_, err = cmdFlushDB(ctx, rdb)
	return err
}

// Save writes the dataset to the database file synchronously.
func (c *Client) Save(ctx context.Context) error {
	rdb, err := c.conn()
	if err != nil {
		return err
	}
	_, err = cmdSave(ctx, rdb)
	return err
}

// Info returns the server INFO text for sections (all default sections
// when none are given).
func (c *Client) Info(ctx context.Context, sections ...string) (string, error) {
	rdb, err := c.conn()
	if err != nil {
		return "", err
	}
	return cmdInfo(ctx, rdb, sections)
}

// Do runs any command not covered by the methods above, for example
// Do(ctx, "HSET", "h", "f", "v"). A nil reply yields a nil value.
func (c *Client) Do(ctx context.Context, args ...any) (any, error) {
	rdb, err := c.conn()
	if err != nil {
		return nil, err
	}
	return cmdDo(ctx, rdb, args)
}

// Graph returns the graph called name. The server must have the graph
// module loaded.
func (c *Client) Graph(name string) *Graph {
	return &Graph{name: name, c: c}
}

// ListGraphs returns the names of all graphs.
func (c *Client) ListGraphs(ctx context.Context) ([]string, error) {
	rdb, err := c.conn()
	if err != nil {
		return nil, err
	}
	return cmdListGraphs(ctx, rdb)
}
