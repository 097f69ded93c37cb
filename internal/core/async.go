package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/giantswarm/redislite/internal/netutil"
)

// Future is the pending result of a command queued on an AsyncClient.
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

func (f *Future[T]) resolve(v T, err error) {
	f.val = v
	f.err = err
	close(f.done)
}

// Done returns a channel closed once the result is available.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the result is available or ctx ends. A result that is
// already available is returned even if ctx has ended. Abandoning the wait
// does not cancel the command.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	default:
	}
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// AsyncClient queues commands and runs them one at a time, in the order they
// were issued, on a single dedicated connection. Callers receive a Future per
// command instead of blocking.
//
// The reference on the instance belongs to an internal Client that is
// marked externally managed at construction; AsyncClient.Close releases it
// exactly once.
type AsyncClient struct {
	owner *Client
	rdb   *redis.Client

	mu      sync.Mutex
	cond    *sync.Cond
	pending []func()
	closing bool

	stopped   chan struct{}
	closeConn sync.Once
}

func newAsyncClient(owner *Client) *AsyncClient {
	owner.SetExternallyManaged(true)
	a := &AsyncClient{
		owner:   owner,
		rdb:     netutil.NewClient(owner.Endpoint(), 1),
		stopped: make(chan struct{}),
	}
	a.cond = sync.NewCond(&a.mu)
	go a.dispatch()
	// A release by the Shutdown sweep also ends the dispatcher.
	owner.h.setOnRelease(a.stopAccepting)
	return a
}

// stopAccepting rejects new commands and lets the dispatcher exit once the
// queue is empty.
func (a *AsyncClient) stopAccepting() {
	a.mu.Lock()
	a.closing = true
	a.cond.Broadcast()
	a.mu.Unlock()
}

// dispatch runs queued commands in order until Close has been called and
// the queue is empty.
func (a *AsyncClient) dispatch() {
	defer close(a.stopped)

	a.mu.Lock()
	for {
		for len(a.pending) == 0 && !a.closing {
			a.cond.Wait()
		}
		if len(a.pending) == 0 {
			a.mu.Unlock()
			return
		}
		job := a.pending[0]
		a.pending[0] = nil
		a.pending = a.pending[1:]
		a.mu.Unlock()

		job()

		a.mu.Lock()
	}
}

// submit queues fn and returns its future. After Close, or once Shutdown
// released the reference, the future fails immediately with ErrClientClosed.
func submit[T any](ctx context.Context, a *AsyncClient, fn func(ctx context.Context, rdb *redis.Client) (T, error)) *Future[T] {
	f := newFuture[T]()

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closing || a.owner.h.isReleased() {
		var zero T
		f.resolve(zero, ErrClientClosed)
		return f
	}
	a.pending = append(a.pending, func() {
		f.resolve(fn(ctx, a.rdb))
	})
	a.cond.Signal()
	return f
}

// Close stops accepting commands, waits for the queued ones to finish,
// closes the connections and releases the reference on the instance. If ctx
// ends before the queue drains, Close returns its error and can be called
// again. Once the release has succeeded Close returns nil.
func (a *AsyncClient) Close(ctx context.Context) error {
	a.stopAccepting()

	select {
	case <-a.stopped:
	case <-ctx.Done():
		return fmt.Errorf("drain queued commands: %w", ctx.Err())
	}

	a.closeConn.Do(func() {
		if err := a.rdb.Close(); err != nil {
			a.owner.h.log.Debug("close async connection", "error", err)
		}
		// Externally managed: closes connections, keeps the reference.
		_ = a.owner.Close()
	})
	return a.owner.h.release(ctx)
}

// ConnectionCount reports how many connections the dispatcher holds open.
func (a *AsyncClient) ConnectionCount() int {
	return int(a.rdb.PoolStats().TotalConns)
}

// Target returns the canonical database path served by the instance.
func (a *AsyncClient) Target() string { return a.owner.Target() }

// Endpoint returns the unix socket path of the instance.
func (a *AsyncClient) Endpoint() string { return a.owner.Endpoint() }

// PID returns the server process id.
func (a *AsyncClient) PID() int { return a.owner.PID() }

// InstanceID returns the id of the server instance.
func (a *AsyncClient) InstanceID() string { return a.owner.InstanceID() }

// Ping queues a PING.
func (a *AsyncClient) Ping(ctx context.Context) *Future[string] {
	return submit(ctx, a, cmdPing)
}

// Get queues a GET. A missing key resolves to ErrKeyNotFound.
func (a *AsyncClient) Get(ctx context.Context, key string) *Future[string] {
	return submit(ctx, a, func(ctx context.Context, rdb *redis.Client) (string, error) {
		return cmdGet(ctx, rdb, key)
	})
}

// Set queues a SET. A positive ttl sets an expiry.
func (a *AsyncClient) Set(ctx context.Context, key string, value any, ttl time.Duration) *Future[string] {
	return submit(ctx, a, func(ctx context.Context, rdb *redis.Client) (string, error) {
		return cmdSet(ctx, rdb, key, value, ttl)
	})
}

// Del queues a DEL.
func (a *AsyncClient) Del(ctx context.Context, keys ...string) *Future[int64] {
	return submit(ctx, a, func(ctx context.Context, rdb *redis.Client) (int64, error) {
		return cmdDel(ctx, rdb, keys)
	})
}

// Exists queues an EXISTS.
func (a *AsyncClient) Exists(ctx context.Context, keys ...string) *Future[int64] {
	return submit(ctx, a, func(ctx context.Context, rdb *redis.Client) (int64, error) {
		return cmdExists(ctx, rdb, keys)
	})
}

// Keys queues a KEYS.
func (a *AsyncClient) Keys(ctx context.Context, pattern string) *Future[[]string] {
	return submit(ctx, a, func(ctx context.Context, rdb *redis.Client) ([]string, error) {
		return cmdKeys(ctx, rdb, pattern)
	})
}

// FlushDB queues a FLUSHDB.
func (a *AsyncClient) FlushDB(ctx context.Context) *Future[string] {
	return submit(ctx, a, cmdFlushDB)
}

// Save queues a SAVE.
func (a *AsyncClient) Save(ctx context.Context) *Future[string] {
	return submit(ctx, a, cmdSave)
}

// Info queues an INFO.
func (a *AsyncClient) Info(ctx context.Context, sections ...string) *Future[string] {
	return submit(ctx, a, func(ctx context.Context, rdb *redis.Client) (string, error) {
		return cmdInfo(ctx, rdb, sections)
	})
}

// Do queues an arbitrary command.
func (a *AsyncClient) Do(ctx context.Context, args ...any) *Future[any] {
	return submit(ctx, a, func(ctx context.Context, rdb *redis.Client) (any, error) {
		return cmdDo(ctx, rdb, args)
	})
}

// Graph returns the graph called name.
func (a *AsyncClient) Graph(name string) *AsyncGraph {
	return &AsyncGraph{name: name, a: a}
}

// ListGraphs queues a GRAPH.LIST.
func (a *AsyncClient) ListGraphs(ctx context.Context) *Future[[]string] {
	return submit(ctx, a, cmdListGraphs)
}
