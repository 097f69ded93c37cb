package redislite

import (
	"context"
	"time"

	"github.com/giantswarm/redislite/internal/core"
)

// Manager supervises local redis-server processes and hands out clients
// bound to them.
//
// Callers must follow this lifecycle ordering:
//
//	NewManager → Initialize → Open/OpenAsync and Close (repeatable) → Shutdown
//
// Initialize must be called before Open. Shutdown is safe to call at any
// point, including before Initialize.
type Manager interface {
	// Initialize opens the host-wide instance registry and prepares the base
	// directory. Must be called before Open. Safe to call multiple times:
	// after a successful initialization, subsequent calls return nil
	// immediately. If initialization fails, subsequent calls retry.
	Initialize(ctx context.Context) error

	// Open returns a blocking client for the database file target. If a
	// live server for target is already registered (by this process or any
	// other) the client shares it; otherwise a server is spawned with the
	// given overrides merged over the default configuration. Overrides are
	// ignored when an existing server is shared.
	//
	// An empty target opens a private temporary database that is deleted
	// when its server stops.
	//
	// Returns ErrNotInitialized if Initialize has not been called.
	// Returns ErrShuttingDown if the manager is shutting down.
	Open(ctx context.Context, target string, overrides map[string]string) (Client, error)

	// OpenAsync is like Open but returns a client whose commands complete
	// asynchronously, in submission order, over a dedicated connection.
	OpenAsync(ctx context.Context, target string, overrides map[string]string) (AsyncClient, error)

	// Instances returns a snapshot of every server in the host-wide
	// registry, including servers owned by other processes.
	Instances(ctx context.Context) ([]InstanceInfo, error)

	// Shutdown releases every client that is still open, stopping servers
	// whose last reference goes away, then closes the registry.
	// Safe to call even if Initialize was never called.
	// Returns an error joining every release that failed.
	Shutdown() error
}

// Client is a blocking handle on a shared server. Every Client holds one
// reference on its server; the server stops when the last reference, from
// any process, is released.
//
// Client is safe for concurrent use.
type Client interface {
	// Close closes the client's connections and releases its reference.
	// Close is idempotent. Commands issued after Close return ErrClientClosed.
	// An externally managed client closes its connections but keeps the
	// reference (see SetExternallyManaged).
	Close() error

	// SetExternallyManaged marks the reference as owned by another object
	// that releases it itself. Close then only closes connections.
	SetExternallyManaged(v bool)

	// ConnectionCount reports the live connections held to the server.
	// It is meant for diagnostics only.
	ConnectionCount() int

	// Target returns the canonical path of the database file.
	Target() string
	// Endpoint returns the unix socket path of the server.
	Endpoint() string
	// PID returns the server's process ID.
	PID() int
	// InstanceID returns the registry identifier of the server.
	InstanceID() string

	Ping(ctx context.Context) error
	// Get returns ErrKeyNotFound if key does not exist.
	Get(ctx context.Context, key string) (string, error)
	// Set stores value under key. A ttl of 0 means no expiry.
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) (int64, error)
	Exists(ctx context.Context, keys ...string) (int64, error)
	Keys(ctx context.Context, pattern string) ([]string, error)
	FlushDB(ctx context.Context) error
	Save(ctx context.Context) error
	Info(ctx context.Context, sections ...string) (string, error)

	// Do executes an arbitrary command and returns its raw reply. A nil
	// reply yields (nil, nil).
	Do(ctx context.Context, args ...any) (any, error)

	// Graph returns a handle on the named graph. It performs no I/O.
	Graph(name string) *Graph
	// ListGraphs returns the names of the graphs stored in the database.
	ListGraphs(ctx context.Context) ([]string, error)
}

// AsyncClient is a non-blocking handle on a shared server. Commands return
// a Future immediately and execute one at a time in submission order.
//
// An AsyncClient owns exactly one server reference and releases it exactly
// once, on the first Close.
type AsyncClient interface {
	// Close waits for queued commands to finish (bounded by ctx), closes
	// the dispatch connection and releases the server reference. Commands
	// submitted after Close resolve with ErrClientClosed.
	Close(ctx context.Context) error

	ConnectionCount() int
	Target() string
	Endpoint() string
	PID() int
	InstanceID() string

	Ping(ctx context.Context) *Future[string]
	Get(ctx context.Context, key string) *Future[string]
	Set(ctx context.Context, key string, value any, ttl time.Duration) *Future[string]
	Del(ctx context.Context, keys ...string) *Future[int64]
	Exists(ctx context.Context, keys ...string) *Future[int64]
	Keys(ctx context.Context, pattern string) *Future[[]string]
	FlushDB(ctx context.Context) *Future[string]
	Save(ctx context.Context) *Future[string]
	Info(ctx context.Context, sections ...string) *Future[string]
	Do(ctx context.Context, args ...any) *Future[any]
	Graph(name string) *AsyncGraph
	ListGraphs(ctx context.Context) *Future[[]string]
}

// Future is the pending result of an AsyncClient command.
type Future[T any] = core.Future[T]

// Graph runs graph queries against one named graph through a Client.
type Graph = core.Graph

// AsyncGraph runs graph queries against one named graph through an
// AsyncClient.
type AsyncGraph = core.AsyncGraph

// QueryResult is the decoded reply of a graph query.
type QueryResult = core.QueryResult

// SlowLogEntry is one entry of a graph's slow log.
type SlowLogEntry = core.SlowLogEntry

// QueryOption customizes a graph query.
type QueryOption = core.QueryOption

// InstanceInfo describes one registered server.
type InstanceInfo = core.InstanceInfo

// WithParams binds query parameters, referenced as $name in the query.
// Supported values are nil, strings, booleans, integers, floats, and
// slices and string-keyed maps of those.
func WithParams(params map[string]any) QueryOption {
	return core.WithParams(params)
}

// WithQueryTimeout asks the server to abort the query after d.
func WithQueryTimeout(d time.Duration) QueryOption {
	return core.WithQueryTimeout(d)
}
