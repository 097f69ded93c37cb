// Package redislite runs redis-server (optionally with the FalkorDB graph
// module) as a private, on-demand child process and hands out clients bound
// to it over a unix socket.
//
// Each database file is served by at most one server per host. Clients that
// open the same file, from this process or any other, share that server
// through a refcounted registry; the server is shut down when the last
// client closes.
//
// # Basic Usage
//
//	import "github.com/giantswarm/redislite"
//
//	ctx := context.Background()
//
//	mgr := redislite.NewManager()
//	if err := mgr.Initialize(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer mgr.Shutdown()
//
//	db, err := mgr.Open(ctx, "/var/lib/app/cache.db", nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Set(ctx, "greeting", "hello", 0); err != nil {
//	    log.Fatal(err)
//	}
//
// # Graphs
//
// With the FalkorDB module loaded (WithModule), clients expose graph queries:
//
//	res, err := db.Graph("social").Query(ctx,
//	    "MATCH (p:Person {name: $name}) RETURN p.age",
//	    redislite.WithParams(map[string]any{"name": "Ada"}))
//
// # Asynchronous Clients
//
// OpenAsync returns a client whose commands return futures and run in
// submission order on a dedicated connection:
//
//	adb, err := mgr.OpenAsync(ctx, "/var/lib/app/cache.db", nil)
//	...
//	f := adb.Get(ctx, "greeting")
//	v, err := f.Await(ctx)
//
// # Cleanup
//
// Shutdown releases every client still open. Servers left behind by a
// process that died without releasing are detected through a liveness probe
// and reclaimed by the next Open of the same file.
package redislite
