// Package netutil allocates the unix-socket endpoints that server instances
// listen on and binds go-redis clients to them.
//
// SocketRegistry hands out socket paths that are unique within this process
// and short enough for the kernel's sun_path limit. NewClient, Ping and
// Shutdown are the only places that speak the protocol; everything else in
// the module talks to a server through them.
package netutil
