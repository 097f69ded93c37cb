// Package server starts, probes and stops redis-server instances.
//
// Each instance gets a private work directory under the configured base
// directory holding its rendered configuration, pid file, log files and
// (when the path is short enough) its unix socket. The database file itself
// lives at the instance target. A Manager remembers the child processes it
// spawned; instances spawned by other OS processes are handled by pid.
package server
