// Package serverconf renders the redis.conf-style configuration file a
// server instance is started with.
//
// A configuration is an ordered list of directives. Defaults come first;
// caller overrides replace every directive with the same key, and keys that
// the supervisor owns (socket, data location, daemonization) are rejected.
package serverconf
