// Package registry is the cross-process record of which server instance
// serves which database target.
//
// The record lives in a SQLite database next to a lock file in the registry
// directory. Every mutation (Attach, Release) runs under an exclusive lock
// made of a process-local semaphore and a flock on the lock file, so that
// racing attaches from any number of goroutines or processes spawn at most
// one server per target. Each attached handle is a holder row; an instance's
// refcount always equals its number of holders and the instance row is
// deleted together with its last holder.
package registry
