package process

import (
	"time"
)

// Stoppable is a process that can be stopped and have its resources closed.
type Stoppable interface {
	Stop(timeout time.Duration) error
	Close()
}

// StopCloseAndNil stops and closes *p, then sets it to nil. Close and the
// nil-out happen even when Stop fails; the Stop error is returned. A nil p
// or *p is a no-op.
//
//	proc := process.NewBaseProcess("redis-server", log, 0)
//	// ... start proc ...
//	err := process.StopCloseAndNil(&proc, 5*time.Second)
func StopCloseAndNil[P interface {
	*E
	Stoppable
}, E any](p *P, timeout time.Duration) error {
	if p == nil || *p == nil {
		return nil
	}
	defer func() {
		(*p).Close()
		*p = nil
	}()
	return (*p).Stop(timeout)
}
