package server

import (
	"sync/atomic"
	"time"
)

// State is the lifecycle state of an Instance.
type State int32

// Instance states. READY is the only state in which handles may use the
// endpoint; STOPPED and FAILED are terminal.
const (
	StateNew State = iota
	StateStarting
	StateReady
	StateStopping
	StateStopped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateStarting:
		return "STARTING"
	case StateReady:
		return "READY"
	case StateStopping:
		return "STOPPING"
	case StateStopped:
		return "STOPPED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Instance describes one server process serving one target.
type Instance struct {
	ID         string
	Target     string
	PID        int
	Endpoint   string
	WorkDir    string
	ConfigPath string
	PIDPath    string
	StartedAt  time.Time

	state atomic.Int32
}

// Record is the persisted description of an instance, as stored by the
// registry.
type Record struct {
	ID         string
	Target     string
	PID        int
	Endpoint   string
	WorkDir    string
	ConfigPath string
	PIDPath    string
	StartedAt  time.Time
}

// Adopt returns an Instance for a recorded server that is assumed READY. The
// process may belong to another OS process.
func Adopt(r Record) *Instance {
	inst := &Instance{
		ID:         r.ID,
		Target:     r.Target,
		PID:        r.PID,
		Endpoint:   r.Endpoint,
		WorkDir:    r.WorkDir,
		ConfigPath: r.ConfigPath,
		PIDPath:    r.PIDPath,
		StartedAt:  r.StartedAt,
	}
	inst.setState(StateReady)
	return inst
}

// Record returns the persisted form of the instance.
func (i *Instance) Record() Record {
	return Record{
		ID:         i.ID,
		Target:     i.Target,
		PID:        i.PID,
		Endpoint:   i.Endpoint,
		WorkDir:    i.WorkDir,
		ConfigPath: i.ConfigPath,
		PIDPath:    i.PIDPath,
		StartedAt:  i.StartedAt,
	}
}

// State returns the current lifecycle state.
func (i *Instance) State() State {
	return State(i.state.Load())
}

func (i *Instance) setState(s State) {
	i.state.Store(int32(s))
}
