package handlers

import "sync"

// RestartSignal is raised by the update command. The process owner waits on
// Done, closes the gateway, and exits so a supervisor can restart it.
type RestartSignal struct {
	once sync.Once
	done chan struct{}
}

// NewRestartSignal creates an unraised signal.
func NewRestartSignal() *RestartSignal {
	return &RestartSignal{done: make(chan struct{})}
}

// Request raises the signal. Repeated calls are no-ops.
func (r *RestartSignal) Request() {
	r.once.Do(func() { close(r.done) })
}

// Done is closed once a restart has been requested.
func (r *RestartSignal) Done() <-chan struct{} {
	return r.done
}

// Requested reports whether a restart has been requested.
func (r *RestartSignal) Requested() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}
