// Package monitoring defines the error reporter handed to long-running
// components. There is no process-wide instance; callers pass a Monitor.
package monitoring

import (
	"time"

	"github.com/kilianp07/hostcap/core/model"
)

// Monitor defines methods used for error reporting.
type Monitor interface {
	CaptureException(err error, tags map[string]string)
	Recover()
	Flush(timeout time.Duration)
}

// NopMonitor discards everything.
type NopMonitor struct{}

func (NopMonitor) CaptureException(error, map[string]string) {}
func (NopMonitor) Recover()                                  {}
func (NopMonitor) Flush(time.Duration)                       {}

// OrNop returns m, or a NopMonitor when m is nil.
func OrNop(m Monitor) Monitor {
	if m == nil {
		return NopMonitor{}
	}
	return m
}

// CaptureFatal reports err tagged with its taxonomy kind and the operation.
func CaptureFatal(m Monitor, op string, err error) {
	if m == nil || err == nil {
		return
	}
	m.CaptureException(err, map[string]string{"kind": model.ErrorKind(err), "op": op})
}
