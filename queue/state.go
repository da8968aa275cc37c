// queue/state.go
package queue

import (
	"time"

	"github.com/mitselek/esmuseum-map-app-sub006/model"
)

// Status is the processing state of one entity.
type Status int

const (
	Idle Status = iota
	Running
	RunningWithPendingRerun
)

func (s Status) String() string {
	switch s {
	case Running:
		return "running"
	case RunningWithPendingRerun:
		return "running_with_pending_rerun"
	default:
		return "idle"
	}
}

// entry is the ProcessingState of one entity. It is only touched by the
// dispatcher while holding the dispatcher lock.
type entry struct {
	status      Status
	lastStarted time.Time
	passes      int
	// pending is the newest notification seen while a pass was in flight.
	// Only its credential is used: a rerun re-fetches current state.
	pending *model.WebhookNotification
}

// begin moves Idle or RunningWithPendingRerun to Running and returns the
// notification the pass runs with.
func (e *entry) begin(now time.Time, n *model.WebhookNotification) model.WebhookNotification {
	if e.status == RunningWithPendingRerun && e.pending != nil {
		n = e.pending
	}
	e.status = Running
	e.pending = nil
	e.lastStarted = now
	e.passes++
	return *n
}

// markPending records a notification that arrived during a pass. It never
// starts a second pass.
func (e *entry) markPending(n *model.WebhookNotification) {
	e.status = RunningWithPendingRerun
	e.pending = n
}

// finish ends a pass. It reports whether a rerun is due; if not, the entry
// is back to Idle and may be dropped.
func (e *entry) finish() bool {
	if e.status == RunningWithPendingRerun {
		return true
	}
	e.status = Idle
	return false
}
