package scheduler

import (
	"context"
	"time"

	"github.com/vyrodovalexey/avamux/internal/backend"
)

// Job is one inbound request waiting for a backend.
type Job interface {
	// Context carries the request scope into execution.
	Context() context.Context
	// Abandon answers the caller with err without contacting a backend.
	Abandon(err error)
}

// Executor runs one job against its assigned backend and answers the
// caller itself. Execute must return only after the caller was answered.
type Executor interface {
	Execute(ctx context.Context, slot *backend.Slot, job Job)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, slot *backend.Slot, job Job)

// Execute implements Executor.
func (f ExecutorFunc) Execute(ctx context.Context, slot *backend.Slot, job Job) {
	f(ctx, slot, job)
}

// Kind distinguishes a bare request from a released bundle.
type Kind int

// Unit kinds.
const (
	KindSingle Kind = iota
	KindBundle
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindSingle:
		return "single"
	case KindBundle:
		return "bundle"
	default:
		return "unknown"
	}
}

// Unit is one schedulable entry of the admission queue.
type Unit struct {
	Kind     Kind
	Priority int

	// Job is set for KindSingle.
	Job Job

	// Members and BundleID are set for KindBundle. Members run in order
	// on one backend.
	Members  []Job
	BundleID string

	admitted time.Time
}

// NewSingleUnit wraps one job.
func NewSingleUnit(job Job, priority int) *Unit {
	return &Unit{Kind: KindSingle, Priority: priority, Job: job}
}

// Jobs returns the jobs of the unit in execution order.
func (u *Unit) Jobs() []Job {
	if u.Kind == KindBundle {
		return u.Members
	}
	return []Job{u.Job}
}

// abandon answers every job of the unit with err.
func (u *Unit) abandon(err error) {
	for _, job := range u.Jobs() {
		job.Abandon(err)
	}
}
