package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vyrodovalexey/avamux/internal/backend"
)

// manualClock captures debounce timers so tests decide when they fire.
type manualClock struct {
	mu      sync.Mutex
	pending []func()
	armed   []time.Duration
}

type manualTimer struct {
	stopped atomic.Bool
}

func (t *manualTimer) Stop() bool {
	return !t.stopped.Swap(true)
}

func (c *manualClock) afterFunc(d time.Duration, fn func()) timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = append(c.pending, fn)
	c.armed = append(c.armed, d)
	return &manualTimer{}
}

func (c *manualClock) pendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// fire runs every captured timer callback.
func (c *manualClock) fire() {
	c.mu.Lock()
	fns := c.pending
	c.pending = nil
	c.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

type fakeJob struct {
	name string

	mu        sync.Mutex
	abandoned error
	done      chan struct{}
	once      sync.Once
}

func newJob(name string) *fakeJob {
	return &fakeJob{name: name, done: make(chan struct{})}
}

func (j *fakeJob) Context() context.Context {
	return context.Background()
}

func (j *fakeJob) Abandon(err error) {
	j.mu.Lock()
	j.abandoned = err
	j.mu.Unlock()
	j.finish()
}

func (j *fakeJob) finish() {
	j.once.Do(func() { close(j.done) })
}

func (j *fakeJob) err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.abandoned
}

func (j *fakeJob) finished() bool {
	select {
	case <-j.done:
		return true
	default:
		return false
	}
}

// recordingExecutor records the order in which jobs start. When gate is
// set every execution blocks until the gate is closed.
type recordingExecutor struct {
	mu       sync.Mutex
	order    []string
	backends []int
	gate     chan struct{}
	running  atomic.Int64
	maxSeen  atomic.Int64
}

func (e *recordingExecutor) Execute(_ context.Context, slot *backend.Slot, job Job) {
	j := job.(*fakeJob)

	e.mu.Lock()
	e.order = append(e.order, j.name)
	e.backends = append(e.backends, slot.Index)
	e.mu.Unlock()

	n := e.running.Add(1)
	for {
		prev := e.maxSeen.Load()
		if n <= prev || e.maxSeen.CompareAndSwap(prev, n) {
			break
		}
	}

	if e.gate != nil {
		<-e.gate
	}

	e.running.Add(-1)
	j.finish()
}

func (e *recordingExecutor) started() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.order...)
}

func (e *recordingExecutor) slots() []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]int(nil), e.backends...)
}

func allFinished(jobs ...*fakeJob) func() bool {
	return func() bool {
		for _, j := range jobs {
			if !j.finished() {
				return false
			}
		}
		return true
	}
}

func newTestScheduler(
	addresses []string,
	settings Settings,
	exec Executor,
	opts ...Option,
) (*Scheduler, *manualClock) {
	clock := &manualClock{}
	opts = append([]Option{withAfterFunc(clock.afterFunc)}, opts...)
	return New(backend.NewPool(addresses), exec, settings, opts...), clock
}

func intPtr(v int) *int {
	return &v
}
