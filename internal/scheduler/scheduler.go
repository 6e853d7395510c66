package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/vyrodovalexey/avamux/internal/backend"
	"github.com/vyrodovalexey/avamux/internal/observability"
)

// Scheduler errors.
var (
	ErrClosed        = errors.New("scheduler is shut down")
	ErrBundleExpired = errors.New("bundle expired before all members arrived")
	ErrExecutorPanic = errors.New("executor panicked")
	ErrInvalidBundle = errors.New("bundle id is required")
)

// idlePollInterval is how often Shutdown checks for quiescence.
const idlePollInterval = 10 * time.Millisecond

// Settings are the hot-reloadable scheduler parameters.
type Settings struct {
	// MaxPerBackend caps the units executing on one backend. Values
	// below 1 are treated as 1.
	MaxPerBackend int64
	// Randomize breaks ties between equally loaded backends at random.
	Randomize bool
	// Debounce is the admission window before drain passes start.
	Debounce time.Duration
	// BundleTTL evicts incomplete bundles. Zero disables eviction.
	BundleTTL time.Duration
}

func (s Settings) normalized() Settings {
	if s.MaxPerBackend < 1 {
		s.MaxPerBackend = 1
	}
	if s.Debounce < 0 {
		s.Debounce = 0
	}
	if s.BundleTTL < 0 {
		s.BundleTTL = 0
	}
	return s
}

// Stats is a point-in-time view of the scheduler.
type Stats struct {
	QueueDepth     int                  `json:"queueDepth"`
	PendingBundles int                  `json:"pendingBundles"`
	LivePasses     int                  `json:"livePasses"`
	PassesLaunched uint64               `json:"passesLaunched"`
	DebounceArmed  bool                 `json:"debounceArmed"`
	PendingWaves   int                  `json:"pendingWaves"`
	MaxPerBackend  int64                `json:"maxPerBackend"`
	Closed         bool                 `json:"closed"`
	Backends       []backend.SlotStatus `json:"backends"`
}

// Scheduler owns the admission queue, the bundle table and the debounce
// state. All of them are guarded by mu.
type Scheduler struct {
	pool     *backend.Pool
	executor Executor
	logger   observability.Logger
	metrics  MetricsRecorder
	tracer   *observability.Tracer

	afterFunc func(d time.Duration, fn func()) timer
	busyLog   rate.Sometimes

	mu             sync.Mutex
	settings       Settings
	balancer       backend.Balancer
	pinnedBalancer bool
	queue          queue
	bundles        *Aggregator
	debounce       timer
	waves          int
	livePasses     int
	launched       uint64
	closed         bool
	passes         sync.WaitGroup
}

// New creates a scheduler over pool. Jobs are run by executor.
func New(pool *backend.Pool, executor Executor, settings Settings, opts ...Option) *Scheduler {
	settings = settings.normalized()

	s := &Scheduler{
		pool:      pool,
		executor:  executor,
		logger:    observability.NopLogger(),
		metrics:   nopMetrics{},
		tracer:    observability.NopTracer(),
		afterFunc: timeAfterFunc,
		busyLog:   rate.Sometimes{Interval: time.Second},
		settings:  settings,
		bundles:   NewAggregator(),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.balancer == nil {
		s.balancer = backend.NewBalancer(settings.Randomize)
	}

	return s
}

func timeAfterFunc(d time.Duration, fn func()) timer {
	return time.AfterFunc(d, fn)
}

// Start runs the bundle eviction loop until ctx is done. It returns
// immediately when no bundle TTL is configured at call time; a TTL
// enabled later by Configure needs a new Start.
func (s *Scheduler) Start(ctx context.Context) {
	ttl := s.Settings().BundleTTL
	if ttl <= 0 {
		return
	}

	interval := ttl / 2
	if interval < time.Second {
		interval = time.Second
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.EvictExpiredBundles()
			}
		}
	}()
}

// Submit queues one job with the given priority.
func (s *Scheduler) Submit(job Job, priority int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	s.admit(NewSingleUnit(job, priority))
	return nil
}

// SubmitBundleMember adds job to bundle id. The bundle is queued once it
// holds size members; until then the job waits without a backend.
func (s *Scheduler) SubmitBundleMember(id string, seq *int, size, priority int, job Job) error {
	if id == "" {
		return ErrInvalidBundle
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	unit, released := s.bundles.Add(id, seq, size, priority, job)
	s.metrics.SetPendingBundles(s.bundles.Len())

	if !released {
		s.logger.Debug("bundle member collected",
			observability.String("bundle_id", id),
			observability.Int("collected", s.bundles.Pending(id)),
			observability.Int("size", size),
		)
		return nil
	}

	s.metrics.BundleReleased()
	s.logger.Debug("bundle released",
		observability.String("bundle_id", id),
		observability.Int("members", len(unit.Members)),
		observability.Int("priority", priority),
	)
	s.admit(unit)
	return nil
}

// Configure applies new settings. Raising the cap while work is queued
// arms the debounce timer so the new capacity is used.
func (s *Scheduler) Configure(settings Settings) {
	settings = settings.normalized()

	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.settings
	s.settings = settings

	if !s.pinnedBalancer && prev.Randomize != settings.Randomize {
		s.balancer = backend.NewBalancer(settings.Randomize)
	}

	s.logger.Info("scheduler settings updated",
		observability.Int64("max_per_backend", settings.MaxPerBackend),
		observability.Bool("randomize", settings.Randomize),
		observability.Duration("debounce", settings.Debounce),
		observability.Duration("bundle_ttl", settings.BundleTTL),
	)

	if settings.MaxPerBackend > prev.MaxPerBackend && s.queue.len() > 0 && !s.closed {
		s.arm()
	}
}

// Settings returns the current settings.
func (s *Scheduler) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// Stats returns a snapshot of the scheduler state.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		QueueDepth:     s.queue.len(),
		PendingBundles: s.bundles.Len(),
		LivePasses:     s.livePasses,
		PassesLaunched: s.launched,
		DebounceArmed:  s.debounce != nil,
		PendingWaves:   s.waves,
		MaxPerBackend:  s.settings.MaxPerBackend,
		Closed:         s.closed,
		Backends:       s.pool.Snapshot(),
	}
}

// EvictExpiredBundles abandons every bundle older than the configured
// TTL. It does nothing when the TTL is zero.
func (s *Scheduler) EvictExpiredBundles() int {
	s.mu.Lock()
	ttl := s.settings.BundleTTL
	if ttl <= 0 {
		s.mu.Unlock()
		return 0
	}
	evicted := s.bundles.Evict(ttl)
	s.metrics.SetPendingBundles(s.bundles.Len())
	s.mu.Unlock()

	for id, jobs := range evicted {
		s.metrics.BundleExpired()
		s.logger.Warn("incomplete bundle evicted",
			observability.String("bundle_id", id),
			observability.Int("members", len(jobs)),
			observability.Duration("ttl", ttl),
		)
		for _, job := range jobs {
			job.Abandon(ErrBundleExpired)
		}
	}

	return len(evicted)
}

// Shutdown stops accepting work and waits until every queued unit has
// run. If ctx ends first, queued units and incomplete bundles are
// abandoned with ErrClosed and ctx.Err() is returned after running
// passes finish.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	ticker := time.NewTicker(idlePollInterval)
	defer ticker.Stop()

	for {
		if s.idle() {
			s.abandonPending()
			s.passes.Wait()
			return nil
		}

		select {
		case <-ctx.Done():
			s.abandonPending()
			s.passes.Wait()
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) idle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.len() == 0 && s.debounce == nil && s.livePasses == 0
}

func (s *Scheduler) abandonPending() {
	s.mu.Lock()
	if s.debounce != nil {
		s.debounce.Stop()
		s.debounce = nil
		s.waves = 0
	}
	units := s.queue.drain()
	jobs := s.bundles.Drain()
	s.metrics.SetQueueDepth(0)
	s.metrics.SetPendingBundles(0)
	s.mu.Unlock()

	for _, u := range units {
		u.abandon(ErrClosed)
	}
	for _, job := range jobs {
		job.Abandon(ErrClosed)
	}
}

// admit appends u to the queue and arms the debounce window. Caller
// holds mu.
func (s *Scheduler) admit(u *Unit) {
	u.admitted = time.Now()
	s.queue.push(u)
	s.metrics.SetQueueDepth(s.queue.len())
	s.arm()
}

// arm starts the debounce timer with one wave, or adds a wave to the
// timer already running. Caller holds mu.
func (s *Scheduler) arm() {
	if s.debounce != nil {
		s.waves++
		return
	}
	s.waves = 1
	s.debounce = s.afterFunc(s.settings.Debounce, s.expire)
}

// expire ends the debounce window and launches one drain pass per wave.
func (s *Scheduler) expire() {
	s.mu.Lock()
	if s.debounce == nil {
		s.mu.Unlock()
		return
	}
	waves := s.waves
	s.waves = 0
	s.debounce = nil
	s.livePasses += waves
	s.launched += uint64(waves)
	s.passes.Add(waves)
	s.mu.Unlock()

	s.metrics.PassesLaunched(waves)
	for i := 0; i < waves; i++ {
		go s.drain()
	}
}

// drain is one drain pass.
func (s *Scheduler) drain() {
	s.metrics.PassStarted()
	defer func() {
		s.mu.Lock()
		s.livePasses--
		s.mu.Unlock()
		s.metrics.PassFinished()
		s.passes.Done()
	}()

	for {
		unit, slot, ok := s.next()
		if !ok {
			return
		}

		s.run(unit, slot)

		s.mu.Lock()
		active := slot.Release()
		s.mu.Unlock()
		s.metrics.SetBackendActive(slot.Address, active)
	}
}

// next removes the highest-priority unit and acquires a backend for it,
// all under mu.
func (s *Scheduler) next() (*Unit, *backend.Slot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.queue.len() == 0 {
		return nil, nil, false
	}

	idx := s.balancer.Select(s.pool.Slots(), s.settings.MaxPerBackend)
	if idx == backend.NoBackend {
		s.busyLog.Do(func() {
			s.logger.Debug("drain pass stopped, no free backend",
				observability.Int("queued", s.queue.len()),
				observability.Int("live_passes", s.livePasses),
			)
		})
		return nil, nil, false
	}

	unit := s.queue.remove(s.queue.next())
	slot := s.pool.Slot(idx)
	active := slot.Acquire()

	s.metrics.SetQueueDepth(s.queue.len())
	s.metrics.SetBackendActive(slot.Address, active)

	return unit, slot, true
}

// run executes every job of unit on slot, in order.
func (s *Scheduler) run(unit *Unit, slot *backend.Slot) {
	start := time.Now()

	s.logger.Debug("dispatching unit",
		observability.String("kind", unit.Kind.String()),
		observability.Int("priority", unit.Priority),
		observability.String("backend", slot.Address),
		observability.Duration("queued", start.Sub(unit.admitted)),
	)

	for i, job := range unit.Jobs() {
		s.execute(unit, i, slot, job)
	}

	s.metrics.RecordUnit(slot.Address, unit.Kind.String(), time.Since(start))
}

// execute runs one job and turns an executor panic into an abandoned job
// so the pass and the slot accounting survive.
func (s *Scheduler) execute(unit *Unit, member int, slot *backend.Slot, job Job) {
	ctx, span := s.tracer.StartSpan(job.Context(), "scheduler.execute",
		trace.WithAttributes(
			attribute.String("avamux.unit.kind", unit.Kind.String()),
			attribute.Int("avamux.unit.priority", unit.Priority),
			attribute.String("avamux.backend", slot.Address),
		),
	)
	if unit.Kind == KindBundle {
		span.SetAttributes(
			attribute.String("avamux.bundle.id", unit.BundleID),
			attribute.Int("avamux.bundle.member", member),
		)
	}
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("%w: %v", ErrExecutorPanic, r)
			span.RecordError(err)
			span.SetStatus(codes.Error, "executor panic")
			s.logger.WithContext(ctx).Error("executor panicked",
				observability.String("backend", slot.Address),
				observability.Any("panic", r),
			)
			job.Abandon(err)
		}
	}()

	s.executor.Execute(ctx, slot, job)
}
