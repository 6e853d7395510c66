package scheduler

import (
	"time"

	"github.com/vyrodovalexey/avamux/internal/backend"
	"github.com/vyrodovalexey/avamux/internal/observability"
)

// MetricsRecorder receives scheduler measurements.
type MetricsRecorder interface {
	SetQueueDepth(n int)
	SetPendingBundles(n int)
	PassesLaunched(n int)
	PassStarted()
	PassFinished()
	SetBackendActive(backend string, active int64)
	RecordUnit(backend, kind string, duration time.Duration)
	BundleReleased()
	BundleExpired()
}

type nopMetrics struct{}

func (nopMetrics) SetQueueDepth(int)                        {}
func (nopMetrics) SetPendingBundles(int)                    {}
func (nopMetrics) PassesLaunched(int)                       {}
func (nopMetrics) PassStarted()                             {}
func (nopMetrics) PassFinished()                            {}
func (nopMetrics) SetBackendActive(string, int64)           {}
func (nopMetrics) RecordUnit(string, string, time.Duration) {}
func (nopMetrics) BundleReleased()                          {}
func (nopMetrics) BundleExpired()                           {}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

// WithTracer sets the tracer used for execution spans.
func WithTracer(t *observability.Tracer) Option {
	return func(s *Scheduler) {
		s.tracer = t
	}
}

// WithBalancer pins the balancer. Configure no longer replaces it when
// the randomize setting changes.
func WithBalancer(b backend.Balancer) Option {
	return func(s *Scheduler) {
		s.balancer = b
		s.pinnedBalancer = true
	}
}

// timer is the part of *time.Timer the scheduler uses.
type timer interface {
	Stop() bool
}

// withAfterFunc replaces time.AfterFunc, letting tests fire the debounce
// timer by hand.
func withAfterFunc(f func(d time.Duration, fn func()) timer) Option {
	return func(s *Scheduler) {
		s.afterFunc = f
	}
}
