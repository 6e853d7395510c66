package health

import (
	"context"
	"errors"
	"fmt"

	"github.com/vyrodovalexey/avamux/internal/scheduler"
)

// Check errors.
var (
	ErrSchedulerClosed = errors.New("scheduler is not admitting requests")
	ErrNoBackends      = errors.New("no backend configured")
)

// StatsSource reports scheduler state.
type StatsSource interface {
	Stats() scheduler.Stats
}

// Pinger reports whether a dependency answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SchedulerCheck fails once the scheduler stopped admitting work or when
// it has no backend to dispatch to.
func SchedulerCheck(source StatsSource) HealthCheck {
	return NewHealthCheckFunc("scheduler", func(context.Context) error {
		st := source.Stats()
		if st.Closed {
			return ErrSchedulerClosed
		}
		if len(st.Backends) == 0 {
			return ErrNoBackends
		}
		return nil
	})
}

// PingCheck fails when p does not answer.
func PingCheck(name string, p Pinger) HealthCheck {
	return NewHealthCheckFunc(name, func(ctx context.Context) error {
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("%s unreachable: %w", name, err)
		}
		return nil
	})
}
