package stats

import (
	"context"
	"sync"
)

// MemoryStore keeps counters in process. It never expires anything.
type MemoryStore struct {
	mu         sync.Mutex
	summary    Summary
	byRoute    map[string]int64
	trackPaths bool
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithMemoryTrackPaths counts requests per method and path.
func WithMemoryTrackPaths(track bool) MemoryOption {
	return func(s *MemoryStore) { s.trackPaths = track }
}

// NewMemoryStore creates an empty store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		summary: newSummary(),
		byRoute: make(map[string]int64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record implements Recorder.
func (s *MemoryStore) Record(_ context.Context, ev Event) error {
	class := ev.Class()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.summary.Requests++
	s.summary.ByClass[class]++
	s.summary.DurationMs += ev.Duration.Milliseconds()

	if ev.Backend != "" {
		b, ok := s.summary.ByBackend[ev.Backend]
		if !ok {
			b = make(map[string]int64)
			s.summary.ByBackend[ev.Backend] = b
		}
		b["requests"]++
		b[class]++
	}

	if s.trackPaths {
		if route := routeField(ev.Method, ev.Path); route != "" {
			s.byRoute[route+":"+class]++
		}
	}

	return nil
}

// Summary implements Summarizer. The returned maps are copies.
func (s *MemoryStore) Summary(context.Context) (Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := newSummary()
	out.Requests = s.summary.Requests
	out.DurationMs = s.summary.DurationMs
	for k, v := range s.summary.ByClass {
		out.ByClass[k] = v
	}
	for backend, counters := range s.summary.ByBackend {
		c := make(map[string]int64, len(counters))
		for k, v := range counters {
			c[k] = v
		}
		out.ByBackend[backend] = c
	}
	return out, nil
}

// Route returns the counter for method, path and status class.
func (s *MemoryStore) Route(method, path, class string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byRoute[routeField(method, path)+":"+class]
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	return nil
}
