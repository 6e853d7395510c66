package scheduler

import (
	"time"
)

type member struct {
	seq int
	job Job
}

type group struct {
	id        string
	sequenced []member
	unordered []Job
	created   time.Time
}

func (g *group) size() int {
	return len(g.sequenced) + len(g.unordered)
}

// insert places a sequenced member before the first member whose
// sequence number is strictly greater, so equal numbers keep arrival
// order. Members without a sequence number go to the tail in arrival
// order.
func (g *group) insert(seq *int, job Job) {
	if seq == nil {
		g.unordered = append(g.unordered, job)
		return
	}

	m := member{seq: *seq, job: job}
	for i, existing := range g.sequenced {
		if existing.seq > m.seq {
			g.sequenced = append(g.sequenced, member{})
			copy(g.sequenced[i+1:], g.sequenced[i:])
			g.sequenced[i] = m
			return
		}
	}
	g.sequenced = append(g.sequenced, m)
}

func (g *group) jobs() []Job {
	out := make([]Job, 0, g.size())
	for _, m := range g.sequenced {
		out = append(out, m.job)
	}
	return append(out, g.unordered...)
}

// Aggregator collects bundle members until their declared size is
// reached. It is not safe for concurrent use; the scheduler guards it.
type Aggregator struct {
	groups map[string]*group
	now    func() time.Time
}

// NewAggregator creates an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{
		groups: make(map[string]*group),
		now:    time.Now,
	}
}

// Add records one member of bundle id. The size declared by this member
// decides completion: when the group holds exactly size members it is
// removed and returned as one bundle unit carrying priority. A size that
// is never reached, including 0, keeps the group pending.
func (a *Aggregator) Add(id string, seq *int, size, priority int, job Job) (*Unit, bool) {
	g, ok := a.groups[id]
	if !ok {
		g = &group{id: id, created: a.now()}
		a.groups[id] = g
	}
	g.insert(seq, job)

	if g.size() != size {
		return nil, false
	}

	delete(a.groups, id)
	return &Unit{
		Kind:     KindBundle,
		Priority: priority,
		Members:  g.jobs(),
		BundleID: id,
	}, true
}

// Len returns the number of pending bundles.
func (a *Aggregator) Len() int {
	return len(a.groups)
}

// Pending returns the number of members collected so far for id.
func (a *Aggregator) Pending(id string) int {
	if g, ok := a.groups[id]; ok {
		return g.size()
	}
	return 0
}

// Evict removes every bundle created more than ttl ago and returns their
// jobs keyed by bundle id.
func (a *Aggregator) Evict(ttl time.Duration) map[string][]Job {
	cutoff := a.now().Add(-ttl)
	var evicted map[string][]Job

	for id, g := range a.groups {
		if g.created.After(cutoff) {
			continue
		}
		if evicted == nil {
			evicted = make(map[string][]Job)
		}
		evicted[id] = g.jobs()
		delete(a.groups, id)
	}

	return evicted
}

// Drain removes every pending bundle and returns their jobs.
func (a *Aggregator) Drain() []Job {
	var out []Job
	for id, g := range a.groups {
		out = append(out, g.jobs()...)
		delete(a.groups, id)
	}
	return out
}
