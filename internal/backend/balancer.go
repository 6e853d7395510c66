package backend

import (
	"crypto/rand"
	"encoding/binary"
)

// NoBackend is returned by Select when every slot is at its cap.
const NoBackend = -1

// Balancer picks the least-loaded slot whose active count is below
// limit. It must not change any slot.
type Balancer interface {
	Select(slots []*Slot, limit int64) int
}

// NewBalancer returns the random tie-breaking balancer when randomize is
// set and the first-minimum balancer otherwise.
func NewBalancer(randomize bool) Balancer {
	if randomize {
		return NewRandomMinimumBalancer()
	}
	return FirstMinimumBalancer{}
}

// FirstMinimumBalancer returns the lowest-indexed slot with the smallest
// active count.
type FirstMinimumBalancer struct{}

// Select implements Balancer.
func (FirstMinimumBalancer) Select(slots []*Slot, limit int64) int {
	selected := NoBackend
	minActive := limit

	for i, s := range slots {
		if a := s.Active(); a < minActive {
			minActive = a
			selected = i
		}
	}

	return selected
}

// RandomMinimumBalancer picks uniformly among every slot tied for the
// smallest active count.
type RandomMinimumBalancer struct {
	intn func(n int) int
}

// NewRandomMinimumBalancer creates a balancer backed by crypto/rand.
func NewRandomMinimumBalancer() *RandomMinimumBalancer {
	return &RandomMinimumBalancer{intn: secureRandomInt}
}

// Select implements Balancer. Only slots below limit are candidates.
func (b *RandomMinimumBalancer) Select(slots []*Slot, limit int64) int {
	minActive := limit
	candidates := make([]int, 0, len(slots))

	for i, s := range slots {
		a := s.Active()
		switch {
		case a < minActive:
			minActive = a
			candidates = append(candidates[:0], i)
		case a == minActive && a < limit:
			candidates = append(candidates, i)
		}
	}

	if len(candidates) == 0 {
		return NoBackend
	}
	return candidates[b.intn(len(candidates))]
}

// secureRandomInt returns a uniform value in [0, n).
func secureRandomInt(n int) int {
	if n <= 1 {
		return 0
	}
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0
	}
	return int(binary.LittleEndian.Uint64(b[:]) % uint64(n)) //nolint:gosec // bounded by n
}
