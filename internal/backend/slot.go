package backend

import (
	"fmt"
	"sync/atomic"
)

// Slot is one backend and its in-flight unit count.
type Slot struct {
	Index   int
	Address string
	active  atomic.Int64
}

// NewSlot creates a slot for address at position index.
func NewSlot(index int, address string) *Slot {
	return &Slot{Index: index, Address: address}
}

// Active returns the number of units currently executing on the slot.
func (s *Slot) Active() int64 {
	return s.active.Load()
}

// Acquire marks one more unit as executing and returns the new count.
func (s *Slot) Acquire() int64 {
	return s.active.Add(1)
}

// Release marks one unit as finished and returns the new count. It never
// drops below zero.
func (s *Slot) Release() int64 {
	for {
		cur := s.active.Load()
		if cur <= 0 {
			return 0
		}
		if s.active.CompareAndSwap(cur, cur-1) {
			return cur - 1
		}
	}
}

// URL returns the base URL of the backend.
func (s *Slot) URL(useTLS bool) string {
	scheme := "http"
	if useTLS {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s", scheme, s.Address)
}

// String implements fmt.Stringer.
func (s *Slot) String() string {
	return fmt.Sprintf("%d:%s", s.Index, s.Address)
}

// SlotStatus is a point-in-time view of one slot.
type SlotStatus struct {
	Index   int    `json:"index"`
	Address string `json:"address"`
	Active  int64  `json:"active"`
}

// Pool is the ordered, fixed set of backend slots.
type Pool struct {
	slots []*Slot
}

// NewPool creates a pool whose slot indices follow the order of
// addresses.
func NewPool(addresses []string) *Pool {
	slots := make([]*Slot, len(addresses))
	for i, addr := range addresses {
		slots[i] = NewSlot(i, addr)
	}
	return &Pool{slots: slots}
}

// Slots returns the slots in index order. The slice must not be modified.
func (p *Pool) Slots() []*Slot {
	return p.slots
}

// Len returns the number of slots.
func (p *Pool) Len() int {
	return len(p.slots)
}

// Slot returns the slot at index i or nil when out of range.
func (p *Pool) Slot(i int) *Slot {
	if i < 0 || i >= len(p.slots) {
		return nil
	}
	return p.slots[i]
}

// Addresses returns the configured addresses in index order.
func (p *Pool) Addresses() []string {
	out := make([]string, len(p.slots))
	for i, s := range p.slots {
		out[i] = s.Address
	}
	return out
}

// Snapshot returns the current status of every slot.
func (p *Pool) Snapshot() []SlotStatus {
	out := make([]SlotStatus, len(p.slots))
	for i, s := range p.slots {
		out[i] = SlotStatus{Index: s.Index, Address: s.Address, Active: s.Active()}
	}
	return out
}

// TotalActive returns the sum of all active counts.
func (p *Pool) TotalActive() int64 {
	var n int64
	for _, s := range p.slots {
		n += s.Active()
	}
	return n
}
