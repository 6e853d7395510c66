package scheduler

// queue is the admission queue. It is guarded by the scheduler mutex.
type queue struct {
	units []*Unit
}

func (q *queue) push(u *Unit) {
	q.units = append(q.units, u)
}

func (q *queue) len() int {
	return len(q.units)
}

// next returns the index of the earliest unit holding the highest
// priority, or -1 when the queue is empty. The first unit seeds the
// running maximum and only a strictly greater priority replaces it, so
// negative priorities are ordered too.
func (q *queue) next() int {
	idx := -1
	best := -1
	for i, u := range q.units {
		if idx == -1 || u.Priority > best {
			idx = i
			best = u.Priority
		}
	}
	return idx
}

func (q *queue) remove(i int) *Unit {
	u := q.units[i]
	copy(q.units[i:], q.units[i+1:])
	q.units[len(q.units)-1] = nil
	q.units = q.units[:len(q.units)-1]
	return u
}

// drain empties the queue and returns its units.
func (q *queue) drain() []*Unit {
	out := q.units
	q.units = nil
	return out
}
