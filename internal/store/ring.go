package store

import "decharge/gateway/internal/net/proto"

// DefaultRecentEvents is the capacity of the recent-event ring.
const DefaultRecentEvents = 200

// ring keeps the most recent events in insertion order, dropping the oldest
// once full.
type ring struct {
	buf   []proto.Event
	start int
	size  int
}

func newRing(capacity int) *ring {
	if capacity <= 0 {
		capacity = DefaultRecentEvents
	}
	return &ring{buf: make([]proto.Event, capacity)}
}

func (r *ring) push(event proto.Event) {
	if r.size < len(r.buf) {
		r.buf[(r.start+r.size)%len(r.buf)] = event
		r.size++
		return
	}
	r.buf[r.start] = event
	r.start = (r.start + 1) % len(r.buf)
}

// last returns up to n of the newest events, oldest first. n <= 0 means all.
func (r *ring) last(n int) []proto.Event {
	if n <= 0 || n > r.size {
		n = r.size
	}
	out := make([]proto.Event, 0, n)
	for i := r.size - n; i < r.size; i++ {
		out = append(out, r.buf[(r.start+i)%len(r.buf)])
	}
	return out
}

func (r *ring) len() int { return r.size }
