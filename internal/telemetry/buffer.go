package telemetry

import "log"

// ringBuffer holds readings that have not been acknowledged by the backend.
// Once full, each push evicts the oldest reading.
// Not safe for concurrent use; it is owned by the sampling goroutine.
type ringBuffer struct {
	name     string
	buf      []Reading
	capacity int
	head     int  // oldest item once the buffer is full
	overflow bool // true while evicting, until the next clear
	dropped  int
}

func newRingBuffer(name string, capacity int) *ringBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &ringBuffer{name: name, capacity: capacity}
}

func (r *ringBuffer) push(rd Reading) {
	if len(r.buf) < r.capacity {
		r.buf = append(r.buf, rd)
		return
	}
	if !r.overflow {
		log.Printf("telemetry: %s buffer full (%d readings), dropping oldest", r.name, r.capacity)
		r.overflow = true
	}
	r.buf[r.head] = rd
	r.head = (r.head + 1) % r.capacity
	r.dropped++
}

// items returns the buffered readings oldest first without removing them.
func (r *ringBuffer) items() []Reading {
	if len(r.buf) == 0 {
		return nil
	}
	out := make([]Reading, len(r.buf))
	n := copy(out, r.buf[r.head:])
	copy(out[n:], r.buf[:r.head])
	return out
}

func (r *ringBuffer) clear() {
	r.buf = r.buf[:0]
	r.head = 0
	r.overflow = false
}

func (r *ringBuffer) len() int {
	return len(r.buf)
}
