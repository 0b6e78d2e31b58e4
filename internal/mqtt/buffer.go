package mqtt

import "log"

// DefaultBufferSize is how many messages are held while disconnected.
const DefaultBufferSize = 500

// pendingMsg is a serialized message waiting for the connection to return.
type pendingMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// outbox holds messages published while the broker is unreachable. When
// full, the oldest message is dropped. Not safe for concurrent use; the
// publisher's mutex guards it.
type outbox struct {
	msgs     []pendingMsg
	capacity int
	head     int  // oldest message once full
	overflow bool // true while dropping, until the next drain
	dropped  int
}

func newOutbox(capacity int) *outbox {
	if capacity < 1 {
		capacity = DefaultBufferSize
	}
	return &outbox{capacity: capacity}
}

func (o *outbox) push(msg pendingMsg) {
	if len(o.msgs) < o.capacity {
		o.msgs = append(o.msgs, msg)
		return
	}
	if !o.overflow {
		log.Printf("mqtt: buffer full (%d messages), dropping oldest", o.capacity)
		o.overflow = true
	}
	o.msgs[o.head] = msg
	o.head = (o.head + 1) % o.capacity
	o.dropped++
}

// drain removes and returns every message, oldest first.
func (o *outbox) drain() []pendingMsg {
	if len(o.msgs) == 0 {
		return nil
	}
	out := make([]pendingMsg, 0, len(o.msgs))
	out = append(out, o.msgs[o.head:]...)
	out = append(out, o.msgs[:o.head]...)

	o.msgs = nil
	o.head = 0
	o.overflow = false
	return out
}

func (o *outbox) len() int {
	return len(o.msgs)
}
