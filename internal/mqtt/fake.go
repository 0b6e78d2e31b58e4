package mqtt

import (
	"sync"

	"github.com/sweeney/fridge-daemon/internal/capture"
	"github.com/sweeney/fridge-daemon/internal/door"
)

// FakePublisher records published events for test assertions. It is safe
// for concurrent use since the daemon publishes from several goroutines.
type FakePublisher struct {
	mu sync.Mutex

	// DoorEvents contains all door transitions that were published.
	DoorEvents []door.Event

	// Captures contains all capture results that were published.
	Captures []capture.Result

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// Payloads contains every JSON payload in publish order.
	Payloads [][]byte

	// PublishError, if set, will be returned by every publish call.
	PublishError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// PublishDoor records the door event.
func (f *FakePublisher) PublishDoor(event door.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	payload, err := FormatDoorPayload(event)
	if err != nil {
		return err
	}
	f.DoorEvents = append(f.DoorEvents, event)
	f.Payloads = append(f.Payloads, payload)
	return nil
}

// PublishCapture records the capture result.
func (f *FakePublisher) PublishCapture(result capture.Result) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	payload, err := FormatCapturePayload(result)
	if err != nil {
		return err
	}
	f.Captures = append(f.Captures, result)
	f.Payloads = append(f.Payloads, payload)
	return nil
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemEvents = append(f.SystemEvents, event)
	f.Payloads = append(f.Payloads, payload)
	return nil
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

// SystemEventNames returns the Event field of each recorded system event.
func (f *FakePublisher) SystemEventNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, len(f.SystemEvents))
	for i, e := range f.SystemEvents {
		names[i] = e.Event
	}
	return names
}

// DoorCount returns the number of recorded door events.
func (f *FakePublisher) DoorCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.DoorEvents)
}

// Reset clears recorded events.
func (f *FakePublisher) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.DoorEvents = nil
	f.Captures = nil
	f.SystemEvents = nil
	f.Payloads = nil
	f.Closed = false
	f.PublishError = nil
	f.Connected = false
}
