package door

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/sweeney/fridge-daemon/internal/gpio"
	"github.com/sweeney/fridge-daemon/internal/retry"
)

// Monitor polls a door signal source and confirms changes with a single
// re-read after the debounce interval.
type Monitor struct {
	source   gpio.Source
	debounce time.Duration
	now      func() time.Time
	sleep    retry.SleepFunc

	onOpened []Handler
	onClosed []Handler
	onPoll   func(Status, Counts)

	// mu guards status and counts. Only the monitor goroutine writes them;
	// the lock lets the status page read them.
	mu     sync.RWMutex
	status Status
	counts Counts
}

// NewMonitor creates a Monitor in the unknown state.
func NewMonitor(source gpio.Source, debounce time.Duration) *Monitor {
	return &Monitor{
		source:   source,
		debounce: debounce,
		now:      time.Now,
		sleep:    retry.Sleep,
		status:   Status{State: StateUnknown},
	}
}

// WithClock replaces the time source and the debounce sleep. For tests.
func (m *Monitor) WithClock(now func() time.Time, sleep retry.SleepFunc) *Monitor {
	m.now = now
	m.sleep = sleep
	return m
}

// OnOpened registers a handler for confirmed open transitions.
// Handlers must be registered before Run is started.
func (m *Monitor) OnOpened(h Handler) {
	m.onOpened = append(m.onOpened, h)
}

// OnClosed registers a handler for confirmed closed transitions.
// Handlers must be registered before Run is started.
func (m *Monitor) OnClosed(h Handler) {
	m.onClosed = append(m.onClosed, h)
}

// OnPoll registers a function called by Run after every poll with the
// confirmed state, including the silent baseline.
func (m *Monitor) OnPoll(fn func(Status, Counts)) {
	m.onPoll = fn
}

// Status returns the confirmed state.
func (m *Monitor) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// Counts returns the confirmed transition counts.
func (m *Monitor) Counts() Counts {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counts
}

// Run polls on every tick until ctx is done. It never returns an error for
// a failed read; the failure is logged and treated as no change.
func (m *Monitor) Run(ctx context.Context, tick <-chan time.Time) error {
	log.Printf("door: monitor started (debounce=%v)", m.debounce)
	for {
		select {
		case <-ctx.Done():
			log.Printf("door: monitor stopped")
			return nil
		case <-tick:
			m.Poll(ctx)
			if m.onPoll != nil {
				m.onPoll(m.Status(), m.Counts())
			}
		}
	}
}

// Poll performs one monitor cycle and returns the confirmed event, if any.
// The first successful read establishes the baseline without an event.
func (m *Monitor) Poll(ctx context.Context) *Event {
	closed, err := m.source.Read()
	if err != nil {
		log.Printf("door: read error: %v", err)
		return nil
	}
	observed := stateFor(closed)

	current := m.Status().State
	if current == StateUnknown {
		m.setStatus(Status{State: observed, LastChange: m.now()})
		log.Printf("door: baseline %s", observed)
		return nil
	}
	if observed == current {
		return nil
	}

	if err := m.sleep(ctx, m.debounce); err != nil {
		return nil
	}

	closed, err = m.source.Read()
	if err != nil {
		log.Printf("door: read error during debounce: %v", err)
		return nil
	}
	if stateFor(closed) != observed {
		log.Printf("door: ignored bounce to %s", observed)
		return nil
	}

	event := Event{Timestamp: m.now()}
	m.mu.Lock()
	m.status = Status{State: observed, LastChange: event.Timestamp}
	if observed == StateClosed {
		event.Type = EventClosed
		m.counts.Closed++
	} else {
		event.Type = EventOpened
		m.counts.Opened++
	}
	m.mu.Unlock()

	log.Printf("door: %s", observed)
	m.dispatch(event)
	return &event
}

func (m *Monitor) setStatus(s Status) {
	m.mu.Lock()
	m.status = s
	m.mu.Unlock()
}

func (m *Monitor) dispatch(event Event) {
	handlers := m.onOpened
	if event.Type == EventClosed {
		handlers = m.onClosed
	}
	for _, h := range handlers {
		m.invoke(h, event)
	}
}

// invoke shields the monitor goroutine from a panicking handler.
func (m *Monitor) invoke(h Handler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("door: handler for %s panicked: %v", event.Type, r)
		}
	}()
	h(event)
}
