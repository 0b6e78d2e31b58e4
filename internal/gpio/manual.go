package gpio

import "sync"

// ManualSource holds a door signal that is driven through SimulateOpen and
// SimulateClosed. It starts closed. Safe for concurrent use: the HTTP
// server writes while the door monitor reads.
type ManualSource struct {
	mu     sync.Mutex
	closed bool
}

// NewManualSource creates a ManualSource reading closed.
func NewManualSource() *ManualSource {
	return &ManualSource{closed: true}
}

// Read returns the last simulated state.
func (m *ManualSource) Read() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed, nil
}

// SimulateOpen makes subsequent reads return open.
func (m *ManualSource) SimulateOpen() {
	m.mu.Lock()
	m.closed = false
	m.mu.Unlock()
}

// SimulateClosed makes subsequent reads return closed.
func (m *ManualSource) SimulateClosed() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
}

// Close is a no-op.
func (m *ManualSource) Close() error {
	return nil
}
