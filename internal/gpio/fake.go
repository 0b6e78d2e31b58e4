package gpio

import "errors"

// FakeSource replays a script of door readings (true = closed).
type FakeSource struct {
	// Samples is the script. Once it runs out the final entry sticks, so a
	// test only has to describe the changes it cares about.
	Samples []bool

	// ReadError makes every Read fail without consuming a sample.
	ReadError error

	// Reads counts every Read call, failed ones included.
	Reads int

	Closed bool

	served int // successful reads so far
}

// NewFakeSource scripts a FakeSource.
func NewFakeSource(samples ...bool) *FakeSource {
	return &FakeSource{Samples: samples}
}

// Read serves the next scripted reading.
func (f *FakeSource) Read() (bool, error) {
	f.Reads++
	switch {
	case f.ReadError != nil:
		return false, f.ReadError
	case len(f.Samples) == 0:
		return false, errors.New("fake door: empty script")
	}
	i := min(f.served, len(f.Samples)-1)
	f.served++
	return f.Samples[i], nil
}

// Close records the call.
func (f *FakeSource) Close() error {
	f.Closed = true
	return nil
}

// Reset rewinds the script and clears the counters.
func (f *FakeSource) Reset() {
	f.served, f.Reads, f.Closed = 0, 0, false
}
