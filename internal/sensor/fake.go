package sensor

import "errors"

// Fake is a test double that returns scripted values.
type Fake struct {
	// Values are returned in order; the last one repeats.
	Values []float64

	// Errors, when non-nil at the read's index, is returned instead of a value.
	Errors []error

	// ReadError, if set, is returned by every Read.
	ReadError error

	Closed bool
	Reads  int
}

// NewFake creates a Fake with the given values.
func NewFake(values ...float64) *Fake {
	return &Fake{Values: values}
}

// Read returns the next scripted value.
func (f *Fake) Read() (float64, error) {
	i := f.Reads
	f.Reads++
	if f.ReadError != nil {
		return 0, f.ReadError
	}
	if i < len(f.Errors) && f.Errors[i] != nil {
		return 0, f.Errors[i]
	}
	if len(f.Values) == 0 {
		return 0, errors.New("no values configured")
	}
	if i >= len(f.Values) {
		i = len(f.Values) - 1
	}
	return f.Values[i], nil
}

// Close marks the sensor as closed.
func (f *Fake) Close() error {
	f.Closed = true
	return nil
}
