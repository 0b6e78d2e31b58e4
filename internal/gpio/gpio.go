// Package gpio provides the raw door signal with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The file and manual sources stand in for the reed switch on machines
// without one; the fake source scripts samples for tests.
package gpio

// Source reads the raw, unfiltered door signal.
type Source interface {
	// Read returns true when the door is closed.
	Read() (closed bool, err error)

	// Close releases the source's resources.
	Close() error
}

// Defaults for the reed switch wiring (BCM numbering).
const (
	DefaultChip = "gpiochip0"
	DefaultPin  = 17
)
