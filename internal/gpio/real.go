//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealSource reads the reed switch through the Linux GPIO character device.
type RealSource struct {
	chip   *gpiocdev.Chip
	line   *gpiocdev.Line
	pullUp bool
}

// NewRealSource requests the reed switch line as an input.
// With pullUp the line idles high, so a closed door (magnet near, switch
// closed to ground) reads 0. Without it the line idles low and a closed
// door reads 1.
func NewRealSource(chipName string, pin int, pullUp bool) (*RealSource, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", chipName, err)
	}

	bias := gpiocdev.WithPullDown
	if pullUp {
		bias = gpiocdev.WithPullUp
	}

	line, err := chip.RequestLine(pin, gpiocdev.AsInput, bias)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request door pin %d: %w", pin, err)
	}

	return &RealSource{chip: chip, line: line, pullUp: pullUp}, nil
}

// Read returns true when the door is closed.
func (r *RealSource) Read() (bool, error) {
	v, err := r.line.Value()
	if err != nil {
		return false, fmt.Errorf("read door pin: %w", err)
	}
	if r.pullUp {
		return v == 0, nil
	}
	return v == 1, nil
}

// Close releases the line and the chip.
// The line is returned to a plain pulled-down input first so the pin is
// left in the Pi's boot default state.
func (r *RealSource) Close() error {
	var errs []error

	if r.line != nil {
		if err := r.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure door pin: %w", err))
		}
		if err := r.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close door pin: %w", err))
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
