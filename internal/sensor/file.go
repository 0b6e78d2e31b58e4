package sensor

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// File reads a numeric value from a file such as a sysfs hwmon or thermal
// node. The raw value is divided by Scale (1000 for millidegrees).
type File struct {
	path  string
	scale float64
}

// NewFile checks that the file is readable and parses.
func NewFile(path string, scale float64) (*File, error) {
	if scale == 0 {
		scale = 1
	}
	f := &File{path: path, scale: scale}
	if _, err := f.Read(); err != nil {
		return nil, err
	}
	return f, nil
}

// Read returns the scaled value.
func (f *File) Read() (float64, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", f.path, err)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", f.path, err)
	}
	return v / f.scale, nil
}

// Close is a no-op.
func (f *File) Close() error {
	return nil
}
