package gpio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Signal file contents understood by FileSource.
const (
	SignalOpen   = "open"
	SignalClosed = "closed"
)

// FileSource reads the door signal from a file that another process (or
// the `door` subcommand) writes. A missing file reads as closed.
type FileSource struct {
	path string
}

// NewFileSource checks that the signal file's directory exists.
func NewFileSource(path string) (*FileSource, error) {
	if path == "" {
		return nil, errors.New("signal file path is empty")
	}
	dir := filepath.Dir(path)
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("signal file directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("signal file directory %s is not a directory", dir)
	}
	return &FileSource{path: path}, nil
}

// Read returns true when the file says closed or does not exist.
func (f *FileSource) Read() (bool, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return true, nil
		}
		return false, fmt.Errorf("read signal file: %w", err)
	}
	return ParseSignal(string(data))
}

// Close is a no-op.
func (f *FileSource) Close() error {
	return nil
}

// ParseSignal converts signal file contents to the closed flag.
func ParseSignal(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case SignalClosed:
		return true, nil
	case SignalOpen:
		return false, nil
	default:
		return false, fmt.Errorf("unrecognised door signal %q", strings.TrimSpace(s))
	}
}

// WriteSignal replaces the signal file atomically.
func WriteSignal(path string, closed bool) error {
	v := SignalOpen
	if closed {
		v = SignalClosed
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(v+"\n"), 0644); err != nil {
		return fmt.Errorf("write signal file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename signal file: %w", err)
	}
	return nil
}
