package gpio

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseSignal(t *testing.T) {
	tests := []struct {
		in      string
		want    bool
		wantErr bool
	}{
		{"closed", true, false},
		{"CLOSED\n", true, false},
		{"  open  ", false, false},
		{"Open\n", false, false},
		{"", false, true},
		{"ajar", false, true},
	}

	for _, tt := range tests {
		got, err := ParseSignal(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseSignal(%q): err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseSignal(%q): got %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFileSourceMissingFileReadsClosed(t *testing.T) {
	dir := t.TempDir()
	src, err := NewFileSource(filepath.Join(dir, "door"))
	if err != nil {
		t.Fatalf("NewFileSource: %v", err)
	}

	closed, err := src.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !closed {
		t.Error("missing signal file should read closed")
	}
}

func TestFileSourceFollowsWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "door")
	src, err := NewFileSource(path)
	if err != nil {
		t.Fatalf("NewFileSource: %v", err)
	}

	if err := WriteSignal(path, false); err != nil {
		t.Fatalf("WriteSignal: %v", err)
	}
	closed, err := src.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if closed {
		t.Error("expected open after writing open")
	}

	if err := WriteSignal(path, true); err != nil {
		t.Fatalf("WriteSignal: %v", err)
	}
	closed, _ = src.Read()
	if !closed {
		t.Error("expected closed after writing closed")
	}

	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary signal file left behind")
	}
}

func TestFileSourceGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "door")
	os.WriteFile(path, []byte("maybe"), 0644)
	src, _ := NewFileSource(path)

	if _, err := src.Read(); err == nil {
		t.Error("expected error for unrecognised contents")
	}
}

func TestNewFileSourceMissingDirectory(t *testing.T) {
	if _, err := NewFileSource(filepath.Join(t.TempDir(), "nope", "door")); err == nil {
		t.Error("expected error for missing directory")
	}
	if _, err := NewFileSource(""); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestManualSource(t *testing.T) {
	m := NewManualSource()

	closed, _ := m.Read()
	if !closed {
		t.Error("manual source should start closed")
	}

	m.SimulateOpen()
	closed, _ = m.Read()
	if closed {
		t.Error("expected open after SimulateOpen")
	}

	m.SimulateClosed()
	closed, _ = m.Read()
	if !closed {
		t.Error("expected closed after SimulateClosed")
	}
}
