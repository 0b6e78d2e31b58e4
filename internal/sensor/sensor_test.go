package sensor

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestRandomStaysInRange(t *testing.T) {
	r, err := NewRandom(0, 10, 42)
	if err != nil {
		t.Fatalf("NewRandom: %v", err)
	}
	for i := 0; i < 1000; i++ {
		v, err := r.Read()
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		if v < 0 || v >= 10 {
			t.Fatalf("value %g out of range", v)
		}
	}
}

func TestRandomRejectsEmptyRange(t *testing.T) {
	if _, err := NewRandom(5, 5, 1); err == nil {
		t.Error("expected error for empty range")
	}
}

func TestFileSensorScales(t *testing.T) {
	path := filepath.Join(t.TempDir(), "temp1_input")
	os.WriteFile(path, []byte("4250\n"), 0644)

	f, err := NewFile(path, 1000)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	v, err := f.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if v != 4.25 {
		t.Errorf("got %g, want 4.25", v)
	}
}

func TestFileSensorErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := NewFile(filepath.Join(dir, "missing"), 1); err == nil {
		t.Error("expected error for missing file")
	}

	path := filepath.Join(dir, "garbage")
	os.WriteFile(path, []byte("n/a"), 0644)
	if _, err := NewFile(path, 1); err == nil {
		t.Error("expected error for unparsable file")
	}
}

func TestFakeScript(t *testing.T) {
	f := NewFake(1, 2)
	f.Errors = []error{nil, nil, errors.New("i2c timeout")}

	want := []struct {
		v   float64
		err bool
	}{{1, false}, {2, false}, {0, true}, {2, false}}

	for i, w := range want {
		v, err := f.Read()
		if (err != nil) != w.err {
			t.Fatalf("read %d: err = %v, wantErr %v", i, err, w.err)
		}
		if err == nil && v != w.v {
			t.Errorf("read %d: got %g, want %g", i, v, w.v)
		}
	}
}

func TestKindUnit(t *testing.T) {
	if Temperature.Unit() != "°C" {
		t.Errorf("temperature unit: %q", Temperature.Unit())
	}
	if Power.Unit() != "W" {
		t.Errorf("power unit: %q", Power.Unit())
	}
}
