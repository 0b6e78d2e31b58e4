package capture

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/sweeney/fridge-daemon/internal/retry"
)

func TestParseDetections(t *testing.T) {
	out := []byte(`[
		{"label": "CocaCola_1.5L_Bottle", "confidence": 0.91},
		{"name": "Milk", "brand": "BrandA", "size": "1L", "quantity": 2},
		{"name": "Cheese"},
		{"label": "apple", "confidence": 0.2},
		{"confidence": 0.99}
	]`)

	got, err := parseDetections(out, 0.5)
	if err != nil {
		t.Fatalf("parseDetections: %v", err)
	}
	want := []Product{
		{Name: "Bottle", Brand: "CocaCola", Size: "1.5L", Quantity: 1},
		{Name: "Milk", Brand: "BrandA", Size: "1L", Quantity: 2},
		{Name: "Cheese", Brand: "Generic", Size: "N/A", Quantity: 1},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v\nwant %+v", got, want)
	}
}

func TestParseDetectionsInvalid(t *testing.T) {
	if _, err := parseDetections([]byte("Traceback (most recent call last)"), 0); err == nil {
		t.Error("expected parse error")
	}
}

func newTestRecognizer(run runFunc) *CommandRecognizer {
	return &CommandRecognizer{
		cfg:  RecognizerConfig{Args: []string{"--model", "fridge.pt"}, Timeout: time.Second, Policy: retry.Policy{Attempts: 2}},
		path: "/usr/bin/detect",
		exec: retry.NewWithSleep(func(ctx context.Context, d time.Duration) error { return nil }),
		run:  run,
	}
}

func TestDetectRunsPerImage(t *testing.T) {
	var argv [][]string
	r := newTestRecognizer(func(ctx context.Context, name string, args ...string) ([]byte, error) {
		argv = append(argv, append([]string{name}, args...))
		return []byte(`[{"name":"Milk","brand":"A","size":"1L"}]`), nil
	})

	got, err := r.Detect(context.Background(), []string{"a.jpg", "b.jpg"})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("expected one detection per image, got %+v", got)
	}
	if strings.Join(argv[1], " ") != "/usr/bin/detect --model fridge.pt b.jpg" {
		t.Errorf("argv: %v", argv[1])
	}
}

func TestDetectSkipsFailedImage(t *testing.T) {
	attempts := 0
	r := newTestRecognizer(func(ctx context.Context, name string, args ...string) ([]byte, error) {
		if args[len(args)-1] == "bad.jpg" {
			attempts++
			return nil, errors.New("exit status 1")
		}
		return []byte(`[{"label":"egg"}]`), nil
	})

	got, err := r.Detect(context.Background(), []string{"bad.jpg", "good.jpg"})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(got) != 1 || got[0].Name != "Egg" {
		t.Errorf("got %+v", got)
	}
	if attempts != 2 {
		t.Errorf("failed image attempts: got %d, want 2", attempts)
	}
}

func TestDetectAllFailed(t *testing.T) {
	r := newTestRecognizer(func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return nil, errors.New("no model")
	})
	if _, err := r.Detect(context.Background(), []string{"a.jpg"}); err == nil {
		t.Error("expected error when no image could be processed")
	}
}

func TestNewCommandRecognizerMissingBinary(t *testing.T) {
	_, err := NewCommandRecognizer(RecognizerConfig{Command: "definitely-not-a-real-recognizer"}, retry.New())
	if err == nil {
		t.Error("expected error for missing command")
	}
}
