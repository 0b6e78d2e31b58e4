// Package snapshot publishes the latest sensor values to a well-known file
// for consumers outside the daemon process.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/sweeney/fridge-daemon/internal/atomicfile"
)

// DefaultPath is where the snapshot is published unless configured otherwise.
const DefaultPath = "/tmp/fridge_sensor_data.json"

// Snapshot is the most recent pair of readings.
type Snapshot struct {
	Temperature float64   `json:"temperature"`
	Power       float64   `json:"power"`
	Timestamp   time.Time `json:"timestamp"`
	LastUpdate  time.Time `json:"last_update"`
}

// ErrStale is returned by ReadFresh when the snapshot is older than allowed.
var ErrStale = errors.New("snapshot is stale")

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Write publishes s to path. Readers see either the previous snapshot or
// this one, never a mix.
func Write(path string, s Snapshot) error {
	s.Temperature = round2(s.Temperature)
	s.Power = round2(s.Power)
	if err := atomicfile.WriteJSON(path, s, 0644); err != nil {
		return fmt.Errorf("publish snapshot: %w", err)
	}
	return nil
}

// Read loads the snapshot at path. A missing file is reported with an error
// satisfying errors.Is(err, os.ErrNotExist).
func Read(path string) (Snapshot, error) {
	var s Snapshot
	data, err := os.ReadFile(path)
	if err != nil {
		return s, err
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("parse snapshot: %w", err)
	}
	return s, nil
}

// ReadFresh loads the snapshot and rejects it with ErrStale if its
// LastUpdate is more than maxAge before now.
func ReadFresh(path string, maxAge time.Duration, now time.Time) (Snapshot, error) {
	s, err := Read(path)
	if err != nil {
		return s, err
	}
	if age := now.Sub(s.LastUpdate); age > maxAge {
		return s, fmt.Errorf("%w: last update %s ago", ErrStale, age.Truncate(time.Second))
	}
	return s, nil
}
