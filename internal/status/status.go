// Package status provides a thread-safe status tracker for the fridge daemon.
// It is read by the HTTP handlers and the MQTT heartbeat.
package status

import (
	"sort"
	"sync"
	"time"

	"github.com/sweeney/fridge-daemon/internal/capture"
	"github.com/sweeney/fridge-daemon/internal/credential"
	"github.com/sweeney/fridge-daemon/internal/door"
	"github.com/sweeney/fridge-daemon/internal/telemetry"
)

// Config contains daemon configuration for display.
type Config struct {
	Device          string
	DoorSource      string
	DoorPollMs      int64
	DebounceMs      int64
	SamplePollMs    int64
	UploadMs        int64
	HeartbeatMs     int64
	ValidateAfterMs int64
	APIBase         string
	Broker          string
	HTTPAddr        string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	Door          door.Status
	DoorCounts    door.Counts
	Telemetry     telemetry.Stats
	Credential    credential.Status
	LastCapture   *capture.Result
	Captures      int
	Degraded      []string
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			Door:      door.Status{State: door.StateUnknown},
			StartTime: startTime,
			Config:    cfg,
		},
		now: time.Now,
	}
}

// WithClock replaces the clock used to stamp snapshots. Used by tests.
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

// UpdateDoor records the confirmed door state and transition counts.
func (t *Tracker) UpdateDoor(st door.Status, counts door.Counts) {
	t.mu.Lock()
	t.snap.Door = st
	t.snap.DoorCounts = counts
	t.mu.Unlock()
}

// UpdateTelemetry records the outcome of the latest sampling cycle.
func (t *Tracker) UpdateTelemetry(s telemetry.Stats) {
	t.mu.Lock()
	t.snap.Telemetry = s
	t.mu.Unlock()
}

// UpdateCredential records the credential lifecycle state.
func (t *Tracker) UpdateCredential(s credential.Status) {
	t.mu.Lock()
	t.snap.Credential = s
	t.mu.Unlock()
}

// RecordCapture stores the result of a finished capture sequence.
func (t *Tracker) RecordCapture(r capture.Result) {
	t.mu.Lock()
	t.snap.LastCapture = &r
	t.snap.Captures++
	t.mu.Unlock()
}

// SetDegraded marks an optional feature as unavailable.
func (t *Tracker) SetDegraded(feature string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, f := range t.snap.Degraded {
		if f == feature {
			return
		}
	}
	t.snap.Degraded = append(t.snap.Degraded, feature)
	sort.Strings(t.snap.Degraded)
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	if s.LastCapture != nil {
		c := *s.LastCapture
		s.LastCapture = &c
	}
	s.Degraded = append([]string(nil), s.Degraded...)
	t.mu.RUnlock()
	s.Now = t.now()
	return s
}
