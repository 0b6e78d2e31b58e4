package telemetry

import (
	"context"
	"log"
	"time"

	"github.com/sweeney/fridge-daemon/internal/sensor"
	"github.com/sweeney/fridge-daemon/internal/snapshot"
)

// Stats summarises the loop after a cycle.
type Stats struct {
	At          time.Time
	Temperature float64
	Power       float64
	// HaveTemperature and HavePower are set once that sensor has been read
	// successfully. Until then its value field is meaningless.
	HaveTemperature bool
	HavePower       bool
	BufferedTemp    int
	BufferedPower   int
	Dropped         int
	LastFlush       time.Time
	Cycles          int
	ReadErrors      int
	UploadErrors    int
}

// Loop samples the two sensors once per tick. Cycles never overlap because
// each one runs to completion on the loop's goroutine before the next tick
// is taken.
type Loop struct {
	temperature  sensor.Sensor // nil when unavailable
	power        sensor.Sensor // nil when unavailable
	batcher      *Batcher
	snapshotPath string
	now          func() time.Time
	observer     func(Stats)

	stats Stats
}

// NewLoop creates a sampling loop. Either sensor may be nil, in which case
// that kind is never sampled. An empty snapshotPath disables publishing.
func NewLoop(temperature, power sensor.Sensor, b *Batcher, snapshotPath string) *Loop {
	return &Loop{
		temperature:  temperature,
		power:        power,
		batcher:      b,
		snapshotPath: snapshotPath,
		now:          time.Now,
	}
}

// WithClock replaces the wall clock. Used by tests.
func (l *Loop) WithClock(now func() time.Time) *Loop {
	l.now = now
	return l
}

// OnCycle registers a function called with fresh Stats after every cycle.
func (l *Loop) OnCycle(fn func(Stats)) {
	l.observer = fn
}

// Run performs a cycle on every tick until ctx is done.
func (l *Loop) Run(ctx context.Context, tick <-chan time.Time) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick:
			l.Cycle(ctx, l.now())
		}
	}
}

// Cycle reads both sensors stamped with the same instant, buffers the
// readings, publishes the snapshot and gives the batcher a chance to flush.
// Failures are logged and never end the loop.
func (l *Loop) Cycle(ctx context.Context, at time.Time) {
	l.stats.Cycles++
	l.stats.At = at

	tempOK := l.sample(sensor.Temperature, l.temperature, at, &l.stats.Temperature)
	powerOK := l.sample(sensor.Power, l.power, at, &l.stats.Power)
	l.stats.HaveTemperature = l.stats.HaveTemperature || tempOK
	l.stats.HavePower = l.stats.HavePower || powerOK
	if (tempOK || powerOK) && l.stats.HaveTemperature && l.stats.HavePower {
		l.publish(at)
	}

	if l.batcher != nil {
		if err := l.batcher.MaybeFlush(ctx, at); err != nil {
			l.stats.UploadErrors++
			log.Printf("telemetry: %v", err)
		}
		l.stats.BufferedTemp, l.stats.BufferedPower = l.batcher.Buffered()
		l.stats.Dropped = l.batcher.Dropped()
		l.stats.LastFlush = l.batcher.LastFlush()
	}

	if l.observer != nil {
		l.observer(l.stats)
	}
}

// sample reads s and, on success, buffers the value and stores it in last.
func (l *Loop) sample(kind sensor.Kind, s sensor.Sensor, at time.Time, last *float64) bool {
	if s == nil {
		return false
	}
	v, err := s.Read()
	if err != nil {
		l.stats.ReadErrors++
		log.Printf("telemetry: %s read error: %v", kind, err)
		return false
	}
	*last = v
	if l.batcher != nil {
		l.batcher.Add(Reading{Kind: kind, Value: v, Timestamp: at})
	}
	return true
}

// publish writes the latest known values. It is only called once both
// sensors have produced a reading, so the file never carries a value that
// was not read. A sensor that failed this cycle keeps its previous value.
func (l *Loop) publish(at time.Time) {
	if l.snapshotPath == "" {
		return
	}
	err := snapshot.Write(l.snapshotPath, snapshot.Snapshot{
		Temperature: l.stats.Temperature,
		Power:       l.stats.Power,
		Timestamp:   at,
		LastUpdate:  l.now(),
	})
	if err != nil {
		log.Printf("telemetry: %v", err)
	}
}
