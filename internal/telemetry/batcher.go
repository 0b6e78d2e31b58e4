package telemetry

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/sweeney/fridge-daemon/internal/retry"
	"github.com/sweeney/fridge-daemon/internal/sensor"
)

// DefaultMaxBuffered caps each buffer at one day of 1 Hz samples.
const DefaultMaxBuffered = 86400

// Uploader sends a batch of readings to the backend.
type Uploader interface {
	UploadReadings(ctx context.Context, token string, temperature, power []Reading) error
}

// TokenSource yields the current device token, or "" when the device has
// not been set up.
type TokenSource interface {
	Token() string
}

// BatcherConfig controls flushing.
type BatcherConfig struct {
	Interval    time.Duration
	Policy      retry.Policy
	MaxBuffered int
}

// Batcher owns the temperature and power buffers and decides when to hand
// them to the Uploader. Buffers are cleared only after a confirmed upload.
type Batcher struct {
	uploader Uploader
	tokens   TokenSource
	exec     *retry.Executor
	cfg      BatcherConfig

	temperature *ringBuffer
	power       *ringBuffer
	lastFlush   time.Time
}

// NewBatcher creates a Batcher. The flush interval is measured from the
// first call to MaybeFlush.
func NewBatcher(u Uploader, tokens TokenSource, exec *retry.Executor, cfg BatcherConfig) *Batcher {
	if cfg.MaxBuffered <= 0 {
		cfg.MaxBuffered = DefaultMaxBuffered
	}
	return &Batcher{
		uploader:    u,
		tokens:      tokens,
		exec:        exec,
		cfg:         cfg,
		temperature: newRingBuffer(string(sensor.Temperature), cfg.MaxBuffered),
		power:       newRingBuffer(string(sensor.Power), cfg.MaxBuffered),
	}
}

// Add appends a reading to the buffer for its kind.
func (b *Batcher) Add(r Reading) {
	switch r.Kind {
	case sensor.Temperature:
		b.temperature.push(r)
	case sensor.Power:
		b.power.push(r)
	default:
		log.Printf("telemetry: ignoring reading of unknown kind %q", r.Kind)
	}
}

// MaybeFlush uploads both buffers if the interval has elapsed since the
// last successful flush. It is a no-op when not due. On failure the buffers
// and the flush time are left untouched so the next call retries at once.
func (b *Batcher) MaybeFlush(ctx context.Context, now time.Time) error {
	if b.lastFlush.IsZero() {
		b.lastFlush = now
		return nil
	}
	if now.Sub(b.lastFlush) < b.cfg.Interval {
		return nil
	}

	temps, powers := b.temperature.items(), b.power.items()
	if len(temps) == 0 && len(powers) == 0 {
		b.lastFlush = now
		return nil
	}

	token := ""
	if b.tokens != nil {
		token = b.tokens.Token()
	}
	if token == "" {
		// Keep the data for when the device is set up, but don't warn every cycle.
		log.Printf("telemetry: not configured, holding %d temperature and %d power readings", len(temps), len(powers))
		b.lastFlush = now
		return nil
	}

	err := b.exec.Do(ctx, "telemetry: upload", b.cfg.Policy, func(ctx context.Context) error {
		return b.uploader.UploadReadings(ctx, token, temps, powers)
	})
	if err != nil {
		return fmt.Errorf("upload %d temperature and %d power readings: %w", len(temps), len(powers), err)
	}

	log.Printf("telemetry: uploaded %d temperature and %d power readings", len(temps), len(powers))
	b.temperature.clear()
	b.power.clear()
	b.lastFlush = now
	return nil
}

// Buffered returns the number of readings awaiting upload per kind.
func (b *Batcher) Buffered() (temperature, power int) {
	return b.temperature.len(), b.power.len()
}

// Dropped returns how many readings have been evicted since start.
func (b *Batcher) Dropped() int {
	return b.temperature.dropped + b.power.dropped
}

// LastFlush returns the time of the last successful (or empty) flush.
func (b *Batcher) LastFlush() time.Time {
	return b.lastFlush
}
