// Package telemetry samples the ambient sensors, keeps unacknowledged
// readings in bounded per-kind buffers and uploads them in batches.
package telemetry

import (
	"time"

	"github.com/sweeney/fridge-daemon/internal/sensor"
)

// Reading is one sensor value taken at a given instant.
type Reading struct {
	Kind      sensor.Kind
	Value     float64
	Timestamp time.Time
}
