package daemon

import (
	"fmt"
	"time"

	"github.com/sweeney/fridge-daemon/internal/capture"
	"github.com/sweeney/fridge-daemon/internal/config"
	"github.com/sweeney/fridge-daemon/internal/gpio"
	"github.com/sweeney/fridge-daemon/internal/mqtt"
	"github.com/sweeney/fridge-daemon/internal/retry"
	"github.com/sweeney/fridge-daemon/internal/sensor"
)

// NewDoorSource opens the door signal source selected by cfg.
func NewDoorSource(cfg config.DoorConfig) (gpio.Source, error) {
	switch cfg.Source {
	case config.DoorGPIO:
		return gpio.NewRealSource(cfg.Chip, cfg.Pin, cfg.PullUp)
	case config.DoorFile:
		return gpio.NewFileSource(cfg.SignalFile)
	case config.DoorManual:
		return gpio.NewManualSource(), nil
	}
	return nil, fmt.Errorf("unknown door source %q", cfg.Source)
}

func newSensor(cfg config.SensorConfig, seed int64) (sensor.Sensor, error) {
	switch cfg.Driver {
	case config.SensorRandom:
		return sensor.NewRandom(cfg.Min, cfg.Max, seed)
	case config.SensorFile:
		return sensor.NewFile(cfg.Path, cfg.Scale)
	}
	return nil, fmt.Errorf("unknown sensor driver %q", cfg.Driver)
}

func sensorFactory(cfg config.SensorConfig, seed int64) func() (sensor.Sensor, error) {
	if cfg.Driver == config.SensorNone {
		return nil
	}
	return func() (sensor.Sensor, error) { return newSensor(cfg, seed) }
}

// FactoriesFromConfig returns factories for the hardware and services
// described by cfg.
func FactoriesFromConfig(cfg *config.Config, exec *retry.Executor) Factories {
	seed := time.Now().UnixNano()
	f := Factories{
		Door:        func() (gpio.Source, error) { return NewDoorSource(cfg.Door) },
		Temperature: sensorFactory(cfg.Sensors.Temperature, seed),
		Power:       sensorFactory(cfg.Sensors.Power, seed+1),
	}

	if cam := cfg.Capture.Camera; cam.Enabled {
		f.Camera = func() (capture.Camera, error) {
			return capture.NewGStreamerCamera(capture.GStreamerConfig{
				DeviceNames: cam.DeviceNames,
				ImageDir:    cam.ImageDir,
				PixelFormat: cam.PixelFormat,
				Timeout:     cam.Timeout.D(),
				Policy:      cam.Retry.Policy(),
			}, exec)
		}
	}

	if rec := cfg.Capture.Recognizer; rec.Command != "" {
		f.Recognizer = func() (capture.Recognizer, error) {
			return capture.NewCommandRecognizer(capture.RecognizerConfig{
				Command:       rec.Command,
				Args:          rec.Args,
				Timeout:       rec.Timeout.D(),
				MinConfidence: rec.MinConfidence,
				Policy:        rec.Retry.Policy(),
			}, exec)
		}
	}

	if m := cfg.MQTT; m.Broker != "" {
		f.Publisher = func() (mqtt.Publisher, error) {
			return mqtt.NewRealPublisher(mqtt.Config{
				Broker:     m.Broker,
				ClientID:   m.ClientID,
				Device:     cfg.Device,
				BufferSize: m.BufferSize,
			}), nil
		}
	}
	return f
}
