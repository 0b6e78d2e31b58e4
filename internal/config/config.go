// Package config loads the daemon configuration from a YAML file.
//
// Every field has a default, so an empty file (or no file at all) yields a
// runnable development setup: random sensors, a manual door and no
// capture hardware. A handful of deployment-specific values can be
// overridden from the environment, which main populates from an optional
// .env file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/fridge-daemon/internal/capture"
	"github.com/sweeney/fridge-daemon/internal/credential"
	"github.com/sweeney/fridge-daemon/internal/gpio"
	"github.com/sweeney/fridge-daemon/internal/retry"
	"github.com/sweeney/fridge-daemon/internal/snapshot"
	"github.com/sweeney/fridge-daemon/internal/telemetry"
)

// EnvConfig names the variable holding the config file path.
const EnvConfig = "FRIDGE_CONFIG"

// Duration is a time.Duration written as a Go duration string ("1s",
// "500ms") in YAML.
type Duration time.Duration

// D returns the value as a time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

// String formats d like time.Duration.
func (d Duration) String() string { return time.Duration(d).String() }

// UnmarshalYAML accepts duration strings. Bare integers are rejected
// because their unit would be ambiguous.
func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return fmt.Errorf("line %d: duration must be a string like \"1s\"", n.Line)
	}
	v, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("line %d: %w", n.Line, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalYAML writes the duration string.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// Retry is a retry policy in config form.
type Retry struct {
	Attempts int      `yaml:"attempts"`
	Delay    Duration `yaml:"delay"`
}

// Policy converts r to a retry.Policy.
func (r Retry) Policy() retry.Policy {
	return retry.Policy{Attempts: r.Attempts, Delay: r.Delay.D()}
}

// Config is the complete daemon configuration.
type Config struct {
	// Device names this appliance in MQTT topics and the status page.
	Device     string           `yaml:"device"`
	API        APIConfig        `yaml:"api"`
	Credential CredentialConfig `yaml:"credential"`
	Door       DoorConfig       `yaml:"door"`
	Sensors    SensorsConfig    `yaml:"sensors"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Capture    CaptureConfig    `yaml:"capture"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	HTTP       HTTPConfig       `yaml:"http"`
	Daemon     DaemonConfig     `yaml:"daemon"`
}

// APIConfig locates the backend and sets its retry policies.
type APIConfig struct {
	Base    string   `yaml:"base"`
	Timeout Duration `yaml:"timeout"`
	// Retry applies to validation and uploads.
	Retry Retry `yaml:"retry"`
	// ReportRetry applies to error reports.
	ReportRetry Retry `yaml:"report_retry"`
}

// CredentialConfig sets where the token is kept and how often it is revalidated.
type CredentialConfig struct {
	Path          string   `yaml:"path"`
	ValidateAfter Duration `yaml:"validate_after"`
}

// Door signal sources.
const (
	DoorGPIO   = "gpio"
	DoorFile   = "file"
	DoorManual = "manual"
)

// DoorConfig selects the door signal source and its polling.
type DoorConfig struct {
	// Source defaults to file so `fridge-daemon door open|close` moves the
	// door. manual is only reachable through the status server.
	Source     string   `yaml:"source"`
	Chip       string   `yaml:"chip"`
	Pin        int      `yaml:"pin"`
	PullUp     bool     `yaml:"pull_up"`
	SignalFile string   `yaml:"signal_file"`
	Poll       Duration `yaml:"poll"`
	Debounce   Duration `yaml:"debounce"`
}

// Sensor drivers.
const (
	SensorRandom = "random"
	SensorFile   = "file"
	SensorNone   = "none"
)

// SensorConfig selects one sensor driver. Scale divides file values;
// Min and Max bound random values.
type SensorConfig struct {
	Driver string  `yaml:"driver"`
	Path   string  `yaml:"path"`
	Scale  float64 `yaml:"scale"`
	Min    float64 `yaml:"min"`
	Max    float64 `yaml:"max"`
}

// SensorsConfig holds both sensors and the sampling period.
type SensorsConfig struct {
	Poll        Duration     `yaml:"poll"`
	Temperature SensorConfig `yaml:"temperature"`
	Power       SensorConfig `yaml:"power"`
}

// TelemetryConfig controls batching and the shared snapshot.
type TelemetryConfig struct {
	UploadInterval Duration `yaml:"upload_interval"`
	MaxBuffered    int      `yaml:"max_buffered"`
	SnapshotPath   string   `yaml:"snapshot_path"`
}

// CameraConfig configures the GStreamer capture.
type CameraConfig struct {
	Enabled     bool     `yaml:"enabled"`
	DeviceNames []string `yaml:"device_names"`
	ImageDir    string   `yaml:"image_dir"`
	PixelFormat string   `yaml:"pixel_format"`
	Timeout     Duration `yaml:"timeout"`
	Retry       Retry    `yaml:"retry"`
}

// RecognizerConfig configures the external recognition command.
type RecognizerConfig struct {
	// Command is empty when recognition is disabled.
	Command       string   `yaml:"command"`
	Args          []string `yaml:"args"`
	Timeout       Duration `yaml:"timeout"`
	MinConfidence float64  `yaml:"min_confidence"`
	Retry         Retry    `yaml:"retry"`
}

// CaptureConfig controls the door-closed sequence.
type CaptureConfig struct {
	Stabilization Duration         `yaml:"stabilization"`
	Label         string           `yaml:"label"`
	Camera        CameraConfig     `yaml:"camera"`
	Recognizer    RecognizerConfig `yaml:"recognizer"`
}

// MQTTConfig configures the optional event publisher.
type MQTTConfig struct {
	// Broker is empty when MQTT is disabled.
	Broker     string   `yaml:"broker"`
	ClientID   string   `yaml:"client_id"`
	BufferSize int      `yaml:"buffer_size"`
	Heartbeat  Duration `yaml:"heartbeat"`
}

// HTTPConfig configures the optional status server.
type HTTPConfig struct {
	// Addr is empty when the status server is disabled.
	Addr           string   `yaml:"addr"`
	SnapshotMaxAge Duration `yaml:"snapshot_max_age"`
}

// DaemonConfig sets the supervisor's check period and stop grace.
type DaemonConfig struct {
	CheckInterval Duration `yaml:"check_interval"`
	StopGrace     Duration `yaml:"stop_grace"`
}

// Default returns the configuration used for any field the file leaves
// unset.
func Default() *Config {
	return &Config{
		Device: "fridge",
		API: APIConfig{
			Base:        "http://localhost:8000",
			Timeout:     Duration(10 * time.Second),
			Retry:       Retry{Attempts: 4, Delay: Duration(5 * time.Second)},
			ReportRetry: Retry{Attempts: 2, Delay: Duration(5 * time.Second)},
		},
		Credential: CredentialConfig{
			Path:          credential.DefaultPath,
			ValidateAfter: Duration(credential.DefaultThreshold),
		},
		Door: DoorConfig{
			Source:     DoorFile,
			Chip:       gpio.DefaultChip,
			Pin:        gpio.DefaultPin,
			PullUp:     true,
			SignalFile: "/tmp/fridge_door",
			Poll:       Duration(500 * time.Millisecond),
			Debounce:   Duration(100 * time.Millisecond),
		},
		Sensors: SensorsConfig{
			Poll:        Duration(time.Second),
			Temperature: SensorConfig{Driver: SensorRandom, Scale: 1, Min: 0, Max: 10},
			Power:       SensorConfig{Driver: SensorRandom, Scale: 1, Min: 50, Max: 150},
		},
		Telemetry: TelemetryConfig{
			UploadInterval: Duration(time.Minute),
			MaxBuffered:    telemetry.DefaultMaxBuffered,
			SnapshotPath:   snapshot.DefaultPath,
		},
		Capture: CaptureConfig{
			Stabilization: Duration(2 * time.Second),
			Label:         "fridge",
			Camera: CameraConfig{
				DeviceNames: append([]string(nil), capture.DefaultDeviceNames...),
				ImageDir:    "captured_images",
				PixelFormat: "MJPG",
				Timeout:     Duration(10 * time.Second),
				Retry:       Retry{Attempts: 3, Delay: Duration(time.Second)},
			},
			Recognizer: RecognizerConfig{
				Timeout:       Duration(time.Minute),
				MinConfidence: 0.5,
				Retry:         Retry{Attempts: 2, Delay: Duration(time.Second)},
			},
		},
		MQTT: MQTTConfig{
			BufferSize: 500,
			Heartbeat:  Duration(15 * time.Minute),
		},
		HTTP: HTTPConfig{
			SnapshotMaxAge: Duration(10 * time.Second),
		},
		Daemon: DaemonConfig{
			CheckInterval: Duration(10 * time.Second),
			StopGrace:     Duration(2 * time.Second),
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
// Unknown keys are rejected so typos do not silently fall back to a
// default.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := cfg.decode(data); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ApplyEnv overrides deployment-specific values from the environment.
// getenv is os.Getenv outside tests.
func (c *Config) ApplyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	set(&c.Device, "FRIDGE_DEVICE")
	set(&c.API.Base, "FRIDGE_API_BASE")
	set(&c.Credential.Path, "FRIDGE_TOKEN_FILE")
	set(&c.MQTT.Broker, "FRIDGE_MQTT_BROKER")
	set(&c.HTTP.Addr, "FRIDGE_HTTP_ADDR")
	set(&c.Door.Source, "FRIDGE_DOOR_SOURCE")
}

// Validate reports every problem found, joined.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}
	positive := func(name string, d Duration) {
		if d <= 0 {
			bad("%s must be positive, got %s", name, d)
		}
	}

	if c.Device == "" {
		bad("device must be set")
	}
	if c.API.Base == "" {
		bad("api.base must be set")
	}
	if c.Credential.Path == "" {
		bad("credential.path must be set")
	}
	positive("api.timeout", c.API.Timeout)
	positive("credential.validate_after", c.Credential.ValidateAfter)
	positive("door.poll", c.Door.Poll)
	positive("sensors.poll", c.Sensors.Poll)
	positive("telemetry.upload_interval", c.Telemetry.UploadInterval)
	positive("daemon.check_interval", c.Daemon.CheckInterval)
	positive("daemon.stop_grace", c.Daemon.StopGrace)
	if c.Door.Debounce < 0 {
		bad("door.debounce must not be negative, got %s", c.Door.Debounce)
	}
	if c.Capture.Stabilization < 0 {
		bad("capture.stabilization must not be negative, got %s", c.Capture.Stabilization)
	}
	if c.MQTT.Heartbeat < 0 {
		bad("mqtt.heartbeat must not be negative, got %s", c.MQTT.Heartbeat)
	}
	if c.Telemetry.MaxBuffered < 1 {
		bad("telemetry.max_buffered must be at least 1, got %d", c.Telemetry.MaxBuffered)
	}

	switch c.Door.Source {
	case DoorGPIO:
		if c.Door.Chip == "" || c.Door.Pin < 0 {
			bad("door: gpio source needs chip and pin")
		}
	case DoorFile:
		if c.Door.SignalFile == "" {
			bad("door: file source needs signal_file")
		}
	case DoorManual:
		if c.HTTP.Addr == "" {
			bad("door: manual source needs http.addr, nothing else can move the door")
		}
	default:
		bad("door.source must be gpio, file or manual, got %q", c.Door.Source)
	}

	sensors := []struct {
		name string
		s    SensorConfig
	}{{"temperature", c.Sensors.Temperature}, {"power", c.Sensors.Power}}
	for _, sc := range sensors {
		name, s := sc.name, sc.s
		switch s.Driver {
		case SensorRandom:
			if s.Min >= s.Max {
				bad("sensors.%s: min must be below max", name)
			}
		case SensorFile:
			if s.Path == "" {
				bad("sensors.%s: file driver needs path", name)
			}
		case SensorNone:
		default:
			bad("sensors.%s.driver must be random, file or none, got %q", name, s.Driver)
		}
	}

	if c.Capture.Camera.Enabled && c.Capture.Camera.ImageDir == "" {
		bad("capture.camera.image_dir must be set when the camera is enabled")
	}
	if mc := c.Capture.Recognizer.MinConfidence; mc < 0 || mc > 1 {
		bad("capture.recognizer.min_confidence must be within [0, 1], got %g", mc)
	}

	return errors.Join(errs...)
}

// Marshal renders the effective configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
