package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fridge.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultsValidate(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestDefaultDoorIsDrivenBySignalFile(t *testing.T) {
	c := Default()
	if c.Door.Source != DoorFile {
		t.Errorf("door.source: got %q, want %q", c.Door.Source, DoorFile)
	}
	if c.Door.SignalFile == "" {
		t.Error("default door.signal_file must be set")
	}
}

func TestManualDoorNeedsHTTP(t *testing.T) {
	c := Default()
	c.Door.Source = DoorManual
	c.HTTP.Addr = ""
	err := c.Validate()
	if err == nil || !strings.Contains(err.Error(), "http.addr") {
		t.Fatalf("expected http.addr error, got %v", err)
	}

	c.HTTP.Addr = ":8080"
	if err := c.Validate(); err != nil {
		t.Errorf("manual door with a status server should validate: %v", err)
	}
}

func TestDefaultsMatchApplianceConstants(t *testing.T) {
	c := Default()

	checks := []struct {
		name string
		got  time.Duration
		want time.Duration
	}{
		{"sensors.poll", c.Sensors.Poll.D(), time.Second},
		{"door.poll", c.Door.Poll.D(), 500 * time.Millisecond},
		{"door.debounce", c.Door.Debounce.D(), 100 * time.Millisecond},
		{"capture.stabilization", c.Capture.Stabilization.D(), 2 * time.Second},
		{"telemetry.upload_interval", c.Telemetry.UploadInterval.D(), time.Minute},
		{"credential.validate_after", c.Credential.ValidateAfter.D(), 24 * time.Hour},
		{"daemon.check_interval", c.Daemon.CheckInterval.D(), 10 * time.Second},
		{"api.timeout", c.API.Timeout.D(), 10 * time.Second},
	}
	for _, tt := range checks {
		if tt.got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.name, tt.got, tt.want)
		}
	}
	if c.API.Retry.Attempts != 4 || c.API.Retry.Delay.D() != 5*time.Second {
		t.Errorf("api.retry: %+v", c.API.Retry)
	}
	if c.API.ReportRetry.Attempts != 2 {
		t.Errorf("api.report_retry attempts: got %d, want 2", c.API.ReportRetry.Attempts)
	}
	if c.Telemetry.MaxBuffered != 86400 {
		t.Errorf("telemetry.max_buffered: got %d", c.Telemetry.MaxBuffered)
	}
	if c.Telemetry.SnapshotPath != "/tmp/fridge_sensor_data.json" {
		t.Errorf("telemetry.snapshot_path: got %q", c.Telemetry.SnapshotPath)
	}
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Device != "fridge" {
		t.Errorf("device: got %q", c.Device)
	}
}

func TestLoadEmptyFile(t *testing.T) {
	c, err := Load(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Door.Poll.D() != 500*time.Millisecond {
		t.Errorf("empty file should keep defaults, got door.poll=%v", c.Door.Poll)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
device: kitchen
api:
  base: https://fridge.example.com/api
  retry:
    attempts: 6
    delay: 2s
door:
  source: gpio
  pin: 22
  debounce: 50ms
sensors:
  temperature:
    driver: file
    path: /sys/class/thermal/thermal_zone0/temp
    scale: 1000
  power:
    driver: none
mqtt:
  broker: tcp://192.168.1.200:1883
`)
	c, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("should validate: %v", err)
	}

	if c.Device != "kitchen" {
		t.Errorf("device: got %q", c.Device)
	}
	if p := c.API.Retry.Policy(); p.Attempts != 6 || p.Delay != 2*time.Second {
		t.Errorf("api.retry policy: %+v", p)
	}
	// Untouched siblings keep their defaults.
	if c.API.ReportRetry.Attempts != 2 {
		t.Errorf("api.report_retry attempts: got %d", c.API.ReportRetry.Attempts)
	}
	if c.Door.Source != DoorGPIO || c.Door.Pin != 22 || c.Door.Chip != "gpiochip0" {
		t.Errorf("door: %+v", c.Door)
	}
	if c.Door.Debounce.D() != 50*time.Millisecond {
		t.Errorf("door.debounce: got %v", c.Door.Debounce)
	}
	if c.Sensors.Temperature.Scale != 1000 {
		t.Errorf("temperature scale: got %v", c.Sensors.Temperature.Scale)
	}
	if c.Sensors.Power.Driver != SensorNone {
		t.Errorf("power driver: got %q", c.Sensors.Power.Driver)
	}
	if c.MQTT.Broker != "tcp://192.168.1.200:1883" {
		t.Errorf("mqtt.broker: got %q", c.MQTT.Broker)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	_, err := Load(writeConfig(t, "door:\n  debounse: 1s\n"))
	if err == nil {
		t.Fatal("expected error for unknown key")
	}
	if !strings.Contains(err.Error(), "debounse") {
		t.Errorf("error should name the key: %v", err)
	}
}

func TestLoadRejectsBareIntegerDuration(t *testing.T) {
	if _, err := Load(writeConfig(t, "door:\n  poll: 500\n")); err == nil {
		t.Fatal("expected error for unit-less duration")
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	if _, err := Load(writeConfig(t, "door:\n  poll: soon\n")); err == nil {
		t.Fatal("expected error for invalid duration")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"FRIDGE_API_BASE":    "https://backend",
		"FRIDGE_MQTT_BROKER": "tcp://mqtt:1883",
		"FRIDGE_DOOR_SOURCE": "gpio",
	}
	c := Default()
	c.ApplyEnv(func(k string) string { return env[k] })

	if c.API.Base != "https://backend" {
		t.Errorf("api.base: got %q", c.API.Base)
	}
	if c.MQTT.Broker != "tcp://mqtt:1883" {
		t.Errorf("mqtt.broker: got %q", c.MQTT.Broker)
	}
	if c.Door.Source != DoorGPIO {
		t.Errorf("door.source: got %q", c.Door.Source)
	}
	if c.Device != "fridge" {
		t.Errorf("unset variables should not override, device=%q", c.Device)
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	c := Default()
	c.Door.Poll = 0
	c.Sensors.Poll = -1
	c.Door.Source = "serial"
	c.Sensors.Power = SensorConfig{Driver: SensorRandom, Min: 5, Max: 5}
	c.Telemetry.MaxBuffered = 0

	err := c.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"door.poll", "sensors.poll", "door.source", "sensors.power", "telemetry.max_buffered"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %s: %v", want, err)
		}
	}
}

func TestValidateSourceRequirements(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"file door without path", func(c *Config) { c.Door.Source = DoorFile; c.Door.SignalFile = "" }},
		{"gpio door without chip", func(c *Config) { c.Door.Source = DoorGPIO; c.Door.Chip = "" }},
		{"file sensor without path", func(c *Config) { c.Sensors.Temperature = SensorConfig{Driver: SensorFile} }},
		{"unknown sensor driver", func(c *Config) { c.Sensors.Temperature.Driver = "i2c" }},
		{"camera without image dir", func(c *Config) { c.Capture.Camera.Enabled = true; c.Capture.Camera.ImageDir = "" }},
		{"confidence above one", func(c *Config) { c.Capture.Recognizer.MinConfidence = 1.5 }},
		{"empty device", func(c *Config) { c.Device = "" }},
		{"manual door without http", func(c *Config) { c.Door.Source = DoorManual; c.HTTP.Addr = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			if err := c.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	c := Default()
	c.Device = "garage"
	data, err := c.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), "poll: 500ms") {
		t.Errorf("durations should marshal as strings:\n%s", data)
	}

	back, err := Load(writeConfig(t, string(data)))
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if back.Device != "garage" || back.Door.Poll != c.Door.Poll || back.API.Retry != c.API.Retry {
		t.Errorf("round trip mismatch: %+v", back)
	}
}
