package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/fridge-daemon/internal/capture"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string         `json:"event,omitempty"`
	Reason        string         `json:"reason,omitempty"`
	Door          DoorJSON       `json:"door"`
	Telemetry     TelemetryJSON  `json:"telemetry"`
	Credential    CredentialJSON `json:"credential"`
	LastCapture   *CaptureJSON   `json:"last_capture,omitempty"`
	Degraded      []string       `json:"degraded"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	StartTime     string         `json:"start_time"`
	Timestamp     string         `json:"timestamp"`
	MQTT          MQTTStatus     `json:"mqtt"`
	Config        ConfigJSON     `json:"config"`
}

// DoorJSON reports the confirmed door state.
type DoorJSON struct {
	State      string `json:"state"`
	LastChange string `json:"last_change,omitempty"`
	Opened     int    `json:"opened"`
	Closed     int    `json:"closed"`
}

// TelemetryJSON reports sampling and upload progress.
type TelemetryJSON struct {
	Temperature   *float64 `json:"temperature"`
	Power         *float64 `json:"power"`
	SampledAt     string   `json:"sampled_at,omitempty"`
	Cycles        int      `json:"cycles"`
	BufferedTemp  int      `json:"buffered_temperature"`
	BufferedPower int      `json:"buffered_power"`
	Dropped       int      `json:"dropped"`
	LastFlush     string   `json:"last_flush,omitempty"`
	ReadErrors    int      `json:"read_errors"`
	UploadErrors  int      `json:"upload_errors"`
}

// CredentialJSON reports the credential lifecycle without the token itself.
type CredentialJSON struct {
	State         string `json:"state"`
	LastValidated string `json:"last_validated,omitempty"`
	Validations   int    `json:"validations"`
	Failures      int    `json:"failures"`
}

// CaptureJSON summarises the most recent capture sequence.
type CaptureJSON struct {
	ID       string            `json:"id"`
	Finished string            `json:"finished"`
	Images   int               `json:"images"`
	Products []capture.Product `json:"products"`
	Uploaded bool              `json:"uploaded"`
	Failure  string            `json:"failure,omitempty"`
	Total    int               `json:"total"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Device          string `json:"device"`
	DoorSource      string `json:"door_source"`
	DoorPollMs      int64  `json:"door_poll_ms"`
	DebounceMs      int64  `json:"debounce_ms"`
	SamplePollMs    int64  `json:"sample_poll_ms"`
	UploadMs        int64  `json:"upload_interval_ms"`
	HeartbeatMs     int64  `json:"heartbeat_ms"`
	ValidateAfterMs int64  `json:"validate_after_ms"`
	APIBase         string `json:"api_base"`
	Broker          string `json:"broker"`
	HTTPAddr        string `json:"http_addr"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func buildInner(snap Snapshot) StatusInner {
	doorState := string(snap.Door.State)
	if doorState == "" {
		doorState = "UNKNOWN"
	}

	tel := TelemetryJSON{
		Cycles:        snap.Telemetry.Cycles,
		BufferedTemp:  snap.Telemetry.BufferedTemp,
		BufferedPower: snap.Telemetry.BufferedPower,
		Dropped:       snap.Telemetry.Dropped,
		LastFlush:     formatTime(snap.Telemetry.LastFlush),
		ReadErrors:    snap.Telemetry.ReadErrors,
		UploadErrors:  snap.Telemetry.UploadErrors,
	}
	if snap.Telemetry.HaveTemperature {
		temp := snap.Telemetry.Temperature
		tel.Temperature = &temp
	}
	if snap.Telemetry.HavePower {
		power := snap.Telemetry.Power
		tel.Power = &power
	}
	if snap.Telemetry.HaveTemperature || snap.Telemetry.HavePower {
		tel.SampledAt = formatTime(snap.Telemetry.At)
	}

	inner := StatusInner{
		Door: DoorJSON{
			State:      doorState,
			LastChange: formatTime(snap.Door.LastChange),
			Opened:     snap.DoorCounts.Opened,
			Closed:     snap.DoorCounts.Closed,
		},
		Telemetry: tel,
		Credential: CredentialJSON{
			State:         snap.Credential.State.String(),
			LastValidated: formatTime(snap.Credential.LastValidated),
			Validations:   snap.Credential.Validations,
			Failures:      snap.Credential.Failures,
		},
		Degraded:      snap.Degraded,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     formatTime(snap.StartTime),
		Timestamp:     formatTime(snap.Now),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Config: ConfigJSON{
			Device:          snap.Config.Device,
			DoorSource:      snap.Config.DoorSource,
			DoorPollMs:      snap.Config.DoorPollMs,
			DebounceMs:      snap.Config.DebounceMs,
			SamplePollMs:    snap.Config.SamplePollMs,
			UploadMs:        snap.Config.UploadMs,
			HeartbeatMs:     snap.Config.HeartbeatMs,
			ValidateAfterMs: snap.Config.ValidateAfterMs,
			APIBase:         snap.Config.APIBase,
			Broker:          snap.Config.Broker,
			HTTPAddr:        snap.Config.HTTPAddr,
		},
	}
	if inner.Degraded == nil {
		inner.Degraded = []string{}
	}

	if c := snap.LastCapture; c != nil {
		products := c.Products
		if products == nil {
			products = []capture.Product{}
		}
		inner.LastCapture = &CaptureJSON{
			ID:       c.ID,
			Finished: formatTime(c.Finished),
			Images:   c.Images,
			Products: products,
			Uploaded: c.Uploaded,
			Failure:  string(c.Failure),
			Total:    snap.Captures,
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
