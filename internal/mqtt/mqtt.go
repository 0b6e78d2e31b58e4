// Package mqtt publishes door transitions, capture summaries and lifecycle
// events to an MQTT broker.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/fridge-daemon/internal/capture"
	"github.com/sweeney/fridge-daemon/internal/door"
)

// TopicPrefix is the root of every topic this daemon publishes to.
const TopicPrefix = "fridge"

// DoorTopic is where confirmed door transitions are published.
func DoorTopic(device string) string { return TopicPrefix + "/" + device + "/door" }

// SystemTopic is where lifecycle events are published.
func SystemTopic(device string) string { return TopicPrefix + "/" + device + "/system" }

// CaptureTopic is where capture sequence summaries are published.
func CaptureTopic(device string) string { return TopicPrefix + "/" + device + "/capture" }

// Publisher publishes events to MQTT.
type Publisher interface {
	// PublishDoor sends a confirmed door transition.
	// Returns error if publishing fails (should not crash the process).
	PublishDoor(event door.Event) error

	// PublishCapture sends the outcome of a capture sequence.
	PublishCapture(result capture.Result) error

	// PublishSystem sends a system lifecycle event.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// DoorPayload is the message published on the door topic.
type DoorPayload struct {
	Door DoorPayloadInner `json:"door"`
}

// DoorPayloadInner describes one confirmed door transition.
type DoorPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	State     string `json:"state"`
}

// FormatDoorPayload creates the JSON payload for a door transition.
func FormatDoorPayload(event door.Event) ([]byte, error) {
	state := door.StateClosed
	if event.Type == door.EventOpened {
		state = door.StateOpen
	}
	return json.Marshal(DoorPayload{
		Door: DoorPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     string(event.Type),
			State:     string(state),
		},
	})
}

// CapturePayload is the message published on the capture topic.
type CapturePayload struct {
	Capture CapturePayloadInner `json:"capture"`
}

// CapturePayloadInner summarises one capture sequence.
type CapturePayloadInner struct {
	ID         string            `json:"id"`
	Timestamp  string            `json:"timestamp"`
	DurationMs int64             `json:"duration_ms"`
	Images     int               `json:"images"`
	Products   []capture.Product `json:"products"`
	Uploaded   bool              `json:"uploaded"`
	Failure    string            `json:"failure,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// FormatCapturePayload creates the JSON payload for a capture result.
func FormatCapturePayload(r capture.Result) ([]byte, error) {
	inner := CapturePayloadInner{
		ID:         r.ID,
		Timestamp:  r.Finished.UTC().Format(time.RFC3339),
		DurationMs: r.Finished.Sub(r.Started).Milliseconds(),
		Images:     r.Images,
		Products:   r.Products,
		Uploaded:   r.Uploaded,
		Failure:    string(r.Failure),
	}
	if inner.Products == nil {
		inner.Products = []capture.Product{}
	}
	if r.Err != nil {
		inner.Error = r.Err.Error()
	}
	return json.Marshal(CapturePayload{Capture: inner})
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
