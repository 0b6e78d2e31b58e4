// Package capture runs the door-closed workflow: wait for the door to
// settle, photograph the shelves, recognise products, and upload the
// inventory.
package capture

import (
	"context"
	"errors"
	"time"
)

// ErrNoImages is reported when no camera produced a frame.
var ErrNoImages = errors.New("no images captured")

// Product is a recognised item. Detections carry Quantity 1; aggregated
// inventory entries carry the total.
type Product struct {
	Name     string `json:"name"`
	Brand    string `json:"brand"`
	Size     string `json:"size"`
	Quantity int    `json:"quantity"`
}

// ErrorType classifies a remote error report.
type ErrorType string

const (
	CaptureError      ErrorType = "CaptureError"
	DetectionError    ErrorType = "DetectionError"
	ServerSendError   ErrorType = "ServerSendError"
	DoorSequenceError ErrorType = "DoorSequenceError"
)

// ErrorReport is sent to the backend when a sequence fails.
type ErrorReport struct {
	ID        string
	Timestamp time.Time
	Module    string
	Type      ErrorType
	Message   string
	Traceback string
}

// Camera captures one image per active device.
type Camera interface {
	CaptureAll(ctx context.Context, label string) ([]string, error)
	Close() error
}

// Recognizer detects products in a set of images.
type Recognizer interface {
	Detect(ctx context.Context, images []string) ([]Product, error)
	Close() error
}

// Backend is the subset of the remote API used by the sequence.
type Backend interface {
	UploadProducts(ctx context.Context, token string, products []Product) error
	ReportError(ctx context.Context, token string, r ErrorReport) error
}

// TokenSource yields the device token, or "" when not configured.
type TokenSource interface {
	Token() string
}
