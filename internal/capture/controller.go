package capture

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/sweeney/fridge-daemon/internal/door"
	"github.com/sweeney/fridge-daemon/internal/retry"
)

// Config controls the door-closed sequence.
type Config struct {
	// Stabilization is the pause between the door closing and the capture.
	Stabilization time.Duration
	// Label prefixes captured image file names.
	Label string
	// Module identifies this component in error reports.
	Module string
	// UploadPolicy governs the inventory upload.
	UploadPolicy retry.Policy
	// ReportPolicy governs best-effort error reports.
	ReportPolicy retry.Policy
}

// DefaultConfig mirrors the appliance defaults.
func DefaultConfig() Config {
	return Config{
		Stabilization: 2 * time.Second,
		Label:         "fridge",
		Module:        "daemon",
		UploadPolicy:  retry.Policy{Attempts: 4, Delay: 5 * time.Second},
		ReportPolicy:  retry.Policy{Attempts: 2, Delay: 5 * time.Second},
	}
}

// Result describes one sequence run.
type Result struct {
	ID       string
	Started  time.Time
	Finished time.Time
	Images   int
	Products []Product
	Uploaded bool
	// Failure is set when the sequence stopped early or its upload failed.
	Failure ErrorType
	Err     error
}

// Controller runs the capture sequence. Camera and Recognizer may be nil
// when the hardware or model failed to initialise; the sequence then
// reports the missing stage instead of running it.
type Controller struct {
	camera     Camera
	recognizer Recognizer
	backend    Backend
	tokens     TokenSource
	exec       *retry.Executor
	cfg        Config

	now      func() time.Time
	sleep    retry.SleepFunc
	newID    func() string
	observer func(Result)
}

// NewController creates a controller. The camera and recognizer may be nil.
func NewController(cam Camera, rec Recognizer, backend Backend, tokens TokenSource, exec *retry.Executor, cfg Config) *Controller {
	return &Controller{
		camera:     cam,
		recognizer: rec,
		backend:    backend,
		tokens:     tokens,
		exec:       exec,
		cfg:        cfg,
		now:        time.Now,
		sleep:      retry.Sleep,
		newID:      uuid.NewString,
	}
}

// WithClock replaces the clock and the stabilization sleep. Used by tests.
func (c *Controller) WithClock(now func() time.Time, sleep retry.SleepFunc) *Controller {
	c.now = now
	c.sleep = sleep
	return c
}

// OnResult registers a function called after every sequence.
func (c *Controller) OnResult(fn func(Result)) {
	c.observer = fn
}

// OnDoorClosed runs stabilize, capture, detect, aggregate and upload in
// order. It never panics and never returns an error: failures are logged,
// reported to the backend when possible and described in the Result.
func (c *Controller) OnDoorClosed(ctx context.Context) (res Result) {
	res.ID = c.newID()
	res.Started = c.now()
	log.Printf("capture: door closed, starting sequence %s", res.ID)

	defer func() {
		if r := recover(); r != nil {
			res.Failure = DoorSequenceError
			res.Err = fmt.Errorf("panic: %v", r)
			log.Printf("capture: unexpected error in sequence %s: %v", res.ID, r)
			c.report(ctx, res.ID, DoorSequenceError, fmt.Sprintf("unexpected error in door closed sequence: %v", r), string(debug.Stack()))
		}
		res.Finished = c.now()
		if c.observer != nil {
			c.observer(res)
		}
	}()

	if err := c.sleep(ctx, c.cfg.Stabilization); err != nil {
		res.Err = fmt.Errorf("stabilization interrupted: %w", err)
		log.Printf("capture: %v", res.Err)
		return res
	}

	images, err := c.capture(ctx)
	res.Images = len(images)
	if err != nil {
		res.Failure = CaptureError
		res.Err = err
		log.Printf("capture: %v", err)
		c.report(ctx, res.ID, CaptureError, "failed to capture images after door closed: "+err.Error(), "")
		return res
	}
	log.Printf("capture: captured %d image(s)", len(images))

	detections, err := c.detect(ctx, images)
	if err != nil {
		res.Failure = DetectionError
		res.Err = err
		log.Printf("capture: %v", err)
		c.report(ctx, res.ID, DetectionError, "failed to detect products: "+err.Error(), "")
		return res
	}
	if len(detections) == 0 {
		log.Printf("capture: no products detected")
	}

	res.Products = Aggregate(detections)
	log.Printf("capture: %d detection(s), %d unique product(s)", len(detections), len(res.Products))

	token := c.token()
	if token == "" {
		log.Printf("capture: not configured, skipping upload")
		return res
	}
	err = c.exec.Do(ctx, "capture: upload products", c.cfg.UploadPolicy, func(ctx context.Context) error {
		return c.backend.UploadProducts(ctx, token, res.Products)
	})
	if err != nil {
		res.Failure = ServerSendError
		res.Err = err
		log.Printf("capture: %v", err)
		c.report(ctx, res.ID, ServerSendError, "failed to send products to server after detection", err.Error())
		return res
	}
	res.Uploaded = true
	log.Printf("capture: sequence %s complete", res.ID)
	return res
}

// HandleClosed adapts OnDoorClosed to a door event handler. The sequence
// runs to completion even if ctx is cancelled meanwhile.
func (c *Controller) HandleClosed(ctx context.Context) door.Handler {
	return func(door.Event) {
		c.OnDoorClosed(context.WithoutCancel(ctx))
	}
}

func (c *Controller) capture(ctx context.Context) ([]string, error) {
	if c.camera == nil {
		return nil, fmt.Errorf("%w: no camera available", ErrNoImages)
	}
	images, err := c.camera.CaptureAll(ctx, c.cfg.Label)
	if err != nil {
		return nil, fmt.Errorf("capture images: %w", err)
	}
	if len(images) == 0 {
		return nil, ErrNoImages
	}
	return images, nil
}

func (c *Controller) detect(ctx context.Context, images []string) ([]Product, error) {
	if c.recognizer == nil {
		return nil, errors.New("no recognizer available")
	}
	detections, err := c.recognizer.Detect(ctx, images)
	if err != nil {
		return nil, fmt.Errorf("detect products: %w", err)
	}
	return detections, nil
}

func (c *Controller) token() string {
	if c.tokens == nil {
		return ""
	}
	return c.tokens.Token()
}

// report sends a best-effort error report. It is skipped when the device
// has no token, and its own failure is only logged.
func (c *Controller) report(ctx context.Context, id string, typ ErrorType, message, traceback string) {
	token := c.token()
	if token == "" || c.backend == nil {
		log.Printf("capture: not configured, %s not reported", typ)
		return
	}
	r := ErrorReport{
		ID:        id,
		Timestamp: c.now().UTC(),
		Module:    c.cfg.Module,
		Type:      typ,
		Message:   message,
		Traceback: traceback,
	}
	err := c.exec.Do(ctx, "capture: report error", c.cfg.ReportPolicy, func(ctx context.Context) error {
		return c.backend.ReportError(ctx, token, r)
	})
	if err != nil {
		log.Printf("capture: %v", err)
	}
}
