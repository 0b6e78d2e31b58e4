// Package daemon wires the collaborators together and owns their lifetime.
//
// The supervisor runs three long-lived goroutines: the sampling loop, the
// door monitor (which also runs the capture sequence when the door closes)
// and its own loop that keeps the device credential fresh and publishes
// heartbeats. Each piece of mutable state is owned by exactly one of them;
// the status tracker is the only thing they share.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/sweeney/fridge-daemon/internal/capture"
	"github.com/sweeney/fridge-daemon/internal/config"
	"github.com/sweeney/fridge-daemon/internal/credential"
	"github.com/sweeney/fridge-daemon/internal/door"
	"github.com/sweeney/fridge-daemon/internal/gpio"
	"github.com/sweeney/fridge-daemon/internal/mqtt"
	"github.com/sweeney/fridge-daemon/internal/retry"
	"github.com/sweeney/fridge-daemon/internal/sensor"
	"github.com/sweeney/fridge-daemon/internal/status"
	"github.com/sweeney/fridge-daemon/internal/telemetry"
	"github.com/sweeney/fridge-daemon/internal/web"
)

// Backend is the remote API as used by the daemon.
type Backend interface {
	credential.Validator
	telemetry.Uploader
	capture.Backend
}

// Factories create the collaborators. A nil optional factory disables that
// feature without marking the daemon degraded.
type Factories struct {
	// Door is mandatory.
	Door        func() (gpio.Source, error)
	Temperature func() (sensor.Sensor, error)
	Power       func() (sensor.Sensor, error)
	Camera      func() (capture.Camera, error)
	Recognizer  func() (capture.Recognizer, error)
	Publisher   func() (mqtt.Publisher, error)
}

// TickerFunc returns a channel ticking every d and a function stopping it.
// The name identifies the loop ("sample", "door", "check", "heartbeat").
type TickerFunc func(name string, d time.Duration) (<-chan time.Time, func())

func wallTicker(_ string, d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// ErrAlreadyStarted is returned by a second call to Start.
var ErrAlreadyStarted = errors.New("daemon already started")

// Supervisor is the DaemonSupervisor.
type Supervisor struct {
	cfg       *config.Config
	backend   Backend
	factories Factories
	exec      *retry.Executor
	now       func() time.Time
	ticker    TickerFunc

	tracker    *status.Tracker
	creds      *credential.Manager
	monitor    *door.Monitor
	loop       *telemetry.Loop
	controller *capture.Controller
	publisher  mqtt.Publisher
	server     *web.Server

	closers   []closer
	closeOnce sync.Once
	closeErr  error

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	started  bool
	running  bool
	stopOnce sync.Once
}

type closer struct {
	name string
	fn   func() error
}

// New creates a supervisor. exec is shared by every network operation.
func New(cfg *config.Config, backend Backend, factories Factories, exec *retry.Executor) *Supervisor {
	return &Supervisor{
		cfg:       cfg,
		backend:   backend,
		factories: factories,
		exec:      exec,
		now:       time.Now,
		ticker:    wallTicker,
	}
}

// WithClock replaces the wall clock and the tickers. Used by tests.
func (s *Supervisor) WithClock(now func() time.Time, ticker TickerFunc) *Supervisor {
	s.now = now
	s.ticker = ticker
	return s
}

// Tracker returns the status tracker. It is nil before Start.
func (s *Supervisor) Tracker() *status.Tracker {
	return s.tracker
}

// Credentials returns the credential manager. It is nil before Start.
func (s *Supervisor) Credentials() *credential.Manager {
	return s.creds
}

// Start initialises every collaborator and spawns the loops. It fails only
// when a mandatory collaborator (the door signal or the credential store)
// cannot be set up; optional collaborators that fail are logged, recorded
// as degraded and left out.
func (s *Supervisor) Start(ctx context.Context) error {
	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true

	s.tracker = status.NewTracker(s.now(), s.trackerConfig()).WithClock(s.now)

	src, err := s.factories.Door()
	if err != nil {
		return fmt.Errorf("init door source: %w", err)
	}
	s.push("door source", src.Close)

	store := credential.NewStore(s.cfg.Credential.Path)
	s.creds = credential.NewManager(store, s.backend, s.exec, s.cfg.API.Retry.Policy(), s.cfg.Credential.ValidateAfter.D()).
		WithClock(s.now)
	if err := s.creds.Load(); err != nil {
		s.closeAll()
		return fmt.Errorf("load credential: %w", err)
	}
	s.tracker.UpdateCredential(s.creds.Status())

	temperature := optional(s, "temperature", s.factories.Temperature)
	power := optional(s, "power", s.factories.Power)
	camera := optional(s, "camera", s.factories.Camera)
	recognizer := optional(s, "recognizer", s.factories.Recognizer)
	s.publisher = optional(s, "mqtt", s.factories.Publisher)

	batcher := telemetry.NewBatcher(s.backend, s.creds, s.exec, telemetry.BatcherConfig{
		Interval:    s.cfg.Telemetry.UploadInterval.D(),
		Policy:      s.cfg.API.Retry.Policy(),
		MaxBuffered: s.cfg.Telemetry.MaxBuffered,
	})
	s.loop = telemetry.NewLoop(temperature, power, batcher, s.cfg.Telemetry.SnapshotPath).WithClock(s.now)
	s.loop.OnCycle(s.tracker.UpdateTelemetry)

	ccfg := capture.DefaultConfig()
	ccfg.Stabilization = s.cfg.Capture.Stabilization.D()
	ccfg.Label = s.cfg.Capture.Label
	ccfg.UploadPolicy = s.cfg.API.Retry.Policy()
	ccfg.ReportPolicy = s.cfg.API.ReportRetry.Policy()
	s.controller = capture.NewController(camera, recognizer, s.backend, s.creds, s.exec, ccfg)
	s.controller.OnResult(s.onCapture)

	s.monitor = door.NewMonitor(src, s.cfg.Door.Debounce.D())
	s.monitor.OnPoll(s.tracker.UpdateDoor)
	s.monitor.OnOpened(s.onDoor)
	s.monitor.OnClosed(s.onDoor)
	s.monitor.OnClosed(s.controller.HandleClosed(ctx))

	if s.cfg.HTTP.Addr != "" {
		s.startServer(src)
	}

	s.publishLifecycle("STARTUP", "")

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.goLoop(loopCtx, "sample", s.cfg.Sensors.Poll.D(), s.loop.Run)
	s.goLoop(loopCtx, "door", s.cfg.Door.Poll.D(), s.monitor.Run)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.supervise(loopCtx)
	}()
	s.running = true

	log.Printf("daemon: started (device=%s door=%s)", s.cfg.Device, s.cfg.Door.Source)
	return nil
}

// Stop cancels the loops, waits for them for at most the stop grace period
// and then releases every collaborator in reverse order of acquisition. A
// capture sequence still running after the grace period is abandoned to
// finish on its own. Only the first call has any effect.
func (s *Supervisor) Stop(reason string) error {
	s.stopOnce.Do(func() {
		if !s.running {
			return
		}
		log.Printf("daemon: stopping (%s)", reason)
		s.cancel()

		done := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(done)
		}()
		grace := s.cfg.Daemon.StopGrace.D()
		select {
		case <-done:
		case <-time.After(grace):
			log.Printf("daemon: loops still busy after %v, releasing resources anyway", grace)
		}

		s.publishLifecycle("SHUTDOWN", reason)
		s.closeAll()
	})
	return s.closeErr
}

// closeAll runs the closers in reverse order exactly once.
func (s *Supervisor) closeAll() error {
	s.closeOnce.Do(func() {
		var errs []error
		for i := len(s.closers) - 1; i >= 0; i-- {
			c := s.closers[i]
			if err := c.fn(); err != nil {
				log.Printf("daemon: close %s: %v", c.name, err)
				errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
			}
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}

// optional runs an optional factory. A failure is logged and the feature is
// marked degraded; the zero value is returned so callers leave it out.
func optional[T interface{ Close() error }](s *Supervisor, name string, factory func() (T, error)) T {
	var zero T
	if factory == nil {
		return zero
	}
	v, err := factory()
	if err != nil {
		log.Printf("daemon: %s unavailable, continuing without it: %v", name, err)
		s.tracker.SetDegraded(name)
		return zero
	}
	s.push(name, v.Close)
	return v
}

func (s *Supervisor) push(name string, fn func() error) {
	s.closers = append(s.closers, closer{name: name, fn: fn})
}

func (s *Supervisor) goLoop(ctx context.Context, name string, every time.Duration, run func(context.Context, <-chan time.Time) error) {
	tick, stop := s.ticker(name, every)
	s.push(name+" ticker", func() error { stop(); return nil })
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := run(ctx, tick); err != nil {
			log.Printf("daemon: %s loop: %v", name, err)
		}
	}()
}

// supervise keeps the credential fresh and publishes heartbeats until ctx
// is done. The first check runs immediately.
func (s *Supervisor) supervise(ctx context.Context) {
	check, stopCheck := s.ticker("check", s.cfg.Daemon.CheckInterval.D())
	defer stopCheck()

	var heartbeat <-chan time.Time
	if s.publisher != nil && s.cfg.MQTT.Heartbeat > 0 {
		hb, stop := s.ticker("heartbeat", s.cfg.MQTT.Heartbeat.D())
		defer stop()
		heartbeat = hb
	}

	s.checkCredential(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-check:
			s.checkCredential(ctx)
		case <-heartbeat:
			s.publishLifecycle("HEARTBEAT", "")
		}
	}
}

func (s *Supervisor) checkCredential(ctx context.Context) {
	s.creds.Check(ctx)
	s.tracker.UpdateCredential(s.creds.Status())
}

func (s *Supervisor) onDoor(e door.Event) {
	s.tracker.UpdateDoor(s.monitor.Status(), s.monitor.Counts())
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishDoor(e); err != nil {
		log.Printf("daemon: publish door event: %v", err)
	}
	s.refreshMQTT()
}

func (s *Supervisor) onCapture(r capture.Result) {
	s.tracker.RecordCapture(r)
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishCapture(r); err != nil {
		log.Printf("daemon: publish capture result: %v", err)
	}
}

// publishLifecycle sends a system event carrying the full status snapshot.
func (s *Supervisor) publishLifecycle(event, reason string) {
	if s.publisher == nil {
		return
	}
	s.refreshMQTT()
	snap := s.tracker.Snapshot()
	err := s.publisher.PublishSystem(mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      event,
		Reason:     reason,
		Retained:   event != "HEARTBEAT",
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	})
	if err != nil {
		log.Printf("daemon: publish %s event: %v", event, err)
	}
}

func (s *Supervisor) refreshMQTT() {
	if cs, ok := s.publisher.(mqtt.ConnectionStatus); ok {
		s.tracker.SetMQTTConnected(cs.IsConnected())
	}
}

func (s *Supervisor) startServer(src gpio.Source) {
	opts := web.Options{
		SnapshotPath:   s.cfg.Telemetry.SnapshotPath,
		SnapshotMaxAge: s.cfg.HTTP.SnapshotMaxAge.D(),
	}
	if sw, ok := src.(web.DoorSwitch); ok {
		opts.Door = sw
	}
	s.server = web.New(s.cfg.HTTP.Addr, s.tracker, opts)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("daemon: http server: %v", err)
		}
	}()
	s.push("http server", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return s.server.Shutdown(ctx)
	})
	log.Printf("daemon: http status server listening on %s", s.cfg.HTTP.Addr)
}

func (s *Supervisor) trackerConfig() status.Config {
	return status.Config{
		Device:          s.cfg.Device,
		DoorSource:      s.cfg.Door.Source,
		DoorPollMs:      s.cfg.Door.Poll.D().Milliseconds(),
		DebounceMs:      s.cfg.Door.Debounce.D().Milliseconds(),
		SamplePollMs:    s.cfg.Sensors.Poll.D().Milliseconds(),
		UploadMs:        s.cfg.Telemetry.UploadInterval.D().Milliseconds(),
		HeartbeatMs:     s.cfg.MQTT.Heartbeat.D().Milliseconds(),
		ValidateAfterMs: s.cfg.Credential.ValidateAfter.D().Milliseconds(),
		APIBase:         s.cfg.API.Base,
		Broker:          s.cfg.MQTT.Broker,
		HTTPAddr:        s.cfg.HTTP.Addr,
	}
}
