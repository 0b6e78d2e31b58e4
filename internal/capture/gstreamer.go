package capture

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sweeney/fridge-daemon/internal/retry"
)

// DefaultDeviceNames match the USB cameras fitted to the appliance.
var DefaultDeviceNames = []string{"GENERAL - UVC", "MMP SDK"}

// GStreamerConfig configures GStreamerCamera.
type GStreamerConfig struct {
	// DeviceNames are matched as substrings of the V4L2 device name.
	DeviceNames []string
	SysfsDir    string // default /sys/class/video4linux
	DevDir      string // default /dev
	ImageDir    string
	// PixelFormat is the camera's native format. MJPG streams are decoded
	// before re-encoding.
	PixelFormat string
	Timeout     time.Duration
	Policy      retry.Policy
}

// Device is a V4L2 capture node.
type Device struct {
	Path string
	Name string
}

// GStreamerCamera captures single frames with gst-launch-1.0.
type GStreamerCamera struct {
	cfg     GStreamerConfig
	devices []Device
	exec    *retry.Executor
	run     runFunc
	now     func() time.Time
}

// NewGStreamerCamera discovers matching devices. It fails when none are
// present so the caller can run without capture.
func NewGStreamerCamera(cfg GStreamerConfig, ex *retry.Executor) (*GStreamerCamera, error) {
	if cfg.SysfsDir == "" {
		cfg.SysfsDir = "/sys/class/video4linux"
	}
	if cfg.DevDir == "" {
		cfg.DevDir = "/dev"
	}
	if len(cfg.DeviceNames) == 0 {
		cfg.DeviceNames = DefaultDeviceNames
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if err := os.MkdirAll(cfg.ImageDir, 0755); err != nil {
		return nil, fmt.Errorf("create image dir: %w", err)
	}

	devices, err := DiscoverDevices(cfg.SysfsDir, cfg.DevDir, cfg.DeviceNames)
	if err != nil {
		return nil, err
	}
	if len(devices) == 0 {
		return nil, fmt.Errorf("no cameras matching %q", cfg.DeviceNames)
	}
	for _, d := range devices {
		log.Printf("capture: found camera %s (%s)", d.Path, d.Name)
	}
	return &GStreamerCamera{cfg: cfg, devices: devices, exec: ex, run: runCommand, now: time.Now}, nil
}

// Devices returns the discovered capture nodes.
func (g *GStreamerCamera) Devices() []Device {
	return append([]Device(nil), g.devices...)
}

// CaptureAll grabs one frame per device. Devices that fail every attempt
// are skipped, so the result may be shorter than Devices or empty.
func (g *GStreamerCamera) CaptureAll(ctx context.Context, label string) ([]string, error) {
	stamp := g.now().Format("20060102_150405")
	var images []string
	for _, d := range g.devices {
		out := filepath.Join(g.cfg.ImageDir, fmt.Sprintf("%s_%s_%s.jpg", label, filepath.Base(d.Path), stamp))
		err := g.exec.Do(ctx, "capture: "+d.Path, g.cfg.Policy, func(ctx context.Context) error {
			return g.captureOne(ctx, d, out)
		})
		if err != nil {
			log.Printf("capture: %v", err)
			continue
		}
		images = append(images, out)
	}
	log.Printf("capture: captured %d/%d images", len(images), len(g.devices))
	return images, nil
}

func (g *GStreamerCamera) captureOne(ctx context.Context, d Device, out string) error {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	if _, err := g.run(ctx, "gst-launch-1.0", pipeline(d.Path, g.cfg.PixelFormat, out)...); err != nil {
		return err
	}
	info, err := os.Stat(out)
	if err != nil {
		return fmt.Errorf("output missing: %w", err)
	}
	if info.Size() == 0 {
		return errors.New("output is empty")
	}
	return nil
}

// Close is a no-op; gst-launch releases the device when it exits.
func (g *GStreamerCamera) Close() error {
	return nil
}

func pipeline(device, pixelFormat, out string) []string {
	args := []string{"-q", "v4l2src", "device=" + device, "num-buffers=1"}
	if strings.EqualFold(pixelFormat, "MJPG") {
		args = append(args, "!", "image/jpeg", "!", "jpegdec")
	}
	return append(args, "!", "videoconvert", "!", "jpegenc", "!", "filesink", "location="+out)
}

// DiscoverDevices lists video capture nodes whose sysfs name contains one
// of names. Metadata nodes (sysfs index other than 0) are skipped.
func DiscoverDevices(sysfsDir, devDir string, names []string) ([]Device, error) {
	entries, err := os.ReadDir(sysfsDir)
	if err != nil {
		return nil, fmt.Errorf("list video devices: %w", err)
	}

	type node struct {
		num int
		dev Device
	}
	var found []node
	for _, e := range entries {
		n, ok := strings.CutPrefix(e.Name(), "video")
		if !ok {
			continue
		}
		num, err := strconv.Atoi(n)
		if err != nil {
			continue
		}
		dir := filepath.Join(sysfsDir, e.Name())
		if idx, err := os.ReadFile(filepath.Join(dir, "index")); err == nil && strings.TrimSpace(string(idx)) != "0" {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, "name"))
		if err != nil {
			continue
		}
		name := strings.TrimSpace(string(raw))
		for _, want := range names {
			if strings.Contains(name, want) {
				found = append(found, node{num, Device{Path: filepath.Join(devDir, e.Name()), Name: name}})
				break
			}
		}
	}

	sort.Slice(found, func(i, j int) bool { return found[i].num < found[j].num })
	devices := make([]Device, len(found))
	for i, n := range found {
		devices[i] = n.dev
	}
	return devices, nil
}
