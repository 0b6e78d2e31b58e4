package capture

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sweeney/fridge-daemon/internal/retry"
)

// writeSysfs creates a fake /sys/class/video4linux tree.
func writeSysfs(t *testing.T, nodes map[string][2]string) string {
	t.Helper()
	dir := t.TempDir()
	for node, v := range nodes {
		p := filepath.Join(dir, node)
		os.MkdirAll(p, 0755)
		os.WriteFile(filepath.Join(p, "name"), []byte(v[0]+"\n"), 0644)
		if v[1] != "" {
			os.WriteFile(filepath.Join(p, "index"), []byte(v[1]+"\n"), 0644)
		}
	}
	return dir
}

func TestDiscoverDevices(t *testing.T) {
	sysfs := writeSysfs(t, map[string][2]string{
		"video0":  {"bcm2835-codec-decode", "0"},
		"video10": {"MMP SDK: MMP SDK", "0"},
		"video11": {"MMP SDK: MMP SDK", "1"},
		"video2":  {"GENERAL - UVC : GENERAL - UVC", "0"},
		"video3":  {"GENERAL - UVC : GENERAL - UVC", "1"},
		"media0":  {"ignored", ""},
	})

	got, err := DiscoverDevices(sysfs, "/dev", DefaultDeviceNames)
	if err != nil {
		t.Fatalf("DiscoverDevices: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 devices, got %+v", got)
	}
	if got[0].Path != "/dev/video2" || got[1].Path != "/dev/video10" {
		t.Errorf("paths: %s %s", got[0].Path, got[1].Path)
	}
}

func TestDiscoverDevicesMissingDir(t *testing.T) {
	if _, err := DiscoverDevices(filepath.Join(t.TempDir(), "none"), "/dev", DefaultDeviceNames); err == nil {
		t.Error("expected error")
	}
}

func TestPipeline(t *testing.T) {
	mjpg := strings.Join(pipeline("/dev/video2", "MJPG", "/img/x.jpg"), " ")
	if !strings.Contains(mjpg, "device=/dev/video2 num-buffers=1 ! image/jpeg ! jpegdec ! videoconvert ! jpegenc ! filesink location=/img/x.jpg") {
		t.Errorf("MJPG pipeline: %s", mjpg)
	}
	raw := strings.Join(pipeline("/dev/video2", "YUYV", "/img/x.jpg"), " ")
	if strings.Contains(raw, "jpegdec") {
		t.Errorf("raw pipeline should not decode: %s", raw)
	}
}

func newTestCamera(t *testing.T, run runFunc, devices ...string) *GStreamerCamera {
	t.Helper()
	g := &GStreamerCamera{
		cfg: GStreamerConfig{
			ImageDir:    t.TempDir(),
			PixelFormat: "MJPG",
			Timeout:     time.Second,
			Policy:      retry.Policy{Attempts: 2},
		},
		exec: retry.NewWithSleep(func(ctx context.Context, d time.Duration) error { return nil }),
		run:  run,
		now:  func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) },
	}
	for _, d := range devices {
		g.devices = append(g.devices, Device{Path: d, Name: "cam"})
	}
	return g
}

// fileWriter emulates gst-launch by writing the filesink location.
func fileWriter(content string) runFunc {
	return func(ctx context.Context, name string, args ...string) ([]byte, error) {
		for _, a := range args {
			if loc, ok := strings.CutPrefix(a, "location="); ok {
				return nil, os.WriteFile(loc, []byte(content), 0644)
			}
		}
		return nil, errors.New("no location")
	}
}

func TestCaptureAll(t *testing.T) {
	g := newTestCamera(t, fileWriter("jpeg"), "/dev/video2", "/dev/video10")

	images, err := g.CaptureAll(context.Background(), "fridge")
	if err != nil {
		t.Fatalf("CaptureAll: %v", err)
	}
	if len(images) != 2 {
		t.Fatalf("expected 2 images, got %v", images)
	}
	if filepath.Base(images[0]) != "fridge_video2_20260102_030405.jpg" {
		t.Errorf("name: %s", filepath.Base(images[0]))
	}
}

func TestCaptureAllSkipsFailingDevice(t *testing.T) {
	calls := map[string]int{}
	run := func(ctx context.Context, name string, args ...string) ([]byte, error) {
		dev := ""
		for _, a := range args {
			if d, ok := strings.CutPrefix(a, "device="); ok {
				dev = d
			}
		}
		calls[dev]++
		if dev == "/dev/video10" {
			return nil, errors.New("device busy")
		}
		return fileWriter("jpeg")(ctx, name, args...)
	}
	g := newTestCamera(t, run, "/dev/video2", "/dev/video10")

	images, _ := g.CaptureAll(context.Background(), "fridge")
	if len(images) != 1 {
		t.Errorf("expected 1 image, got %v", images)
	}
	if calls["/dev/video10"] != 2 {
		t.Errorf("failing device should be retried, got %d attempts", calls["/dev/video10"])
	}
}

func TestCaptureAllRejectsEmptyFile(t *testing.T) {
	g := newTestCamera(t, fileWriter(""), "/dev/video2")

	images, _ := g.CaptureAll(context.Background(), "fridge")
	if len(images) != 0 {
		t.Errorf("empty output should not count, got %v", images)
	}
}
