package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/sweeney/fridge-daemon/internal/config"
	"github.com/sweeney/fridge-daemon/internal/credential"
	"github.com/sweeney/fridge-daemon/internal/snapshot"
)

// writeConfig writes a config file into a temp dir and returns its path
// along with the dir.
func writeConfig(t *testing.T, body string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	body = strings.ReplaceAll(body, "$DIR", dir)
	path := filepath.Join(dir, "fridge.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path, dir
}

// execute runs the root command with args and returns its output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	for _, k := range []string{"FRIDGE_DEVICE", "FRIDGE_API_BASE", "FRIDGE_TOKEN_FILE", "FRIDGE_MQTT_BROKER", "FRIDGE_HTTP_ADDR", "FRIDGE_DOOR_SOURCE", config.EnvConfig} {
		t.Setenv(k, "")
	}
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--env-file", ""}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

// backend serves /setupFrigo.php and accepts everything else.
func backend(t *testing.T, token string) (*httptest.Server, *int32) {
	t.Helper()
	var setups int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/setupFrigo.php" {
			atomic.AddInt32(&setups, 1)
			fmt.Fprintf(w, `{"token":%q}`, token)
			return
		}
		w.Write([]byte(`{}`))
	}))
	t.Cleanup(srv.Close)
	return srv, &setups
}

func TestDoorCommandWritesSignalFile(t *testing.T) {
	path, dir := writeConfig(t, "door:\n  source: file\n  signal_file: $DIR/door\n")
	signal := filepath.Join(dir, "door")

	out, err := execute(t, "--config", path, "door", "open")
	if err != nil {
		t.Fatalf("door open: %v", err)
	}
	if !strings.Contains(out, "door: OPEN") {
		t.Errorf("output: %q", out)
	}
	data, _ := os.ReadFile(signal)
	if strings.TrimSpace(string(data)) != "open" {
		t.Errorf("signal file: got %q, want open", data)
	}

	if _, err := execute(t, "--config", path, "door", "close"); err != nil {
		t.Fatalf("door close: %v", err)
	}
	data, _ = os.ReadFile(signal)
	if strings.TrimSpace(string(data)) != "closed" {
		t.Errorf("signal file: got %q, want closed", data)
	}
}

func TestPrintStateReadsDoorAndSnapshot(t *testing.T) {
	path, dir := writeConfig(t, `door:
  source: file
  signal_file: $DIR/door
telemetry:
  snapshot_path: $DIR/snapshot.json
http:
  snapshot_max_age: 1h
`)
	if _, err := execute(t, "--config", path, "door", "open"); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "--config", path, "print-state")
	if err != nil {
		t.Fatalf("print-state: %v", err)
	}
	if !strings.Contains(out, "door: OPEN") {
		t.Errorf("missing door line: %q", out)
	}
	if !strings.Contains(out, "sensors: unavailable") {
		t.Errorf("expected unavailable sensors without a snapshot: %q", out)
	}

	now := time.Now()
	if err := snapshot.Write(filepath.Join(dir, "snapshot.json"), snapshot.Snapshot{
		Temperature: 4.5, Power: 101.25, Timestamp: now, LastUpdate: now,
	}); err != nil {
		t.Fatal(err)
	}
	out, err = execute(t, "--config", path, "print-state")
	if err != nil {
		t.Fatalf("print-state: %v", err)
	}
	for _, want := range []string{"temperature: 4.50", "power: 101.25"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in %q", want, out)
		}
	}
}

func TestValidateConfigPrintsEffectiveValues(t *testing.T) {
	path, _ := writeConfig(t, "device: kitchen\ndoor:\n  debounce: 250ms\n")

	out, err := execute(t, "--config", path, "validate-config")
	if err != nil {
		t.Fatalf("validate-config: %v", err)
	}
	for _, want := range []string{"device: kitchen", "debounce: 250ms", "source: file"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in output:\n%s", want, out)
		}
	}
}

func TestValidateConfigRejectsBadValues(t *testing.T) {
	path, _ := writeConfig(t, "door:\n  poll: 0s\n")

	_, err := execute(t, "--config", path, "validate-config")
	if err == nil || !strings.Contains(err.Error(), "door.poll") {
		t.Fatalf("expected door.poll error, got %v", err)
	}
}

func TestConfigPathFromEnvironment(t *testing.T) {
	path, _ := writeConfig(t, "device: from-env\n")
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"--env-file", "", "validate-config"})
	t.Setenv(config.EnvConfig, path)
	t.Setenv("FRIDGE_DEVICE", "")

	if err := root.Execute(); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "device: from-env") {
		t.Errorf("config from $%s not used:\n%s", config.EnvConfig, out.String())
	}
}

func TestEnvFileOverridesConfig(t *testing.T) {
	path, dir := writeConfig(t, "device: from-file\n")
	env := filepath.Join(dir, ".env")
	if err := os.WriteFile(env, []byte("FRIDGE_DEVICE=from-dotenv\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("FRIDGE_DEVICE", "")
	os.Unsetenv("FRIDGE_DEVICE")

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"--env-file", env, "--config", path, "validate-config"})
	if err := root.Execute(); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "device: from-dotenv") {
		t.Errorf("dotenv value not applied:\n%s", out.String())
	}
}

func TestMissingEnvFileIgnored(t *testing.T) {
	if err := loadEnv(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Errorf("missing env file should be ignored, got %v", err)
	}
}

func TestSetupRegistersOnce(t *testing.T) {
	srv, setups := backend(t, "tok-1")
	path, dir := writeConfig(t, "api:\n  base: "+srv.URL+"\ncredential:\n  path: $DIR/token.json\n")

	out, err := execute(t, "--config", path, "setup")
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if !strings.Contains(out, "registered") {
		t.Errorf("output: %q", out)
	}
	c, err := credential.NewStore(filepath.Join(dir, "token.json")).Load()
	if err != nil {
		t.Fatal(err)
	}
	if c.Token != "tok-1" {
		t.Errorf("token: got %q, want tok-1", c.Token)
	}

	out, err = execute(t, "--config", path, "setup")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "already configured") {
		t.Errorf("second setup should be a no-op: %q", out)
	}
	if n := atomic.LoadInt32(setups); n != 1 {
		t.Errorf("setup calls: got %d, want 1", n)
	}

	if _, err := execute(t, "--config", path, "setup", "--force"); err != nil {
		t.Fatal(err)
	}
	if n := atomic.LoadInt32(setups); n != 2 {
		t.Errorf("setup calls after --force: got %d, want 2", n)
	}
}

func TestRunRegistersAndStopsOnSignal(t *testing.T) {
	srv, setups := backend(t, "tok-run")
	path, dir := writeConfig(t, `api:
  base: `+srv.URL+`
credential:
  path: $DIR/token.json
door:
  signal_file: $DIR/door
telemetry:
  snapshot_path: $DIR/snapshot.json
daemon:
  stop_grace: 1s
`)
	t.Setenv("FRIDGE_DOOR_SOURCE", "")
	cfg, err := loadConfig(&options{configPath: path})
	if err != nil {
		t.Fatal(err)
	}

	sig := make(chan os.Signal, 1)
	done := make(chan error, 1)
	go func() { done <- run(context.Background(), cfg, sig) }()

	token := filepath.Join(dir, "token.json")
	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err := os.Stat(token); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("device was not registered")
		}
		time.Sleep(10 * time.Millisecond)
	}
	sig <- syscall.SIGTERM

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("run did not return after SIGTERM")
	}

	if n := atomic.LoadInt32(setups); n != 1 {
		t.Errorf("setup calls: got %d, want 1", n)
	}
	c, err := credential.NewStore(token).Load()
	if err != nil {
		t.Fatal(err)
	}
	if c.Token != "tok-run" {
		t.Errorf("token: got %q", c.Token)
	}
}

func TestRunSignalInterruptsRegistration(t *testing.T) {
	var setups int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/setupFrigo.php" {
			atomic.AddInt32(&setups, 1)
			<-r.Context().Done()
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	path, dir := writeConfig(t, `api:
  base: `+srv.URL+`
  timeout: 1m
  retry:
    attempts: 4
    delay: 30s
credential:
  path: $DIR/token.json
door:
  signal_file: $DIR/door
telemetry:
  snapshot_path: $DIR/snapshot.json
daemon:
  stop_grace: 1s
`)
	t.Setenv("FRIDGE_DOOR_SOURCE", "")
	cfg, err := loadConfig(&options{configPath: path})
	if err != nil {
		t.Fatal(err)
	}

	sig := make(chan os.Signal, 1)
	done := make(chan error, 1)
	go func() { done <- run(context.Background(), cfg, sig) }()

	deadline := time.Now().Add(5 * time.Second)
	for atomic.LoadInt32(&setups) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("registration never started")
		}
		time.Sleep(10 * time.Millisecond)
	}
	sig <- syscall.SIGINT

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("SIGINT was not handled while registration was in flight")
	}
	if _, err := os.Stat(filepath.Join(dir, "token.json")); err == nil {
		t.Error("no token should be stored after an interrupted registration")
	}
}

func TestSignalName(t *testing.T) {
	if got := signalName(syscall.SIGINT); got != "SIGINT" {
		t.Errorf("SIGINT: got %s", got)
	}
	if got := signalName(syscall.SIGTERM); got != "SIGTERM" {
		t.Errorf("SIGTERM: got %s", got)
	}
	if got := signalName(syscall.SIGHUP); got != "UNKNOWN" {
		t.Errorf("SIGHUP: got %s", got)
	}
}
