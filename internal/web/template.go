package web

import (
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"

	"github.com/sweeney/fridge-daemon/internal/door"
	"github.com/sweeney/fridge-daemon/internal/status"
)

var funcs = template.FuncMap{
	"since": compactDuration,
	"stamp": func(t time.Time) string {
		if t.IsZero() {
			return "never"
		}
		return t.UTC().Format(time.RFC3339)
	},
	"doorLabel": func(s door.State) string {
		if s == "" {
			return string(door.StateUnknown)
		}
		return string(s)
	},
	"doorClass": func(s door.State) string {
		switch s {
		case door.StateOpen:
			return "open"
		case door.StateClosed:
			return "closed"
		}
		return "unknown"
	},
	"join": func(xs []string) string { return strings.Join(xs, ", ") },
}

var indexTmpl = template.Must(template.New("index").Funcs(funcs).Parse(indexHTML))

// compactDuration renders d as "3d4h", "2h5m", "7m12s" or "9s": the two
// largest non-zero units.
func compactDuration(d time.Duration) string {
	secs := int64(d / time.Second)
	units := []struct {
		n    int64
		name string
	}{
		{secs / 86400, "d"},
		{secs / 3600 % 24, "h"},
		{secs / 60 % 60, "m"},
		{secs % 60, "s"},
	}
	for i, u := range units {
		if u.n == 0 && i < len(units)-1 {
			continue
		}
		if i == len(units)-1 {
			return fmt.Sprintf("%d%s", u.n, u.name)
		}
		next := units[i+1]
		return fmt.Sprintf("%d%s%d%s", u.n, u.name, next.n, next.name)
	}
	return "0s"
}

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="10">
<title>Fridge {{.Config.Device}}</title>
<style>
body { font: 14px/1.4 system-ui, sans-serif; background: #f4f6f8; color: #222; margin: 0; padding: 1.5em; }
header { display: flex; justify-content: space-between; align-items: baseline; max-width: 720px; margin: 0 auto; }
main { display: grid; grid-template-columns: repeat(auto-fit, minmax(320px, 1fr)); gap: 1em; max-width: 720px; margin: 1em auto; }
section { background: #fff; border-radius: 6px; padding: 0.8em 1em; box-shadow: 0 1px 2px rgba(0,0,0,.08); }
section h2 { font-size: 1em; margin: 0 0 .5em; text-transform: uppercase; letter-spacing: .05em; color: #567; }
dl { display: grid; grid-template-columns: 9em 1fr; gap: .25em .75em; margin: 0; }
dt { color: #678; }
dd { margin: 0; font-family: ui-monospace, monospace; }
.open { color: #c60; font-weight: bold; }
.closed, .ok { color: #180; }
.unknown { color: #999; }
.bad { color: #c00; }
</style>
</head>
<body>
<header>
<h1>Fridge {{.Config.Device}}</h1>
<span>up {{since .Uptime}} &middot; <a href="/index.json">json</a></span>
</header>
<main>
<section>
<h2>Door</h2>
<dl>
<dt>State</dt><dd id="door-state" class="{{doorClass .Door.State}}">{{doorLabel .Door.State}}</dd>
<dt>Since</dt><dd>{{stamp .Door.LastChange}}</dd>
<dt>Openings</dt><dd>{{.DoorCounts.Opened}} opened / {{.DoorCounts.Closed}} closed</dd>
<dt>Source</dt><dd>{{.Config.DoorSource}}, poll {{.Config.DoorPollMs}}ms, debounce {{.Config.DebounceMs}}ms</dd>
</dl>
</section>

<section>
<h2>Sensors</h2>
<dl>
{{- if or .Telemetry.HaveTemperature .Telemetry.HavePower}}
<dt>Temperature</dt><dd id="temperature">{{if .Telemetry.HaveTemperature}}{{printf "%.2f" .Telemetry.Temperature}} &deg;C{{else}}<span class="unknown">no reading</span>{{end}}</dd>
<dt>Power</dt><dd id="power">{{if .Telemetry.HavePower}}{{printf "%.2f" .Telemetry.Power}} W{{else}}<span class="unknown">no reading</span>{{end}}</dd>
<dt>Sampled</dt><dd>{{stamp .Telemetry.At}}</dd>
{{- else}}
<dt>Readings</dt><dd class="unknown">none yet</dd>
{{- end}}
<dt>Pending</dt><dd>{{.Telemetry.BufferedTemp}} temp, {{.Telemetry.BufferedPower}} power</dd>
<dt>Dropped</dt><dd{{if .Telemetry.Dropped}} class="bad"{{end}}>{{.Telemetry.Dropped}}</dd>
<dt>Uploaded</dt><dd>{{stamp .Telemetry.LastFlush}} (every {{.Config.UploadMs}}ms)</dd>
</dl>
</section>

<section>
<h2>Inventory</h2>
<dl>
{{- with .LastCapture}}
<dt>Captured</dt><dd>{{stamp .Finished}}, {{.Images}} image(s){{if .Failure}} <span class="bad">{{.Failure}}</span>{{end}}</dd>
{{- range .Products}}
<dt>{{.Name}}</dt><dd>{{.Quantity}} &times; {{.Brand}} {{.Size}}</dd>
{{- end}}
{{- else}}
<dt>Captured</dt><dd class="unknown">none yet</dd>
{{- end}}
<dt>Sequences</dt><dd>{{.Captures}}</dd>
</dl>
</section>

<section>
<h2>Links</h2>
<dl>
<dt>Token</dt><dd>{{.Credential.State}}, validated {{stamp .Credential.LastValidated}}</dd>
<dt>Backend</dt><dd>{{.Config.APIBase}}</dd>
<dt>MQTT</dt><dd class="{{if .MQTTConnected}}ok{{else}}bad{{end}}">{{if .Config.Broker}}{{.Config.Broker}}{{else}}disabled{{end}}</dd>
<dt>Heartbeat</dt><dd>{{if .Config.HeartbeatMs}}{{.Config.HeartbeatMs}}ms{{else}}off{{end}}</dd>
<dt>Started</dt><dd>{{stamp .StartTime}}</dd>
{{- if .Degraded}}
<dt>Degraded</dt><dd class="bad">{{join .Degraded}}</dd>
{{- end}}
</dl>
</section>
</main>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) error {
	return indexTmpl.Execute(w, struct {
		status.Snapshot
		Uptime time.Duration
	}{snap, snap.Uptime()})
}
