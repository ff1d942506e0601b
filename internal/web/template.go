package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/beam-controller/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"stateOrUnknown": func(s string) string {
		if s == "" {
			return "UNKNOWN"
		}
		return s
	},
	"stateClass": func(s string) string {
		switch s {
		case "ON_BRIGHT", "FORCE_ON":
			return "on"
		case "ON_DIM", "FLASH":
			return "dim"
		case "OFF":
			return "off"
		default:
			return "unknown"
		}
	},
	"yesNo": func(b bool) string {
		if b {
			return "yes"
		}
		return "no"
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Beam Controller</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.dim { color: darkgoldenrod; font-weight: bold; }
.off { color: #888; }
.unknown { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
{{$state := stateOrUnknown (printf "%s" .Controller.State)}}
<h1>Beam Controller</h1>

<h2>State</h2>
<table>
<tr><th>State</th><td id="state" class="{{stateClass $state}}">{{$state}}</td></tr>
<tr><th>Level</th><td id="level">{{.Controller.Level}}</td></tr>
<tr><th>Target</th><td id="target">{{.Controller.Target}}</td></tr>
<tr><th>Ready</th><td>{{yesNo .Ready}}</td></tr>
</table>

<h2>Inputs</h2>
<table>
<tr><th>Battery</th><td id="voltage">{{printf "%.2f" .Controller.Voltage}} V ({{if .Controller.PowerOK}}ok{{else}}low{{end}})</td></tr>
<tr><th>Light</th><td id="light">{{if .Controller.LightEnabled}}{{printf "%.0f" .Controller.Light}} ({{if .Controller.Dark}}dark{{else}}light{{end}}){{else}}sensor disabled{{end}}</td></tr>
<tr><th>Request</th><td id="request">{{yesNo .Controller.Request}}</td></tr>
<tr><th>Override pending</th><td id="override">{{yesNo .Controller.Override}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{if .Config.Broker}}{{.Config.Broker}}{{else}}disabled{{end}}</td></tr>
</table>

<h2>State Counts</h2>
<table>
<tr><th>OFF</th><td>{{.Controller.Counts.Off}}</td></tr>
<tr><th>ON_BRIGHT</th><td>{{.Controller.Counts.OnBright}}</td></tr>
<tr><th>ON_DIM</th><td>{{.Controller.Counts.OnDim}}</td></tr>
<tr><th>FORCE_ON</th><td>{{.Controller.Counts.ForceOn}}</td></tr>
<tr><th>FLASH</th><td>{{.Controller.Counts.Flash}}</td></tr>
<tr><th>DIAGNOSTIC</th><td>{{.Controller.Counts.Diagnostic}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Tick</th><td>{{.Config.TickMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>Battery band</th><td>{{.Config.Calibration.VoltageLower}} / {{.Config.Calibration.VoltageUpper}} V</td></tr>
<tr><th>Light band</th><td>{{.Config.Calibration.LightLower}} / {{.Config.Calibration.LightUpper}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
<script>
(function() {
  var stateEl = document.getElementById("state");
  var levelEl = document.getElementById("level");
  var targetEl = document.getElementById("target");

  function stateClass(s) {
    if (s === "ON_BRIGHT" || s === "FORCE_ON") return "on";
    if (s === "ON_DIM" || s === "FLASH") return "dim";
    if (s === "OFF") return "off";
    return "unknown";
  }

  function poll() {
    fetch("/index.json").then(function(r) { return r.json(); }).then(function(msg) {
      if (!msg.status) return;
      stateEl.textContent = msg.status.state;
      stateEl.className = stateClass(msg.status.state);
      levelEl.textContent = msg.status.output.level;
      targetEl.textContent = msg.status.output.target;
    }).catch(function() {});
  }

  setInterval(poll, 1000);
})();
</script>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	indexTmpl.Execute(w, data)
}
