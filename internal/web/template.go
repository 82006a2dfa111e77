package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/whackamole/internal/logic"
	"github.com/sweeney/whackamole/internal/status"
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
	"onOff": func(on bool) string {
		if on {
			return "ON"
		}
		return "OFF"
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Whack-a-Mole</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Whack-a-Mole{{if not .Running}} (not ready){{end}}</h1>

<h2>Indicators</h2>
<table>
{{range .Buttons}}<tr><th>{{.Color}} (btn {{.ButtonPin}}, led {{.LEDPin}})</th><td id="led-{{.Color}}" class="{{if .On}}on{{else}}off{{end}}">{{onOff .On}}</td><td>{{.Presses}} presses</td></tr>
{{end}}</table>

<h2>Events</h2>
<table>
<tr><th>Pending</th><td>{{if .Pending}}{{.Pending}}{{else}}none{{end}}</td></tr>
<tr><th>Overwritten</th><td>{{.Store.Overwritten}}</td></tr>
<tr><th>Read mode</th><td>{{.Config.ReadMode}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{if .Config.Broker}}{{.Config.Broker}}{{else}}disabled{{end}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Chip</th><td>{{.Config.Chip}}</td></tr>
<tr><th>Debounce</th><td>{{.Config.DebounceMs}}ms</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> · <a href="/channel">channel</a></p>
</body>
</html>
`

type buttonRow struct {
	Color     string
	ButtonPin int
	LEDPin    int
	On        bool
	Presses   int
}

func renderHTML(w io.Writer, snap status.Snapshot) error {
	rows := make([]buttonRow, 0, logic.NumButtons)
	for b := logic.ButtonIndex(0); b < logic.NumButtons; b++ {
		row := buttonRow{
			Color:   b.Color(),
			On:      snap.Store.Indicators[b],
			Presses: snap.Store.Presses[b],
		}
		if int(b) < len(snap.Config.ButtonPins) {
			row.ButtonPin = snap.Config.ButtonPins[b]
		}
		if int(b) < len(snap.Config.LEDPins) {
			row.LEDPin = snap.Config.LEDPins[b]
		}
		rows = append(rows, row)
	}
	pending := ""
	if p := snap.Store.Pending; p != nil {
		pending = logic.FormatEvent(*p)
	}

	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime  time.Duration
		Buttons []buttonRow
		Pending string
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		Buttons:  rows,
		Pending:  pending,
	}
	return indexTmpl.Execute(w, data)
}
