package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/garage-door/internal/door"
	"github.com/sweeney/garage-door/internal/mqtt"
	"github.com/sweeney/garage-door/internal/status"
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
	"slug":        mqtt.Slug,
	"statusClass": statusClass,
	"topic":       func() string { return mqtt.TopicPrefix + "/+/status" },
}).Parse(indexHTML))

// statusClass maps a status to the CSS class used to colour it.
func statusClass(s door.Status) string {
	switch s {
	case door.StatusOpen:
		return "open"
	case door.StatusClosed:
		return "closed"
	case door.StatusClosedLocked:
		return "locked"
	case door.StatusObstructed:
		return "obstructed"
	}
	return "moving"
}

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Garage Door</title>
<style>
body { font-family: monospace; max-width: 720px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.open { color: orange; font-weight: bold; }
.closed { color: green; font-weight: bold; }
.locked { color: blue; font-weight: bold; }
.moving { color: #c60; }
.obstructed { color: red; font-weight: bold; }
.track { font-size: 0.85em; color: #555; }
.connected { color: green; }
.disconnected { color: red; }
.live-dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-left: 6px; vertical-align: middle; }
.live-dot.ok { background: green; }
.live-dot.err { background: red; }
.live-dot.pending { background: orange; }
</style>
</head>
<body>
<h1>Garage Door{{if .Config.WSBroker}}<span id="live-dot" class="live-dot pending" title="connecting"></span>{{end}}</h1>

{{range .Doors}}
<h2>{{.Name}}</h2>
<table>
<tr><th>Status</th><td id="status-{{slug .Name}}" class="{{statusClass .Status}}">{{.Label}}</td></tr>
<tr><th>Locked</th><td id="locked-{{slug .Name}}">{{if .Locked}}yes{{else}}no{{end}}</td></tr>
<tr><th>Since</th><td id="since-{{slug .Name}}">{{.Since.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Transitions</th><td>{{.Transitions}}</td></tr>
{{if .LastTrack}}<tr><th>Last track</th><td class="track">{{.LastTrack}}</td></tr>{{end}}
</table>
{{else}}
<p>No doors configured.</p>
{{end}}

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Poll</th><td>{{.Config.PollMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
<tr><th>Track logging</th><td>{{if .Config.LogTracks}}on{{else}}off{{end}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
{{if .Config.WSBroker}}
<script src="https://unpkg.com/mqtt@5/dist/mqtt.min.js"></script>
<script>
(function() {
  var broker = "{{.Config.WSBroker}}";
  var topic = "{{topic}}";
  var dot = document.getElementById("live-dot");

  function classFor(status) {
    switch (status) {
    case "open": return "open";
    case "closed": return "closed";
    case "closed-locked": return "locked";
    case "obstructed": return "obstructed";
    }
    return "moving";
  }

  function setDot(cls, title) {
    dot.className = "live-dot " + cls;
    dot.title = title;
  }

  var client = mqtt.connect(broker, { reconnectPeriod: 5000 });

  client.on("connect", function() {
    setDot("ok", "live");
    client.subscribe(topic);
  });

  client.on("reconnect", function() {
    setDot("pending", "reconnecting");
  });

  client.on("offline", function() {
    setDot("err", "offline");
  });

  client.on("error", function() {
    setDot("err", "error");
  });

  client.on("message", function(t, payload) {
    try {
      var msg = JSON.parse(payload.toString());
      if (!msg.door) {
        return;
      }
      var slug = t.split("/")[2];
      var el = document.getElementById("status-" + slug);
      if (el) {
        el.textContent = msg.door.label;
        el.className = classFor(msg.door.status);
      }
      var locked = document.getElementById("locked-" + slug);
      if (locked) {
        locked.textContent = msg.door.locked ? "yes" : "no";
      }
      var since = document.getElementById("since-" + slug);
      if (since) {
        since.textContent = msg.door.timestamp;
      }
    } catch (e) {}
  });
})();
</script>
{{end}}
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
