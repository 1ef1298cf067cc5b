package web

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sweeney/garage-door/internal/door"
	"github.com/sweeney/garage-door/internal/mqtt"
	"github.com/sweeney/garage-door/internal/status"
)

var start = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

const testToken = "s3cret"

// postCommand posts to the command endpoint with the given headers.
func postCommand(t *testing.T, ts *httptest.Server, method, query string, header map[string]string) int {
	t.Helper()
	req, err := http.NewRequest(method, ts.URL+"/door/command?"+query, nil)
	if err != nil {
		t.Fatal(err)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	return resp.StatusCode
}

var bearer = map[string]string{"Authorization": "Bearer " + testToken}

func newTestServer(t *testing.T, commands chan<- mqtt.Command) (*httptest.Server, *status.Tracker) {
	t.Helper()
	cfg := status.Config{
		PollMs:      100,
		HeartbeatMs: 900000,
		Broker:      "tcp://192.168.1.200:1883",
		HTTPAddr:    ":80",
	}
	tr := status.NewTracker(start, cfg)
	srv := New(":0", tr, commands, testToken)
	ts := httptest.NewServer(srv.httpServer.Handler)
	t.Cleanup(ts.Close)
	return ts, tr
}

func update(name string, s door.Status, at time.Time) door.Update {
	return door.Update{
		Door:   name,
		Time:   at,
		Status: s,
		State:  s.State(),
		Label:  s.Label(),
		Locked: s == door.StatusClosedLocked,
	}
}

func TestJSONEndpoint(t *testing.T) {
	ts, tr := newTestServer(t, nil)
	tr.PublishStatus(update("Left Door", door.StatusClosed, start))
	tr.PublishStatus(update("Left Door", door.StatusOpening, start.Add(time.Minute)))
	tr.PublishStatus(update("Right Door", door.StatusClosedLocked, start))
	tr.SetMQTTConnected(true)

	resp, err := http.Get(ts.URL + "/index.json")
	if err != nil {
		t.Fatalf("GET /index.json: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want application/json", ct)
	}

	var sj status.StatusJSON
	if err := json.NewDecoder(resp.Body).Decode(&sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}

	if len(sj.Status.Doors) != 2 {
		t.Fatalf("Doors: got %d, want 2", len(sj.Status.Doors))
	}
	left := sj.Status.Doors[0]
	if left.Name != "Left Door" || left.Status != "opening" || left.Transitions != 1 {
		t.Errorf("left door: got %+v", left)
	}
	if left.Since != "2026-01-01T00:01:00Z" {
		t.Errorf("left Since: got %q", left.Since)
	}
	if !sj.Status.Doors[1].Locked {
		t.Error("expected right door locked")
	}
	if !sj.Status.MQTT.Connected {
		t.Error("expected MQTT.Connected=true")
	}
	if sj.Status.Config.PollMs != 100 {
		t.Errorf("Config.PollMs: got %d, want 100", sj.Status.Config.PollMs)
	}
	if sj.Status.Event != "" {
		t.Errorf("web JSON should carry no event, got %q", sj.Status.Event)
	}
}

func TestJSONNetworkInfo(t *testing.T) {
	ts, tr := newTestServer(t, nil)
	tr.SetNetwork(&status.NetworkInfo{
		Type:   "wifi",
		IP:     "192.168.1.42",
		Status: "connected",
		SSID:   "MyNet",
	})

	resp, err := http.Get(ts.URL + "/index.json")
	if err != nil {
		t.Fatalf("GET /index.json: %v", err)
	}
	defer resp.Body.Close()

	var sj status.StatusJSON
	json.NewDecoder(resp.Body).Decode(&sj)

	if sj.Status.Network == nil {
		t.Fatal("expected Network in JSON")
	}
	if sj.Status.Network.IP != "192.168.1.42" {
		t.Errorf("Network.IP: got %q, want 192.168.1.42", sj.Status.Network.IP)
	}
}

func TestDoorEndpoint(t *testing.T) {
	ts, tr := newTestServer(t, nil)
	tr.PublishStatus(update("Left Door", door.StatusObstructed, start))
	tr.RecordTrack("Left Door", "OPENING [12.00s tt-exp OBSTRUCTED]")

	for _, name := range []string{"Left%20Door", "left-door"} {
		resp, err := http.Get(ts.URL + "/door?name=" + name)
		if err != nil {
			t.Fatalf("GET /door: %v", err)
		}
		var dj status.DoorJSON
		json.NewDecoder(resp.Body).Decode(&dj)
		resp.Body.Close()

		if resp.StatusCode != 200 {
			t.Errorf("%s: status got %d, want 200", name, resp.StatusCode)
		}
		if dj.Status != "obstructed" || dj.HomeKitState != door.StateObstructed.HomeKit() {
			t.Errorf("%s: got %+v", name, dj)
		}
		if dj.LastTrack == "" {
			t.Errorf("%s: expected last track", name)
		}
	}

	resp, err := http.Get(ts.URL + "/door?name=back")
	if err != nil {
		t.Fatalf("GET /door: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 404 {
		t.Errorf("unknown door: got %d, want 404", resp.StatusCode)
	}
}

func TestCommandEndpoint(t *testing.T) {
	cmds := make(chan mqtt.Command, 1)
	ts, tr := newTestServer(t, cmds)
	tr.PublishStatus(update("Left Door", door.StatusClosed, start))

	if code := postCommand(t, ts, http.MethodPost, "name=left-door&action=OPEN", bearer); code != http.StatusAccepted {
		t.Fatalf("status: got %d, want 202", code)
	}
	select {
	case c := <-cmds:
		if c.Door != "left-door" || c.Action != mqtt.ActionOpen {
			t.Errorf("command: got %+v", c)
		}
	default:
		t.Fatal("expected a queued command")
	}

	tests := []struct {
		name   string
		method string
		query  string
		want   int
	}{
		{"wrong method", http.MethodGet, "name=left-door&action=open", http.StatusMethodNotAllowed},
		{"unknown door", http.MethodPost, "name=back&action=open", http.StatusNotFound},
		{"bad action", http.MethodPost, "name=left-door&action=fly", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code := postCommand(t, ts, tt.method, tt.query, bearer); code != tt.want {
				t.Errorf("status: got %d, want %d", code, tt.want)
			}
		})
	}
}

func TestCommandForbidden(t *testing.T) {
	cmds := make(chan mqtt.Command, 1)
	ts, tr := newTestServer(t, cmds)
	tr.PublishStatus(update("Left Door", door.StatusClosed, start))

	tests := []struct {
		name   string
		header map[string]string
	}{
		{"no token", nil},
		{"wrong token", map[string]string{"Authorization": "Bearer nope"}},
		{"not bearer", map[string]string{"Authorization": "Basic " + testToken}},
		{"cross-site form", map[string]string{"Authorization": "Bearer " + testToken, "Origin": "http://evil.example"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code := postCommand(t, ts, http.MethodPost, "name=left-door&action=open", tt.header); code != http.StatusForbidden {
				t.Errorf("status: got %d, want 403", code)
			}
		})
	}
	if len(cmds) != 0 {
		t.Errorf("forbidden requests queued %d commands", len(cmds))
	}

	sameSite := map[string]string{
		"Authorization": "Bearer " + testToken,
		"Origin":        ts.URL,
	}
	if code := postCommand(t, ts, http.MethodPost, "name=left-door&action=open", sameSite); code != http.StatusAccepted {
		t.Errorf("same-origin request: got %d, want 202", code)
	}
}

func TestCommandQueueFull(t *testing.T) {
	cmds := make(chan mqtt.Command, 1)
	ts, tr := newTestServer(t, cmds)
	tr.PublishStatus(update("Left Door", door.StatusClosed, start))
	cmds <- mqtt.Command{Door: "left-door", Action: mqtt.ActionToggle}

	if code := postCommand(t, ts, http.MethodPost, "name=left-door&action=toggle", bearer); code != http.StatusServiceUnavailable {
		t.Errorf("status: got %d, want 503", code)
	}
}

func TestCommandsDisabled(t *testing.T) {
	ts, _ := newTestServer(t, nil)
	if code := postCommand(t, ts, http.MethodPost, "name=left-door&action=open", bearer); code != http.StatusNotImplemented {
		t.Errorf("no command channel: got %d, want 501", code)
	}

	tr := status.NewTracker(start, status.Config{})
	noToken := httptest.NewServer(New(":0", tr, make(chan mqtt.Command, 1), "").httpServer.Handler)
	defer noToken.Close()
	if code := postCommand(t, noToken, http.MethodPost, "name=left-door&action=open", nil); code != http.StatusNotImplemented {
		t.Errorf("no token configured: got %d, want 501", code)
	}
}

func TestHTMLEndpointRoot(t *testing.T) {
	ts, tr := newTestServer(t, nil)
	tr.PublishStatus(update("Left Door", door.StatusClosedLocked, start))
	tr.RecordTrack("Left Door", "CLOSED [0.00s vl-on CLOSED-LOCKED]")

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	ct := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type: got %q, want text/html", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	for _, want := range []string{"Left Door", `id="status-left-door"`, `class="locked"`, door.StatusClosedLocked.Label(), "vl-on CLOSED-LOCKED"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("body missing %q", want)
		}
	}
	if strings.Contains(string(body), "mqtt.connect") {
		t.Error("live script should be absent without a websocket broker")
	}
}

func TestHTMLLiveScript(t *testing.T) {
	tr := status.NewTracker(start, status.Config{WSBroker: "ws://192.168.1.200:9001"})
	ts := httptest.NewServer(New(":0", tr, nil, "").httpServer.Handler)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if !strings.Contains(string(body), "mqtt.connect") || !strings.Contains(string(body), "No doors configured") {
		t.Errorf("unexpected body:\n%s", body)
	}
}

func TestHTMLEndpointIndexHTML(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/index.html")
	if err != nil {
		t.Fatalf("GET /index.html: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
}

func TestNotFoundForUnknownPath(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/nonexistent")
	if err != nil {
		t.Fatalf("GET /nonexistent: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 404 {
		t.Errorf("status: got %d, want 404", resp.StatusCode)
	}
}

func TestStatusClass(t *testing.T) {
	tests := map[door.Status]string{
		door.StatusOpen:         "open",
		door.StatusClosed:       "closed",
		door.StatusClosedLocked: "locked",
		door.StatusObstructed:   "obstructed",
		door.StatusOpening:      "moving",
		door.StatusClosing:      "moving",
	}
	for s, want := range tests {
		if got := statusClass(s); got != want {
			t.Errorf("statusClass(%s): got %q, want %q", s, got, want)
		}
	}
}
