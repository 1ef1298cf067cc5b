package door

import (
	"bytes"
	"errors"
	"log"
	"math"
	"strings"
	"testing"
	"time"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

// at returns t0 plus the given number of seconds.
func at(secs float64) time.Time {
	return t0.Add(time.Duration(math.Round(secs*1000)) * time.Millisecond)
}

type fakeTimer struct {
	calls []string
	err   error
}

func (f *fakeTimer) Stop() error    { f.calls = append(f.calls, "stop"); return f.err }
func (f *fakeTimer) Restart() error { f.calls = append(f.calls, "restart"); return f.err }

type fakeLock struct {
	engaged bool
	calls   []string
	err     error
}

func (f *fakeLock) Engage() error {
	f.calls = append(f.calls, "engage")
	if f.err != nil {
		return f.err
	}
	f.engaged = true
	return nil
}

func (f *fakeLock) Disengage() error {
	f.calls = append(f.calls, "disengage")
	f.engaged = false
	return f.err
}

func (f *fakeLock) DisengageMechanical() error {
	f.calls = append(f.calls, "disengage-mechanical")
	return f.err
}

func (f *fakeLock) Engaged() bool { return f.engaged }

type fakeVibration struct {
	resets []time.Duration
}

func (f *fakeVibration) Reset(delay time.Duration) error {
	f.resets = append(f.resets, delay)
	return nil
}

type fakePublisher struct {
	updates []Update
	err     error
}

func (f *fakePublisher) PublishStatus(u Update) error {
	if f.err != nil {
		return f.err
	}
	f.updates = append(f.updates, u)
	return nil
}

type fakeSinks struct {
	tracks   []string
	messages []string
}

func (f *fakeSinks) RecordTrack(door, track string) { f.tracks = append(f.tracks, track) }
func (f *fakeSinks) Notify(door, message string)    { f.messages = append(f.messages, message) }

// rig bundles a door with its fakes and captured log output.
type rig struct {
	door  *Door
	timer *fakeTimer
	lock  *fakeLock
	vib   *fakeVibration
	pub   *fakePublisher
	sinks *fakeSinks
	logs  *bytes.Buffer
}

func newRig(t *testing.T, cfg Config, snap Snapshot) *rig {
	t.Helper()
	if cfg.Name == "" {
		cfg.Name = "Garage"
	}
	r := &rig{
		timer: &fakeTimer{},
		lock:  &fakeLock{},
		vib:   &fakeVibration{},
		pub:   &fakePublisher{},
		sinks: &fakeSinks{},
		logs:  &bytes.Buffer{},
	}
	r.door = New(cfg, snap, Collaborators{
		Timer:     r.timer,
		Lock:      r.lock,
		Vibration: r.vib,
		Publisher: r.pub,
		Tracks:    r.sinks,
		Notifier:  r.sinks,
		Logger:    log.New(r.logs, "", 0),
	}, t0)
	return r
}

func (r *rig) handle(t *testing.T, ev Event, secs float64) Outcome {
	t.Helper()
	return r.door.Handle(ev, at(secs))
}

func (r *rig) expectStatus(t *testing.T, want Status) {
	t.Helper()
	if got := r.door.Status(); got != want {
		t.Fatalf("expected status %s, got %s", want, got)
	}
}

func (r *rig) expectLog(t *testing.T, substr string) {
	t.Helper()
	if !strings.Contains(r.logs.String(), substr) {
		t.Errorf("expected log to contain %q, got:\n%s", substr, r.logs.String())
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

var errDevice = errors.New("device offline")

// fullyWired has end sensors, relay and timer.
var fullyWired = NewRoleSet(RoleActivationRelay, RoleClosedSensor, RoleOpenSensor, RoleTravelTimer, RoleVirtualLock)

// timerOnly has no end sensors.
var timerOnly = NewRoleSet(RoleActivationRelay, RoleTravelTimer, RoleVirtualLock)
