// Package status provides a thread-safe status tracker for the garage door
// daemon. It is written by the monitor loop and read by HTTP handlers and
// system events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/garage-door/internal/door"
)

// NetworkInfo contains network state. This is a local copy to avoid
// importing internal/mqtt from status.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	PollMs      int64
	HeartbeatMs int64
	Broker      string
	HTTPAddr    string
	WSBroker    string // websocket URL for the live page; empty disables it
	LogTracks   bool
}

// DoorStatus is the last published status of one door.
type DoorStatus struct {
	Name        string
	Status      door.Status
	State       door.State
	Label       string
	Locked      bool
	Since       time.Time // time of the last status change
	Transitions int       // status changes since start-up
	LastTrack   string    // most recent completed track
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type: safe to use after the lock is released.
type Snapshot struct {
	Doors         []DoorStatus // in registration order
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Door returns the named door's status.
func (s Snapshot) Door(name string) (DoorStatus, bool) {
	for _, d := range s.Doors {
		if d.Name == name {
			return d, true
		}
	}
	return DoorStatus{}, false
}

// Tracker holds mutable daemon state behind an RWMutex. It implements
// door.Publisher and door.TrackSink.
type Tracker struct {
	mu    sync.RWMutex
	snap  Snapshot
	index map[string]int
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
		index: make(map[string]int),
	}
}

// PublishStatus records a door's status. The first update for a door
// registers it.
func (t *Tracker) PublishStatus(u door.Update) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	i, ok := t.index[u.Door]
	if !ok {
		i = len(t.snap.Doors)
		t.index[u.Door] = i
		t.snap.Doors = append(t.snap.Doors, DoorStatus{Name: u.Door, Status: u.Status, Since: u.Time})
	}
	d := &t.snap.Doors[i]
	if ok && d.Status != u.Status {
		d.Transitions++
		d.Since = u.Time
	}
	d.Status = u.Status
	d.State = u.State
	d.Label = u.Label
	d.Locked = u.Locked
	return nil
}

// RecordTrack stores the most recent completed track for a door.
func (t *Tracker) RecordTrack(doorName, track string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i, ok := t.index[doorName]; ok {
		t.snap.Doors[i].LastTrack = track
	}
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Doors = append([]DoorStatus(nil), t.snap.Doors...)
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
