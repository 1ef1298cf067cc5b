package door

import (
	"fmt"
	"log"
	"time"
)

// Timer is the travel timer for one door.
type Timer interface {
	Stop() error
	Restart() error
}

// Lock is the door's lock device: a virtual lock optionally backed by an
// opener power switch and a mechanical lock.
type Lock interface {
	Engage() error
	Disengage() error
	DisengageMechanical() error
	Engaged() bool
}

// VibrationSensor is a latching vibration sensor that must be reset.
type VibrationSensor interface {
	Reset(delay time.Duration) error
}

// Update is a status publication.
type Update struct {
	Door   string
	Time   time.Time
	Status Status
	State  State
	Label  string
	Locked bool
}

// Publisher receives every status change.
type Publisher interface {
	PublishStatus(u Update) error
}

// TrackSink receives each completed track.
type TrackSink interface {
	RecordTrack(door, track string)
}

// Notifier receives user-facing warnings that need manual attention.
type Notifier interface {
	Notify(door, message string)
}

// Logger receives diagnostic output. *log.Logger satisfies it.
type Logger interface {
	Printf(format string, v ...any)
}

// Collaborators are the devices and sinks a Door drives. Any of them may be
// nil; the matching actions then do nothing.
type Collaborators struct {
	Timer     Timer
	Lock      Lock
	Vibration VibrationSensor
	Publisher Publisher
	Tracks    TrackSink
	Notifier  Notifier
	Logger    Logger
}

// Config is the per-door configuration the core needs.
type Config struct {
	Name                string
	Wired               RoleSet // roles with a monitored device
	Invert              RoleSet // roles whose raw value is inverted
	TravelTime          time.Duration
	VibrationResetDelay time.Duration
	LockAfterClosing    bool
	UnlockBeforeOpening bool
	LogTracks           bool
}

// Snapshot holds normalized current values for roles at start-up. A
// missing role is unknown. The virtual lock always starts disengaged, so its
// entry is not consulted.
type Snapshot map[Role]bool

// Result classifies what Handle did with an event.
type Result int

const (
	ResultIgnored Result = iota
	ResultDuplicate
	ResultRejected
	ResultApplied
)

func (r Result) String() string {
	switch r {
	case ResultIgnored:
		return "ignored"
	case ResultDuplicate:
		return "duplicate"
	case ResultRejected:
		return "rejected"
	}
	return "applied"
}

// Outcome reports the effect of one event.
type Outcome struct {
	Event      Event // as qualified
	Result     Result
	From, To   Status
	Actions    []ActionKind
	Transition string // track text of the transition, if applied
}

// Door tracks the status of one physical garage door. It is not safe for
// concurrent use; the host delivers one event at a time.
type Door struct {
	cfg      Config
	c        Collaborators
	status   Status
	dir      Direction
	debounce *Debouncer
	track    *Track
}

// New creates a door, infers its initial status from snap and publishes it.
func New(cfg Config, snap Snapshot, c Collaborators, now time.Time) *Door {
	if c.Logger == nil {
		c.Logger = log.Default()
	}
	d := &Door{
		cfg:      cfg,
		c:        c,
		debounce: NewDebouncer(now),
	}

	status, warning := InitialStatus(cfg.Wired, snap)
	if warning != "" {
		d.warnf("%s", warning)
	}
	d.status = status
	d.dir = DirectionClosing
	if status == StatusOpen {
		d.dir = DirectionOpening
	}
	d.track = NewTrack(status)
	d.publish(now)
	return d
}

// InitialStatus infers a status from the end sensors. The door is assumed
// not to be moving. When the sensors are absent or disagree it falls back to
// closed and returns a warning.
func InitialStatus(wired RoleSet, snap Snapshot) (Status, string) {
	cs, csOK := snap[RoleClosedSensor]
	os, osOK := snap[RoleOpenSensor]
	csOK = csOK && wired.Has(RoleClosedSensor)
	osOK = osOK && wired.Has(RoleOpenSensor)

	switch {
	case csOK && osOK:
		switch {
		case cs && !os:
			return StatusClosed, ""
		case os && !cs:
			return StatusOpen, ""
		case cs && os:
			return StatusClosed, "closed and open sensors both on; assuming closed"
		default:
			return StatusClosed, "door neither closed nor open; assuming closed"
		}
	case csOK:
		if cs {
			return StatusClosed, ""
		}
		return StatusOpen, ""
	case osOK:
		if os {
			return StatusOpen, ""
		}
		return StatusClosed, ""
	}
	return StatusClosed, "no end sensor available; assuming closed"
}

// Name returns the door name.
func (d *Door) Name() string { return d.cfg.Name }

// Config returns the door configuration.
func (d *Door) Config() Config { return d.cfg }

// Status returns the current status.
func (d *Door) Status() Status { return d.status }

// State returns the current HomeKit-aligned state.
func (d *Door) State() State { return d.status.State() }

// Direction returns the current or most recent direction of travel.
func (d *Door) Direction() Direction { return d.dir }

// Track returns the track accumulated since the door last settled.
func (d *Door) Track() string { return d.track.String() }

// OnMonitoredDeviceEvent normalizes a raw change on a role's device using
// the configured invert flag and handles the resulting event, if any.
func (d *Door) OnMonitoredDeviceEvent(role Role, old, new bool, now time.Time) (Outcome, bool) {
	ev, ok := Normalize(role, old, new, d.cfg.Invert.Has(role))
	if !ok {
		return Outcome{}, false
	}
	return d.Handle(ev, now), true
}

// Handle applies one normalized event at time now.
func (d *Door) Handle(ev Event, now time.Time) Outcome {
	out := Outcome{Event: ev, From: d.status, To: d.status}
	if ignorable(ev) {
		out.Result = ResultIgnored
		return out
	}

	elapsed, ok := d.debounce.Check(ev, now)
	if !ok {
		d.warnf("duplicate event %s reported within %v; event ignored", ev, DuplicateWindow)
		out.Result = ResultDuplicate
		return out
	}

	ev = Qualify(ev, d.dir, d.cfg.Wired)
	out.Event = ev

	entry, ok := Lookup(d.status, ev)
	if !ok {
		d.warnf("event %s inconsistent with current status %s; event ignored", ev, d.status.Track())
		if d.status == StatusClosedLocked {
			d.notify(fmt.Sprintf("activity (%s) reported while the door is locked", ev))
		}
		out.Result = ResultRejected
		return out
	}

	from := d.status
	out.Result = ResultApplied
	out.To = entry.Next
	out.Actions = entry.Actions
	out.Transition = d.track.Append(elapsed, ev, entry.Next)

	if d.c.Lock != nil && d.c.Lock.Engaged() && entry.Next != StatusClosedLocked {
		closeIt := ""
		if entry.Next.State() != StateClosed {
			closeIt = " close it and"
		}
		d.warnf("door LOCKED during transition%s;%s unlock it", out.Transition, closeIt)
		if from == StatusClosedLocked {
			d.notify(fmt.Sprintf("door moved (%s) while locked", ev))
		}
	}

	d.status = entry.Next
	if entry.Next != from {
		d.publish(now)
	}

	x := execution{from: from, next: entry.Next, transition: out.Transition}
	for _, a := range entry.Actions {
		d.run(a, x)
	}
	return out
}

func (d *Door) publish(now time.Time) {
	d.logf("update to %s", d.status.Track())
	if d.c.Publisher == nil {
		return
	}
	u := Update{
		Door:   d.cfg.Name,
		Time:   now,
		Status: d.status,
		State:  d.status.State(),
		Label:  d.status.Label(),
		Locked: d.status == StatusClosedLocked,
	}
	if err := d.c.Publisher.PublishStatus(u); err != nil {
		d.warnf("publish status %s failed: %v", d.status, err)
	}
}

func (d *Door) logf(format string, v ...any) {
	d.c.Logger.Printf("%q "+format, append([]any{d.cfg.Name}, v...)...)
}

func (d *Door) warnf(format string, v ...any) {
	d.c.Logger.Printf("warning: %q "+format, append([]any{d.cfg.Name}, v...)...)
}

func (d *Door) notify(msg string) {
	if d.c.Notifier != nil {
		d.c.Notifier.Notify(d.cfg.Name, msg)
	}
}
