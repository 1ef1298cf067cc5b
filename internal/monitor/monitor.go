// Package monitor is the host loop around the door core. It samples GPIO,
// advances the software devices, turns value changes into door events and
// executes door commands. It is single-threaded: Poll and Command must be
// called from the same goroutine.
package monitor

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/sweeney/garage-door/internal/devices"
	"github.com/sweeney/garage-door/internal/door"
	"github.com/sweeney/garage-door/internal/gpio"
)

var (
	// ErrUnknownDoor is returned for a command naming no configured door.
	ErrUnknownDoor = errors.New("unknown door")
	// ErrDoorLocked is returned when a command would move a locked door.
	ErrDoorLocked = errors.New("door is locked")
	// ErrNotApplicable is returned when a command does not fit the door's
	// current status, e.g. close while closed.
	ErrNotApplicable = errors.New("command not applicable")
	// ErrNoActivator is returned when a door has no activation relay.
	ErrNoActivator = errors.New("no activation relay configured")
)

// maxPasses bounds how often one door is rescanned per poll while its
// device values keep changing as a result of its own actions.
const maxPasses = 8

// UnlockSettle is the pause between releasing the lock and pulsing the
// opener, giving opener power time to come back.
const UnlockSettle = 2 * time.Second

// Command is a door command.
type Command string

const (
	CommandOpen   Command = "open"
	CommandClose  Command = "close"
	CommandToggle Command = "toggle"
	CommandLock   Command = "lock"
	CommandUnlock Command = "unlock"
)

// Options configures a Monitor.
type Options struct {
	Reader    gpio.Reader // all input lines of all doors; may be nil
	Publisher door.Publisher
	Tracks    door.TrackSink
	Notifier  door.Notifier
	Logger    *log.Logger
	Now       func() time.Time    // defaults to time.Now
	Sleep     func(time.Duration) // defaults to time.Sleep
}

// Input binds a role to an index in the Reader's sample.
type Input struct {
	Role  door.Role
	Index int
}

// Relays are a door's output lines. Any may be nil.
type Relays struct {
	Activation gpio.Relay
	Pulse      time.Duration
	Power      gpio.Relay
	Lock       gpio.Relay
}

// Monitor owns every door and its devices.
type Monitor struct {
	opts   Options
	doors  []*entry
	byName map[string]*entry
	values []bool
}

type entry struct {
	door      *door.Door
	cfg       door.Config
	inputs    map[door.Role]int
	last      map[door.Role]bool // raw values as last seen
	timer     *devices.TravelTimer
	lock      *devices.LockCoordinator
	vibration *devices.VibrationLatch
	activator *devices.Activator
}

// New creates an empty Monitor.
func New(opts Options) *Monitor {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Sleep == nil {
		opts.Sleep = time.Sleep
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Monitor{opts: opts, byName: make(map[string]*entry)}
}

// AddDoor creates the door's devices, reads its current inputs to infer the
// initial status and registers it.
func (m *Monitor) AddDoor(cfg door.Config, inputs []Input, relays Relays) (*door.Door, error) {
	if _, dup := m.byName[cfg.Name]; dup {
		return nil, fmt.Errorf("door %q already added", cfg.Name)
	}
	values, err := m.read()
	if err != nil {
		return nil, fmt.Errorf("door %q: read initial values: %w", cfg.Name, err)
	}

	e := &entry{
		cfg:    cfg,
		inputs: make(map[door.Role]int),
		last:   make(map[door.Role]bool),
		timer:  devices.NewTravelTimer(cfg.TravelTime, m.opts.Now),
		lock:   devices.NewLockCoordinator(relays.Power, relays.Lock),
	}
	for _, in := range inputs {
		if in.Index < 0 || in.Index >= len(values) {
			return nil, fmt.Errorf("door %q: %s input index %d out of range", cfg.Name, in.Role, in.Index)
		}
		e.inputs[in.Role] = in.Index
	}
	if _, ok := e.inputs[door.RoleVibrationSensor]; ok {
		e.vibration = devices.NewVibrationLatch(m.opts.Now)
	}
	if relays.Activation != nil {
		e.activator = devices.NewActivator(relays.Activation, relays.Pulse, m.opts.Sleep)
	}

	snap := door.Snapshot{}
	for _, role := range door.Roles() {
		raw, ok := e.raw(role, values)
		if !ok {
			continue
		}
		e.last[role] = raw
		snap[role] = raw != cfg.Invert.Has(role)
	}

	c := door.Collaborators{
		Timer:     e.timer,
		Lock:      e.lock,
		Publisher: m.opts.Publisher,
		Tracks:    m.opts.Tracks,
		Notifier:  m.opts.Notifier,
		Logger:    m.opts.Logger,
	}
	if e.vibration != nil {
		c.Vibration = e.vibration
	}
	e.door = door.New(cfg, snap, c, m.opts.Now())

	m.doors = append(m.doors, e)
	m.byName[cfg.Name] = e
	return e.door, nil
}

// Doors returns the registered doors in order.
func (m *Monitor) Doors() []*door.Door {
	out := make([]*door.Door, len(m.doors))
	for i, e := range m.doors {
		out[i] = e.door
	}
	return out
}

// Door returns the named door.
func (m *Monitor) Door(name string) (*door.Door, bool) {
	e, ok := m.byName[name]
	if !ok {
		return nil, false
	}
	return e.door, true
}

// Poll samples the inputs once, advances timers and latches to now and
// delivers every resulting event.
func (m *Monitor) Poll(now time.Time) error {
	values, err := m.read()
	if err != nil {
		return fmt.Errorf("gpio read: %w", err)
	}
	for _, e := range m.doors {
		e.timer.Tick(now)
		if e.vibration != nil {
			e.vibration.Tick(now)
		}
		m.scan(e, values, now)
	}
	return nil
}

// Command executes a door command. Activation blocks for the relay pulse.
func (m *Monitor) Command(name string, cmd Command) error {
	e, ok := m.byName[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownDoor, name)
	}
	status := e.door.Status()
	m.opts.Logger.Printf("%q command %s while %s", name, cmd, status.Track())

	switch cmd {
	case CommandOpen:
		switch status {
		case door.StatusClosed:
			return m.activate(e)
		case door.StatusClosedLocked:
			return m.unlockAndActivate(e)
		}
	case CommandClose:
		if status == door.StatusOpen {
			return m.activate(e)
		}
	case CommandToggle:
		if status == door.StatusClosedLocked {
			return m.unlockAndActivate(e)
		}
		return m.activate(e)
	case CommandLock:
		switch status {
		case door.StatusClosedLocked:
			return nil
		case door.StatusClosed:
			err := e.lock.Engage()
			m.rescan(e)
			return err
		}
	case CommandUnlock:
		// A locked door moved by hand keeps its lock until it is released.
		if e.lock.Engaged() {
			err := e.lock.Disengage()
			m.rescan(e)
			return err
		}
		if status == door.StatusClosed {
			return nil
		}
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
	return fmt.Errorf("%w: %s while door is %s", ErrNotApplicable, cmd, status)
}

func (m *Monitor) unlockAndActivate(e *entry) error {
	if !e.cfg.UnlockBeforeOpening {
		return fmt.Errorf("%w: %s", ErrDoorLocked, e.cfg.Name)
	}
	if err := e.lock.Disengage(); err != nil {
		return fmt.Errorf("unlock before opening: %w", err)
	}
	m.rescan(e)
	m.opts.Sleep(UnlockSettle)
	return m.activate(e)
}

// activate pulses the activation relay. Without a sense line on the relay
// the press is reported to the door directly.
func (m *Monitor) activate(e *entry) error {
	if e.activator == nil {
		return fmt.Errorf("%w: %s", ErrNoActivator, e.cfg.Name)
	}
	_, sensed := e.inputs[door.RoleActivationRelay]
	report := func(ev door.Event) {
		if sensed {
			m.rescan(e)
			return
		}
		e.door.Handle(ev, m.opts.Now())
	}
	err := e.activator.Pulse(func() { report(door.Rise(door.RoleActivationRelay)) })
	if err != nil {
		return err
	}
	report(door.Fall(door.RoleActivationRelay))
	return nil
}

// rescan rereads the inputs and delivers changes for one door. It is used
// after a command changes device state outside the regular poll.
func (m *Monitor) rescan(e *entry) {
	values, err := m.read()
	if err != nil {
		m.opts.Logger.Printf("warning: %q gpio read: %v", e.cfg.Name, err)
		values = m.values
	}
	m.scan(e, values, m.opts.Now())
}

// scan compares every role's value with the last one seen, in role order,
// and delivers each change. Actions may change device values, so the scan
// repeats until nothing changes.
func (m *Monitor) scan(e *entry, values []bool, now time.Time) {
	for pass := 0; pass < maxPasses; pass++ {
		changed := false
		for _, role := range door.Roles() {
			raw, ok := e.raw(role, values)
			if !ok {
				continue
			}
			old, seen := e.last[role]
			if seen && raw == old {
				continue
			}
			e.last[role] = raw
			if !seen {
				continue
			}
			changed = true
			e.door.OnMonitoredDeviceEvent(role, old, raw, now)
		}
		if !changed {
			return
		}
	}
	m.opts.Logger.Printf("warning: %q device values still changing after %d passes", e.cfg.Name, maxPasses)
}

// raw returns the current raw value of role, or false if the door has no
// device for it.
func (e *entry) raw(role door.Role, values []bool) (bool, bool) {
	switch role {
	case door.RoleTravelTimer:
		return e.timer.Expired(), true
	case door.RoleVirtualLock:
		return e.lock.Engaged(), true
	}
	idx, ok := e.inputs[role]
	if !ok || idx >= len(values) {
		return false, false
	}
	if role == door.RoleVibrationSensor {
		return e.vibration.Observe(values[idx]), true
	}
	return values[idx], true
}

func (m *Monitor) read() ([]bool, error) {
	if m.opts.Reader == nil {
		return nil, nil
	}
	values, err := m.opts.Reader.Read()
	if err != nil {
		return nil, err
	}
	m.values = values
	return values, nil
}

// Publishers fans a status update out to several publishers. Every
// publisher is called; failures are joined.
type Publishers []door.Publisher

// PublishStatus implements door.Publisher.
func (ps Publishers) PublishStatus(u door.Update) error {
	var errs []error
	for _, p := range ps {
		if err := p.PublishStatus(u); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
