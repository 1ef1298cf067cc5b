// Package devices implements the software and relay-backed devices a door
// drives: the travel timer, the vibration latch, the lock coordinator and
// the activation relay. None of them is safe for concurrent use; the
// monitor owns them and calls them from its loop.
package devices

import (
	"errors"
	"fmt"
	"time"

	"github.com/sweeney/garage-door/internal/gpio"
)

// TravelTimer expires a fixed time after it is armed. Expiry is observed by
// polling Tick.
type TravelTimer struct {
	d        time.Duration
	now      func() time.Time
	deadline time.Time
	running  bool
	expired  bool
}

// NewTravelTimer creates a stopped timer of duration d.
func NewTravelTimer(d time.Duration, now func() time.Time) *TravelTimer {
	return &TravelTimer{d: d, now: now}
}

// Start arms the timer if it is not already running.
func (t *TravelTimer) Start() error {
	if t.running {
		return nil
	}
	return t.Restart()
}

// Restart arms the timer from now, clearing any previous expiry.
func (t *TravelTimer) Restart() error {
	t.deadline = t.now().Add(t.d)
	t.running = true
	t.expired = false
	return nil
}

// Stop disarms the timer and clears any expiry.
func (t *TravelTimer) Stop() error {
	t.running = false
	t.expired = false
	return nil
}

// Tick reports whether the timer expired at or before now. It returns true
// once per arming.
func (t *TravelTimer) Tick(now time.Time) bool {
	if !t.running || now.Before(t.deadline) {
		return false
	}
	t.running = false
	t.expired = true
	return true
}

// Expired is the timer's observable value: true from expiry until the timer
// is restarted or stopped.
func (t *TravelTimer) Expired() bool { return t.expired }

// Running reports whether the timer is armed.
func (t *TravelTimer) Running() bool { return t.running }

// VibrationLatch holds a vibration sensor's reading high after any pulse
// until it is reset.
type VibrationLatch struct {
	now     func() time.Time
	latched bool
	pending bool
	resetAt time.Time
}

// NewVibrationLatch creates a cleared latch.
func NewVibrationLatch(now func() time.Time) *VibrationLatch {
	return &VibrationLatch{now: now}
}

// Observe feeds a raw sensor reading and returns the latched value. Readings
// are ignored while a reset is pending.
func (v *VibrationLatch) Observe(raw bool) bool {
	if raw && !v.pending {
		v.latched = true
	}
	return v.latched
}

// Reset schedules the latch to clear after delay.
func (v *VibrationLatch) Reset(delay time.Duration) error {
	v.pending = true
	v.resetAt = v.now().Add(delay)
	return nil
}

// Tick clears the latch once a scheduled reset is due.
func (v *VibrationLatch) Tick(now time.Time) {
	if v.pending && !now.Before(v.resetAt) {
		v.pending = false
		v.latched = false
	}
}

// Value returns the latched value.
func (v *VibrationLatch) Value() bool { return v.latched }

// LockCoordinator keeps the virtual lock and drives the physical devices
// behind it. Energizing the power relay removes opener power; energizing
// the lock relay throws the mechanical lock. Either relay may be nil.
type LockCoordinator struct {
	engaged bool
	power   gpio.Relay
	mech    gpio.Relay
}

// NewLockCoordinator creates a disengaged lock.
func NewLockCoordinator(power, mech gpio.Relay) *LockCoordinator {
	return &LockCoordinator{power: power, mech: mech}
}

// Engage sets the virtual lock, removes opener power and throws the
// mechanical lock. The virtual lock is set even if a relay fails.
func (l *LockCoordinator) Engage() error {
	l.engaged = true
	return errors.Join(
		set(l.power, true, "power relay"),
		set(l.mech, true, "lock relay"),
	)
}

// Disengage releases the mechanical lock, restores power and clears the
// virtual lock.
func (l *LockCoordinator) Disengage() error {
	l.engaged = false
	return errors.Join(
		set(l.mech, false, "lock relay"),
		set(l.power, false, "power relay"),
	)
}

// DisengageMechanical releases only the mechanical lock.
func (l *LockCoordinator) DisengageMechanical() error {
	return set(l.mech, false, "lock relay")
}

// Engaged reports the virtual lock.
func (l *LockCoordinator) Engaged() bool { return l.engaged }

func set(r gpio.Relay, on bool, name string) error {
	if r == nil {
		return nil
	}
	if err := r.Set(on); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// Activator pulses the opener's activation relay, like pressing the wall
// button.
type Activator struct {
	relay gpio.Relay
	pulse time.Duration
	sleep func(time.Duration)
}

// NewActivator creates an activator. sleep is time.Sleep outside tests.
func NewActivator(relay gpio.Relay, pulse time.Duration, sleep func(time.Duration)) *Activator {
	return &Activator{relay: relay, pulse: pulse, sleep: sleep}
}

// Pulse closes the relay, calls held while it is closed, waits for the pulse
// width and opens it again. It blocks for the whole pulse.
func (a *Activator) Pulse(held func()) error {
	if err := a.relay.Set(true); err != nil {
		return fmt.Errorf("activation relay: %w", err)
	}
	if held != nil {
		held()
	}
	a.sleep(a.pulse)
	if err := a.relay.Set(false); err != nil {
		return fmt.Errorf("activation relay release: %w", err)
	}
	return nil
}
