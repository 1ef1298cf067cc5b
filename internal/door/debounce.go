package door

import "time"

// DuplicateWindow is how close together two identical events must be for
// the second to be treated as contact chatter.
const DuplicateWindow = time.Second

// Debouncer suppresses an event identical to the previous one when it
// arrives within DuplicateWindow.
type Debouncer struct {
	last     Event
	lastTime time.Time
	seen     bool
}

// NewDebouncer creates a Debouncer whose elapsed times are measured from start.
func NewDebouncer(start time.Time) *Debouncer {
	return &Debouncer{lastTime: start}
}

// Check records ev at now and returns the time elapsed since the previous
// event. ok is false when ev duplicates the previous event within the window.
// The event time is recorded even for a suppressed duplicate, so sustained
// chatter stays suppressed.
func (d *Debouncer) Check(ev Event, now time.Time) (elapsed time.Duration, ok bool) {
	elapsed = now.Sub(d.lastTime)
	d.lastTime = now
	if d.seen && ev == d.last && elapsed < DuplicateWindow {
		return elapsed, false
	}
	d.last = ev
	d.seen = true
	return elapsed, true
}
