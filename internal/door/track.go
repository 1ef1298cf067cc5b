package door

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Track is the human-readable history of one door cycle:
//
//	CLOSED [3.02s ar-on OPENING] [12.00s tt-exp&os-none OPEN]
//
// It restarts from the status label each time the door settles.
type Track struct {
	b strings.Builder
}

// NewTrack starts a track at status s.
func NewTrack(s Status) *Track {
	t := &Track{}
	t.b.WriteString(s.Track())
	return t
}

// Append adds a transition and returns its text, e.g. " [2.31s ar-on CLOSING]".
func (t *Track) Append(elapsed time.Duration, ev Event, next Status) string {
	entry := fmt.Sprintf(" [%s %s %s]", formatElapsed(elapsed), ev, next.Track())
	t.b.WriteString(entry)
	return entry
}

// Flush returns the accumulated track and restarts it at status s.
func (t *Track) Flush(s Status) string {
	out := t.b.String()
	t.b.Reset()
	t.b.WriteString(s.Track())
	return out
}

func (t *Track) String() string { return t.b.String() }

// formatElapsed shows seconds with two decimals below a minute and rounded
// minutes above.
func formatElapsed(d time.Duration) string {
	secs := d.Seconds()
	if secs >= 60 {
		return fmt.Sprintf("%dm", int(math.Round(secs/60)))
	}
	return fmt.Sprintf("%.2fs", secs)
}
