// Package door reconstructs the motion of a garage door from asynchronous
// boolean edges reported by sensors, a travel timer and locking hardware.
// This package has NO hardware, MQTT or OS dependencies and never sleeps.
// Time is always injectable via time.Time parameters.
package door

import (
	"errors"
	"fmt"
	"strings"
)

// State is the five-valued, HomeKit-aligned door position.
// The integer values match HMCharacteristicValueDoorState.
type State int

const (
	StateOpen State = iota
	StateClosed
	StateOpening
	StateClosing
	StateObstructed
)

var stateNames = [...]string{"OPEN", "CLOSED", "OPENING", "CLOSING", "OBSTRUCTED"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// HomeKit returns the HomeKit current-door-state value.
func (s State) HomeKit() int { return int(s) }

// Status is the six-valued door status used as the transition table key.
// StatusClosedLocked shares StateClosed with StatusClosed.
type Status string

const (
	StatusOpen         Status = "open"
	StatusClosed       Status = "closed"
	StatusOpening      Status = "opening"
	StatusClosing      Status = "closing"
	StatusObstructed   Status = "obstructed"
	StatusClosedLocked Status = "closed-locked"
)

// Statuses lists every status in display order.
func Statuses() []Status {
	return []Status{StatusOpen, StatusClosed, StatusOpening, StatusClosing, StatusObstructed, StatusClosedLocked}
}

// State maps the status onto the externally visible door state.
func (s Status) State() State {
	switch s {
	case StatusOpen:
		return StateOpen
	case StatusOpening:
		return StateOpening
	case StatusClosing:
		return StateClosing
	case StatusObstructed:
		return StateObstructed
	default:
		return StateClosed
	}
}

// StatusFor resolves a state back to a status. Only StateClosed is ambiguous.
func StatusFor(s State, locked bool) Status {
	switch s {
	case StateOpen:
		return StatusOpen
	case StateOpening:
		return StatusOpening
	case StateClosing:
		return StatusClosing
	case StateObstructed:
		return StatusObstructed
	}
	if locked {
		return StatusClosedLocked
	}
	return StatusClosed
}

// Stationary reports whether the door is not expected to be moving.
func (s Status) Stationary() bool {
	return s != StatusOpening && s != StatusClosing
}

// Label is the user-facing text for the status.
func (s Status) Label() string {
	if s == StatusClosedLocked {
		return "locked"
	}
	return string(s)
}

// Track returns the upper-case form used in door state tracks.
func (s Status) Track() string { return strings.ToUpper(string(s)) }

// Valid reports whether s is one of the six known statuses.
func (s Status) Valid() bool {
	for _, v := range Statuses() {
		if s == v {
			return true
		}
	}
	return false
}

// Role identifies what a monitored device means to the door.
type Role int

const (
	RoleActivationRelay Role = iota
	RoleClosedSensor
	RoleOpenSensor
	RoleVibrationSensor
	RoleTravelTimer
	RoleVirtualLock
	RoleLatchSensor
	RolePowerSwitch
	RoleMechanicalLock

	numRoles
)

var roleInfo = [numRoles]struct{ abbrev, key string }{
	{"ar", "activation_relay"},
	{"cs", "closed_sensor"},
	{"os", "open_sensor"},
	{"vs", "vibration_sensor"},
	{"tt", "travel_timer"},
	{"vl", "virtual_lock"},
	{"ls", "latch_sensor"},
	{"ps", "power_switch"},
	{"ml", "mechanical_lock"},
}

// ErrUnknownRole is returned by ParseRole for an unrecognized key.
var ErrUnknownRole = errors.New("unknown role")

// Roles lists every role in scan order. Order matters to the host: the
// virtual lock is reported before the physical lock indicators.
func Roles() []Role {
	out := make([]Role, 0, numRoles)
	for r := Role(0); r < numRoles; r++ {
		out = append(out, r)
	}
	return out
}

// String returns the two-letter abbreviation used in tracks and logs.
func (r Role) String() string {
	if r < 0 || r >= numRoles {
		return fmt.Sprintf("Role(%d)", int(r))
	}
	return roleInfo[r].abbrev
}

// Key returns the configuration key for the role.
func (r Role) Key() string {
	if r < 0 || r >= numRoles {
		return ""
	}
	return roleInfo[r].key
}

// ParseRole resolves a configuration key such as "closed_sensor".
func ParseRole(key string) (Role, error) {
	for r := Role(0); r < numRoles; r++ {
		if roleInfo[r].key == key {
			return r, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownRole, key)
}

// RoleSet is a set of roles.
type RoleSet uint16

// NewRoleSet returns a set holding the given roles.
func NewRoleSet(roles ...Role) RoleSet {
	var s RoleSet
	for _, r := range roles {
		s = s.With(r)
	}
	return s
}

// Has reports whether r is in the set.
func (s RoleSet) Has(r Role) bool { return s&(1<<uint(r)) != 0 }

// With returns the set plus r.
func (s RoleSet) With(r Role) RoleSet { return s | 1<<uint(r) }

// String lists the member abbreviations, e.g. "ar,cs,tt".
func (s RoleSet) String() string {
	var parts []string
	for _, r := range Roles() {
		if s.Has(r) {
			parts = append(parts, r.String())
		}
	}
	return strings.Join(parts, ",")
}

// Edge is the direction of a normalized boolean change.
type Edge int

const (
	EdgeRising Edge = iota
	EdgeFalling
)

func (e Edge) String() string {
	if e == EdgeRising {
		return "on"
	}
	return "off"
}

// Qualifier disambiguates a travel-timer expiry by naming the corroborating
// end sensor that is not configured.
type Qualifier int

const (
	QualifierNone Qualifier = iota
	QualifierNoOpenSensor
	QualifierNoClosedSensor
)

func (q Qualifier) String() string {
	switch q {
	case QualifierNoOpenSensor:
		return "os-none"
	case QualifierNoClosedSensor:
		return "cs-none"
	}
	return ""
}

// Event is a normalized edge on one role, optionally qualified.
type Event struct {
	Role      Role
	Edge      Edge
	Qualifier Qualifier
}

// Rise returns the rising-edge event for r.
func Rise(r Role) Event { return Event{Role: r, Edge: EdgeRising} }

// Fall returns the falling-edge event for r.
func Fall(r Role) Event { return Event{Role: r, Edge: EdgeFalling} }

// TimerExpired is the travel timer's expiry event.
var TimerExpired = Rise(RoleTravelTimer)

// With returns a copy of e carrying qualifier q.
func (e Event) With(q Qualifier) Event {
	e.Qualifier = q
	return e
}

// Unqualified strips any qualifier.
func (e Event) Unqualified() Event { return e.With(QualifierNone) }

// String renders the event as in door tracks: "cs-on", "tt-exp&os-none".
func (e Event) String() string {
	var s string
	if e.Role == RoleTravelTimer && e.Edge == EdgeRising {
		s = "tt-exp"
	} else {
		s = e.Role.String() + "-" + e.Edge.String()
	}
	if e.Qualifier != QualifierNone {
		s += "&" + e.Qualifier.String()
	}
	return s
}

// Direction is the current or most recent direction of travel.
type Direction int

const (
	DirectionOpening Direction = iota
	DirectionClosing
)

func (d Direction) String() string {
	if d == DirectionOpening {
		return "opening"
	}
	return "closing"
}

// Reverse returns the opposite direction.
func (d Direction) Reverse() Direction {
	if d == DirectionOpening {
		return DirectionClosing
	}
	return DirectionOpening
}

// ActionKind is one side effect of an accepted transition.
type ActionKind int

const (
	ActionStartMotionTimer ActionKind = iota
	ActionStopMotionTimerAndSettle
	ActionLogTransition
	ActionReverseDirection
	ActionEngageLock
	ActionEngageLockIfRequested
	ActionDisengageMechanicalLock
	ActionWarnLatchDisconnected
	ActionWarnPowerRemoved
)

var actionNames = [...]string{
	"startMotionTimer",
	"stopMotionTimerAndSettle",
	"logTransition",
	"reverseDirection",
	"engageLock",
	"engageLockIfRequested",
	"disengageMechanicalLockAutomatically",
	"warnLatchDisconnected",
	"warnPowerRemoved",
}

func (a ActionKind) String() string {
	if a < 0 || int(a) >= len(actionNames) {
		return fmt.Sprintf("ActionKind(%d)", int(a))
	}
	return actionNames[a]
}
