package door

// Normalize converts a raw boolean change on a monitored device into an
// Event. Both values are XORed with invert before comparison; if they are
// then equal no event is produced.
func Normalize(role Role, old, new, invert bool) (Event, bool) {
	old = old != invert
	new = new != invert
	if old == new {
		return Event{}, false
	}
	if new {
		return Rise(role), true
	}
	return Fall(role), true
}

// ignorable reports events that can never change the door status: the
// release of a momentary relay, a vibration sensor being reset, and the
// travel timer being re-armed.
func ignorable(e Event) bool {
	if e.Edge != EdgeFalling {
		return false
	}
	switch e.Role {
	case RoleActivationRelay, RoleVibrationSensor, RoleTravelTimer:
		return true
	}
	return false
}
