package door

// Qualify attaches a qualifier to a travel-timer expiry. While opening
// without an open sensor the expiry means the door reached open; while
// closing without a closed sensor it means the door reached closed. When the
// corroborating sensor is configured the expiry is left bare and the table
// treats it as an obstruction. Other events are returned unchanged.
func Qualify(ev Event, dir Direction, wired RoleSet) Event {
	if ev.Unqualified() != TimerExpired {
		return ev
	}
	switch {
	case dir == DirectionOpening && !wired.Has(RoleOpenSensor):
		return ev.With(QualifierNoOpenSensor)
	case dir == DirectionClosing && !wired.Has(RoleClosedSensor):
		return ev.With(QualifierNoClosedSensor)
	}
	return ev.Unqualified()
}
