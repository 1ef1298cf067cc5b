package door

import (
	"fmt"
	"sort"
)

// Entry is the outcome of an accepted transition: the new status and the
// ordered actions to run. Order matters: the transition is logged before the
// track is settled, and the direction is reversed before the timer restarts.
type Entry struct {
	Next    Status
	Actions []ActionKind
}

// Row is one (status, event) -> Entry line of the transition table.
type Row struct {
	From  Status
	Event Event
	Entry
}

type tableKey struct {
	from  Status
	event Event
}

// Action lists shared by many rows.
var (
	startMoving  = []ActionKind{ActionLogTransition, ActionStartMotionTimer}
	settle       = []ActionKind{ActionLogTransition, ActionStopMotionTimerAndSettle}
	settleClosed = []ActionKind{ActionLogTransition, ActionStopMotionTimerAndSettle, ActionEngageLockIfRequested}
	interrupt    = []ActionKind{ActionLogTransition, ActionStopMotionTimerAndSettle, ActionReverseDirection}
	autoReverse  = []ActionKind{ActionLogTransition, ActionReverseDirection, ActionStartMotionTimer}
	lockAnomaly  = []ActionKind{ActionLogTransition, ActionStopMotionTimerAndSettle, ActionDisengageMechanicalLock}
	engage       = []ActionKind{ActionEngageLock}
)

// motionRows are the door movement transitions. Redundant same-direction
// sensor chatter is listed with no actions so it is accepted silently.
var motionRows = []Row{
	// open
	{StatusOpen, Rise(RoleActivationRelay), Entry{StatusClosing, startMoving}},
	{StatusOpen, Fall(RoleOpenSensor), Entry{StatusClosing, startMoving}},
	{StatusOpen, Rise(RoleVibrationSensor), Entry{StatusClosing, startMoving}},
	{StatusOpen, Rise(RoleClosedSensor), Entry{StatusClosed, settle}}, // out of sync

	// closed
	{StatusClosed, Rise(RoleActivationRelay), Entry{StatusOpening, startMoving}},
	{StatusClosed, Fall(RoleClosedSensor), Entry{StatusOpening, startMoving}},
	{StatusClosed, Rise(RoleVibrationSensor), Entry{StatusOpening, startMoving}},
	{StatusClosed, Rise(RoleOpenSensor), Entry{StatusOpen, settle}}, // out of sync
	{StatusClosed, Rise(RoleVirtualLock), Entry{StatusClosedLocked, settle}},

	// opening
	{StatusOpening, Rise(RoleOpenSensor), Entry{StatusOpen, settle}},
	{StatusOpening, TimerExpired.With(QualifierNoOpenSensor), Entry{StatusOpen, settle}},
	{StatusOpening, Rise(RoleActivationRelay), Entry{StatusObstructed, interrupt}},
	{StatusOpening, TimerExpired, Entry{StatusObstructed, interrupt}},
	{StatusOpening, Fall(RoleClosedSensor), Entry{StatusOpening, nil}},
	{StatusOpening, Rise(RoleVibrationSensor), Entry{StatusOpening, nil}},
	{StatusOpening, Rise(RoleClosedSensor), Entry{StatusClosed, settle}}, // out of sync

	// closing
	{StatusClosing, Rise(RoleClosedSensor), Entry{StatusClosed, settleClosed}},
	{StatusClosing, TimerExpired.With(QualifierNoClosedSensor), Entry{StatusClosed, settleClosed}},
	{StatusClosing, TimerExpired, Entry{StatusObstructed, autoReverse}},
	{StatusClosing, Fall(RoleOpenSensor), Entry{StatusClosing, nil}},
	{StatusClosing, Rise(RoleVibrationSensor), Entry{StatusClosing, nil}},
	{StatusClosing, Rise(RoleOpenSensor), Entry{StatusOpen, settle}}, // out of sync

	// obstructed
	{StatusObstructed, Rise(RoleActivationRelay), Entry{StatusClosing, startMoving}},
	{StatusObstructed, Rise(RoleVibrationSensor), Entry{StatusClosing, startMoving}},
	{StatusObstructed, TimerExpired.With(QualifierNoOpenSensor), Entry{StatusOpen, settle}},
	{StatusObstructed, TimerExpired, Entry{StatusObstructed, settle}},
	{StatusObstructed, TimerExpired.With(QualifierNoClosedSensor), Entry{StatusObstructed, nil}},
	{StatusObstructed, Rise(RoleClosedSensor), Entry{StatusClosed, settle}},
	{StatusObstructed, Rise(RoleOpenSensor), Entry{StatusOpen, settle}},

	// closed-locked
	{StatusClosedLocked, Fall(RoleVirtualLock), Entry{StatusClosed, settle}},
	{StatusClosedLocked, Fall(RoleClosedSensor), Entry{StatusOpening, startMoving}}, // moved by hand
	{StatusClosedLocked, Rise(RoleOpenSensor), Entry{StatusOpen, settle}},           // out of sync
}

// lockRows covers the latch sensor, power switch and mechanical lock for
// every status.
func lockRows() []Row {
	var rows []Row
	for _, from := range Statuses() {
		// Releasing a lock never moves the door.
		for _, ev := range []Event{Rise(RoleLatchSensor), Rise(RolePowerSwitch), Fall(RoleMechanicalLock)} {
			rows = append(rows, Row{from, ev, Entry{from, nil}})
		}
		if from != StatusClosedLocked {
			rows = append(rows, Row{from, Fall(RoleVirtualLock), Entry{from, nil}})
		}

		locking := []Event{Fall(RoleLatchSensor), Fall(RolePowerSwitch), Rise(RoleMechanicalLock)}
		switch from {
		case StatusClosed:
			for _, ev := range locking {
				rows = append(rows, Row{from, ev, Entry{StatusClosed, engage}})
			}
		case StatusClosedLocked:
			for _, ev := range locking {
				rows = append(rows, Row{from, ev, Entry{StatusClosedLocked, nil}})
			}
		default:
			rows = append(rows,
				Row{from, Fall(RoleLatchSensor), Entry{from, []ActionKind{ActionWarnLatchDisconnected}}},
				Row{from, Fall(RolePowerSwitch), Entry{from, []ActionKind{ActionWarnPowerRemoved}}},
				Row{from, Rise(RoleMechanicalLock), Entry{StatusObstructed, lockAnomaly}},
			)
		}
	}
	return rows
}

// staleExpiryRows accepts a travel-timer expiry that raced a stop command
// once the door is already stationary at an end position.
func staleExpiryRows() []Row {
	var rows []Row
	for _, from := range []Status{StatusOpen, StatusClosed, StatusClosedLocked} {
		for _, q := range []Qualifier{QualifierNone, QualifierNoOpenSensor, QualifierNoClosedSensor} {
			rows = append(rows, Row{from, TimerExpired.With(q), Entry{from, nil}})
		}
	}
	return rows
}

var table = buildTable()

func buildTable() map[tableKey]Entry {
	t := make(map[tableKey]Entry)
	add := func(rows []Row) {
		for _, r := range rows {
			k := tableKey{r.From, r.Event}
			if _, dup := t[k]; dup {
				panic(fmt.Sprintf("door: duplicate transition %s + %s", r.From, r.Event))
			}
			t[k] = r.Entry
		}
	}
	add(motionRows)
	add(lockRows())
	add(staleExpiryRows())
	return t
}

// Lookup returns the transition for an event (already qualified) in the
// given status. ok is false when the combination is not allowed.
func Lookup(from Status, ev Event) (Entry, bool) {
	e, ok := table[tableKey{from, ev}]
	if !ok {
		return Entry{}, false
	}
	return Entry{Next: e.Next, Actions: append([]ActionKind(nil), e.Actions...)}, true
}

// Table returns every transition ordered by status, then event text.
func Table() []Row {
	order := make(map[Status]int)
	for i, s := range Statuses() {
		order[s] = i
	}
	rows := make([]Row, 0, len(table))
	for k, e := range table {
		rows = append(rows, Row{From: k.from, Event: k.event, Entry: Entry{Next: e.Next, Actions: append([]ActionKind(nil), e.Actions...)}})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].From != rows[j].From {
			return order[rows[i].From] < order[rows[j].From]
		}
		return rows[i].Event.String() < rows[j].Event.String()
	})
	return rows
}
