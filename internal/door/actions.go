package door

import "fmt"

// execution is the context an action list runs in.
type execution struct {
	from, next Status
	transition string
}

// run executes one action. Device failures are logged and never undo the
// status change that has already been applied.
func (d *Door) run(a ActionKind, x execution) {
	switch a {
	case ActionLogTransition:
		d.logf("%s%s", x.from.Track(), x.transition)

	case ActionStartMotionTimer:
		switch x.next {
		case StatusOpening:
			d.dir = DirectionOpening
		case StatusClosing:
			d.dir = DirectionClosing
		}
		if d.c.Timer != nil {
			d.check(a, "travel timer", d.c.Timer.Restart())
		}

	case ActionStopMotionTimerAndSettle:
		if d.c.Timer != nil {
			d.check(a, "travel timer", d.c.Timer.Stop())
		}
		if d.c.Vibration != nil && d.cfg.Wired.Has(RoleVibrationSensor) {
			d.check(a, "vibration sensor", d.c.Vibration.Reset(d.cfg.VibrationResetDelay))
		}
		track := d.track.Flush(x.next)
		if d.cfg.LogTracks {
			d.logf("config: %s | track: %s", d.cfg.Wired, track)
		}
		if d.c.Tracks != nil {
			d.c.Tracks.RecordTrack(d.cfg.Name, track)
		}

	case ActionReverseDirection:
		d.dir = d.dir.Reverse()

	case ActionEngageLock:
		if d.c.Lock != nil {
			d.check(a, "lock", d.c.Lock.Engage())
		}

	case ActionEngageLockIfRequested:
		if d.cfg.LockAfterClosing && d.c.Lock != nil {
			d.check(a, "lock", d.c.Lock.Engage())
		}

	case ActionDisengageMechanicalLock:
		if d.c.Lock != nil {
			d.check(a, "mechanical lock", d.c.Lock.DisengageMechanical())
		}
		msg := fmt.Sprintf("mechanical lock engaged while door was %s; lock disengaged automatically, check the door manually", x.from)
		d.warnf("%s", msg)
		d.notify(msg)

	case ActionWarnLatchDisconnected:
		msg := fmt.Sprintf("latch disconnected while door is %s; the opener cannot move the door, reconnect it", x.from)
		d.warnf("%s", msg)
		d.notify(msg)

	case ActionWarnPowerRemoved:
		msg := fmt.Sprintf("opener power removed while door is %s; restore power", x.from)
		d.warnf("%s", msg)
		d.notify(msg)

	default:
		d.warnf("unknown action %s", a)
	}
}

func (d *Door) check(a ActionKind, device string, err error) {
	if err != nil {
		d.warnf("%s: %s failed: %v", a, device, err)
	}
}
