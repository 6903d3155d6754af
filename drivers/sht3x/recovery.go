package sht3x

import "devicecode-go/drivers/sensorcore"

// Recover attempts to return the device to READY after transient faults.
// It enforces RecoverBackoffMs between attempts, then tries the enabled
// ladder steps in order, stopping at the first successful probe. On
// success, driver state resets to single-shot idle.
func (d *Device) Recover(nowMs uint32) sensorcore.Status {
	if st := d.requireInit(); !st.IsOK() {
		return st
	}
	if d.lastRecoverAttemptMs != 0 && !sensorcore.Reached(nowMs, d.lastRecoverAttemptMs+d.cfg.RecoverBackoffMs) {
		return sensorcore.Err(sensorcore.Busy, 0, "recover: backoff in effect")
	}
	d.lastRecoverAttemptMs = nowMs

	var last sensorcore.Status

	if d.cfg.RecoverUseBusReset && d.cfg.BusReset != nil {
		if st := d.InterfaceReset(); st.IsOK() {
			if st := d.probeTracked(); st.IsOK() {
				d.resetToSafeBaseline()
				return sensorcore.Ok()
			} else {
				last = st
			}
		} else {
			last = st
		}
	}

	if d.cfg.RecoverUseSoftReset {
		stStop := sensorcore.Ok()
		if d.p.active {
			stStop = d.stopPeriodicInternal()
			if !stStop.IsOK() {
				last = stStop
			}
		}
		if stStop.IsOK() {
			if st := d.SoftReset(); st.IsOK() {
				if st := d.probeTracked(); st.IsOK() {
					d.resetToSafeBaseline()
					return sensorcore.Ok()
				} else {
					last = st
				}
			} else {
				last = st
			}
		}
	}

	if d.cfg.RecoverUseHardReset && d.cfg.HardReset != nil {
		if st := d.cfg.HardReset(); st.IsOK() {
			if st := d.waitMs(resetDelayMs); !st.IsOK() {
				return st
			}
			if st := d.probeTracked(); st.IsOK() {
				d.resetToSafeBaseline()
				return sensorcore.Ok()
			} else {
				last = st
			}
		} else {
			last = st
		}
	}

	if d.cfg.AllowGeneralCallReset {
		if st := d.generalCallReset(); st.IsOK() {
			if st := d.probeTracked(); st.IsOK() {
				d.resetToSafeBaseline()
				return sensorcore.Ok()
			} else {
				last = st
			}
		} else {
			last = st
		}
	}

	if last.Kind == sensorcore.OK {
		return sensorcore.Err(sensorcore.DeviceNotFound, 0, "recover: no ladder step enabled")
	}
	return last
}

// ResetAndRestore performs a soft reset and then replays CachedSettings:
// alert limits (only slots with a valid write on record), the heater
// enable flag, then the mode-specific start command (periodic/ART). Each
// alert-limit replay goes through WriteAlertLimitRaw; a failed replay
// returns its Status and leaves the earlier cache entry in place.
func (d *Device) ResetAndRestore() sensorcore.Status {
	if st := d.requireInit(); !st.IsOK() {
		return st
	}
	// Snapshot before stopping periodic mode: stopPeriodicInternal resyncs
	// the cache to single-shot, which would otherwise erase the very mode
	// this replay needs to restart.
	cached := d.cachedSettings

	if d.p.active {
		if st := d.stopPeriodicInternal(); !st.IsOK() {
			return st
		}
	}
	if st := d.SoftReset(); !st.IsOK() {
		return st
	}

	d.cfg.Repeatability = cached.Repeatability
	d.cfg.ClockStretching = cached.ClockStretching

	for kind := AlertLimitKind(0); int(kind) < len(cached.AlertValid); kind++ {
		if !cached.AlertValid[kind] {
			continue
		}
		if st := d.WriteAlertLimitRaw(kind, cached.AlertRaw[kind]); !st.IsOK() {
			return st
		}
	}

	if cached.HeaterEnabled {
		if st := d.SetHeater(true); !st.IsOK() {
			return st
		}
	}

	switch cached.Mode {
	case ModePeriodic:
		return d.StartPeriodic(cached.PeriodicRate, cached.Repeatability)
	case ModeART:
		return d.StartArt()
	default:
		return sensorcore.Ok()
	}
}

func (d *Device) probeTracked() sensorcore.Status {
	_, st := d.readStatusRawTracked(true)
	return st
}

// resetToSafeBaseline clears pending/ready and periodic state, and forces
// single-shot mode, after a successful recovery probe.
func (d *Device) resetToSafeBaseline() {
	d.m = measurementState{}
	d.p = periodicState{}
	d.mode = ModeSingleShot
	d.cfg.Mode = ModeSingleShot
	d.health.ConsecutiveFails = 0
	d.health.State = sensorcore.StateReady
}
