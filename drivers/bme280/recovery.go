package bme280

import "devicecode-go/drivers/sensorcore"

// Recover attempts to return the device to READY after transient faults.
// It enforces RecoverBackoffMs between attempts, then tries the
// enabled ladder steps in order, stopping at the first successful probe.
// On success, driver state resets to a safe baseline.
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
		if st := d.cfg.BusReset(); st.IsOK() {
			if st := d.Probe(); st.IsOK() {
				if st := d.resetToSafeBaseline(); st.IsOK() {
					return sensorcore.Ok()
				} else {
					last = st
				}
			} else {
				last = st
			}
		} else {
			last = st
		}
	}

	if d.cfg.RecoverUseSoftReset {
		if st := d.softResetForRecovery(); !st.IsOK() {
			last = st
		} else if st := d.Probe(); st.IsOK() {
			if st := d.resetToSafeBaseline(); st.IsOK() {
				return sensorcore.Ok()
			} else {
				last = st
			}
		} else {
			last = st
		}
	}

	if d.cfg.RecoverUseHardReset && d.cfg.HardReset != nil {
		if st := d.cfg.HardReset(); st.IsOK() {
			if st := d.Probe(); st.IsOK() {
				if st := d.resetToSafeBaseline(); st.IsOK() {
					return sensorcore.Ok()
				} else {
					last = st
				}
			} else {
				last = st
			}
		} else {
			last = st
		}
	}

	if d.cfg.AllowGeneralCallReset {
		if st := d.generalCallReset(); !st.IsOK() {
			last = st
		} else if st := d.Probe(); st.IsOK() {
			if st := d.resetToSafeBaseline(); st.IsOK() {
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
	return d.updateHealth(last)
}

// softResetForRecovery sends the device reset command directly via the raw
// path (the tracked SoftReset would itself re-enter health bookkeeping
// mid-recovery); the ladder only cares whether the device comes back.
func (d *Device) softResetForRecovery() sensorcore.Status {
	if st := d.writeRaw([]byte{regReset, resetValue}); !st.IsOK() {
		return st
	}
	deadline := d.nowMs() + resetTimeoutMs
	for {
		id, st := d.readRegisterRaw(regStatus)
		if !st.IsOK() {
			return st
		}
		if id&maskStatusIMUpdate == 0 {
			return sensorcore.Ok()
		}
		if sensorcore.Reached(d.nowMs(), deadline) {
			return sensorcore.Err(sensorcore.Timeout, 0, "reset timeout")
		}
	}
}

// generalCallReset issues the I2C general-call reset (address 0x00, data
// 0x06). This is bus-wide and resets every device on the bus; only enabled
// by explicit opt-in.
func (d *Device) generalCallReset() sensorcore.Status {
	return d.cfg.Transport.Write(0x00, []byte{0x06}, d.cfg.TimeoutMs)
}

// resetToSafeBaseline clears pending/ready flags and measurement state
// after a successful recovery probe, and restores calibration + config.
// READY is only declared once both re-reads succeed; a failure here leaves
// the driver DEGRADED with stale coefficients rather than claiming a
// baseline it never actually reached.
func (d *Device) resetToSafeBaseline() sensorcore.Status {
	d.m = measurementState{}
	d.health.ConsecutiveFails = 0
	d.health.State = sensorcore.StateReady
	if st := d.readCalibration(); !st.IsOK() {
		d.health.State = sensorcore.StateDegraded
		return st
	}
	if st := d.applyConfig(); !st.IsOK() {
		d.health.State = sensorcore.StateDegraded
		return st
	}
	return sensorcore.Ok()
}
