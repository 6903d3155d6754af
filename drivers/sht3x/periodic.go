package sht3x

import "devicecode-go/drivers/sensorcore"

// enterPeriodic starts periodic or ART acquisition, stopping any
// currently active periodic session first.
func (d *Device) enterPeriodic(rate PeriodicRate, rep Repeatability, art bool) sensorcore.Status {
	if !rate.valid() || !rep.valid() {
		return sensorcore.Err(sensorcore.InvalidParam, 0, "invalid periodic settings")
	}
	if d.p.active {
		if st := d.stopPeriodicInternal(); !st.IsOK() {
			return st
		}
	}

	cmd := cmdArt
	if !art {
		cmd = commandForPeriodic(rep, rate)
	}
	if cmd == 0 {
		return sensorcore.Err(sensorcore.InvalidParam, 0, "invalid periodic command")
	}
	if st := d.writeCommand(cmd, true); !st.IsOK() {
		return st
	}

	d.m.requested = false
	d.m.ready = false
	d.m.readyMs = 0
	d.p = periodicState{active: true, startMs: d.nowMs()}
	d.mode = ModeSingleShot
	if art {
		d.mode = ModeART
		d.p.periodMs = artPeriodMs
	} else {
		d.mode = ModePeriodic
		d.cfg.PeriodicRate = rate
		d.cfg.Repeatability = rep
		d.p.periodMs = rate.periodMs()
	}
	d.syncCacheFromConfig()
	return sensorcore.Ok()
}

func (d *Device) stopPeriodicInternal() sensorcore.Status {
	if !d.p.active {
		d.mode = ModeSingleShot
		d.p = periodicState{}
		d.syncCacheFromConfig()
		return sensorcore.Ok()
	}

	if st := d.writeCommand(cmdBreak, true); !st.IsOK() {
		return st
	}
	if st := d.waitMs(breakDelayMs); !st.IsOK() {
		return st
	}

	d.m.requested = false
	d.m.ready = false
	d.m.readyMs = 0
	d.mode = ModeSingleShot
	d.p = periodicState{}
	d.syncCacheFromConfig()
	return sensorcore.Ok()
}

// fetchPeriodic issues FETCH_DATA and reads the result, escalating a
// sustained run of not-ready responses to a tracked failure once
// NotReadyTimeoutMs has elapsed since the run began.
func (d *Device) fetchPeriodic(nowMs uint32) sensorcore.Status {
	if !d.p.active {
		return sensorcore.Err(sensorcore.InvalidParam, 0, "periodic mode not active")
	}
	if st := d.writeCommand(cmdFetchData, true); !st.IsOK() {
		return st
	}

	allowNoData := d.cfg.Transport.Capabilities().Has(sensorcore.CapReadHeaderNACK)
	if allowNoData && d.cfg.NotReadyTimeoutMs > 0 && d.p.notReadyStart != 0 {
		deadline := d.p.notReadyStart + d.cfg.NotReadyTimeoutMs
		if sensorcore.Reached(nowMs, deadline) {
			allowNoData = false
		}
	}

	raw, st := d.readMeasurementTracked(allowNoData)
	if st.Kind == sensorcore.MeasurementNotReady {
		if d.p.notReadyStart == 0 {
			d.p.notReadyStart = nowMs
		}
		d.p.notReadyCount++
		return st
	}
	d.p.notReadyStart = 0
	d.p.notReadyCount = 0
	if !st.IsOK() {
		return st
	}

	d.m.raw = raw
	d.m.comp = compensate(raw)
	return sensorcore.Ok()
}
