package bme280

import "devicecode-go/drivers/sensorcore"

// SetMode changes the operating mode via the safe rewrite sequence below.
// The vendor driver writes ctrl_meas directly for this call, which can
// silently drop a pending filter/standby change queued in the same
// register write cycle; this driver always takes the safe path instead.
func (d *Device) SetMode(mode Mode) sensorcore.Status {
	if st := d.requireInit(); !st.IsOK() {
		return st
	}
	if !mode.valid() {
		return sensorcore.Err(sensorcore.InvalidParam, 0, "invalid mode")
	}
	if mode == ModeSleep {
		d.m.requested = false
	}
	d.cfg.Mode = mode
	return d.rewriteConfigSafely()
}

func (d *Device) GetMode() (Mode, sensorcore.Status) {
	if st := d.requireInit(); !st.IsOK() {
		return 0, st
	}
	return d.cfg.Mode, sensorcore.Ok()
}

// SetOversamplingT uses the safe rewrite sequence; see SetMode.
func (d *Device) SetOversamplingT(osrs Oversampling) sensorcore.Status {
	if st := d.requireInit(); !st.IsOK() {
		return st
	}
	if !osrs.valid() {
		return sensorcore.Err(sensorcore.InvalidParam, 0, "invalid oversampling")
	}
	d.cfg.OsrsT = osrs
	return d.rewriteConfigSafely()
}

// SetOversamplingP uses the safe rewrite sequence; see SetMode.
func (d *Device) SetOversamplingP(osrs Oversampling) sensorcore.Status {
	if st := d.requireInit(); !st.IsOK() {
		return st
	}
	if !osrs.valid() {
		return sensorcore.Err(sensorcore.InvalidParam, 0, "invalid oversampling")
	}
	d.cfg.OsrsP = osrs
	return d.rewriteConfigSafely()
}

// SetOversamplingH uses the safe rewrite sequence, which also carries
// ctrl_hum; ctrl_hum only takes effect once ctrl_meas is subsequently
// written, which the sequence already does.
func (d *Device) SetOversamplingH(osrs Oversampling) sensorcore.Status {
	if st := d.requireInit(); !st.IsOK() {
		return st
	}
	if !osrs.valid() {
		return sensorcore.Err(sensorcore.InvalidParam, 0, "invalid oversampling")
	}
	d.cfg.OsrsH = osrs
	return d.rewriteConfigSafely()
}

// SetFilter uses the safe rewrite sequence; see SetMode.
func (d *Device) SetFilter(filter Filter) sensorcore.Status {
	if st := d.requireInit(); !st.IsOK() {
		return st
	}
	if !filter.valid() {
		return sensorcore.Err(sensorcore.InvalidParam, 0, "invalid filter")
	}
	d.cfg.Filter = filter
	return d.rewriteConfigSafely()
}

// SetStandby uses the safe rewrite sequence; see SetMode.
func (d *Device) SetStandby(standby Standby) sensorcore.Status {
	if st := d.requireInit(); !st.IsOK() {
		return st
	}
	if !standby.valid() {
		return sensorcore.Err(sensorcore.InvalidParam, 0, "invalid standby")
	}
	d.cfg.Standby = standby
	return d.rewriteConfigSafely()
}

// rewriteConfigSafely applies every ctrl_hum/config/ctrl_meas setting via
// SLEEP -> config -> ctrl_hum -> ctrl_meas, used unconditionally by every
// settings mutator so no register write can be silently dropped by an
// in-flight mode change.
func (d *Device) rewriteConfigSafely() sensorcore.Status {
	ctrlHum := buildCtrlHum(d.cfg.OsrsH)
	config := buildConfig(d.cfg.Standby, d.cfg.Filter)
	ctrlMeasSleep := buildCtrlMeas(d.cfg.OsrsT, d.cfg.OsrsP, ModeSleep)
	ctrlMeas := buildCtrlMeas(d.cfg.OsrsT, d.cfg.OsrsP, d.cfg.Mode)

	if st := d.writeRegister(regCtrlMeas, ctrlMeasSleep); !st.IsOK() {
		return st
	}
	if st := d.writeRegister(regConfig, config); !st.IsOK() {
		return st
	}
	if st := d.writeRegister(regCtrlHum, ctrlHum); !st.IsOK() {
		return st
	}
	return d.writeRegister(regCtrlMeas, ctrlMeas)
}

func (d *Device) GetOversamplingT() (Oversampling, sensorcore.Status) {
	if st := d.requireInit(); !st.IsOK() {
		return 0, st
	}
	return d.cfg.OsrsT, sensorcore.Ok()
}

func (d *Device) GetOversamplingP() (Oversampling, sensorcore.Status) {
	if st := d.requireInit(); !st.IsOK() {
		return 0, st
	}
	return d.cfg.OsrsP, sensorcore.Ok()
}

func (d *Device) GetOversamplingH() (Oversampling, sensorcore.Status) {
	if st := d.requireInit(); !st.IsOK() {
		return 0, st
	}
	return d.cfg.OsrsH, sensorcore.Ok()
}

func (d *Device) GetFilter() (Filter, sensorcore.Status) {
	if st := d.requireInit(); !st.IsOK() {
		return 0, st
	}
	return d.cfg.Filter, sensorcore.Ok()
}

func (d *Device) GetStandby() (Standby, sensorcore.Status) {
	if st := d.requireInit(); !st.IsOK() {
		return 0, st
	}
	return d.cfg.Standby, sensorcore.Ok()
}

// SoftReset issues the device reset command, polls the NVM-update status
// bit until it clears (bounded by resetTimeoutMs), then re-reads and
// re-applies calibration/config — mirroring the vendor's _readCalibration
// + _validateCalibration + _applyConfig re-sequencing after reset.
func (d *Device) SoftReset() sensorcore.Status {
	if st := d.requireInit(); !st.IsOK() {
		return st
	}
	if st := d.writeRegister(regReset, resetValue); !st.IsOK() {
		return st
	}

	deadline := d.nowMs() + resetTimeoutMs
	for {
		status, st := d.readRegisterTracked(regStatus)
		if !st.IsOK() {
			return st
		}
		if status&maskStatusIMUpdate == 0 {
			break
		}
		if sensorcore.Reached(d.nowMs(), deadline) {
			return sensorcore.Err(sensorcore.Timeout, 0, "reset timeout")
		}
	}

	if st := d.readCalibration(); !st.IsOK() {
		return st
	}
	if !d.cal.validate() {
		return sensorcore.Err(sensorcore.CalibrationInvalid, 0, "invalid calibration")
	}
	return d.applyConfig()
}

func (d *Device) ReadChipID() (uint8, sensorcore.Status) {
	if st := d.requireInit(); !st.IsOK() {
		return 0, st
	}
	return d.readRegisterTracked(regChipID)
}

func (d *Device) ReadStatus() (uint8, sensorcore.Status) {
	if st := d.requireInit(); !st.IsOK() {
		return 0, st
	}
	return d.readRegisterTracked(regStatus)
}

func (d *Device) ReadCtrlHum() (uint8, sensorcore.Status) {
	if st := d.requireInit(); !st.IsOK() {
		return 0, st
	}
	return d.readRegisterTracked(regCtrlHum)
}

func (d *Device) ReadCtrlMeas() (uint8, sensorcore.Status) {
	if st := d.requireInit(); !st.IsOK() {
		return 0, st
	}
	return d.readRegisterTracked(regCtrlMeas)
}

func (d *Device) ReadConfig() (uint8, sensorcore.Status) {
	if st := d.requireInit(); !st.IsOK() {
		return 0, st
	}
	return d.readRegisterTracked(regConfig)
}
