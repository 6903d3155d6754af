package sht3x

import "devicecode-go/drivers/sensorcore"

// nowMs returns the injected clock value used only by synchronous internal
// waits (command spacing, reset/break delays); Tick's externally driven
// scheduling never consults it.
func (d *Device) nowMs() uint32 {
	if d.cfg.NowMs != nil {
		return d.cfg.NowMs()
	}
	return 0
}

func (d *Device) writeRaw(buf []byte) sensorcore.Status {
	return d.cfg.Transport.Write(d.cfg.Address, buf, d.cfg.TimeoutMs)
}

func (d *Device) readAfterCommandRaw(rx []byte) sensorcore.Status {
	return d.cfg.Transport.ReadAfterCommand(d.cfg.Address, nil, rx, d.cfg.TimeoutMs)
}

// writeTracked/readTracked fold the transport outcome through the health
// monitor, except for INVALID_CONFIG/INVALID_PARAM which are programmer
// errors propagated untouched.
func (d *Device) writeTracked(buf []byte) sensorcore.Status {
	if len(buf) == 0 {
		return sensorcore.Err(sensorcore.InvalidParam, 0, "invalid I2C buffer")
	}
	st := d.writeRaw(buf)
	if st.Kind == sensorcore.InvalidConfig || st.Kind == sensorcore.InvalidParam {
		return st
	}
	return d.updateHealth(st)
}

func (d *Device) readTracked(rx []byte) sensorcore.Status {
	if len(rx) == 0 {
		return sensorcore.Err(sensorcore.InvalidParam, 0, "invalid read buffer")
	}
	st := d.readAfterCommandRaw(rx)
	if st.Kind == sensorcore.InvalidConfig || st.Kind == sensorcore.InvalidParam {
		return st
	}
	return d.updateHealth(st)
}

// readTrackedAllowNoData reinterprets a read-header NACK as
// MEASUREMENT_NOT_READY (recorded as bus activity, not a tracked failure)
// when the transport advertises CapReadHeaderNACK and the caller opts in.
func (d *Device) readTrackedAllowNoData(rx []byte, allowNoData bool) sensorcore.Status {
	if len(rx) == 0 {
		return sensorcore.Err(sensorcore.InvalidParam, 0, "invalid read buffer")
	}
	canReportNack := d.cfg.Transport.Capabilities().Has(sensorcore.CapReadHeaderNACK)
	allow := allowNoData && canReportNack

	st := d.readAfterCommandRaw(rx)
	if st.Kind == sensorcore.InvalidConfig || st.Kind == sensorcore.InvalidParam {
		return st
	}
	if allow && st.Kind == sensorcore.I2CNackRead {
		d.health.RecordBusActivity(d.nowMs())
		return sensorcore.Err(sensorcore.MeasurementNotReady, st.Detail, "no new data")
	}
	return d.updateHealth(st)
}

func (d *Device) updateHealth(st sensorcore.Status) sensorcore.Status {
	now := d.nowMs()
	d.health.RecordBusActivity(now)
	if !d.initialized {
		return st
	}
	return d.health.Update(now, st)
}

// ensureCommandDelay enforces the minimum spacing (tIDLE) between commands,
// spinning on the injected clock bounded by CommandDelayMs+TimeoutMs and by
// sensorcore.MaxSpinIters.
func (d *Device) ensureCommandDelay() sensorcore.Status {
	if !d.lastCommandSet {
		return sensorcore.Ok()
	}
	target := d.lastCommandMs + d.cfg.CommandDelayMs
	hardTimeout := d.cfg.CommandDelayMs + d.cfg.TimeoutMs
	return sensorcore.SpinWait(d.nowMs, target, hardTimeout)
}

func (d *Device) waitMs(delayMs uint32) sensorcore.Status {
	if delayMs == 0 {
		return sensorcore.Ok()
	}
	start := d.nowMs()
	return sensorcore.SpinWait(d.nowMs, start+delayMs, delayMs+d.cfg.TimeoutMs)
}

func (d *Device) writeCommand(cmd uint16, tracked bool) sensorcore.Status {
	if st := d.ensureCommandDelay(); !st.IsOK() {
		return st
	}
	buf := []byte{byte(cmd >> 8), byte(cmd)}
	var st sensorcore.Status
	if tracked {
		st = d.writeTracked(buf)
	} else {
		st = d.writeRaw(buf)
	}
	if !st.IsOK() {
		return st
	}
	d.lastCommandMs = d.nowMs()
	d.lastCommandSet = true
	return sensorcore.Ok()
}

func (d *Device) writeCommandWithData(cmd, data uint16, tracked bool) sensorcore.Status {
	if st := d.ensureCommandDelay(); !st.IsOK() {
		return st
	}
	payload := make([]byte, 0, maxWriteLen)
	payload = append(payload, byte(cmd>>8), byte(cmd))
	dataBytes := []byte{byte(data >> 8), byte(data)}
	payload = append(payload, dataBytes...)
	payload = append(payload, crc8(dataBytes))

	var st sensorcore.Status
	if tracked {
		st = d.writeTracked(payload)
	} else {
		st = d.writeRaw(payload)
	}
	if !st.IsOK() {
		return st
	}
	d.lastCommandMs = d.nowMs()
	d.lastCommandSet = true
	return sensorcore.Ok()
}

func (d *Device) readAfterCommand(rx []byte, tracked, allowNoData bool) sensorcore.Status {
	if st := d.ensureCommandDelay(); !st.IsOK() {
		return st
	}
	if !tracked {
		return d.readAfterCommandRaw(rx)
	}
	if allowNoData {
		return d.readTrackedAllowNoData(rx, true)
	}
	return d.readTracked(rx)
}

func (d *Device) readStatusRawTracked(tracked bool) (uint16, sensorcore.Status) {
	if st := d.writeCommand(cmdReadStatus, tracked); !st.IsOK() {
		return 0, st
	}
	var buf [statusDataLen]byte
	if st := d.readAfterCommand(buf[:], tracked, false); !st.IsOK() {
		return 0, st
	}
	if crc8(buf[0:2]) != buf[2] {
		return 0, sensorcore.Err(sensorcore.CRCMismatch, 0, "CRC mismatch (status)")
	}
	return uint16(buf[0])<<8 | uint16(buf[1]), sensorcore.Ok()
}

func (d *Device) readMeasurementTracked(allowNoData bool) (RawSample, sensorcore.Status) {
	var buf [measurementDataLen]byte
	st := d.readAfterCommand(buf[:], true, allowNoData)
	if !st.IsOK() {
		return RawSample{}, st
	}
	if crc8(buf[0:2]) != buf[2] {
		return RawSample{}, sensorcore.Err(sensorcore.CRCMismatch, 0, "CRC mismatch (temperature)")
	}
	if crc8(buf[3:5]) != buf[5] {
		return RawSample{}, sensorcore.Err(sensorcore.CRCMismatch, 0, "CRC mismatch (humidity)")
	}
	return RawSample{
		RawTemperature: uint16(buf[0])<<8 | uint16(buf[1]),
		RawHumidity:    uint16(buf[3])<<8 | uint16(buf[4]),
	}, sensorcore.Ok()
}
