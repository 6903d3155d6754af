package bme280

import "devicecode-go/drivers/sensorcore"

// nowMs returns the injected clock value used only by synchronous internal
// waits (soft-reset polling); the externally driven Tick(now) scheduling
// never consults it.
func (d *Device) nowMs() uint32 {
	if d.cfg.NowMs != nil {
		return d.cfg.NowMs()
	}
	return 0
}

// readAfterCommandRaw/writeRaw bypass health tracking entirely; used by
// Init/Probe and by the recovery ladder.
func (d *Device) readAfterCommandRaw(tx, rx []byte) sensorcore.Status {
	return d.cfg.Transport.ReadAfterCommand(d.cfg.Address, tx, rx, d.cfg.TimeoutMs)
}

func (d *Device) writeRaw(buf []byte) sensorcore.Status {
	return d.cfg.Transport.Write(d.cfg.Address, buf, d.cfg.TimeoutMs)
}

func (d *Device) readRegisterRaw(reg uint8) (uint8, sensorcore.Status) {
	var value [1]byte
	st := d.readAfterCommandRaw([]byte{reg}, value[:])
	return value[0], st
}

// readAfterCommandTracked/writeTracked fold the transport outcome through
// the health monitor, except for INVALID_CONFIG/INVALID_PARAM which are
// programmer errors propagated untouched.
func (d *Device) readAfterCommandTracked(tx, rx []byte) sensorcore.Status {
	if len(tx) == 0 || (len(rx) > 0 && rx == nil) {
		return sensorcore.Err(sensorcore.InvalidParam, 0, "invalid I2C buffer")
	}
	st := d.readAfterCommandRaw(tx, rx)
	if st.Kind == sensorcore.InvalidConfig || st.Kind == sensorcore.InvalidParam {
		return st
	}
	return d.updateHealth(st)
}

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

// updateHealth is the single funnel every tracked transport call passes
// through. Only invoked once the driver is initialized.
func (d *Device) updateHealth(st sensorcore.Status) sensorcore.Status {
	if !d.initialized {
		return st
	}
	return d.health.Update(d.nowMs(), st)
}

// readRegs performs a burst register read using the tracked, repeated-start
// path (permitted for the pressure variant).
func (d *Device) readRegs(startReg uint8, buf []byte) sensorcore.Status {
	if len(buf) == 0 {
		return sensorcore.Err(sensorcore.InvalidParam, 0, "invalid read buffer")
	}
	return d.readAfterCommandTracked([]byte{startReg}, buf)
}

// writeRegs writes buf starting at startReg (register address prefixed to
// the payload in a single transaction).
func (d *Device) writeRegs(startReg uint8, buf []byte) sensorcore.Status {
	if len(buf) == 0 {
		return sensorcore.Err(sensorcore.InvalidParam, 0, "invalid write buffer")
	}
	if len(buf) > maxWriteLen {
		return sensorcore.Err(sensorcore.InvalidParam, 0, "write length too large")
	}
	var payload [maxWriteLen + 1]byte
	payload[0] = startReg
	copy(payload[1:], buf)
	return d.writeTracked(payload[:len(buf)+1])
}

func (d *Device) readRegisterTracked(reg uint8) (uint8, sensorcore.Status) {
	var value [1]byte
	st := d.readRegs(reg, value[:])
	return value[0], st
}

func (d *Device) writeRegister(reg, value uint8) sensorcore.Status {
	return d.writeRegs(reg, []byte{value})
}
