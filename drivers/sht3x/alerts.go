package sht3x

import "devicecode-go/drivers/sensorcore"

func (d *Device) ReadAlertLimitRaw(kind AlertLimitKind) (uint16, sensorcore.Status) {
	if st := d.requireInit(); !st.IsOK() {
		return 0, st
	}
	if d.p.active {
		return 0, sensorcore.Err(sensorcore.Busy, 0, "stop periodic mode before reading alert limits")
	}
	cmd := commandForAlertRead(kind)
	if cmd == 0 {
		return 0, sensorcore.Err(sensorcore.InvalidParam, 0, "invalid alert limit kind")
	}
	if st := d.writeCommand(cmd, true); !st.IsOK() {
		return 0, st
	}
	var buf [alertDataLen]byte
	if st := d.readAfterCommand(buf[:], true, false); !st.IsOK() {
		return 0, st
	}
	if crc8(buf[0:2]) != buf[2] {
		return 0, sensorcore.Err(sensorcore.CRCMismatch, 0, "CRC mismatch (alert limit)")
	}
	return uint16(buf[0])<<8 | uint16(buf[1]), sensorcore.Ok()
}

func (d *Device) ReadAlertLimit(kind AlertLimitKind) (AlertLimit, sensorcore.Status) {
	raw, st := d.ReadAlertLimitRaw(kind)
	if !st.IsOK() {
		return AlertLimit{}, st
	}
	tempC, rh := decodeAlertLimit(raw)
	return AlertLimit{Raw: raw, TemperatureC: tempC, HumidityPct: rh}, sensorcore.Ok()
}

func (d *Device) WriteAlertLimitRaw(kind AlertLimitKind, value uint16) sensorcore.Status {
	if st := d.requireInit(); !st.IsOK() {
		return st
	}
	if d.p.active {
		return sensorcore.Err(sensorcore.Busy, 0, "stop periodic mode before writing alert limits")
	}
	cmd := commandForAlertWrite(kind)
	if cmd == 0 {
		return sensorcore.Err(sensorcore.InvalidParam, 0, "invalid alert limit kind")
	}
	if st := d.writeCommandWithData(cmd, value, true); !st.IsOK() {
		return st
	}

	statusRaw, st := d.readStatusRawTracked(true)
	if !st.IsOK() {
		return st
	}
	if statusRaw&statusWriteCRCError != 0 {
		return sensorcore.Err(sensorcore.WriteCRCError, 0, "write checksum error")
	}
	if statusRaw&statusCommandError != 0 {
		return sensorcore.Err(sensorcore.CommandFailed, 0, "command rejected")
	}
	d.cachedSettings.AlertRaw[kind] = value
	d.cachedSettings.AlertValid[kind] = true
	d.hasCachedSettings = true
	return sensorcore.Ok()
}

func (d *Device) WriteAlertLimit(kind AlertLimitKind, temperatureC, humidityPct float32) sensorcore.Status {
	return d.WriteAlertLimitRaw(kind, encodeAlertLimit(temperatureC, humidityPct))
}

// DisableAlerts writes an inverted alert window, following the vendor
// convention of pushing HIGH_SET to zero and LOW_SET to its maximum so the
// alert pin never trips.
func (d *Device) DisableAlerts() sensorcore.Status {
	if st := d.WriteAlertLimitRaw(AlertHighSet, 0x0000); !st.IsOK() {
		return st
	}
	return d.WriteAlertLimitRaw(AlertLowSet, 0xFFFF)
}
