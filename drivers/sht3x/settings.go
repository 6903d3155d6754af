package sht3x

import "devicecode-go/drivers/sensorcore"

// StatusRegister is the decoded 16-bit status word.
type StatusRegister struct {
	Raw            uint16
	AlertPending   bool
	HeaterOn       bool
	RHAlert        bool
	TAlert         bool
	ResetDetected  bool
	CommandError   bool
	WriteCRCError  bool
}

// SettingsSnapshot is a point-in-time snapshot of the driver's acquisition
// configuration and pending/ready state, useful for diagnostics and for
// deciding whether a caller needs to re-fetch the live status register.
type SettingsSnapshot struct {
	Mode               Mode
	Repeatability      Repeatability
	PeriodicRate       PeriodicRate
	ClockStretching    ClockStretching
	PeriodicActive     bool
	MeasurementPending bool
	MeasurementReady   bool
	MeasurementReadyMs uint32
	SampleTimestampMs  uint32
	MissedSamples      uint32
	Status             StatusRegister
	StatusValid        bool
}

func (d *Device) getSettings() (SettingsSnapshot, sensorcore.Status) {
	if st := d.requireInit(); !st.IsOK() {
		return SettingsSnapshot{}, st
	}
	return SettingsSnapshot{
		Mode:               d.mode,
		Repeatability:      d.cfg.Repeatability,
		PeriodicRate:       d.cfg.PeriodicRate,
		ClockStretching:    d.cfg.ClockStretching,
		PeriodicActive:     d.p.active,
		MeasurementPending: d.m.requested && !d.m.ready,
		MeasurementReady:   d.m.ready,
		MeasurementReadyMs: d.m.readyMs,
		SampleTimestampMs:  d.m.sampleTsMs,
		MissedSamples:      d.p.missedSamples,
	}, sensorcore.Ok()
}

// GetSettings returns the cached (no-I2C) settings snapshot.
func (d *Device) GetSettings() (SettingsSnapshot, sensorcore.Status) {
	return d.getSettings()
}

// ReadSettings augments GetSettings with a live status-register read; if
// the device is busy (periodic mode active), the cached snapshot is
// returned with StatusValid=false instead of failing outright.
func (d *Device) ReadSettings() (SettingsSnapshot, sensorcore.Status) {
	out, st := d.getSettings()
	if !st.IsOK() {
		return out, st
	}
	reg, st := d.ReadStatusRegister()
	if st.IsOK() {
		out.Status = reg
		out.StatusValid = true
		return out, st
	}
	if st.Kind == sensorcore.Busy {
		out.StatusValid = false
		return out, sensorcore.Ok()
	}
	return out, st
}

func (d *Device) SetMode(mode Mode) sensorcore.Status {
	if st := d.requireInit(); !st.IsOK() {
		return st
	}
	if d.m.requested && !d.m.ready {
		return sensorcore.Err(sensorcore.Busy, 0, "measurement in progress")
	}
	if !mode.valid() {
		return sensorcore.Err(sensorcore.InvalidParam, 0, "invalid mode")
	}
	if mode == d.mode {
		return sensorcore.Ok()
	}
	if mode == ModeSingleShot {
		if st := d.StopPeriodic(); !st.IsOK() {
			return st
		}
		return sensorcore.Ok()
	}
	if mode == ModePeriodic {
		return d.StartPeriodic(d.cfg.PeriodicRate, d.cfg.Repeatability)
	}
	return d.StartArt()
}

func (d *Device) GetMode() (Mode, sensorcore.Status) {
	if st := d.requireInit(); !st.IsOK() {
		return 0, st
	}
	return d.mode, sensorcore.Ok()
}

func (d *Device) SetRepeatability(rep Repeatability) sensorcore.Status {
	if st := d.requireInit(); !st.IsOK() {
		return st
	}
	if d.m.requested && !d.m.ready {
		return sensorcore.Err(sensorcore.Busy, 0, "measurement in progress")
	}
	if !rep.valid() {
		return sensorcore.Err(sensorcore.InvalidParam, 0, "invalid repeatability")
	}
	d.cfg.Repeatability = rep
	if d.mode == ModePeriodic {
		return d.StartPeriodic(d.cfg.PeriodicRate, rep)
	}
	d.syncCacheFromConfig()
	return sensorcore.Ok()
}

func (d *Device) GetRepeatability() (Repeatability, sensorcore.Status) {
	if st := d.requireInit(); !st.IsOK() {
		return 0, st
	}
	return d.cfg.Repeatability, sensorcore.Ok()
}

func (d *Device) SetClockStretching(stretch ClockStretching) sensorcore.Status {
	if st := d.requireInit(); !st.IsOK() {
		return st
	}
	if d.m.requested && !d.m.ready {
		return sensorcore.Err(sensorcore.Busy, 0, "measurement in progress")
	}
	if !stretch.valid() {
		return sensorcore.Err(sensorcore.InvalidParam, 0, "invalid clock stretching")
	}
	d.cfg.ClockStretching = stretch
	d.syncCacheFromConfig()
	return sensorcore.Ok()
}

func (d *Device) GetClockStretching() (ClockStretching, sensorcore.Status) {
	if st := d.requireInit(); !st.IsOK() {
		return 0, st
	}
	return d.cfg.ClockStretching, sensorcore.Ok()
}

func (d *Device) SetPeriodicRate(rate PeriodicRate) sensorcore.Status {
	if st := d.requireInit(); !st.IsOK() {
		return st
	}
	if d.m.requested && !d.m.ready {
		return sensorcore.Err(sensorcore.Busy, 0, "measurement in progress")
	}
	if !rate.valid() {
		return sensorcore.Err(sensorcore.InvalidParam, 0, "invalid periodic rate")
	}
	d.cfg.PeriodicRate = rate
	if d.mode == ModePeriodic {
		return d.StartPeriodic(rate, d.cfg.Repeatability)
	}
	d.syncCacheFromConfig()
	return sensorcore.Ok()
}

func (d *Device) GetPeriodicRate() (PeriodicRate, sensorcore.Status) {
	if st := d.requireInit(); !st.IsOK() {
		return 0, st
	}
	return d.cfg.PeriodicRate, sensorcore.Ok()
}

func (d *Device) StartPeriodic(rate PeriodicRate, rep Repeatability) sensorcore.Status {
	if st := d.requireInit(); !st.IsOK() {
		return st
	}
	if !rate.valid() || !rep.valid() {
		return sensorcore.Err(sensorcore.InvalidParam, 0, "invalid periodic settings")
	}
	return d.enterPeriodic(rate, rep, false)
}

func (d *Device) StartArt() sensorcore.Status {
	if st := d.requireInit(); !st.IsOK() {
		return st
	}
	return d.enterPeriodic(d.cfg.PeriodicRate, d.cfg.Repeatability, true)
}

func (d *Device) StopPeriodic() sensorcore.Status {
	if st := d.requireInit(); !st.IsOK() {
		return st
	}
	return d.stopPeriodicInternal()
}

func (d *Device) rawStatus(tracked bool) (uint16, sensorcore.Status) {
	if d.p.active {
		return 0, sensorcore.Err(sensorcore.Busy, 0, "stop periodic mode before reading status")
	}
	return d.readStatusRawTracked(tracked)
}

func (d *Device) ReadStatusRaw() (uint16, sensorcore.Status) {
	if st := d.requireInit(); !st.IsOK() {
		return 0, st
	}
	return d.rawStatus(true)
}

func (d *Device) ReadStatusRegister() (StatusRegister, sensorcore.Status) {
	raw, st := d.ReadStatusRaw()
	if !st.IsOK() {
		return StatusRegister{}, st
	}
	return StatusRegister{
		Raw:           raw,
		AlertPending:  raw&statusAlertPending != 0,
		HeaterOn:      raw&statusHeaterOn != 0,
		RHAlert:       raw&statusRHAlert != 0,
		TAlert:        raw&statusTAlert != 0,
		ResetDetected: raw&statusResetDetected != 0,
		CommandError:  raw&statusCommandError != 0,
		WriteCRCError: raw&statusWriteCRCError != 0,
	}, sensorcore.Ok()
}

func (d *Device) ClearStatus() sensorcore.Status {
	if st := d.requireInit(); !st.IsOK() {
		return st
	}
	if d.p.active {
		return sensorcore.Err(sensorcore.Busy, 0, "stop periodic mode before clearing status")
	}
	return d.writeCommand(cmdClearStatus, true)
}

func (d *Device) SetHeater(enable bool) sensorcore.Status {
	if st := d.requireInit(); !st.IsOK() {
		return st
	}
	if d.p.active {
		return sensorcore.Err(sensorcore.Busy, 0, "stop periodic mode before changing heater")
	}
	cmd := cmdHeaterDisable
	if enable {
		cmd = cmdHeaterEnable
	}
	if st := d.writeCommand(cmd, true); !st.IsOK() {
		return st
	}
	d.cachedSettings.HeaterEnabled = enable
	d.hasCachedSettings = true
	return sensorcore.Ok()
}

func (d *Device) ReadHeaterStatus() (bool, sensorcore.Status) {
	reg, st := d.ReadStatusRegister()
	if !st.IsOK() {
		return false, st
	}
	return reg.HeaterOn, sensorcore.Ok()
}

// SoftReset issues the soft-reset command and restores the driver to
// single-shot idle state.
func (d *Device) SoftReset() sensorcore.Status {
	if st := d.requireInit(); !st.IsOK() {
		return st
	}
	if d.p.active {
		return sensorcore.Err(sensorcore.Busy, 0, "stop periodic mode before reset")
	}
	if st := d.writeCommand(cmdSoftReset, true); !st.IsOK() {
		return st
	}
	if st := d.waitMs(resetDelayMs); !st.IsOK() {
		return st
	}
	d.m = measurementState{}
	d.mode = ModeSingleShot
	d.p = periodicState{}
	return sensorcore.Ok()
}

// InterfaceReset issues the transport's bus-reset (SCL pulse sequence) and
// clears pending measurement state and periodic fetch bookkeeping; periodic
// mode stays active, with its start time reset to now.
func (d *Device) InterfaceReset() sensorcore.Status {
	if st := d.requireInit(); !st.IsOK() {
		return st
	}
	if d.cfg.BusReset == nil {
		return sensorcore.Err(sensorcore.Unsupported, 0, "bus reset callback not set")
	}
	if st := d.cfg.BusReset(); !st.IsOK() {
		return st
	}
	d.m.requested = false
	d.m.ready = false
	d.m.readyMs = 0
	d.p.lastFetchMs = 0
	d.m.sampleTsMs = 0
	d.p.missedSamples = 0
	d.p.notReadyStart = 0
	d.p.notReadyCount = 0
	if d.p.active {
		d.p.startMs = d.nowMs()
	}
	return sensorcore.Ok()
}

func (d *Device) generalCallReset() sensorcore.Status {
	if !d.cfg.AllowGeneralCallReset {
		return sensorcore.Err(sensorcore.InvalidConfig, 0, "general call reset disabled")
	}
	if st := d.ensureCommandDelay(); !st.IsOK() {
		return st
	}
	st := d.cfg.Transport.Write(generalCallAddr, []byte{generalCallResetByte}, d.cfg.TimeoutMs)
	if st.Kind == sensorcore.InvalidConfig || st.Kind == sensorcore.InvalidParam {
		return st
	}
	if st := d.updateHealth(st); !st.IsOK() {
		return st
	}
	d.lastCommandMs = d.nowMs()
	d.lastCommandSet = true
	if st := d.waitMs(resetDelayMs); !st.IsOK() {
		return st
	}
	d.m = measurementState{}
	d.mode = ModeSingleShot
	d.p = periodicState{}
	return sensorcore.Ok()
}

// GeneralCallReset issues the I2C general-call reset (address 0x00, data
// 0x06). This is bus-wide and resets every device on the bus; only enabled
// by explicit opt-in.
func (d *Device) GeneralCallReset() sensorcore.Status {
	if st := d.requireInit(); !st.IsOK() {
		return st
	}
	return d.generalCallReset()
}

// ReadSerialNumber reads and CRC-verifies the 32-bit factory serial number.
func (d *Device) ReadSerialNumber(stretch ClockStretching) (uint32, sensorcore.Status) {
	if st := d.requireInit(); !st.IsOK() {
		return 0, st
	}
	if d.p.active {
		return 0, sensorcore.Err(sensorcore.Busy, 0, "stop periodic mode before reading serial")
	}
	if !stretch.valid() {
		return 0, sensorcore.Err(sensorcore.InvalidParam, 0, "invalid clock stretching")
	}
	cmd := cmdSerialNoStretch
	if stretch == StretchEnabled {
		cmd = cmdSerialStretch
	}
	if st := d.writeCommand(cmd, true); !st.IsOK() {
		return 0, st
	}
	var buf [serialDataLen]byte
	if st := d.readAfterCommand(buf[:], true, false); !st.IsOK() {
		return 0, st
	}
	if crc8(buf[0:2]) != buf[2] {
		return 0, sensorcore.Err(sensorcore.CRCMismatch, 0, "CRC mismatch (serial word1)")
	}
	if crc8(buf[3:5]) != buf[5] {
		return 0, sensorcore.Err(sensorcore.CRCMismatch, 0, "CRC mismatch (serial word2)")
	}
	word1 := uint16(buf[0])<<8 | uint16(buf[1])
	word2 := uint16(buf[3])<<8 | uint16(buf[4])
	return uint32(word1)<<16 | uint32(word2), sensorcore.Ok()
}
