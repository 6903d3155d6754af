// Package bme280 is a transport-agnostic driver for the BME280-style
// combined pressure/temperature/humidity sensor. It is a plain state
// container: the caller injects an I2C transport and drives progress with
// Tick(now); no goroutines, no blocking sleeps beyond millisecond-scale
// command spacing.
package bme280

import "devicecode-go/drivers/sensorcore"

// measurementState is the non-blocking acquisition coordinator.
type measurementState struct {
	requested     bool
	ready         bool
	startMs       uint32
	tFine         int32
	raw           RawSample
	comp          CompensatedSample
}

// Device is the BME280 driver instance.
type Device struct {
	cfg         Config
	initialized bool
	health      sensorcore.HealthCounters

	cal Calibration
	m   measurementState

	lastRecoverAttemptMs uint32
}

// New constructs an uninitialized driver. Call Init before use.
func New() *Device { return &Device{} }

// Init validates cfg, probes the chip ID, reads and validates calibration,
// and applies the initial configuration via the safe SLEEP->config->
// ctrl_hum->ctrl_meas sequence.
func (d *Device) Init(cfg Config) sensorcore.Status {
	d.initialized = false
	d.health = sensorcore.HealthCounters{}
	d.m = measurementState{}

	if st := cfg.validate(); !st.IsOK() {
		return st
	}
	if cfg.OfflineThreshold == 0 {
		cfg.OfflineThreshold = 1
	}
	d.cfg = cfg
	d.health.Reset(cfg.OfflineThreshold)

	id, st := d.readRegisterRaw(regChipID)
	if !st.IsOK() {
		return sensorcore.Err(sensorcore.DeviceNotFound, st.Detail, "device not responding")
	}
	if id != chipID {
		return sensorcore.Err(sensorcore.ChipIDMismatch, int32(id), "chip ID mismatch")
	}

	if st := d.readCalibration(); !st.IsOK() {
		return st
	}
	if !d.cal.validate() {
		return sensorcore.Err(sensorcore.CalibrationInvalid, 0, "invalid calibration")
	}
	if st := d.applyConfig(); !st.IsOK() {
		return st
	}

	d.initialized = true
	d.health.State = sensorcore.StateReady
	return sensorcore.Ok()
}

// End shuts the driver down; operations other than Init fail with
// NotInitialized afterwards.
func (d *Device) End() {
	d.initialized = false
	d.health.State = sensorcore.StateUninit
}

// State returns the current coarse health state.
func (d *Device) State() sensorcore.DriverState { return d.health.State }

// IsOnline reports READY or DEGRADED.
func (d *Device) IsOnline() bool { return d.health.IsOnline() }

// Health returns a copy of the current health counters.
func (d *Device) Health() sensorcore.HealthCounters { return d.health }

func (d *Device) requireInit() sensorcore.Status {
	if !d.initialized {
		return sensorcore.Err(sensorcore.NotInitialized, 0, "Init not called")
	}
	return sensorcore.Ok()
}

// Probe reads the chip-ID register via the raw (untracked) path. Used for
// bring-up and by the recovery ladder.
func (d *Device) Probe() sensorcore.Status {
	if st := d.requireInit(); !st.IsOK() {
		return st
	}
	id, st := d.readRegisterRaw(regChipID)
	if !st.IsOK() {
		return sensorcore.Err(sensorcore.DeviceNotFound, st.Detail, "device not responding")
	}
	if id != chipID {
		return sensorcore.Err(sensorcore.ChipIDMismatch, int32(id), "chip ID mismatch")
	}
	return sensorcore.Ok()
}

// Tick advances the request -> reading -> data-ready transition. It must
// not block and is a no-op if the driver is uninitialized, idle, or in
// SLEEP mode.
func (d *Device) Tick(nowMs uint32) {
	if !d.initialized || !d.m.requested {
		return
	}
	if d.cfg.Mode == ModeSleep {
		return
	}
	if d.cfg.Mode == ModeForced {
		deadline := d.m.startMs + d.estimateMeasurementTimeMs()
		if !sensorcore.Reached(nowMs, deadline) {
			return
		}
	}

	measuring, st := d.IsMeasuring()
	if !st.IsOK() || measuring {
		return
	}

	if st := d.readRawData(); !st.IsOK() {
		return
	}
	if st := d.compensateCurrent(); !st.IsOK() {
		return
	}

	d.m.ready = true
	d.m.requested = false
}

// RequestMeasurement schedules a measurement. FORCED mode triggers
// immediately; NORMAL mode marks intent only (the device free-runs).
func (d *Device) RequestMeasurement(nowMs uint32) sensorcore.Status {
	if st := d.requireInit(); !st.IsOK() {
		return st
	}
	if d.cfg.Mode == ModeSleep {
		return sensorcore.Err(sensorcore.InvalidParam, 0, "device is in sleep mode")
	}
	if d.m.requested && !d.m.ready {
		return sensorcore.Err(sensorcore.Busy, 0, "measurement in progress")
	}

	d.m.ready = false

	if d.cfg.Mode == ModeForced {
		measuring, st := d.IsMeasuring()
		if !st.IsOK() {
			return st
		}
		if measuring {
			return sensorcore.Err(sensorcore.Busy, 0, "device is measuring")
		}

		ctrlMeas := buildCtrlMeas(d.cfg.OsrsT, d.cfg.OsrsP, ModeForced)
		if st := d.writeRegister(regCtrlMeas, ctrlMeas); !st.IsOK() {
			return st
		}
		d.m.requested = true
		d.m.startMs = nowMs
		return sensorcore.Err(sensorcore.InProgress, 0, "measurement started")
	}

	d.m.requested = true
	return sensorcore.Err(sensorcore.InProgress, 0, "measurement scheduled")
}

// GetMeasurement returns the float-converted result and clears the
// ready flag.
func (d *Device) GetMeasurement() (Measurement, sensorcore.Status) {
	if st := d.requireInit(); !st.IsOK() {
		return Measurement{}, st
	}
	if !d.m.ready {
		return Measurement{}, sensorcore.Err(sensorcore.MeasurementNotReady, 0, "measurement not ready")
	}
	out := d.m.comp.toMeasurement()
	d.m.ready = false
	return out, sensorcore.Ok()
}

// GetRawSample returns the unconverted ADC values of the latest fetch.
func (d *Device) GetRawSample() (RawSample, sensorcore.Status) {
	if st := d.requireInit(); !st.IsOK() {
		return RawSample{}, st
	}
	if !d.m.ready {
		return RawSample{}, sensorcore.Err(sensorcore.MeasurementNotReady, 0, "measurement not ready")
	}
	return d.m.raw, sensorcore.Ok()
}

// GetCompensatedSample returns the fixed-point compensation result of the
// latest fetch.
func (d *Device) GetCompensatedSample() (CompensatedSample, sensorcore.Status) {
	if st := d.requireInit(); !st.IsOK() {
		return CompensatedSample{}, st
	}
	if !d.m.ready {
		return CompensatedSample{}, sensorcore.Err(sensorcore.MeasurementNotReady, 0, "measurement not ready")
	}
	return d.m.comp, sensorcore.Ok()
}

// MeasurementReady reports whether a fetched sample is waiting to be read.
func (d *Device) MeasurementReady() bool { return d.m.ready }

// GetCalibration returns the cached calibration coefficients.
func (d *Device) GetCalibration() (Calibration, sensorcore.Status) {
	if st := d.requireInit(); !st.IsOK() {
		return Calibration{}, st
	}
	return d.cal, sensorcore.Ok()
}

// ReadCalibrationRaw re-reads the raw calibration registers from the
// device.
func (d *Device) ReadCalibrationRaw() (CalibrationRaw, sensorcore.Status) {
	if st := d.requireInit(); !st.IsOK() {
		return CalibrationRaw{}, st
	}
	var raw CalibrationRaw
	if st := d.readRegs(regCalibTPStart, raw.TP[:]); !st.IsOK() {
		return CalibrationRaw{}, st
	}
	h1, st := d.readRegisterTracked(regCalibH1)
	if !st.IsOK() {
		return CalibrationRaw{}, st
	}
	raw.H1 = h1
	if st := d.readRegs(regCalibHStart, raw.H[:]); !st.IsOK() {
		return CalibrationRaw{}, st
	}
	return raw, sensorcore.Ok()
}

// EstimateMeasurementTimeMs estimates the worst-case conversion time for
// the current oversampling settings.
func (d *Device) EstimateMeasurementTimeMs() uint32 { return d.estimateMeasurementTimeMs() }

func (d *Device) estimateMeasurementTimeMs() uint32 {
	return estimateMeasurementTimeMs(d.cfg.OsrsT, d.cfg.OsrsP, d.cfg.OsrsH)
}

// IsMeasuring reports whether the device is currently mid-conversion.
func (d *Device) IsMeasuring() (bool, sensorcore.Status) {
	if st := d.requireInit(); !st.IsOK() {
		return false, st
	}
	status, st := d.readRegisterTracked(regStatus)
	if !st.IsOK() {
		return false, st
	}
	return status&maskStatusMeasuring != 0, sensorcore.Ok()
}

func (d *Device) readRawData() sensorcore.Status {
	var data [dataLen]byte
	if st := d.readRegs(regDataStart, data[:]); !st.IsOK() {
		return st
	}
	d.m.raw = unpackRawSample(data)
	return sensorcore.Ok()
}

func (d *Device) compensateCurrent() sensorcore.Status {
	comp, tFine, st := compensate(d.m.raw, d.cal)
	if !st.IsOK() {
		return st
	}
	d.m.comp = comp
	d.m.tFine = tFine
	return sensorcore.Ok()
}

func (d *Device) readCalibration() sensorcore.Status {
	var raw CalibrationRaw
	if st := d.readRegs(regCalibTPStart, raw.TP[:]); !st.IsOK() {
		return st
	}
	h1, st := d.readRegisterTracked(regCalibH1)
	if !st.IsOK() {
		return st
	}
	raw.H1 = h1
	if st := d.readRegs(regCalibHStart, raw.H[:]); !st.IsOK() {
		return st
	}
	d.cal = unpackCalibration(raw)
	return sensorcore.Ok()
}

// applyConfig follows the conservative SLEEP -> config -> ctrl_hum ->
// ctrl_meas sequence unconditionally. The vendor source also exposes a
// direct ctrl_meas-only "set mode" path that can silently drop a pending
// filter/standby update; this driver never takes that path.
func (d *Device) applyConfig() sensorcore.Status {
	ctrlHum := buildCtrlHum(d.cfg.OsrsH)
	ctrlMeasSleep := buildCtrlMeas(d.cfg.OsrsT, d.cfg.OsrsP, ModeSleep)
	ctrlMeas := buildCtrlMeas(d.cfg.OsrsT, d.cfg.OsrsP, d.cfg.Mode)
	config := buildConfig(d.cfg.Standby, d.cfg.Filter)

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
