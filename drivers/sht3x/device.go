// Package sht3x is a transport-agnostic driver for the SHT3x-style
// temperature/humidity sensor: single-shot and periodic (plus ART)
// acquisition, CRC-8 verified measurement/status/serial/alert words, and
// alert-limit configuration. Like drivers/bme280, it is a plain state
// container driven by Tick(now); no goroutines, no blocking sleeps beyond
// bounded command spacing.
package sht3x

import "devicecode-go/drivers/sensorcore"

type measurementState struct {
	requested    bool
	ready        bool
	readyMs      uint32
	raw          RawSample
	comp         CompensatedSample
	sampleTsMs   uint32
}

type periodicState struct {
	active        bool
	startMs       uint32
	lastFetchMs   uint32
	periodMs      uint32
	missedSamples uint32
	notReadyStart uint32
	notReadyCount uint32
}

// Device is the SHT3x driver instance.
type Device struct {
	cfg         Config
	initialized bool
	health      sensorcore.HealthCounters

	mode Mode
	m    measurementState
	p    periodicState

	lastCommandMs        uint32
	lastCommandSet       bool
	lastRecoverAttemptMs uint32

	cachedSettings    CachedSettings
	hasCachedSettings bool
}

// New constructs an uninitialized driver. Call Init before use.
func New() *Device { return &Device{} }

// Init validates cfg, probes the status register, and (for PERIODIC/ART
// configs) starts continuous acquisition immediately.
func (d *Device) Init(cfg Config) sensorcore.Status {
	d.initialized = false
	d.health = sensorcore.HealthCounters{}
	d.m = measurementState{}
	d.p = periodicState{}
	d.lastCommandSet = false
	d.cachedSettings = CachedSettings{}
	d.hasCachedSettings = false

	if st := cfg.validate(); !st.IsOK() {
		return st
	}
	if cfg.OfflineThreshold == 0 {
		cfg.OfflineThreshold = 1
	}
	if cfg.CommandDelayMs < minCommandDelayMs {
		cfg.CommandDelayMs = minCommandDelayMs
	}
	d.cfg = cfg
	d.health.Reset(cfg.OfflineThreshold)

	if _, st := d.readStatusRawTracked(true); !st.IsOK() {
		if st.IsTransportError() {
			return sensorcore.Err(sensorcore.DeviceNotFound, st.Detail, "device not responding")
		}
		return st
	}

	d.mode = cfg.Mode
	if d.mode == ModePeriodic {
		if st := d.enterPeriodic(cfg.PeriodicRate, cfg.Repeatability, false); !st.IsOK() {
			return st
		}
	} else if d.mode == ModeART {
		if st := d.enterPeriodic(cfg.PeriodicRate, cfg.Repeatability, true); !st.IsOK() {
			return st
		}
	}

	d.initialized = true
	d.health.State = sensorcore.StateReady
	d.syncCacheFromConfig()
	return sensorcore.Ok()
}

// End shuts the driver down; operations other than Init fail with
// NotInitialized afterwards.
func (d *Device) End() {
	d.initialized = false
	d.health.State = sensorcore.StateUninit
}

func (d *Device) State() sensorcore.DriverState { return d.health.State }
func (d *Device) IsOnline() bool                { return d.health.IsOnline() }
func (d *Device) Health() sensorcore.HealthCounters { return d.health }

func (d *Device) requireInit() sensorcore.Status {
	if !d.initialized {
		return sensorcore.Err(sensorcore.NotInitialized, 0, "Init not called")
	}
	return sensorcore.Ok()
}

// Probe reads the status register via the raw (untracked) path.
func (d *Device) Probe() sensorcore.Status {
	if st := d.requireInit(); !st.IsOK() {
		return st
	}
	_, st := d.readStatusRawTracked(false)
	if !st.IsOK() && st.IsTransportError() {
		return sensorcore.Err(sensorcore.DeviceNotFound, st.Detail, "device not responding")
	}
	return st
}

// Tick advances single-shot and periodic acquisition.
func (d *Device) Tick(nowMs uint32) {
	if !d.initialized || !d.m.requested {
		return
	}

	if d.mode == ModeSingleShot {
		if !sensorcore.Reached(nowMs, d.m.readyMs) {
			return
		}
		raw, st := d.readMeasurementTracked(false)
		if !st.IsOK() {
			return
		}
		d.m.raw = raw
		d.m.comp = compensate(raw)
		d.m.sampleTsMs = nowMs
		d.m.ready = true
		d.m.requested = false
		return
	}

	// PERIODIC or ART.
	if !sensorcore.Reached(nowMs, d.m.readyMs) {
		return
	}
	st := d.fetchPeriodic(nowMs)
	if !st.IsOK() {
		if st.Kind == sensorcore.MeasurementNotReady {
			d.m.readyMs = nowMs + periodicFetchMarginMs(d.p.periodMs)
		}
		return
	}

	if d.p.lastFetchMs != 0 && d.p.periodMs > 0 {
		elapsed := nowMs - d.p.lastFetchMs
		if elapsed > d.p.periodMs {
			missed := elapsed / d.p.periodMs
			if missed > 0 {
				d.p.missedSamples += missed - 1
			}
		}
	}

	d.m.ready = true
	d.m.requested = false
	d.p.lastFetchMs = nowMs
	d.m.sampleTsMs = nowMs
}

// RequestMeasurement schedules a measurement. In SINGLE_SHOT mode this
// triggers a conversion immediately; in PERIODIC/ART mode it marks intent
// to fetch the next free-running sample.
func (d *Device) RequestMeasurement(nowMs uint32) sensorcore.Status {
	if st := d.requireInit(); !st.IsOK() {
		return st
	}
	if d.m.requested && !d.m.ready {
		return sensorcore.Err(sensorcore.Busy, 0, "measurement in progress")
	}
	d.m.ready = false

	if d.mode == ModeSingleShot {
		if d.p.active {
			return sensorcore.Err(sensorcore.Busy, 0, "periodic mode active")
		}
		cmd := commandForSingleShot(d.cfg.Repeatability, d.cfg.ClockStretching)
		if cmd == 0 {
			return sensorcore.Err(sensorcore.InvalidParam, 0, "invalid single-shot configuration")
		}
		if st := d.writeCommand(cmd, true); !st.IsOK() {
			return st
		}
		d.m.requested = true
		d.m.readyMs = nowMs + d.estimateMeasurementTimeMs()
		return sensorcore.Err(sensorcore.InProgress, 0, "measurement started")
	}

	if !d.p.active {
		return sensorcore.Err(sensorcore.InvalidParam, 0, "periodic mode not active")
	}

	var readyMs uint32
	if d.p.lastFetchMs == 0 {
		readyMs = d.p.startMs + d.estimateMeasurementTimeMs() + periodicFetchMarginMs(d.p.periodMs)
	} else {
		readyMs = d.p.lastFetchMs + d.p.periodMs
	}
	if sensorcore.Reached(nowMs, readyMs) {
		readyMs = nowMs
	}
	d.m.requested = true
	d.m.readyMs = readyMs
	return sensorcore.Err(sensorcore.InProgress, 0, "measurement scheduled")
}

// GetMeasurement returns the float-converted result and clears the ready
// flag.
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

// GetRawSample returns the unconverted ADC words of the latest fetch.
func (d *Device) GetRawSample() (RawSample, sensorcore.Status) {
	if st := d.requireInit(); !st.IsOK() {
		return RawSample{}, st
	}
	if !d.m.ready {
		return RawSample{}, sensorcore.Err(sensorcore.MeasurementNotReady, 0, "measurement not ready")
	}
	return d.m.raw, sensorcore.Ok()
}

// GetCompensatedSample returns the fixed-point conversion of the latest
// fetch.
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

// MissedSamples reports the running total of periodic samples skipped
// between fetches since periodic acquisition started (the caller polled
// too infrequently relative to the configured rate).
func (d *Device) MissedSamples() uint32 { return d.p.missedSamples }

// EstimateMeasurementTimeMs estimates the worst-case conversion time for
// the current repeatability/lowVdd settings.
func (d *Device) EstimateMeasurementTimeMs() uint32 { return d.estimateMeasurementTimeMs() }

func (d *Device) estimateMeasurementTimeMs() uint32 {
	return baseMeasurementMs(d.cfg.Repeatability, d.cfg.LowVdd) + measurementMarginMs
}

func compensate(raw RawSample) CompensatedSample {
	return CompensatedSample{
		TempCx100:       convertTemperatureCx100(raw.RawTemperature),
		HumidityPctx100: convertHumidityPctx100(raw.RawHumidity),
	}
}
