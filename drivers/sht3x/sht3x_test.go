package sht3x

import (
	"testing"

	"devicecode-go/drivers/sensorcore"
)

// fakeTransport is a scriptable sensorcore.Transport double: every write is
// interpreted as a 16-bit command (optionally followed by a data+CRC
// payload), and reads are served from a per-command response queue.
type fakeTransport struct {
	caps sensorcore.Caps

	lastCmd  uint16
	cmdLog   []uint16
	response map[uint16][]byte

	writeErr func(cmd uint16) sensorcore.Status
	readErr  func(cmd uint16) sensorcore.Status
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{response: map[uint16][]byte{}}
}

func (f *fakeTransport) Capabilities() sensorcore.Caps { return f.caps }

func (f *fakeTransport) Write(addr uint8, buf []byte, timeoutMs uint32) sensorcore.Status {
	if len(buf) >= 2 {
		f.lastCmd = uint16(buf[0])<<8 | uint16(buf[1])
		f.cmdLog = append(f.cmdLog, f.lastCmd)
	}
	if f.writeErr != nil {
		if st := f.writeErr(f.lastCmd); !st.IsOK() {
			return st
		}
	}
	return sensorcore.Ok()
}

func (f *fakeTransport) ReadAfterCommand(addr uint8, tx, rx []byte, timeoutMs uint32) sensorcore.Status {
	if f.readErr != nil {
		if st := f.readErr(f.lastCmd); !st.IsOK() {
			return st
		}
	}
	data, ok := f.response[f.lastCmd]
	if !ok {
		return sensorcore.Ok()
	}
	copy(rx, data)
	return sensorcore.Ok()
}

func statusWord(raw uint16) []byte {
	hi, lo := byte(raw>>8), byte(raw)
	return []byte{hi, lo, crc8([]byte{hi, lo})}
}

func measurementWords(rawT, rawH uint16) []byte {
	th, tl := byte(rawT>>8), byte(rawT)
	hh, hl := byte(rawH>>8), byte(rawH)
	return []byte{th, tl, crc8([]byte{th, tl}), hh, hl, crc8([]byte{hh, hl})}
}

// fakeClock returns a NowMs source that advances by one millisecond on
// every call, so SpinWait-based command spacing inside the driver resolves
// immediately instead of spinning against a frozen clock.
func fakeClock() func() uint32 {
	var t uint32
	return func() uint32 {
		t++
		return t
	}
}

func testConfig(f *fakeTransport) Config {
	cfg := DefaultConfig(f)
	cfg.NowMs = fakeClock()
	return cfg
}

func newReadyDevice(t *testing.T, f *fakeTransport) *Device {
	t.Helper()
	f.response[cmdReadStatus] = statusWord(0)
	d := New()
	if st := d.Init(testConfig(f)); !st.IsOK() {
		t.Fatalf("Init failed: %+v", st)
	}
	return d
}

func TestInitDeviceNotFound(t *testing.T) {
	f := newFakeTransport()
	f.readErr = func(cmd uint16) sensorcore.Status {
		return sensorcore.Err(sensorcore.I2CTimeout, 0, "no ack")
	}
	d := New()
	st := d.Init(testConfig(f))
	if st.Kind != sensorcore.DeviceNotFound {
		t.Fatalf("expected DeviceNotFound, got %+v", st)
	}
}

func TestSingleShotLifecycle(t *testing.T) {
	f := newFakeTransport()
	d := newReadyDevice(t, f)

	// raw_temperature=26214 solves T=-45+175*raw/65535 exactly to 25.00C;
	// raw_humidity=39321 solves RH=100*raw/65535 exactly to 60.00%.
	f.response[cmdSingleShotNoStretchHigh] = measurementWords(26214, 39321)

	st := d.RequestMeasurement(0)
	if st.Kind != sensorcore.InProgress {
		t.Fatalf("expected InProgress, got %+v", st)
	}

	d.Tick(0)
	if d.m.ready {
		t.Fatalf("tick before estimate elapsed must not produce a ready sample")
	}

	d.Tick(d.EstimateMeasurementTimeMs() + 1)
	if !d.m.ready {
		t.Fatalf("expected measurement ready after estimate elapsed")
	}

	m, st := d.GetMeasurement()
	if !st.IsOK() {
		t.Fatalf("GetMeasurement failed: %+v", st)
	}
	if abs32(m.TemperatureC-25.0) > 0.05 {
		t.Errorf("temperature out of tolerance: got %v want 25.00", m.TemperatureC)
	}
	if abs32(m.HumidityPct-60.0) > 0.05 {
		t.Errorf("humidity out of tolerance: got %v want 60.00", m.HumidityPct)
	}
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

func TestSingleShotCRCMismatch(t *testing.T) {
	f := newFakeTransport()
	d := newReadyDevice(t, f)

	good := measurementWords(1000, 2000)
	good[2] ^= 0xFF // corrupt the temperature CRC
	f.response[cmdSingleShotNoStretchHigh] = good

	d.RequestMeasurement(0)
	d.Tick(d.EstimateMeasurementTimeMs() + 1)
	if d.m.ready {
		t.Fatalf("expected CRC mismatch to prevent measurement readiness")
	}
}

func TestRequestMeasurementBusyWhilePending(t *testing.T) {
	f := newFakeTransport()
	d := newReadyDevice(t, f)
	f.response[cmdSingleShotNoStretchHigh] = measurementWords(1000, 2000)

	d.RequestMeasurement(0)
	st := d.RequestMeasurement(0)
	if st.Kind != sensorcore.Busy {
		t.Fatalf("expected Busy for a second request while pending, got %+v", st)
	}
}

func TestPeriodicLifecycleWithMissedSamples(t *testing.T) {
	f := newFakeTransport()
	f.caps = sensorcore.CapReadHeaderNACK
	f.response[cmdReadStatus] = statusWord(0)
	cfg := testConfig(f)
	cfg.Mode = ModePeriodic
	cfg.PeriodicRate = RateMPS1 // 1000ms period
	d := New()
	if st := d.Init(cfg); !st.IsOK() {
		t.Fatalf("Init failed: %+v", st)
	}
	if !d.p.active {
		t.Fatalf("expected periodic acquisition to start during Init")
	}

	f.response[cmdFetchData] = measurementWords(1000, 2000)
	st := d.RequestMeasurement(0)
	if st.Kind != sensorcore.InProgress {
		t.Fatalf("expected InProgress, got %+v", st)
	}
	readyMs := d.m.readyMs
	d.Tick(readyMs)
	if !d.m.ready {
		t.Fatalf("expected first periodic fetch to be ready at t=%d", readyMs)
	}
	if _, st := d.GetMeasurement(); !st.IsOK() {
		t.Fatalf("GetMeasurement failed: %+v", st)
	}

	// Simulate the caller missing two full periods before the next request.
	d.RequestMeasurement(readyMs + 3500)
	d.Tick(readyMs + 3500)
	if !d.m.ready {
		t.Fatalf("expected fetch to succeed at t=%d", readyMs+3500)
	}
	if d.MissedSamples() == 0 {
		t.Fatalf("expected MissedSamples to record the skipped periods")
	}
}

func TestPeriodicNotReadyNackRetried(t *testing.T) {
	f := newFakeTransport()
	f.caps = sensorcore.CapReadHeaderNACK
	f.response[cmdReadStatus] = statusWord(0)
	cfg := testConfig(f)
	cfg.Mode = ModePeriodic
	d := New()
	if st := d.Init(cfg); !st.IsOK() {
		t.Fatalf("Init failed: %+v", st)
	}

	attempts := 0
	f.readErr = func(cmd uint16) sensorcore.Status {
		if cmd != cmdFetchData {
			return sensorcore.Ok()
		}
		attempts++
		if attempts == 1 {
			return sensorcore.Err(sensorcore.I2CNackRead, 0, "not ready")
		}
		return sensorcore.Ok()
	}
	f.response[cmdFetchData] = measurementWords(1000, 2000)

	d.RequestMeasurement(0)
	firstAttemptMs := d.m.readyMs
	d.Tick(firstAttemptMs)
	if d.m.ready {
		t.Fatalf("expected first fetch to report not-ready")
	}
	d.Tick(d.m.readyMs)
	if !d.m.ready {
		t.Fatalf("expected retried fetch to succeed")
	}
}

func TestAlertLimitRoundTrip(t *testing.T) {
	raw := encodeAlertLimit(25.0, 60.0)
	tempC, rh := decodeAlertLimit(raw)
	if abs32(tempC-25.0) > 1.0 {
		t.Errorf("temperature round-trip out of tolerance: got %v", tempC)
	}
	if abs32(rh-60.0) > 1.0 {
		t.Errorf("humidity round-trip out of tolerance: got %v", rh)
	}
}

func TestAlertLimitClamps(t *testing.T) {
	raw := encodeAlertLimit(-100, 200)
	tempC, rh := decodeAlertLimit(raw)
	if tempC < -46 {
		t.Errorf("expected temperature clamped near -45C, got %v", tempC)
	}
	if rh > 100.5 {
		t.Errorf("expected humidity clamped to 100%%, got %v", rh)
	}
}

func TestSetModeRejectedWhileMeasurementPending(t *testing.T) {
	f := newFakeTransport()
	d := newReadyDevice(t, f)
	f.response[cmdSingleShotNoStretchHigh] = measurementWords(1000, 2000)
	d.RequestMeasurement(0)

	st := d.SetMode(ModePeriodic)
	if st.Kind != sensorcore.Busy {
		t.Fatalf("expected Busy while a measurement is pending, got %+v", st)
	}
}

func TestRecoverySecondProbeSucceeds(t *testing.T) {
	f := newFakeTransport()
	d := newReadyDevice(t, f)

	attempts := 0
	f.readErr = func(cmd uint16) sensorcore.Status {
		if cmd != cmdReadStatus {
			return sensorcore.Ok()
		}
		attempts++
		if attempts == 1 {
			return sensorcore.Err(sensorcore.I2CTimeout, 0, "bus stuck")
		}
		return sensorcore.Ok()
	}
	d.cfg.RecoverUseBusReset = true
	d.cfg.BusReset = func() sensorcore.Status { return sensorcore.Ok() }
	d.cfg.RecoverUseSoftReset = true
	d.cfg.RecoverBackoffMs = 0

	st := d.Recover(100)
	if !st.IsOK() {
		t.Fatalf("expected Recover to succeed on second probe, got %+v", st)
	}
	mode, _ := d.GetMode()
	if mode != ModeSingleShot {
		t.Fatalf("expected mode reset to SINGLE_SHOT after recovery baseline, got %v", mode)
	}
}

func TestResetAndRestoreReplaysAlertBeforePeriodicStart(t *testing.T) {
	f := newFakeTransport()
	d := newReadyDevice(t, f)

	alertRaw := encodeAlertLimit(30.0, 60.0)
	if st := d.WriteAlertLimitRaw(AlertHighSet, alertRaw); !st.IsOK() {
		t.Fatalf("WriteAlertLimitRaw failed: %+v", st)
	}
	if st := d.StartPeriodic(RateMPS1, RepeatabilityHigh); !st.IsOK() {
		t.Fatalf("StartPeriodic failed: %+v", st)
	}

	f.cmdLog = nil
	if st := d.ResetAndRestore(); !st.IsOK() {
		t.Fatalf("ResetAndRestore failed: %+v", st)
	}

	alertIdx, periodicIdx := -1, -1
	for i, cmd := range f.cmdLog {
		if cmd == cmdAlertWriteHighSet && alertIdx == -1 {
			alertIdx = i
		}
		if cmd == cmdPeriodic1High && periodicIdx == -1 {
			periodicIdx = i
		}
	}
	if alertIdx == -1 {
		t.Fatalf("expected ResetAndRestore to reissue the alert-high-set write, log: %v", f.cmdLog)
	}
	if periodicIdx == -1 {
		t.Fatalf("expected ResetAndRestore to reissue the periodic start command, log: %v", f.cmdLog)
	}
	if alertIdx >= periodicIdx {
		t.Fatalf("expected alert-write (idx %d) before periodic start (idx %d), log: %v", alertIdx, periodicIdx, f.cmdLog)
	}

	_, st := d.ReadAlertLimitRaw(AlertHighSet)
	if st.Kind != sensorcore.Busy {
		t.Fatalf("expected periodic mode active after restore, got %+v", st)
	}
	mode, _ := d.GetMode()
	if mode != ModePeriodic {
		t.Fatalf("expected mode restored to PERIODIC, got %v", mode)
	}
}

func TestOfflineThenRecoveredToReady(t *testing.T) {
	f := newFakeTransport()
	cfg := testConfig(f)
	cfg.OfflineThreshold = 2
	f.response[cmdReadStatus] = statusWord(0)
	d := New()
	if st := d.Init(cfg); !st.IsOK() {
		t.Fatalf("init failed: %+v", st)
	}

	// Every status read is a command write plus a read, each tracked on its
	// own; a successful write clears the failure count, so the stuck bus
	// fails both halves.
	stuck := func(cmd uint16) sensorcore.Status {
		return sensorcore.Err(sensorcore.I2CTimeout, 0, "bus stuck")
	}
	f.writeErr = stuck
	f.readErr = stuck
	_, _ = d.ReadStatusRaw()
	_, _ = d.ReadStatusRaw()
	if d.State() != sensorcore.StateOffline {
		t.Fatalf("expected OFFLINE after 2 consecutive failures, got %v", d.State())
	}

	f.writeErr = nil
	f.readErr = nil
	_, st := d.ReadStatusRaw()
	if !st.IsOK() {
		t.Fatalf("expected success, got %+v", st)
	}
	if d.State() != sensorcore.StateReady {
		t.Fatalf("expected READY after first subsequent success, got %v", d.State())
	}
}
