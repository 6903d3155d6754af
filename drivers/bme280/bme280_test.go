package bme280

import (
	"testing"

	"devicecode-go/drivers/sensorcore"
)

// fakeTransport is a scriptable sensorcore.Transport double, mirroring the
// fakeAdaptor pattern used by the HAL worker tests.
type fakeTransport struct {
	caps sensorcore.Caps

	// regs backs every register read/write by address.
	regs map[uint8]uint8

	writeErr func(addr uint8, buf []byte) sensorcore.Status
	readErr  func(addr uint8, tx, rx []byte) sensorcore.Status
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{regs: map[uint8]uint8{regChipID: chipID}}
}

func (f *fakeTransport) Capabilities() sensorcore.Caps { return f.caps }

func (f *fakeTransport) Write(addr uint8, buf []byte, timeoutMs uint32) sensorcore.Status {
	if f.writeErr != nil {
		if st := f.writeErr(addr, buf); !st.IsOK() {
			return st
		}
	}
	if len(buf) >= 2 {
		reg := buf[0]
		for i, v := range buf[1:] {
			f.regs[reg+uint8(i)] = v
		}
	}
	return sensorcore.Ok()
}

func (f *fakeTransport) ReadAfterCommand(addr uint8, tx, rx []byte, timeoutMs uint32) sensorcore.Status {
	if f.readErr != nil {
		if st := f.readErr(addr, tx, rx); !st.IsOK() {
			return st
		}
	}
	if len(tx) == 0 {
		return sensorcore.Ok()
	}
	start := tx[0]
	for i := range rx {
		rx[i] = f.regs[start+uint8(i)]
	}
	return sensorcore.Ok()
}

// s16 reinterprets a signed calibration word as its two's-complement bits.
func s16(v int16) uint16 { return uint16(v) }

func validCalibBytes() (tp [calibTPLen]byte, h1 byte, h [calibHLen]byte) {
	// T1=27504, T2=26435, T3=-1000
	putLE16(tp[0:2], 27504)
	putLE16(tp[2:4], 26435)
	putLE16(tp[4:6], s16(-1000))
	// P1=36477, P2=-10685, P3=3024, P4=2855, P5=140, P6=-7, P7=15500, P8=-14600, P9=6000
	putLE16(tp[6:8], 36477)
	putLE16(tp[8:10], s16(-10685))
	putLE16(tp[10:12], 3024)
	putLE16(tp[12:14], 2855)
	putLE16(tp[14:16], 140)
	putLE16(tp[16:18], s16(-7))
	putLE16(tp[18:20], 15500)
	putLE16(tp[20:22], s16(-14600))
	putLE16(tp[22:24], 6000)
	h1 = 75
	// H2=366, H3=0, H4=301, H5=50, H6=30 packed per datasheet layout.
	putLE16(h[0:2], 366)
	h[2] = 0
	// h4 = (h[3]<<4)|(h[4]&0xF); choose h4=301 => 0x12D; h[3]=0x12, low nibble of h[4]=0xD
	// h5 = (h[5]<<4)|(h[4]>>4); choose h5=50 => 0x032; h[5]=0x03, high nibble of h[4]=0x2
	h[3] = 0x12
	h[4] = 0x2D // low nibble 0xD (h4 low), high nibble 0x2 (h5 low)
	h[5] = 0x03
	h[6] = 30
	return
}

func putLE16(b []byte, v uint16) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
}

func seedCalibration(f *fakeTransport) {
	tp, h1, h := validCalibBytes()
	for i, b := range tp {
		f.regs[regCalibTPStart+uint8(i)] = b
	}
	f.regs[regCalibH1] = h1
	for i, b := range h {
		f.regs[regCalibHStart+uint8(i)] = b
	}
}

func newReadyDevice(t *testing.T, f *fakeTransport) *Device {
	t.Helper()
	seedCalibration(f)
	d := New()
	cfg := DefaultConfig(f)
	if st := d.Init(cfg); !st.IsOK() {
		t.Fatalf("Init failed: %+v", st)
	}
	return d
}

func TestInitChipIDMismatch(t *testing.T) {
	f := newFakeTransport()
	f.regs[regChipID] = 0x58
	seedCalibration(f)
	d := New()
	st := d.Init(DefaultConfig(f))
	if st.Kind != sensorcore.ChipIDMismatch {
		t.Fatalf("expected ChipIDMismatch, got %+v", st)
	}
}

func TestInitDeviceNotFound(t *testing.T) {
	f := newFakeTransport()
	f.readErr = func(addr uint8, tx, rx []byte) sensorcore.Status {
		return sensorcore.Err(sensorcore.I2CTimeout, 0, "no ack")
	}
	d := New()
	st := d.Init(DefaultConfig(f))
	if st.Kind != sensorcore.DeviceNotFound {
		t.Fatalf("expected DeviceNotFound, got %+v", st)
	}
}

func TestInitInvalidCalibration(t *testing.T) {
	f := newFakeTransport()
	// Leave calibration registers at zero: digT1 == 0 is invalid.
	d := New()
	st := d.Init(DefaultConfig(f))
	if st.Kind != sensorcore.CalibrationInvalid {
		t.Fatalf("expected CalibrationInvalid, got %+v", st)
	}
}

// TestSingleShotLifecycle exercises the single-shot acquisition lifecycle:
// request in FORCED mode, a premature tick that changes nothing, then a tick once the
// device reports "not measuring" with deterministic ADC bytes, checked
// against the vendor-reference compensation sample values (commonly used to
// validate Bosch BMP280/BME280 fixed-point compensation).
func TestSingleShotLifecycle(t *testing.T) {
	f := newFakeTransport()
	d := newReadyDevice(t, f)

	st := d.RequestMeasurement(0)
	if st.Kind != sensorcore.InProgress {
		t.Fatalf("expected InProgress, got %+v", st)
	}
	if !d.m.requested || d.m.ready {
		t.Fatalf("expected requested=true, ready=false immediately after request")
	}

	// Premature tick: status register still shows measuring.
	f.regs[regStatus] = maskStatusMeasuring
	d.Tick(1)
	if d.m.ready {
		t.Fatalf("tick before estimate elapsed must not produce a ready sample")
	}

	// Device finished: clear measuring bit, seed deterministic ADC bytes
	// for adc_T=519888, adc_P=415148.
	f.regs[regStatus] = 0
	seedRawData(f, 519888, 415148, 0)

	d.Tick(d.EstimateMeasurementTimeMs() + 1)
	if !d.m.ready {
		t.Fatalf("expected measurement ready after estimate elapsed")
	}

	m, st := d.GetMeasurement()
	if !st.IsOK() {
		t.Fatalf("GetMeasurement failed: %+v", st)
	}
	if d.m.ready {
		t.Fatalf("GetMeasurement must clear the ready flag")
	}
	if abs32(m.TemperatureC-25.08) > 0.5 {
		t.Errorf("temperature out of tolerance: got %v want ~25.08", m.TemperatureC)
	}
	if abs32(m.PressurePa-100653) > 300 {
		t.Errorf("pressure out of tolerance: got %v want ~100653", m.PressurePa)
	}
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

func seedRawData(f *fakeTransport, adcT, adcP int32, adcH int32) {
	f.regs[regDataStart+0] = byte(adcP >> 12)
	f.regs[regDataStart+1] = byte(adcP >> 4)
	f.regs[regDataStart+2] = byte(adcP << 4)
	f.regs[regDataStart+3] = byte(adcT >> 12)
	f.regs[regDataStart+4] = byte(adcT >> 4)
	f.regs[regDataStart+5] = byte(adcT << 4)
	f.regs[regDataStart+6] = byte(adcH >> 8)
	f.regs[regDataStart+7] = byte(adcH)
}

func TestRequestMeasurementRejectedInSleepMode(t *testing.T) {
	f := newFakeTransport()
	d := newReadyDevice(t, f)
	if st := d.SetMode(ModeSleep); !st.IsOK() {
		t.Fatalf("SetMode(SLEEP) failed: %+v", st)
	}
	st := d.RequestMeasurement(0)
	if st.Kind != sensorcore.InvalidParam {
		t.Fatalf("expected InvalidParam requesting in SLEEP, got %+v", st)
	}
}

func TestCompensationDivisorZero(t *testing.T) {
	cal := Calibration{DigP1: 0} // forces pVar1 == 0
	_, _, st := compensate(RawSample{}, cal)
	if st.Kind != sensorcore.CompensationError {
		t.Fatalf("expected CompensationError, got %+v", st)
	}
}

func TestEstimateMeasurementTimeMs(t *testing.T) {
	got := estimateMeasurementTimeMs(Oversampling1X, Oversampling1X, Oversampling1X)
	// 1250 + 2300 + (2300+575) + (2300+575) + 1000 = 10300us -> 11ms ceil
	want := uint32(11)
	if got != want {
		t.Fatalf("estimateMeasurementTimeMs(1x,1x,1x) = %d, want %d", got, want)
	}
}

func TestRecoverySecondProbeSucceeds(t *testing.T) {
	f := newFakeTransport()
	d := newReadyDevice(t, f)

	attempts := 0
	f.readErr = func(addr uint8, tx, rx []byte) sensorcore.Status {
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
	if mode != ModeForced {
		t.Fatalf("expected mode reset to FORCED (single-shot) after recovery baseline, got %v", mode)
	}
}

func TestRecoveryExhaustsLadder(t *testing.T) {
	f := newFakeTransport()
	d := newReadyDevice(t, f)

	f.readErr = func(addr uint8, tx, rx []byte) sensorcore.Status {
		return sensorcore.Err(sensorcore.I2CTimeout, 0, "bus stuck")
	}
	d.cfg.RecoverUseBusReset = false
	d.cfg.RecoverUseSoftReset = true
	d.cfg.RecoverBackoffMs = 0

	st := d.Recover(100)
	if st.IsOK() {
		t.Fatalf("expected Recover to fail when every probe fails")
	}
	if d.health.ConsecutiveFails == 0 {
		t.Fatalf("expected consecutive failures to have accumulated")
	}
}

func TestOfflineThenRecoveredToReady(t *testing.T) {
	f := newFakeTransport()
	cfg := DefaultConfig(f)
	cfg.OfflineThreshold = 2
	d := New()
	seedCalibration(f)
	if st := d.Init(cfg); !st.IsOK() {
		t.Fatalf("init failed: %+v", st)
	}

	f.readErr = func(addr uint8, tx, rx []byte) sensorcore.Status {
		return sensorcore.Err(sensorcore.I2CTimeout, 0, "bus stuck")
	}
	_, _ = d.ReadChipID()
	_, _ = d.ReadChipID()
	if d.State() != sensorcore.StateOffline {
		t.Fatalf("expected OFFLINE after 2 consecutive failures, got %v", d.State())
	}

	f.readErr = nil
	_, st := d.ReadChipID()
	if !st.IsOK() {
		t.Fatalf("expected success, got %+v", st)
	}
	if d.State() != sensorcore.StateReady {
		t.Fatalf("expected READY after first subsequent success, got %v", d.State())
	}
}
