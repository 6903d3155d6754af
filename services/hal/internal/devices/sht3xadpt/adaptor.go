// services/hal/internal/devices/sht3xadpt/adaptor.go
package sht3xadpt

import (
	"context"
	"time"

	driver "devicecode-go/drivers/sht3x"
	"devicecode-go/drivers/sensorcore"
	"devicecode-go/services/hal/internal/devices/sensorxport"
	"devicecode-go/services/hal/internal/halcore"
	"devicecode-go/services/hal/internal/registry"
	"devicecode-go/services/hal/internal/util"
)

func init() {
	registry.RegisterBuilder("sht3x", sht3xBuilder{})
}

type sht3xBuilder struct{}

func (sht3xBuilder) Build(in registry.BuildInput) (registry.BuildOutput, error) {
	if in.BusRefType != "i2c" || in.BusRefID == "" {
		return registry.BuildOutput{}, util.Errf("missing i2c bus")
	}
	i2c, ok := in.Buses.ByID(in.BusRefID)
	if !ok {
		return registry.BuildOutput{}, util.Errf("unknown bus %q", in.BusRefID)
	}

	// Params: { "addr": 0x44, "periodic": true, "rate_hz": 1 }
	var p struct {
		Addr     int  `json:"addr"`
		Periodic bool `json:"periodic"`
		RateHz   int  `json:"rate_hz"`
	}
	_ = util.DecodeJSON(in.ParamsJSON, &p)

	cfg := driver.DefaultConfig(sensorxport.New(i2c, 0))
	if p.Addr != 0 {
		cfg.Address = uint8(p.Addr)
	}
	cfg.NowMs = nowMsMonotonic
	sampleEvery := 2 * time.Second
	if p.Periodic {
		cfg.Mode = driver.ModePeriodic
		cfg.PeriodicRate = rateFromHz(p.RateHz)
		// Poll at the sensor's own periodic rate; Collect fetches the latest sample.
		switch cfg.PeriodicRate {
		case driver.RateMPS10:
			sampleEvery = 100 * time.Millisecond
		case driver.RateMPS4:
			sampleEvery = 250 * time.Millisecond
		case driver.RateMPS2:
			sampleEvery = 500 * time.Millisecond
		case driver.RateMPS1:
			sampleEvery = time.Second
		}
	}

	dev := driver.New()
	if st := dev.Init(cfg); !st.IsOK() {
		return registry.BuildOutput{}, util.Errf("sht3x init: %s", st.Message)
	}

	ad := &adaptor{id: in.DeviceID, dev: dev}
	return registry.BuildOutput{
		Adaptor:     ad,
		BusID:       in.BusRefID,
		SampleEvery: sampleEvery,
	}, nil
}

func rateFromHz(hz int) driver.PeriodicRate {
	switch {
	case hz >= 10:
		return driver.RateMPS10
	case hz >= 4:
		return driver.RateMPS4
	case hz >= 2:
		return driver.RateMPS2
	case hz >= 1:
		return driver.RateMPS1
	default:
		return driver.RateMPS05
	}
}

var bootMs = time.Now()

func nowMsMonotonic() uint32 { return uint32(time.Since(bootMs).Milliseconds()) }

type adaptor struct {
	id  string
	dev *driver.Device
}

func (a *adaptor) ID() string { return a.id }

func (a *adaptor) Capabilities() []halcore.CapInfo {
	return []halcore.CapInfo{
		{Kind: "temperature", Info: map[string]any{"unit": "C", "precision": 0.01, "schema_version": 1, "driver": "sht3x"}},
		{Kind: "humidity", Info: map[string]any{"unit": "%RH", "precision": 0.01, "schema_version": 1, "driver": "sht3x"}},
	}
}

func (a *adaptor) Trigger(ctx context.Context) (time.Duration, error) {
	now := nowMsMonotonic()
	st := a.dev.RequestMeasurement(now)
	if !st.IsOK() && st.Kind != sensorcore.InProgress {
		return 0, util.Errf("sht3x trigger: %s", st.Message)
	}
	return time.Duration(a.dev.EstimateMeasurementTimeMs()) * time.Millisecond, nil
}

func (a *adaptor) Collect(ctx context.Context) (halcore.Sample, error) {
	now := nowMsMonotonic()
	a.dev.Tick(now)
	if !a.dev.MeasurementReady() {
		return nil, halcore.ErrNotReady
	}
	m, st := a.dev.GetMeasurement()
	if !st.IsOK() {
		if st.Kind == sensorcore.MeasurementNotReady {
			return nil, halcore.ErrNotReady
		}
		return nil, util.Errf("sht3x collect: %s", st.Message)
	}
	ts := time.Now().UnixMilli()
	return halcore.Sample{
		{Kind: "temperature", Payload: map[string]any{"centi_c": int32(m.TemperatureC * 100), "ts_ms": ts}, TsMs: ts},
		{Kind: "humidity", Payload: map[string]any{"centi_percent": int32(m.HumidityPct * 100), "ts_ms": ts}, TsMs: ts},
	}, nil
}

// Control exposes the alert-limit and heater controls the vendor part
// offers beyond plain measurement, addressed by (kind, method):
//   - ("temperature"|"humidity", "set_alert_high"/"set_alert_low") payload: float64
//   - ("heater", "set") payload: bool
func (a *adaptor) Control(kind, method string, payload any) (any, error) {
	switch {
	case kind == "heater" && method == "set":
		enable, _ := payload.(bool)
		if st := a.dev.SetHeater(enable); !st.IsOK() {
			return nil, util.Errf("sht3x set heater: %s", st.Message)
		}
		return nil, nil
	case method == "set_alert_high" || method == "set_alert_low":
		value, ok := payload.(float64)
		if !ok {
			return nil, util.Errf("sht3x alert limit: expected numeric payload")
		}
		return nil, a.setAlertLimit(kind, method, float32(value))
	default:
		return nil, halcore.ErrUnsupported
	}
}

func (a *adaptor) setAlertLimit(kind, method string, value float32) error {
	limit, st := a.dev.ReadAlertLimit(alertKindFor(kind, method))
	if !st.IsOK() {
		return util.Errf("sht3x read alert limit: %s", st.Message)
	}
	tempC, rh := limit.TemperatureC, limit.HumidityPct
	if kind == "temperature" {
		tempC = value
	} else {
		rh = value
	}
	if st := a.dev.WriteAlertLimit(alertKindFor(kind, method), tempC, rh); !st.IsOK() {
		return util.Errf("sht3x write alert limit: %s", st.Message)
	}
	return nil
}

func alertKindFor(kind, method string) driver.AlertLimitKind {
	high := method == "set_alert_high"
	// The vendor's SET/CLEAR pair brackets the alert hysteresis band; this
	// adaptor only exposes the outer SET thresholds to HAL callers.
	_ = kind
	if high {
		return driver.AlertHighSet
	}
	return driver.AlertLowSet
}
