// services/hal/internal/devices/bme280adpt/adaptor.go
package bme280adpt

import (
	"context"
	"time"

	driver "devicecode-go/drivers/bme280"
	"devicecode-go/drivers/sensorcore"
	"devicecode-go/services/hal/internal/devices/sensorxport"
	"devicecode-go/services/hal/internal/halcore"
	"devicecode-go/services/hal/internal/registry"
	"devicecode-go/services/hal/internal/util"
)

func init() {
	registry.RegisterBuilder("bme280", bme280Builder{})
}

type bme280Builder struct{}

func (bme280Builder) Build(in registry.BuildInput) (registry.BuildOutput, error) {
	if in.BusRefType != "i2c" || in.BusRefID == "" {
		return registry.BuildOutput{}, util.Errf("missing i2c bus")
	}
	i2c, ok := in.Buses.ByID(in.BusRefID)
	if !ok {
		return registry.BuildOutput{}, util.Errf("unknown bus %q", in.BusRefID)
	}

	// Params: { "addr": 0x76 }
	var p struct {
		Addr int `json:"addr"`
	}
	_ = util.DecodeJSON(in.ParamsJSON, &p)

	cfg := driver.DefaultConfig(sensorxport.New(i2c, 0))
	if p.Addr != 0 {
		cfg.Address = uint8(p.Addr)
	}
	cfg.NowMs = nowMsMonotonic

	dev := driver.New()
	if st := dev.Init(cfg); !st.IsOK() {
		return registry.BuildOutput{}, util.Errf("bme280 init: %s", st.Message)
	}

	ad := &adaptor{id: in.DeviceID, dev: dev}
	return registry.BuildOutput{
		Adaptor:     ad,
		BusID:       in.BusRefID,
		SampleEvery: 2 * time.Second,
	}, nil
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
		{Kind: "temperature", Info: map[string]any{"unit": "C", "precision": 0.01, "schema_version": 1, "driver": "bme280"}},
		{Kind: "humidity", Info: map[string]any{"unit": "%RH", "precision": 0.01, "schema_version": 1, "driver": "bme280"}},
		{Kind: "pressure", Info: map[string]any{"unit": "Pa", "precision": 1, "schema_version": 1, "driver": "bme280"}},
	}
}

func (a *adaptor) Trigger(ctx context.Context) (time.Duration, error) {
	now := nowMsMonotonic()
	st := a.dev.RequestMeasurement(now)
	if !st.IsOK() && st.Kind != sensorcore.InProgress {
		return 0, util.Errf("bme280 trigger: %s", st.Message)
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
		return nil, util.Errf("bme280 collect: %s", st.Message)
	}
	ts := time.Now().UnixMilli()
	return halcore.Sample{
		{Kind: "temperature", Payload: map[string]any{"centi_c": int32(m.TemperatureC * 100), "ts_ms": ts}, TsMs: ts},
		{Kind: "humidity", Payload: map[string]any{"centi_percent": int32(m.HumidityPct * 100), "ts_ms": ts}, TsMs: ts},
		{Kind: "pressure", Payload: map[string]any{"pascal": int32(m.PressurePa), "ts_ms": ts}, TsMs: ts},
	}, nil
}

func (a *adaptor) Control(kind, method string, payload any) (any, error) {
	return nil, halcore.ErrUnsupported
}
