package bme280

import "devicecode-go/drivers/sensorcore"

// RawSample holds the unconverted 20-bit (T, P) / 16-bit (H) ADC values.
type RawSample struct {
	AdcT int32
	AdcP int32
	AdcH int32
}

// CompensatedSample is the fixed-point compensation result: tempC*100,
// pressure in Pa, humidity*1024 (Q22.10).
type CompensatedSample struct {
	TempCx100        int32
	PressurePa       uint32
	HumidityPctx1024 uint32
}

// Measurement is the float-converted compensation result.
type Measurement struct {
	TemperatureC float32
	PressurePa   float32
	HumidityPct  float32
}

func unpackRawSample(data [dataLen]byte) RawSample {
	return RawSample{
		AdcP: int32(data[0])<<12 | int32(data[1])<<4 | int32(data[2])>>4,
		AdcT: int32(data[3])<<12 | int32(data[4])<<4 | int32(data[5])>>4,
		AdcH: int32(data[6])<<8 | int32(data[7]),
	}
}

// compensate reproduces the vendor's fixed-point compensation arithmetic
// verbatim, including its i32/i64 intermediate widths. Floating-point
// reformulation is forbidden: the fixed-point outputs are part of the
// external contract.
func compensate(raw RawSample, cal Calibration) (CompensatedSample, int32, sensorcore.Status) {
	adcT, adcP, adcH := raw.AdcT, raw.AdcP, raw.AdcH

	var1 := (((adcT >> 3) - (int32(cal.DigT1) << 1)) * int32(cal.DigT2)) >> 11
	var2 := ((((adcT>>4 - int32(cal.DigT1)) * (adcT>>4 - int32(cal.DigT1))) >> 12) * int32(cal.DigT3)) >> 14

	tFine := var1 + var2
	tempCx100 := (tFine*5 + 128) >> 8

	pVar1 := int64(tFine) - 128000
	pVar2 := pVar1 * pVar1 * int64(cal.DigP6)
	pVar2 += (pVar1 * int64(cal.DigP5)) << 17
	pVar2 += int64(cal.DigP4) << 35
	pVar1 = ((pVar1 * pVar1 * int64(cal.DigP3)) >> 8) + ((pVar1 * int64(cal.DigP2)) << 12)
	pVar1 = ((int64(1)<<47 + pVar1) * int64(cal.DigP1)) >> 33
	if pVar1 == 0 {
		return CompensatedSample{}, tFine, sensorcore.Err(sensorcore.CompensationError, 0, "pressure div by zero")
	}

	p := int64(1048576) - int64(adcP)
	p = ((p<<31 - pVar2) * 3125) / pVar1
	pVar1 = (int64(cal.DigP9) * (p >> 13) * (p >> 13)) >> 25
	pVar2 = (int64(cal.DigP8) * p) >> 19
	p = ((p + pVar1 + pVar2) >> 8) + (int64(cal.DigP7) << 4)
	pressurePa := uint32(p >> 8)

	h := tFine - 76800
	h = (((((adcH<<14)-(int32(cal.DigH4)<<20)-(int32(cal.DigH5)*h))+16384)>>15)*
		(((((((h*int32(cal.DigH6))>>10)*(((h*int32(cal.DigH3))>>11)+32768))>>10)+
			2097152)*int32(cal.DigH2) + 8192) >> 14))
	h = h - (((h>>15)*(h>>15)>>7)*int32(cal.DigH1))>>4
	if h < 0 {
		h = 0
	}
	if h > 419430400 {
		h = 419430400
	}
	humidityPctx1024 := uint32(h >> 12)

	return CompensatedSample{
		TempCx100:        tempCx100,
		PressurePa:       pressurePa,
		HumidityPctx1024: humidityPctx1024,
	}, tFine, sensorcore.Ok()
}

func (c CompensatedSample) toMeasurement() Measurement {
	return Measurement{
		TemperatureC: float32(c.TempCx100) / 100.0,
		PressurePa:   float32(c.PressurePa),
		HumidityPct:  float32(c.HumidityPctx1024) / 1024.0,
	}
}

// estimateMeasurementTimeMs reproduces the vendor timing formula: 1.25ms base +
// 2.3ms per T oversampling step + 2.3ms+0.575ms per active P/H channel +
// 1ms margin, rounded up to whole milliseconds.
func estimateMeasurementTimeMs(osrsT, osrsP, osrsH Oversampling) uint32 {
	tMul := osrsT.multiplier()
	pMul := osrsP.multiplier()
	hMul := osrsH.multiplier()

	timeUs := uint32(1250)
	if tMul > 0 {
		timeUs += 2300 * tMul
	}
	if pMul > 0 {
		timeUs += 2300*pMul + 575
	}
	if hMul > 0 {
		timeUs += 2300*hMul + 575
	}
	timeUs += measurementMarginUs

	return (timeUs + 999) / 1000
}
