package bme280

// Register addresses and bit definitions, ported byte-for-byte from the
// vendor command table.
const (
	regChipID = 0xD0
	chipID    = 0x60

	regReset   = 0xE0
	resetValue = 0xB6

	regCtrlHum  = 0xF2
	regStatus   = 0xF3
	regCtrlMeas = 0xF4
	regConfig   = 0xF5

	regDataStart = 0xF7
	dataLen      = 8

	regCalibTPStart = 0x88
	calibTPLen      = 26
	regCalibH1      = 0xA1
	regCalibHStart  = 0xE1
	calibHLen       = 7

	maskStatusMeasuring = 0x08
	maskStatusIMUpdate  = 0x01

	bitCtrlHumOsrsH = 0

	bitCtrlMeasOsrsT = 5
	bitCtrlMeasOsrsP = 2
	bitCtrlMeasMode  = 0

	bitConfigTSB    = 5
	bitConfigFilter = 2

	maxWriteLen        = 16
	resetTimeoutMs     = 10
	measurementMarginUs = 1000
)

// Oversampling selects the number of raw samples the device averages
// internally per reported value.
type Oversampling uint8

const (
	OversamplingSkip Oversampling = 0
	Oversampling1X   Oversampling = 1
	Oversampling2X   Oversampling = 2
	Oversampling4X   Oversampling = 3
	Oversampling8X   Oversampling = 4
	Oversampling16X  Oversampling = 5
)

func (o Oversampling) reg() uint8 { return uint8(o) & 0x07 }

func (o Oversampling) valid() bool { return o.reg() <= 5 }

func (o Oversampling) multiplier() uint32 {
	switch o {
	case OversamplingSkip:
		return 0
	case Oversampling1X:
		return 1
	case Oversampling2X:
		return 2
	case Oversampling4X:
		return 4
	case Oversampling8X:
		return 8
	case Oversampling16X:
		return 16
	default:
		return 0
	}
}

// Mode is the device operating mode.
type Mode uint8

const (
	ModeSleep  Mode = 0
	ModeForced Mode = 1
	ModeNormal Mode = 3
)

func (m Mode) reg() uint8 { return uint8(m) & 0x03 }

func (m Mode) valid() bool {
	return m == ModeSleep || m == ModeForced || m == ModeNormal
}

// Filter is the IIR filter coefficient.
type Filter uint8

const (
	FilterOff Filter = 0
	Filter2   Filter = 1
	Filter4   Filter = 2
	Filter8   Filter = 3
	Filter16  Filter = 4
)

func (f Filter) reg() uint8 { return uint8(f) & 0x07 }

func (f Filter) valid() bool { return f.reg() <= 4 }

// Standby is the inactive duration between measurements in NORMAL mode.
type Standby uint8

const (
	Standby0_5ms Standby = 0
	Standby62_5ms Standby = 1
	Standby125ms Standby = 2
	Standby250ms Standby = 3
	Standby500ms Standby = 4
	Standby1000ms Standby = 5
	Standby10ms  Standby = 6
	Standby20ms  Standby = 7
)

func (s Standby) reg() uint8 { return uint8(s) & 0x07 }

func (s Standby) valid() bool { return s.reg() <= 7 }

func buildCtrlHum(osrsH Oversampling) uint8 {
	return osrsH.reg() << bitCtrlHumOsrsH
}

func buildCtrlMeas(osrsT, osrsP Oversampling, mode Mode) uint8 {
	return (osrsT.reg() << bitCtrlMeasOsrsT) |
		(osrsP.reg() << bitCtrlMeasOsrsP) |
		(mode.reg() << bitCtrlMeasMode)
}

func buildConfig(standby Standby, filter Filter) uint8 {
	return (standby.reg() << bitConfigTSB) | (filter.reg() << bitConfigFilter)
}

func signExtend12(v int16) int16 {
	if v&0x0800 != 0 {
		v |= ^int16(0x0FFF)
	}
	return v
}
