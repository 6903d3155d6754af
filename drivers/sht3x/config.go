package sht3x

import "devicecode-go/drivers/sensorcore"

// Config mirrors SHT3x/Config.h plus the recovery-ladder and periodic-fetch
// options carried in the vendor .cpp but only declared as struct fields
// there (this port makes them first-class).
type Config struct {
	Transport sensorcore.Transport

	// Address is the 7-bit I2C address; only 0x44 or 0x45 are accepted.
	Address uint8

	// TimeoutMs bounds every single transport call; must be > 0.
	TimeoutMs uint32

	Repeatability   Repeatability
	ClockStretching ClockStretching
	PeriodicRate    PeriodicRate
	Mode            Mode

	// LowVdd selects the slower low-supply-voltage timing budget for
	// EstimateMeasurementTimeMs.
	LowVdd bool

	// CommandDelayMs is the minimum spacing between commands (tIDLE);
	// floor 1ms.
	CommandDelayMs uint32

	// NowMs is consulted only by synchronous internal waits (command
	// spacing, reset/break delays); Tick's scheduling never calls it.
	NowMs func() uint32

	// OfflineThreshold is the consecutive-failure count before OFFLINE;
	// floor 1.
	OfflineThreshold uint8

	// NotReadyTimeoutMs bounds how long a periodic fetch may keep treating
	// a read-header NACK as MEASUREMENT_NOT_READY before escalating to a
	// tracked failure; 0 disables the escalation.
	NotReadyTimeoutMs uint32

	// Recovery ladder policy.
	BusReset              sensorcore.BusResetFunc
	HardReset             sensorcore.HardResetFunc
	RecoverBackoffMs      uint32
	RecoverUseBusReset    bool
	RecoverUseSoftReset   bool
	RecoverUseHardReset   bool
	AllowGeneralCallReset bool
}

// DefaultConfig returns the vendor reference defaults: address 0x44, 50ms
// timeout, high repeatability, clock stretching disabled, 1Hz periodic
// rate, single-shot mode, offline threshold 5.
func DefaultConfig(transport sensorcore.Transport) Config {
	return Config{
		Transport:        transport,
		Address:          i2cAddrLow,
		TimeoutMs:        50,
		Repeatability:    RepeatabilityHigh,
		ClockStretching:  StretchDisabled,
		PeriodicRate:     RateMPS1,
		Mode:             ModeSingleShot,
		CommandDelayMs:   1,
		OfflineThreshold: 5,
	}
}

func (c Config) validate() sensorcore.Status {
	if c.Transport == nil {
		return sensorcore.Err(sensorcore.InvalidConfig, 0, "transport not set")
	}
	if c.TimeoutMs == 0 {
		return sensorcore.Err(sensorcore.InvalidConfig, 0, "I2C timeout must be > 0")
	}
	if c.Address != i2cAddrLow && c.Address != i2cAddrHigh {
		return sensorcore.Err(sensorcore.InvalidConfig, 0, "invalid I2C address")
	}
	if !c.Repeatability.valid() || !c.ClockStretching.valid() ||
		!c.PeriodicRate.valid() || !c.Mode.valid() {
		return sensorcore.Err(sensorcore.InvalidConfig, 0, "invalid configuration value")
	}
	return sensorcore.Ok()
}

// periodicFetchMarginMs returns the extra slack added to the first fetch
// target after periodic start and when scheduling the next periodic fetch
// attempt after a not-ready response, following the
// "poll a little faster than the nominal period" convention used by the
// pack's periodic-worker adaptors: at least 2ms, or period/20, whichever is
// larger.
func periodicFetchMarginMs(periodMs uint32) uint32 {
	margin := periodMs / 20
	if margin < 2 {
		margin = 2
	}
	return margin
}
