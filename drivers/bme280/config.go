package bme280

import "devicecode-go/drivers/sensorcore"

// Config mirrors BME280/Config.h: injected transport, device address,
// timeout, measurement settings, and recovery policy.
type Config struct {
	Transport sensorcore.Transport

	// Address is the 7-bit I2C address; only 0x76 or 0x77 are accepted.
	Address uint8

	// TimeoutMs bounds every single transport call; must be > 0.
	TimeoutMs uint32

	// CommandDelayMs is accepted for configuration parity with drivers/sht3x;
	// this driver does not read it and inserts no spacing between transport
	// calls.
	CommandDelayMs uint32

	// NowMs is consulted only by synchronous internal waits (soft-reset
	// register polling); Tick's scheduling never calls it. Defaults to a
	// zero clock if nil, which degrades soft-reset's bounded wait to a
	// single immediate check.
	NowMs func() uint32

	OsrsT   Oversampling
	OsrsP   Oversampling
	OsrsH   Oversampling
	Filter  Filter
	Standby Standby
	Mode    Mode

	// OfflineThreshold is the consecutive-failure count before OFFLINE;
	// floor 1.
	OfflineThreshold uint8

	// Recovery ladder policy.
	BusReset              sensorcore.BusResetFunc
	HardReset             sensorcore.HardResetFunc
	RecoverBackoffMs      uint32
	RecoverUseBusReset    bool
	RecoverUseSoftReset   bool
	RecoverUseHardReset   bool
	AllowGeneralCallReset bool
}

// DefaultConfig returns the vendor reference defaults: address 0x76,
// 50ms timeout, all channels at 1x oversampling, filter off, 125ms
// standby, FORCED mode, offline threshold 5.
func DefaultConfig(transport sensorcore.Transport) Config {
	return Config{
		Transport:        transport,
		Address:          0x76,
		TimeoutMs:        50,
		CommandDelayMs:   1,
		OsrsT:            Oversampling1X,
		OsrsP:            Oversampling1X,
		OsrsH:            Oversampling1X,
		Filter:           FilterOff,
		Standby:          Standby125ms,
		Mode:             ModeForced,
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
	if c.Address != 0x76 && c.Address != 0x77 {
		return sensorcore.Err(sensorcore.InvalidConfig, 0, "invalid I2C address")
	}
	if !c.OsrsT.valid() || !c.OsrsP.valid() || !c.OsrsH.valid() ||
		!c.Filter.valid() || !c.Standby.valid() || !c.Mode.valid() {
		return sensorcore.Err(sensorcore.InvalidConfig, 0, "invalid configuration value")
	}
	return sensorcore.Ok()
}
