// Package sensorxport bridges the drivers/sensorcore.Transport contract
// consumed by the bme280/sht3x drivers onto the halcore.I2C bus abstraction
// used everywhere else in this service, so both drivers plug into the HAL
// the same way aht20 and ltc4015 do.
package sensorxport

import (
	"devicecode-go/drivers/sensorcore"
	"devicecode-go/services/hal/internal/halcore"
)

// I2C adapts a halcore.I2C bus to sensorcore.Transport. Both sensor drivers
// only ever issue a write, or a write-then-read on the same transaction, so
// a single Tx call covers both Write and ReadAfterCommand.
type I2C struct {
	bus  halcore.I2C
	caps sensorcore.Caps
}

// New wraps bus. caps declares which failure kinds the underlying transport
// can distinguish; Tx on most tinygo I2C backends reports a flat error, so
// callers typically pass 0 (no extra capability) unless the platform's I2C
// implementation is known to separate NACK-on-read from other failures.
func New(bus halcore.I2C, caps sensorcore.Caps) I2C {
	return I2C{bus: bus, caps: caps}
}

func (t I2C) Capabilities() sensorcore.Caps { return t.caps }

func (t I2C) Write(addr uint8, buf []byte, timeoutMs uint32) sensorcore.Status {
	if err := t.bus.Tx(uint16(addr), buf, nil); err != nil {
		return sensorcore.Err(sensorcore.I2CError, 0, err.Error())
	}
	return sensorcore.Ok()
}

func (t I2C) ReadAfterCommand(addr uint8, tx, rx []byte, timeoutMs uint32) sensorcore.Status {
	if err := t.bus.Tx(uint16(addr), tx, rx); err != nil {
		return sensorcore.Err(sensorcore.I2CError, 0, err.Error())
	}
	return sensorcore.Ok()
}
