package sensorcore

// Caps is a bitmask declaring which failure kinds a transport can reliably
// distinguish. Drivers trust this mask instead of probing transport
// behaviour themselves.
type Caps uint8

const (
	// CapReadHeaderNACK declares the transport can separate "no ACK to the
	// read header" from a generic read failure. This is the signal the
	// humidity driver uses to detect "sample not ready yet" in periodic
	// mode without counting it against health.
	CapReadHeaderNACK Caps = 1 << iota
	// CapTimeout declares the transport can distinguish a timeout from a
	// generic bus error.
	CapTimeout
	// CapBusError declares the transport can distinguish a bus-level error
	// (arbitration loss, stuck SCL) from a NACK.
	CapBusError
)

// Has reports whether all bits of want are set in c.
func (c Caps) Has(want Caps) bool { return c&want == want }

// Transport is the pair of injected I2C operations every driver consumes.
// Implementations must return one of the I2C_* Codes on failure; unspecified
// errors map to I2CError.
type Transport interface {
	// Write sends buf to addr. timeoutMs bounds the call.
	Write(addr uint8, buf []byte, timeoutMs uint32) Status

	// ReadAfterCommand reads len(rx) bytes from addr, optionally preceded by
	// a write of tx (repeated-start) when len(tx) > 0. Transports that
	// disallow combined write+read (the humidity variant) must return
	// InvalidParam when len(tx) > 0.
	ReadAfterCommand(addr uint8, tx, rx []byte, timeoutMs uint32) Status

	// Capabilities reports the capability bitmask declared by this
	// transport instance.
	Capabilities() Caps
}

// BusResetFunc performs a clock-pulse sequence to free a stuck peripheral.
type BusResetFunc func() Status

// HardResetFunc asserts a hardware reset line.
type HardResetFunc func() Status
