// Package sensorcore holds the pieces shared by the two environmental I2C
// drivers (drivers/bme280 and drivers/sht3x): the status/error taxonomy, the
// transport contract, the health monitor, and wraparound-safe time helpers.
//
// It deliberately has no device-specific knowledge and no common "device"
// base type: each driver embeds sensorcore types and shares the contracts
// (Status, Transport, HealthCounters) rather than inheriting behaviour.
package sensorcore

// Code is the flat, closed set of outcome kinds every driver operation can
// return. It is part of the external contract: callers switch on Code, not
// on error text.
type Code uint8

const (
	OK Code = iota

	// Flow signals: non-error, non-success.
	InProgress
	Busy
	MeasurementNotReady

	// Input errors: never counted against health, never retried.
	NotInitialized
	InvalidConfig
	InvalidParam
	Unsupported

	// Device-not-found diagnosis.
	DeviceNotFound

	// Protocol errors.
	ChipIDMismatch
	CalibrationInvalid
	CompensationError
	CRCMismatch
	CommandFailed
	WriteCRCError

	// Transport-granular errors.
	I2CError
	I2CNackAddr
	I2CNackData
	I2CNackRead
	I2CTimeout
	I2CBus
	Timeout
)

var codeNames = map[Code]string{
	OK:                  "ok",
	InProgress:          "in_progress",
	Busy:                "busy",
	MeasurementNotReady: "measurement_not_ready",
	NotInitialized:      "not_initialized",
	InvalidConfig:       "invalid_config",
	InvalidParam:        "invalid_param",
	Unsupported:         "unsupported",
	DeviceNotFound:      "device_not_found",
	ChipIDMismatch:      "chip_id_mismatch",
	CalibrationInvalid:  "calibration_invalid",
	CompensationError:   "compensation_error",
	CRCMismatch:         "crc_mismatch",
	CommandFailed:       "command_failed",
	WriteCRCError:       "write_crc_error",
	I2CError:            "i2c_error",
	I2CNackAddr:         "i2c_nack_addr",
	I2CNackData:         "i2c_nack_data",
	I2CNackRead:         "i2c_nack_read",
	I2CTimeout:          "i2c_timeout",
	I2CBus:              "i2c_bus",
	Timeout:             "timeout",
}

func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return "unknown"
}

// Status is the value returned by every fallible driver operation: a code,
// a signed transport-specific detail, and a static diagnostic string. It is
// a plain value type (no heap allocation, no wrapped error chain) so the
// driver core never allocates on its hot path.
type Status struct {
	Kind    Code
	Detail  int32
	Message string
}

// Ok constructs a successful Status.
func Ok() Status { return Status{Kind: OK} }

// Err constructs a failing/flow-signal Status with a static message.
func Err(kind Code, detail int32, message string) Status {
	return Status{Kind: kind, Detail: detail, Message: message}
}

// IsOK reports whether the status represents success.
func (s Status) IsOK() bool { return s.Kind == OK }

// IsFailure reports whether the status is a true failure (not a flow
// signal and not success).
func (s Status) IsFailure() bool {
	switch s.Kind {
	case OK, InProgress, Busy, MeasurementNotReady:
		return false
	default:
		return true
	}
}

// IsInputError reports whether kind belongs to the "input errors" policy
// group: never counted against health, never retried.
func (s Status) IsInputError() bool {
	switch s.Kind {
	case InvalidConfig, InvalidParam, NotInitialized, Unsupported:
		return true
	default:
		return false
	}
}

// IsTransportError reports whether kind belongs to the transport-granular
// error family.
func (s Status) IsTransportError() bool {
	switch s.Kind {
	case I2CError, I2CNackAddr, I2CNackData, I2CNackRead, I2CTimeout, I2CBus, Timeout:
		return true
	default:
		return false
	}
}

func (s Status) Error() string {
	if s.Message != "" {
		return s.Message
	}
	return s.Kind.String()
}
