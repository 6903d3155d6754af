package sensorcore

import "math"

// DriverState is the coarse health state, mutated by the health monitor
// only.
type DriverState uint8

const (
	StateUninit DriverState = iota
	StateReady
	StateDegraded
	StateOffline
)

func (s DriverState) String() string {
	switch s {
	case StateUninit:
		return "uninit"
	case StateReady:
		return "ready"
	case StateDegraded:
		return "degraded"
	case StateOffline:
		return "offline"
	default:
		return "unknown"
	}
}

// HealthCounters tracks operational statistics for the lifetime of a driver
// instance. It is reset on init.
type HealthCounters struct {
	LastOkMs          uint32
	LastErrorMs       uint32
	LastBusActivityMs uint32
	LastError         Status
	ConsecutiveFails  uint8
	TotalFailures     uint32
	TotalSuccess      uint32

	State           DriverState
	OfflineThresh   uint8
}

// Reset returns the counters to their post-init baseline, using the given
// offline threshold (floor 1).
func (h *HealthCounters) Reset(offlineThreshold uint8) {
	if offlineThreshold < 1 {
		offlineThreshold = 1
	}
	*h = HealthCounters{State: StateUninit, OfflineThresh: offlineThreshold}
}

// Update is the single funnel every tracked transport call passes through.
// It classifies st into success/failure, updates counters, and transitions
// DriverState accordingly. It must only be invoked from the tracked
// transport wrappers, never from probe() or raw I2C helpers.
//
// Two outcomes bypass this function entirely and must be filtered by the
// caller before invoking Update: INVALID_CONFIG/INVALID_PARAM (programmer
// errors, propagated untouched) and a read-header NACK reinterpreted as
// MEASUREMENT_NOT_READY (recorded instead via RecordBusActivity).
func (h *HealthCounters) Update(now uint32, st Status) Status {
	if st.IsOK() {
		h.LastOkMs = now
		h.TotalSuccess = saturateAddU32(h.TotalSuccess, 1)
		h.ConsecutiveFails = 0
		h.State = StateReady
		return st
	}

	h.LastError = st
	h.LastErrorMs = now
	h.TotalFailures = saturateAddU32(h.TotalFailures, 1)
	h.ConsecutiveFails = saturateAddU8(h.ConsecutiveFails, 1)

	if h.ConsecutiveFails >= h.OfflineThresh {
		h.State = StateOffline
	} else {
		h.State = StateDegraded
	}
	return st
}

// RecordBusActivity records a weaker-than-success signal: the bus
// responded (e.g. a not-ready NACK) but no sample was produced. It does not
// touch the failure counters or DriverState.
func (h *HealthCounters) RecordBusActivity(now uint32) {
	h.LastBusActivityMs = now
}

// IsOnline reports whether the driver is usable (READY or DEGRADED).
func (h *HealthCounters) IsOnline() bool {
	return h.State == StateReady || h.State == StateDegraded
}

func saturateAddU32(v uint32, delta uint32) uint32 {
	if uint64(v)+uint64(delta) > math.MaxUint32 {
		return math.MaxUint32
	}
	return v + delta
}

func saturateAddU8(v uint8, delta uint8) uint8 {
	if uint16(v)+uint16(delta) > math.MaxUint8 {
		return math.MaxUint8
	}
	return v + delta
}
