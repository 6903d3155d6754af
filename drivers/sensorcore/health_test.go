package sensorcore

import "testing"

func TestHealthUpdateSuccessClearsFailures(t *testing.T) {
	var h HealthCounters
	h.Reset(3)

	h.Update(10, Err(I2CTimeout, 0, "nack"))
	h.Update(11, Err(I2CTimeout, 0, "nack"))
	if h.ConsecutiveFails != 2 || h.State != StateDegraded {
		t.Fatalf("expected 2 consecutive fails / DEGRADED, got %d / %v", h.ConsecutiveFails, h.State)
	}

	h.Update(12, Ok())
	if h.ConsecutiveFails != 0 {
		t.Fatalf("expected consecutive fails reset to 0 after success, got %d", h.ConsecutiveFails)
	}
	if h.State != StateReady {
		t.Fatalf("expected READY after success, got %v", h.State)
	}
	if h.LastOkMs != 12 {
		t.Fatalf("expected LastOkMs = 12, got %d", h.LastOkMs)
	}
	if h.TotalSuccess != 1 || h.TotalFailures != 2 {
		t.Fatalf("expected 1 success / 2 failures, got %d / %d", h.TotalSuccess, h.TotalFailures)
	}
}

func TestHealthOfflineThreshold(t *testing.T) {
	var h HealthCounters
	h.Reset(2)

	h.Update(1, Err(I2CTimeout, 0, "nack"))
	if h.State != StateDegraded {
		t.Fatalf("expected DEGRADED after 1 failure with threshold 2, got %v", h.State)
	}
	h.Update(2, Err(I2CTimeout, 0, "nack"))
	if h.State != StateOffline {
		t.Fatalf("expected OFFLINE after 2 failures with threshold 2, got %v", h.State)
	}
}

func TestHealthResetFloorsThresholdToOne(t *testing.T) {
	var h HealthCounters
	h.Reset(0)
	if h.OfflineThresh != 1 {
		t.Fatalf("expected OfflineThresh floored to 1, got %d", h.OfflineThresh)
	}
	h.Update(1, Err(I2CTimeout, 0, "nack"))
	if h.State != StateOffline {
		t.Fatalf("expected immediate OFFLINE with threshold 1, got %v", h.State)
	}
}

func TestHealthSaturatingCounters(t *testing.T) {
	var h HealthCounters
	h.Reset(255)
	h.ConsecutiveFails = 254
	h.Update(1, Err(I2CTimeout, 0, "nack"))
	h.Update(2, Err(I2CTimeout, 0, "nack"))
	if h.ConsecutiveFails != 255 {
		t.Fatalf("expected ConsecutiveFails to saturate at 255, got %d", h.ConsecutiveFails)
	}
}

func TestIsOnline(t *testing.T) {
	var h HealthCounters
	h.Reset(1)
	if h.IsOnline() {
		t.Fatalf("UNINIT should not be online")
	}
	h.State = StateReady
	if !h.IsOnline() {
		t.Fatalf("READY should be online")
	}
	h.State = StateDegraded
	if !h.IsOnline() {
		t.Fatalf("DEGRADED should be online")
	}
	h.State = StateOffline
	if h.IsOnline() {
		t.Fatalf("OFFLINE should not be online")
	}
}

func TestRecordBusActivityDoesNotAffectFailureState(t *testing.T) {
	var h HealthCounters
	h.Reset(3)
	h.RecordBusActivity(5)
	if h.LastBusActivityMs != 5 {
		t.Fatalf("expected LastBusActivityMs = 5, got %d", h.LastBusActivityMs)
	}
	if h.ConsecutiveFails != 0 || h.State != StateUninit {
		t.Fatalf("RecordBusActivity must not touch failure counters or state")
	}
}
