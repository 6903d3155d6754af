package sensorcore

import "testing"

func TestStatusClassification(t *testing.T) {
	cases := []struct {
		code                          Code
		wantOK, wantFailure, wantIn, wantTransport bool
	}{
		{OK, true, false, false, false},
		{InProgress, false, false, false, false},
		{Busy, false, false, false, false},
		{MeasurementNotReady, false, false, false, false},
		{NotInitialized, false, true, true, false},
		{InvalidConfig, false, true, true, false},
		{InvalidParam, false, true, true, false},
		{Unsupported, false, true, true, false},
		{DeviceNotFound, false, true, false, false},
		{ChipIDMismatch, false, true, false, false},
		{CompensationError, false, true, false, false},
		{I2CTimeout, false, true, false, true},
		{I2CNackAddr, false, true, false, true},
		{Timeout, false, true, false, true},
	}
	for _, c := range cases {
		s := Err(c.code, 0, "x")
		if c.code == OK {
			s = Ok()
		}
		if got := s.IsOK(); got != c.wantOK {
			t.Errorf("%v.IsOK() = %v, want %v", c.code, got, c.wantOK)
		}
		if got := s.IsFailure(); got != c.wantFailure {
			t.Errorf("%v.IsFailure() = %v, want %v", c.code, got, c.wantFailure)
		}
		if got := s.IsInputError(); got != c.wantIn {
			t.Errorf("%v.IsInputError() = %v, want %v", c.code, got, c.wantIn)
		}
		if got := s.IsTransportError(); got != c.wantTransport {
			t.Errorf("%v.IsTransportError() = %v, want %v", c.code, got, c.wantTransport)
		}
	}
}

func TestStatusErrorString(t *testing.T) {
	s := Err(I2CTimeout, 5, "bus stuck")
	if s.Error() != "bus stuck" {
		t.Fatalf("expected message text, got %q", s.Error())
	}
	s2 := Err(I2CTimeout, 5, "")
	if s2.Error() != "i2c_timeout" {
		t.Fatalf("expected code name fallback, got %q", s2.Error())
	}
}

func TestCodeStringUnknown(t *testing.T) {
	var c Code = 200
	if c.String() != "unknown" {
		t.Fatalf("expected \"unknown\" for out-of-range code, got %q", c.String())
	}
}
