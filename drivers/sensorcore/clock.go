package sensorcore

// MaxSpinIters bounds the spinning waits used for command spacing and
// post-reset delays: a watchdog against a time source that never advances.
const MaxSpinIters = 500_000

// Reached reports whether now has reached or passed target, using
// wraparound-safe signed-difference comparison: "(now - target) as signed
// >= 0". This holds correctly across a uint32 millisecond counter wrap.
func Reached(now, target uint32) bool {
	return int32(now-target) >= 0
}

// Elapsed returns now - since using wraparound-safe unsigned subtraction.
// The result is only meaningful when since predates now by less than 2^31ms.
func Elapsed(now, since uint32) uint32 {
	return now - since
}

// SpinWait blocks the caller (by repeatedly invoking nowMs) until Reached
// reports the deadline has passed, or until the hard timeout elapses, or
// until MaxSpinIters iterations have been observed without nowMs changing
// from its last sampled value (a stalled clock). It returns Ok() on a
// normal wake-up and a TIMEOUT Status otherwise.
//
// nowMs must be non-blocking and side-effect free; SpinWait never sleeps
// itself beyond repeatedly polling the clock.
func SpinWait(nowMs func() uint32, deadlineMs uint32, hardTimeoutMs uint32) Status {
	start := nowMs()
	hardDeadline := start + hardTimeoutMs

	last := start
	stableLoops := 0
	for {
		now := nowMs()
		if Reached(now, deadlineMs) {
			return Ok()
		}
		if Reached(now, hardDeadline) {
			return Err(Timeout, 0, "spin wait hard timeout")
		}
		if now == last {
			stableLoops++
			if stableLoops >= MaxSpinIters {
				return Err(Timeout, 0, "spin wait: clock not advancing")
			}
		} else {
			stableLoops = 0
			last = now
		}
	}
}
