package sht3x

// CachedSettings is the RAM-only record of acquisition configuration and
// successfully-written alert/heater state, replayed by ResetAndRestore
// after a soft reset wipes the sensor's own registers. Unlike
// SettingsSnapshot, this is never built from a live read; every field is
// updated only when the corresponding write has already returned Ok.
type CachedSettings struct {
	Mode            Mode
	Repeatability   Repeatability
	PeriodicRate    PeriodicRate
	ClockStretching ClockStretching
	HeaterEnabled   bool
	AlertValid      [4]bool
	AlertRaw        [4]uint16
}

// syncCacheFromConfig mirrors the driver's current mode/repeatability/rate/
// clock-stretching into the restore cache. Called after every successful
// change to those settings; alert limits and the heater flag are cached
// individually at their own write sites.
func (d *Device) syncCacheFromConfig() {
	d.cachedSettings.Mode = d.mode
	d.cachedSettings.Repeatability = d.cfg.Repeatability
	d.cachedSettings.PeriodicRate = d.cfg.PeriodicRate
	d.cachedSettings.ClockStretching = d.cfg.ClockStretching
	d.hasCachedSettings = true
}

// CachedSettings returns the current restore-after-reset cache.
func (d *Device) CachedSettings() CachedSettings { return d.cachedSettings }

// HasCachedSettings reports whether the cache has been populated (true
// after the first successful Init).
func (d *Device) HasCachedSettings() bool { return d.hasCachedSettings }
