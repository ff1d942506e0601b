package logic

import "time"

// DebounceWindow is how long the raw request line must hold a new value
// before it is accepted.
const DebounceWindow = 20 * time.Millisecond

// RequestDetector debounces the raw request line and recognises the
// override gesture: a confirmed release followed by a confirmed re-press
// within the override window.
type RequestDetector struct {
	overrideWindow time.Duration

	rawPrev    bool
	pending    bool // a raw change is waiting for confirmation
	lastChange time.Time
	stable     bool

	released        bool
	lastRelease     time.Time
	overridePending bool
}

// NewRequestDetector creates a detector whose stable value starts at
// initialRaw. No edges are reported for the initial value.
func NewRequestDetector(initialRaw bool, overrideWindow time.Duration) *RequestDetector {
	return &RequestDetector{
		overrideWindow: overrideWindow,
		rawPrev:        initialRaw,
		stable:         initialRaw,
	}
}

// Sample takes a raw reading and returns the debounced request and the
// override-pending flag.
func (d *RequestDetector) Sample(raw bool, now time.Time) (bool, bool) {
	if raw != d.rawPrev {
		// Restart the confirmation window on every raw change
		d.rawPrev = raw
		d.lastChange = now
		d.pending = true
		return d.stable, d.overridePending
	}

	if d.pending && now.Sub(d.lastChange) > DebounceWindow {
		d.pending = false
		if raw != d.stable {
			d.commit(raw, now)
		}
	}

	return d.stable, d.overridePending
}

func (d *RequestDetector) commit(value bool, now time.Time) {
	d.stable = value
	if !value {
		d.released = true
		d.lastRelease = now
		return
	}
	// lastRelease is kept so a later identical gesture can re-arm the flag
	if d.released && now.Sub(d.lastRelease) < d.overrideWindow {
		d.overridePending = true
	}
}

// Stable returns the debounced request.
func (d *RequestDetector) Stable() bool {
	return d.stable
}

// OverridePending reports whether an override gesture is waiting to be consumed.
func (d *RequestDetector) OverridePending() bool {
	return d.overridePending
}

// ConsumeOverride clears the pending flag and reports whether it was set.
func (d *RequestDetector) ConsumeOverride() bool {
	was := d.overridePending
	d.overridePending = false
	return was
}
