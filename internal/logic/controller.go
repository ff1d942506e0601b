package logic

import (
	"fmt"
	"time"
)

// Controller owns every piece of control state and runs one tick at a time.
// It is not safe for concurrent use.
type Controller struct {
	cal Calibration

	voltage      *Channel
	light        *Channel
	lightEnabled bool

	request *RequestDetector
	ramp    *Ramp

	state      State
	flashStart time.Time

	startTime     time.Time
	counts        TransitionCounts
	lastHeartbeat time.Time
}

// NewController validates cal and seeds every component from the initial
// raw readings. The controller starts in StateOff with the output dim.
func NewController(cal Calibration, initial InitialSample, now time.Time) (*Controller, error) {
	if err := cal.Validate(); err != nil {
		return nil, err
	}

	c := &Controller{
		cal:           cal,
		voltage:       NewChannel(cal.VoltageWindow, cal.VoltageLower, cal.VoltageUpper, cal.VoltageInterval, false, initial.Voltage, now),
		lightEnabled:  initial.Light <= cal.LightCeiling,
		request:       NewRequestDetector(initial.Request, cal.OverrideWindow),
		ramp:          NewRamp(cal.DimLevel, cal.RampStep, cal.RampInterval, cal.MaxLevel, now),
		state:         StateOff,
		startTime:     now,
		lastHeartbeat: now,
	}
	if c.lightEnabled {
		c.light = NewChannel(cal.LightWindow, cal.LightLower, cal.LightUpper, cal.LightInterval, cal.LightInverted, initial.Light, now)
	}

	return c, nil
}

// VoltageDue reports whether a voltage sample should be taken.
func (c *Controller) VoltageDue(now time.Time) bool {
	return c.voltage.Due(now)
}

// UpdateVoltage feeds a voltage sample in volts.
func (c *Controller) UpdateVoltage(volts float64, now time.Time) {
	c.voltage.Update(volts, now)
}

// LightDue reports whether a light sample should be taken. Always false
// once the sensor has been disabled.
func (c *Controller) LightDue(now time.Time) bool {
	return c.lightEnabled && c.light.Due(now)
}

// UpdateLight feeds a raw light sample. Ignored when the sensor is disabled.
func (c *Controller) UpdateLight(counts float64, now time.Time) {
	if !c.lightEnabled {
		return
	}
	c.light.Update(counts, now)
}

// Tick runs the request detector, the state machine and the ramp, in that
// order. While in StateDiagnostic only the request detector runs.
func (c *Controller) Tick(in Input) Result {
	var res Result

	request, _ := c.request.Sample(in.Request, in.Time)

	if c.state == StateDiagnostic {
		return res
	}

	res.Transition = c.step(request, in.Time)

	if s, ok := c.ramp.Tick(in.Time); ok {
		res.Step = &s
	}
	return res
}

// step evaluates the transition table for the current state. The first
// matching row wins; no match leaves state and target untouched.
func (c *Controller) step(request bool, now time.Time) *Transition {
	powerOK := c.voltage.Above()
	dark := c.dark()

	switch c.state {
	case StateOff:
		if request {
			c.ramp.SetTarget(c.cal.BrightLevel)
			if powerOK {
				return c.moveTo(StateOnBright, now)
			}
			c.flashStart = now
			return c.moveTo(StateFlash, now)
		}
		c.request.ConsumeOverride()

	case StateOnBright:
		if !request {
			c.ramp.SetTarget(c.cal.DimLevel)
			return c.moveTo(StateOff, now)
		}
		if !powerOK && !dark {
			c.ramp.SetTarget(c.cal.DimLevel)
			return c.moveTo(StateOnDim, now)
		}

	case StateOnDim:
		if powerOK || dark {
			c.ramp.SetTarget(c.cal.BrightLevel)
			return c.moveTo(StateOnBright, now)
		}
		if c.request.ConsumeOverride() {
			c.ramp.SetTarget(c.cal.BrightLevel)
			return c.moveTo(StateForceOn, now)
		}
		if !request {
			return c.moveTo(StateOff, now)
		}

	case StateForceOn:
		if !request {
			c.ramp.SetTarget(c.cal.DimLevel)
			c.request.ConsumeOverride()
			return c.moveTo(StateOff, now)
		}

	case StateFlash:
		if now.Sub(c.flashStart) > c.cal.FlashDuration {
			c.ramp.SetTarget(c.cal.DimLevel)
			return c.moveTo(StateOnDim, now)
		}
		if c.request.ConsumeOverride() {
			c.ramp.SetTarget(c.cal.BrightLevel)
			return c.moveTo(StateForceOn, now)
		}
	}

	return nil
}

// dark is the light band level; a disabled sensor always reads as dark.
func (c *Controller) dark() bool {
	if !c.lightEnabled {
		return true
	}
	return c.light.Above()
}

func (c *Controller) moveTo(next State, now time.Time) *Transition {
	t := &Transition{
		Time:     now,
		From:     c.state,
		To:       next,
		Override: c.request.OverridePending(),
	}
	c.state = next
	c.countEntry(next)
	return t
}

func (c *Controller) countEntry(s State) {
	switch s {
	case StateOff:
		c.counts.Off++
	case StateOnBright:
		c.counts.OnBright++
	case StateOnDim:
		c.counts.OnDim++
	case StateForceOn:
		c.counts.ForceOn++
	case StateFlash:
		c.counts.Flash++
	case StateDiagnostic:
		c.counts.Diagnostic++
	}
}

// EnterDiagnostics suspends the transition table and the ramp. The caller
// owns the outputs until Resume.
func (c *Controller) EnterDiagnostics(now time.Time) (*Transition, error) {
	if c.state == StateDiagnostic {
		return nil, fmt.Errorf("already in %s", StateDiagnostic)
	}
	return c.moveTo(StateDiagnostic, now), nil
}

// Resume leaves diagnostics and returns to StateOff. appliedLevel is the
// level the diagnostic console left on the output; the ramp fades from
// there to dim.
func (c *Controller) Resume(now time.Time, appliedLevel int) (*Transition, error) {
	if c.state != StateDiagnostic {
		return nil, fmt.Errorf("not in %s (state %s)", StateDiagnostic, c.state)
	}
	c.request.ConsumeOverride()
	c.ramp.Sync(appliedLevel, now)
	c.ramp.SetTarget(c.cal.DimLevel)
	return c.moveTo(StateOff, now), nil
}

// State returns the current state.
func (c *Controller) State() State {
	return c.state
}

// LightEnabled reports whether ambient-light sensing is active.
func (c *Controller) LightEnabled() bool {
	return c.lightEnabled
}

// Calibration returns the constants the controller was built with.
func (c *Controller) Calibration() Calibration {
	return c.cal
}

// Status returns a copy of the controller's observable state.
func (c *Controller) Status() Status {
	s := Status{
		State:        c.state,
		Level:        c.ramp.Current(),
		Target:       c.ramp.Target(),
		Voltage:      c.voltage.Value(),
		LightEnabled: c.lightEnabled,
		PowerOK:      c.voltage.Above(),
		Dark:         c.dark(),
		Request:      c.request.Stable(),
		Override:     c.request.OverridePending(),
		Counts:       c.counts,
	}
	if c.lightEnabled {
		s.Light = c.light.Value()
	}
	return s
}

// CheckHeartbeat returns heartbeat data if the interval has elapsed since the
// last heartbeat (or startup). Returns nil if the interval has not elapsed
// or if interval is <= 0 (disabled).
func (c *Controller) CheckHeartbeat(now time.Time, interval time.Duration) *HeartbeatData {
	if interval <= 0 {
		return nil
	}

	if now.Sub(c.lastHeartbeat) < interval {
		return nil
	}

	c.lastHeartbeat = now
	return &HeartbeatData{
		Timestamp: now,
		Uptime:    now.Sub(c.startTime),
		Counts:    c.counts,
	}
}
