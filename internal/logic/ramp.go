package logic

import "time"

// Ramp moves the output level toward a target by at most stepSize every
// stepInterval, so the light fades instead of switching hard.
type Ramp struct {
	current      int
	target       int
	lastStep     time.Time
	stepSize     int
	stepInterval time.Duration
	maxLevel     int
}

// NewRamp creates a ramp resting at initial.
func NewRamp(initial, stepSize int, stepInterval time.Duration, maxLevel int, now time.Time) *Ramp {
	return &Ramp{
		current:      initial,
		target:       initial,
		lastStep:     now,
		stepSize:     stepSize,
		stepInterval: stepInterval,
		maxLevel:     maxLevel,
	}
}

// SetTarget changes the level the ramp heads toward. The output does not
// move until the next Tick.
func (r *Ramp) SetTarget(level int) {
	r.target = level
}

// Tick advances the ramp by one step if one is due. It returns the new
// output and true when the level changed.
func (r *Ramp) Tick(now time.Time) (Step, bool) {
	if r.current == r.target || now.Sub(r.lastStep) <= r.stepInterval {
		return Step{}, false
	}

	if r.current < r.target {
		r.current = min(r.current+r.stepSize, r.target)
	} else {
		r.current = max(r.current-r.stepSize, r.target)
	}
	r.lastStep = now

	return r.step(), true
}

// Sync records that level was applied to the output by something other
// than the ramp. The target is left unchanged.
func (r *Ramp) Sync(level int, now time.Time) {
	r.current = level
	r.lastStep = now
}

// Current returns the last level emitted.
func (r *Ramp) Current() int {
	return r.current
}

// Target returns the level the ramp is heading toward.
func (r *Ramp) Target() int {
	return r.target
}

// Settled reports whether the output has reached the target.
func (r *Ramp) Settled() bool {
	return r.current == r.target
}

func (r *Ramp) step() Step {
	return Step{Level: r.current, Complement: r.maxLevel - r.current}
}
