package logic

// Hysteresis is a Schmitt trigger: the level only rises when the input goes
// above upper and only falls when it goes below lower. Inside the band the
// previous level is held.
type Hysteresis struct {
	lower float64
	upper float64
	level bool
}

// NewHysteresis creates a comparator whose initial level is initial > upper.
// Callers must ensure lower < upper.
func NewHysteresis(lower, upper, initial float64) *Hysteresis {
	return &Hysteresis{
		lower: lower,
		upper: upper,
		level: initial > upper,
	}
}

// Update feeds a new value and returns the resulting level.
func (h *Hysteresis) Update(value float64) bool {
	switch {
	case value > h.upper:
		h.level = true
	case value < h.lower:
		h.level = false
	}
	return h.level
}

// Level returns the current level without feeding a value.
func (h *Hysteresis) Level() bool {
	return h.level
}
