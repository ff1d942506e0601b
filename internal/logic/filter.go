package logic

// Filter is a single-pole exponential smoother.
type Filter struct {
	value float64
	alpha float64
}

// NewFilter creates a filter averaging over roughly window samples, seeded
// with first so the output does not climb from zero at startup.
func NewFilter(window int, first float64) *Filter {
	if window < 1 {
		window = 1
	}
	return &Filter{
		value: first,
		alpha: 1 / float64(window),
	}
}

// Update folds sample into the average and returns the new value.
func (f *Filter) Update(sample float64) float64 {
	f.value = f.value*(1-f.alpha) + sample*f.alpha
	return f.value
}

// Value returns the current smoothed value.
func (f *Filter) Value() float64 {
	return f.value
}
