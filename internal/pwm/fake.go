package pwm

import "github.com/sweeney/beam-controller/internal/logic"

// FakeChannel records duty cycles.
type FakeChannel struct {
	Duties   []float64
	SetError error
	Closed   bool
}

// SetDuty records fraction.
func (f *FakeChannel) SetDuty(fraction float64) error {
	if f.SetError != nil {
		return f.SetError
	}
	f.Duties = append(f.Duties, fraction)
	return nil
}

// Close marks the channel closed.
func (f *FakeChannel) Close() error {
	f.Closed = true
	return nil
}

// FakeOutput records applied steps.
type FakeOutput struct {
	Steps      []logic.Step
	ApplyError error
	Closed     bool
}

// Apply records s.
func (f *FakeOutput) Apply(s logic.Step) error {
	if f.ApplyError != nil {
		return f.ApplyError
	}
	f.Steps = append(f.Steps, s)
	return nil
}

// Close marks the output closed.
func (f *FakeOutput) Close() error {
	f.Closed = true
	return nil
}

// Last returns the most recent step.
func (f *FakeOutput) Last() (logic.Step, bool) {
	if len(f.Steps) == 0 {
		return logic.Step{}, false
	}
	return f.Steps[len(f.Steps)-1], true
}
