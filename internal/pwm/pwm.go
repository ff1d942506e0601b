// Package pwm drives the light output and its indicator from ramp steps.
package pwm

import (
	"errors"
	"fmt"

	"github.com/sweeney/beam-controller/internal/gpio"
	"github.com/sweeney/beam-controller/internal/logic"
)

// Channel is a single PWM output.
type Channel interface {
	// SetDuty sets the duty cycle as a fraction in [0, 1].
	SetDuty(fraction float64) error

	// Close disables the output.
	Close() error
}

// Driver applies ramp steps to the light channel and mirrors the
// complement onto an optional digital indicator.
type Driver struct {
	light     Channel
	indicator gpio.Writer
	maxLevel  int
	inverted  bool
}

// NewDriver creates a driver. indicator may be nil. When inverted is set a
// smaller duty means a brighter light.
func NewDriver(light Channel, indicator gpio.Writer, maxLevel int, inverted bool) *Driver {
	return &Driver{
		light:     light,
		indicator: indicator,
		maxLevel:  maxLevel,
		inverted:  inverted,
	}
}

// Apply writes one step to the outputs.
func (d *Driver) Apply(s logic.Step) error {
	duty := float64(s.Level) / float64(d.maxLevel)
	if d.inverted {
		duty = 1 - duty
	}
	duty = min(max(duty, 0), 1)

	if err := d.light.SetDuty(duty); err != nil {
		return fmt.Errorf("light: %w", err)
	}
	if d.indicator != nil {
		if err := d.indicator.Set(s.Complement*2 > d.maxLevel); err != nil {
			return fmt.Errorf("indicator: %w", err)
		}
	}
	return nil
}

// Close releases both outputs.
func (d *Driver) Close() error {
	var errs []error
	if err := d.light.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close light: %w", err))
	}
	if d.indicator != nil {
		if err := d.indicator.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close indicator: %w", err))
		}
	}
	return errors.Join(errs...)
}
