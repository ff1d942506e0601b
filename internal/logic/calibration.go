package logic

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidCalibration is returned by NewController when the calibration
// constants are inconsistent.
var ErrInvalidCalibration = errors.New("invalid calibration")

// Calibration holds the fixed thresholds, windows and timings of the
// controller. It is supplied once at construction.
type Calibration struct {
	VoltageInterval time.Duration `yaml:"voltage_interval"`
	VoltageWindow   int           `yaml:"voltage_window"`
	VoltageLower    float64       `yaml:"voltage_lower"` // volts
	VoltageUpper    float64       `yaml:"voltage_upper"`

	LightInterval time.Duration `yaml:"light_interval"`
	LightWindow   int           `yaml:"light_window"`
	LightLower    float64       `yaml:"light_lower"` // raw counts
	LightUpper    float64       `yaml:"light_upper"`
	LightCeiling  float64       `yaml:"light_ceiling"`  // initial reading above this disables the sensor
	LightInverted bool          `yaml:"light_inverted"` // reading falls as it gets darker

	FlashDuration  time.Duration `yaml:"flash_duration"`
	OverrideWindow time.Duration `yaml:"override_window"`

	RampStep     int           `yaml:"ramp_step"`
	RampInterval time.Duration `yaml:"ramp_interval"`
	BrightLevel  int           `yaml:"bright_level"`
	DimLevel     int           `yaml:"dim_level"`
	MaxLevel     int           `yaml:"max_level"`
}

// DefaultCalibration returns the bench-calibrated values for a 12V system
// with a 10-bit light sensor.
func DefaultCalibration() Calibration {
	return Calibration{
		VoltageInterval: 100 * time.Millisecond,
		VoltageWindow:   15,
		VoltageLower:    11.7,
		VoltageUpper:    12.6,

		LightInterval: 1000 * time.Millisecond,
		LightWindow:   20,
		LightLower:    500,
		LightUpper:    600,
		LightCeiling:  1000,

		FlashDuration:  500 * time.Millisecond,
		OverrideWindow: 500 * time.Millisecond,

		RampStep:     3,
		RampInterval: 10 * time.Millisecond,
		BrightLevel:  255,
		DimLevel:     0,
		MaxLevel:     255,
	}
}

// Validate reports every inconsistency found, wrapped in ErrInvalidCalibration.
func (c Calibration) Validate() error {
	var errs []error

	if c.VoltageLower >= c.VoltageUpper {
		errs = append(errs, fmt.Errorf("voltage band: lower %.2f must be below upper %.2f", c.VoltageLower, c.VoltageUpper))
	}
	if c.LightLower >= c.LightUpper {
		errs = append(errs, fmt.Errorf("light band: lower %.0f must be below upper %.0f", c.LightLower, c.LightUpper))
	}
	if c.VoltageWindow < 1 {
		errs = append(errs, fmt.Errorf("voltage window %d must be at least 1", c.VoltageWindow))
	}
	if c.LightWindow < 1 {
		errs = append(errs, fmt.Errorf("light window %d must be at least 1", c.LightWindow))
	}
	if c.VoltageInterval <= 0 {
		errs = append(errs, fmt.Errorf("voltage interval %v must be positive", c.VoltageInterval))
	}
	if c.LightInterval <= 0 {
		errs = append(errs, fmt.Errorf("light interval %v must be positive", c.LightInterval))
	}
	if c.FlashDuration <= 0 {
		errs = append(errs, fmt.Errorf("flash duration %v must be positive", c.FlashDuration))
	}
	if c.OverrideWindow <= 0 {
		errs = append(errs, fmt.Errorf("override window %v must be positive", c.OverrideWindow))
	}
	if c.RampStep < 1 {
		errs = append(errs, fmt.Errorf("ramp step %d must be at least 1", c.RampStep))
	}
	if c.RampInterval <= 0 {
		errs = append(errs, fmt.Errorf("ramp interval %v must be positive", c.RampInterval))
	}
	if c.MaxLevel < 1 {
		errs = append(errs, fmt.Errorf("max level %d must be at least 1", c.MaxLevel))
	}
	if c.BrightLevel < 0 || c.BrightLevel > c.MaxLevel {
		errs = append(errs, fmt.Errorf("bright level %d outside 0..%d", c.BrightLevel, c.MaxLevel))
	}
	if c.DimLevel < 0 || c.DimLevel > c.MaxLevel {
		errs = append(errs, fmt.Errorf("dim level %d outside 0..%d", c.DimLevel, c.MaxLevel))
	}
	if c.BrightLevel == c.DimLevel {
		errs = append(errs, fmt.Errorf("bright and dim levels are both %d", c.BrightLevel))
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidCalibration, errors.Join(errs...))
}
