package pwm

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// DefaultChip is the first PWM controller on a Raspberry Pi.
const DefaultChip = "/sys/class/pwm/pwmchip0"

// Sysfs is a PWM channel driven through /sys/class/pwm.
type Sysfs struct {
	dir    string
	period time.Duration
}

// OpenSysfs exports channel on chip if needed, programs the period and
// enables the output at zero duty.
func OpenSysfs(chip string, channel int, period time.Duration) (*Sysfs, error) {
	if period <= 0 {
		return nil, fmt.Errorf("pwm period %v must be positive", period)
	}

	dir := filepath.Join(chip, fmt.Sprintf("pwm%d", channel))
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		if err := writeValue(filepath.Join(chip, "export"), strconv.Itoa(channel)); err != nil {
			return nil, fmt.Errorf("export pwm%d: %w", channel, err)
		}
	}

	s := &Sysfs{dir: dir, period: period}
	if err := s.write("duty_cycle", "0"); err != nil {
		return nil, err
	}
	if err := s.write("period", strconv.FormatInt(period.Nanoseconds(), 10)); err != nil {
		return nil, err
	}
	if err := s.write("enable", "1"); err != nil {
		return nil, err
	}
	return s, nil
}

// SetDuty programs the duty cycle.
func (s *Sysfs) SetDuty(fraction float64) error {
	ns := int64(fraction * float64(s.period.Nanoseconds()))
	return s.write("duty_cycle", strconv.FormatInt(ns, 10))
}

// Close drops the duty to zero and disables the channel.
func (s *Sysfs) Close() error {
	return errors.Join(
		s.write("duty_cycle", "0"),
		s.write("enable", "0"),
	)
}

func (s *Sysfs) write(attr, value string) error {
	if err := writeValue(filepath.Join(s.dir, attr), value); err != nil {
		return fmt.Errorf("pwm %s: %w", attr, err)
	}
	return nil
}

func writeValue(path, value string) error {
	return os.WriteFile(path, []byte(value), 0o644)
}
