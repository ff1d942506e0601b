//go:build linux

package gpio

import (
	"errors"
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealReader reads the request line using Linux GPIO character device.
type RealReader struct {
	line *gpiocdev.Line
}

// NewRealReader requests pin on chip as an input. The switch pulls the line
// high when the light is requested; activeLow inverts that for switches
// wired to ground.
func NewRealReader(chip string, pin int, activeLow bool) (*RealReader, error) {
	opts := []gpiocdev.LineReqOption{gpiocdev.AsInput, gpiocdev.WithPullDown, gpiocdev.WithConsumer("beam-controller")}
	if activeLow {
		opts = []gpiocdev.LineReqOption{gpiocdev.AsInput, gpiocdev.WithPullUp, gpiocdev.AsActiveLow, gpiocdev.WithConsumer("beam-controller")}
	}

	line, err := gpiocdev.RequestLine(chip, pin, opts...)
	if err != nil {
		return nil, fmt.Errorf("request pin %d on %s: %w", pin, chip, err)
	}
	return &RealReader{line: line}, nil
}

// Read returns the logical request state.
func (r *RealReader) Read() (bool, error) {
	v, err := r.line.Value()
	if err != nil {
		return false, fmt.Errorf("read request pin: %w", err)
	}
	return v == 1, nil
}

// Close reconfigures the line to input with pull-down (matching Pi boot
// defaults) before releasing it.
func (r *RealReader) Close() error {
	var errs []error
	if err := r.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
		errs = append(errs, fmt.Errorf("reconfigure request pin: %w", err))
	}
	if err := r.line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close request pin: %w", err))
	}
	return errors.Join(errs...)
}

// RealWriter drives an output line using Linux GPIO character device.
type RealWriter struct {
	line *gpiocdev.Line
}

// NewRealWriter requests pin on chip as an output, initially off.
func NewRealWriter(chip string, pin int) (*RealWriter, error) {
	line, err := gpiocdev.RequestLine(chip, pin, gpiocdev.AsOutput(0), gpiocdev.WithConsumer("beam-controller"))
	if err != nil {
		return nil, fmt.Errorf("request output pin %d on %s: %w", pin, chip, err)
	}
	return &RealWriter{line: line}, nil
}

// Set drives the line.
func (w *RealWriter) Set(on bool) error {
	v := 0
	if on {
		v = 1
	}
	if err := w.line.SetValue(v); err != nil {
		return fmt.Errorf("set output pin: %w", err)
	}
	return nil
}

// Close turns the output off and returns the line to an input with
// pull-down, so nothing stays driven across a reboot.
func (w *RealWriter) Close() error {
	var errs []error
	if err := w.line.SetValue(0); err != nil {
		errs = append(errs, fmt.Errorf("clear output pin: %w", err))
	}
	if err := w.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
		errs = append(errs, fmt.Errorf("reconfigure output pin: %w", err))
	}
	if err := w.line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close output pin: %w", err))
	}
	return errors.Join(errs...)
}
