package adc

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// IIOReader reads two channels of an IIO ADC through sysfs.
type IIOReader struct {
	voltagePath string
	lightPath   string
	scale       float64
}

// NewIIOReader checks that both channel files exist under device.
// scale converts voltage counts to volts.
func NewIIOReader(device string, voltageChan, lightChan int, scale float64) (*IIOReader, error) {
	r := &IIOReader{
		voltagePath: channelPath(device, voltageChan),
		lightPath:   channelPath(device, lightChan),
		scale:       scale,
	}
	for _, p := range []string{r.voltagePath, r.lightPath} {
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("adc channel: %w", err)
		}
	}
	return r, nil
}

func channelPath(device string, ch int) string {
	return filepath.Join(device, fmt.Sprintf("in_voltage%d_raw", ch))
}

// Voltage returns the scaled battery voltage.
func (r *IIOReader) Voltage() (float64, error) {
	counts, err := readCounts(r.voltagePath)
	if err != nil {
		return 0, fmt.Errorf("read voltage: %w", err)
	}
	return counts * r.scale, nil
}

// Light returns the raw light count.
func (r *IIOReader) Light() (float64, error) {
	counts, err := readCounts(r.lightPath)
	if err != nil {
		return 0, fmt.Errorf("read light: %w", err)
	}
	return counts, nil
}

func readCounts(path string) (float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}
	return float64(v), nil
}
