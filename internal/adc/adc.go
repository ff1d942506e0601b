// Package adc reads the battery-voltage and ambient-light analog channels.
// The real implementation reads the Linux IIO sysfs interface.
package adc

// Reader returns raw analog samples.
type Reader interface {
	// Voltage returns the battery voltage in volts.
	Voltage() (float64, error)

	// Light returns the ambient-light reading in raw sensor counts.
	Light() (float64, error)
}

// Defaults for a 10-bit ADC with a 1:4 battery divider.
const (
	DefaultDevice       = "/sys/bus/iio/devices/iio:device0"
	DefaultVoltageChan  = 0
	DefaultLightChan    = 1
	DefaultVoltageScale = 0.0192 // volts per count
)
