package adc

// FakeReader is a test double returning fixed readings.
type FakeReader struct {
	Volts  float64
	Counts float64

	VoltageError error
	LightError   error

	VoltageReads int
	LightReads   int
}

// Voltage returns Volts.
func (f *FakeReader) Voltage() (float64, error) {
	f.VoltageReads++
	if f.VoltageError != nil {
		return 0, f.VoltageError
	}
	return f.Volts, nil
}

// Light returns Counts.
func (f *FakeReader) Light() (float64, error) {
	f.LightReads++
	if f.LightError != nil {
		return 0, f.LightError
	}
	return f.Counts, nil
}
