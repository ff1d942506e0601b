// Package gpio provides the request-line input and the indicator output with
// hardware abstraction.
// The real implementation uses Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Reader reads the light request line.
type Reader interface {
	// Read returns the logical request state (true = light requested).
	Read() (bool, error)

	// Close releases GPIO resources.
	Close() error
}

// Writer drives a single digital output.
type Writer interface {
	// Set drives the output on or off.
	Set(on bool) error

	// Close releases GPIO resources.
	Close() error
}

// Default pin definitions (BCM numbering)
const (
	DefaultChip         = "gpiochip0"
	DefaultPinRequest   = 17 // Dipped beam request switch
	DefaultPinIndicator = 27 // Dashboard indicator, -1 to disable
)
