// Package gpio provides GPIO input reading and relay output with hardware
// abstraction. The real implementation uses the Linux GPIO character device.
// The fakes allow testing without hardware.
package gpio

// Reader reads a fixed set of GPIO input lines.
type Reader interface {
	// Read returns the raw value of each line, in the order the lines were
	// requested. Inversion is applied by the caller.
	Read() ([]bool, error)

	// Close releases GPIO resources.
	Close() error
}

// Relay drives one GPIO output line.
type Relay interface {
	// Set drives the line high (true) or low.
	Set(on bool) error

	// Close releases the line.
	Close() error
}

// DefaultChip is the GPIO character device on a Raspberry Pi.
const DefaultChip = "gpiochip0"
