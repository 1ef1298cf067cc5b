//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealReader reads GPIO from actual hardware using the Linux GPIO character device.
type RealReader struct {
	chip   *gpiocdev.Chip
	lines  *gpiocdev.Lines
	values []int
}

// NewRealReader requests the given line offsets on chip as inputs.
func NewRealReader(chipName string, offsets []int) (*RealReader, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	r := &RealReader{chip: chip, values: make([]int, len(offsets))}
	if len(offsets) == 0 {
		return r, nil
	}

	// Request lines as input with pull-down to match Pi boot defaults.
	lines, err := chip.RequestLines(offsets, gpiocdev.AsInput, gpiocdev.WithPullDown)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request input lines %v: %w", offsets, err)
	}
	r.lines = lines
	return r, nil
}

// Read returns the raw value of each line.
func (r *RealReader) Read() ([]bool, error) {
	out := make([]bool, len(r.values))
	if r.lines == nil {
		return out, nil
	}
	if err := r.lines.Values(r.values); err != nil {
		return nil, fmt.Errorf("read input lines: %w", err)
	}
	for i, v := range r.values {
		out[i] = v != 0
	}
	return out, nil
}

// Close releases GPIO resources.
// Reconfigures lines to input with pull-down (matching Pi boot defaults)
// before closing so the pins are in a clean state for shutdown or reboot.
func (r *RealReader) Close() error {
	var errs []error
	if r.lines != nil {
		if err := r.lines.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure input lines: %w", err))
		}
		if err := r.lines.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close input lines: %w", err))
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// RealRelay drives an output line on actual hardware.
type RealRelay struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

// NewRealRelay requests offset on chip as an output, initially low.
func NewRealRelay(chipName string, offset int) (*RealRelay, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	line, err := chip.RequestLine(offset, gpiocdev.AsOutput(0))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request output line %d: %w", offset, err)
	}
	return &RealRelay{chip: chip, line: line}, nil
}

// Set drives the line.
func (r *RealRelay) Set(on bool) error {
	v := 0
	if on {
		v = 1
	}
	if err := r.line.SetValue(v); err != nil {
		return fmt.Errorf("set line %d: %w", r.line.Offset(), err)
	}
	return nil
}

// Close drives the line low, returns it to an input with pull-down and
// releases it.
func (r *RealRelay) Close() error {
	var errs []error
	if r.line != nil {
		if err := r.line.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("release output: %w", err))
		}
		if err := r.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure output: %w", err))
		}
		if err := r.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close output: %w", err))
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
