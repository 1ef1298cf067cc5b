package gpio

import "errors"

// FakeReader is a test double that returns scripted GPIO values.
type FakeReader struct {
	// Samples contains scripted readings to return. Each call to Read()
	// consumes the next sample; the last one repeats.
	Samples []Sample

	// Lines holds the current value of each line. It is returned when no
	// samples are scripted, and can be changed between reads with SetLine.
	Lines []bool

	// index tracks current position in Samples
	index int

	// Closed tracks if Close was called
	Closed bool

	// ReadError, if set, will be returned by Read()
	ReadError error
}

// Sample is one raw reading of every line.
type Sample []bool

// NewFakeReader creates a FakeReader with the given samples.
func NewFakeReader(samples []Sample) *FakeReader {
	return &FakeReader{Samples: samples}
}

// NewFakeLines creates a FakeReader over n lines, all low.
func NewFakeLines(n int) *FakeReader {
	return &FakeReader{Lines: make([]bool, n)}
}

// Read returns the next scripted sample, or the current line values.
func (f *FakeReader) Read() ([]bool, error) {
	if f.ReadError != nil {
		return nil, f.ReadError
	}

	if len(f.Samples) == 0 {
		if f.Lines == nil {
			return nil, errors.New("no samples configured")
		}
		return append([]bool(nil), f.Lines...), nil
	}

	sample := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}

	return append([]bool(nil), sample...), nil
}

// SetLine changes the current value of line i.
func (f *FakeReader) SetLine(i int, v bool) {
	f.Lines[i] = v
}

// Close marks the reader as closed.
func (f *FakeReader) Close() error {
	f.Closed = true
	return nil
}

// Reset resets the reader to the beginning of samples.
func (f *FakeReader) Reset() {
	f.index = 0
	f.Closed = false
}

// FakeRelay records every value it is driven to.
type FakeRelay struct {
	On     bool
	Writes []bool
	Closed bool

	// SetError, if set, is returned by Set and the value is not changed.
	SetError error
}

// Set records the write.
func (f *FakeRelay) Set(on bool) error {
	if f.SetError != nil {
		return f.SetError
	}
	f.On = on
	f.Writes = append(f.Writes, on)
	return nil
}

// Close marks the relay as closed and drives it low.
func (f *FakeRelay) Close() error {
	f.On = false
	f.Closed = true
	return nil
}
