// Package codec decodes DCL still images into raw 640x480 RGB pixel buffers.
// Two sub-formats exist, selected by the first byte of the file: 'L' is a
// dictionary/back-reference scheme and 'P' is run-length coding with color
// stamping and a gap-fill pass.
package codec

import "fmt"

// Image geometry. Every DCL image has the same fixed size.
const (
	Width         = 640
	Height        = 480
	BytesPerPixel = 3

	PixelBufferSize = Width * Height * BytesPerPixel // 921600
	BlockSize       = 0xE1000                        // 921600
)

// Block layout: tag byte, reserved byte, then the bit stream.
const (
	tagOffset     = 0
	payloadOffset = 2
)

// Format identifies a DCL sub-format by its tag byte.
type Format byte

const (
	FormatL Format = 'L'
	FormatP Format = 'P'
)

func (f Format) String() string {
	switch f {
	case FormatL, FormatP:
		return string(rune(f))
	}
	return fmt.Sprintf("0x%02X", byte(f))
}

// Valid reports whether f is a known sub-format.
func (f Format) Valid() bool {
	return f == FormatL || f == FormatP
}

// Options configures Decode behavior.
type Options struct {
	// StrictStreamEnd makes format P report ErrStreamOverrun when the payload
	// runs out before an end code. By default running out of input ends the
	// stream and the remaining pixels are left to the gap-fill pass.
	// Format L always reports overruns.
	StrictStreamEnd bool
}

// DefaultOptions returns the lenient default options.
func DefaultOptions() *Options {
	return &Options{}
}
