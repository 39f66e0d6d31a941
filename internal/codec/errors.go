package codec

import "errors"

// Decode errors. Each is wrapped with positional detail; compare with errors.Is.
var (
	ErrUnsupportedFormat = errors.New("dcl: unsupported format")
	ErrTruncatedInput    = errors.New("dcl: input shorter than block size")
	ErrStreamOverrun     = errors.New("dcl: bit stream overrun")
	ErrDecodeOverflow    = errors.New("dcl: decoded data exceeds pixel buffer")
)

// ErrorKind returns the taxonomy name of a decode error, "" for nil and
// "Unknown" for errors that did not originate in the decoder.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnsupportedFormat):
		return "UnsupportedFormat"
	case errors.Is(err, ErrTruncatedInput):
		return "TruncatedInput"
	case errors.Is(err, ErrStreamOverrun):
		return "StreamOverrun"
	case errors.Is(err, ErrDecodeOverflow):
		return "DecodeOverflow"
	}
	return "Unknown"
}
