package codec

import (
	"errors"
	"fmt"
	"io"
)

// DetectFormat returns the sub-format named by the tag byte of data.
func DetectFormat(data []byte) (Format, error) {
	if len(data) <= tagOffset {
		return 0, fmt.Errorf("%w: empty input", ErrTruncatedInput)
	}
	f := Format(data[tagOffset])
	if !f.Valid() {
		return f, fmt.Errorf("%w: tag %s", ErrUnsupportedFormat, f)
	}
	return f, nil
}

// Decode decodes one DCL block into a new Width*Height*3 pixel buffer in
// decoder channel order. data must hold at least BlockSize bytes; anything
// past the block is ignored. Options nil means DefaultOptions.
func Decode(data []byte, opts *Options) ([]byte, error) {
	if len(data) < BlockSize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrTruncatedInput, len(data), BlockSize)
	}
	block := data[:BlockSize]

	f, err := DetectFormat(block)
	if err != nil {
		return nil, err
	}

	out := make([]byte, PixelBufferSize)
	switch f {
	case FormatL:
		err = DecodeL(block, out)
	case FormatP:
		err = DecodeP(block, out, opts)
	}
	if err != nil {
		return nil, fmt.Errorf("format %s: %w", f, err)
	}

	return out, nil
}

// DecodeReader reads exactly one block from r and decodes it.
func DecodeReader(r io.Reader, opts *Options) ([]byte, error) {
	block, err := ReadBlock(r)
	if err != nil {
		return nil, err
	}
	return Decode(block, opts)
}

// ReadBlock reads one BlockSize block from r. Short input is an error, never
// zero-padded.
func ReadBlock(r io.Reader) ([]byte, error) {
	block := make([]byte, BlockSize)
	n, err := io.ReadFull(r, block)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrTruncatedInput, n, BlockSize)
		}
		return nil, fmt.Errorf("read block: %w", err)
	}
	return block, nil
}
